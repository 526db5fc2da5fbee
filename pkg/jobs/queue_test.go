package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesThenReportsFailure(t *testing.T) {
	var calls int32
	failed := make(chan Job, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("db contention")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnFailure:  func(job Job, err error) { failed <- job },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a", Type: "aggregate"}))

	select {
	case job := <-failed:
		assert.Equal(t, "a", job.ID)
		assert.Equal(t, 3, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("failure hook not invoked")
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestQueueAppliesAttemptTimeout(t *testing.T) {
	done := make(chan error, 1)
	q := NewQueue("timeout", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		done <- ctx.Err()
		return nil
	}, QueueConfig{Timeout: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "slow"}))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("attempt was not cancelled")
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	failed := make(chan error, 1)
	q := NewQueue("panic", func(ctx context.Context, job Job) error {
		panic("kaboom")
	}, QueueConfig{OnFailure: func(_ Job, err error) { failed <- err }})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p"}))
	select {
	case err := <-failed:
		assert.Contains(t, err.Error(), "kaboom")
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not converted into failure")
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))
}
