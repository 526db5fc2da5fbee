package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/service"
)

type recordingQueue struct {
	mu   sync.Mutex
	reqs []models.AggregationRequest
	err  error
}

func (q *recordingQueue) Enqueue(req models.AggregationRequest) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return "job", q.err
}

type stubDispatcher struct {
	calls []time.Time
	err   error
}

func (d *stubDispatcher) DispatchDue(_ context.Context, now time.Time) (int, error) {
	d.calls = append(d.calls, now)
	return len(d.calls), d.err
}

type stubRetrier struct{ calls int }

func (r *stubRetrier) ProcessQueue(context.Context) (service.RetrySummary, error) {
	r.calls++
	return service.RetrySummary{Attempted: 2, Delivered: 1, Failed: 1}, nil
}

type stubDigest struct{ calls int }

func (d *stubDigest) Sweep(context.Context) (service.DigestSummary, error) {
	d.calls++
	return service.DigestSummary{}, errors.New("smtp down")
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(nil)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2025, 1, 16, 0, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestRegisterJobsNamesEveryJob(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.RegisterAggregationJobs(&recordingQueue{}, "30 0 * * *", "5 * * * *"))
	require.NoError(t, m.RegisterReportJobs(&stubDispatcher{}, 0))
	require.NoError(t, m.RegisterNotificationJobs(&stubRetrier{}, &stubDigest{}, 0, "0 8 * * *"))

	var names []string
	for _, job := range m.Jobs() {
		names = append(names, job.Name())
	}
	assert.ElementsMatch(t, []string{
		"aggregation-daily",
		"aggregation-hourly",
		"report-dispatch",
		"notification-retry",
		"notification-digest",
	}, names)
}

func TestRegisterAggregationJobsRejectsBadCron(t *testing.T) {
	m := newTestManager(t)
	err := m.RegisterAggregationJobs(&recordingQueue{}, "not a cron", "5 * * * *")
	assert.Error(t, err)
}

func TestNightlyAggregationTargetsYesterday(t *testing.T) {
	m := newTestManager(t)
	q := &recordingQueue{}

	m.enqueueNightly(q)

	require.Len(t, q.reqs, 1)
	assert.Equal(t, models.MetricTypeAll, q.reqs[0].Type)
	assert.Equal(t, "2025-01-15", q.reqs[0].Date.Format("2006-01-02"))
}

func TestHourlyAggregationRefreshesToday(t *testing.T) {
	m := newTestManager(t)
	q := &recordingQueue{err: errors.New("queue full")}

	m.enqueueHourly(q)

	require.Len(t, q.reqs, 3)
	var types []models.MetricType
	for _, req := range q.reqs {
		assert.Equal(t, "2025-01-16", req.Date.Format("2006-01-02"))
		types = append(types, req.Type)
	}
	assert.Equal(t, []models.MetricType{models.MetricTypeDaily, models.MetricTypeHourly, models.MetricTypeSLA}, types)
}

func TestPeriodicTasksSwallowErrors(t *testing.T) {
	m := newTestManager(t)
	d := &stubDispatcher{err: errors.New("db down")}
	r := &stubRetrier{}
	g := &stubDigest{}

	m.dispatchReports(context.Background(), d)
	m.retryNotifications(context.Background(), r)
	m.sweepDigests(context.Background(), g)

	require.Len(t, d.calls, 1)
	assert.Equal(t, time.UTC, d.calls[0].Location())
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 1, g.calls)
}

func TestStartStopIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	m.Start()
	m.Start()
	assert.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
}
