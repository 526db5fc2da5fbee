package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

type mockAnalyticsRepo struct {
	tickets      []models.TicketMetrics
	hourly       []models.HourlyTicketMetrics
	sla          []models.SLAMetrics
	clients      []models.ClientMetrics
	ticketsCalls int
	hourlyCalls  int
	lastRange    models.DateRange
	lastDate     time.Time
	lastLimit    int
	err          error
}

func (m *mockAnalyticsRepo) TicketMetrics(_ context.Context, rng models.DateRange) ([]models.TicketMetrics, error) {
	m.ticketsCalls++
	m.lastRange = rng
	return m.tickets, m.err
}

func (m *mockAnalyticsRepo) HourlyMetrics(_ context.Context, date time.Time) ([]models.HourlyTicketMetrics, error) {
	m.hourlyCalls++
	m.lastDate = date
	return m.hourly, m.err
}

func (m *mockAnalyticsRepo) SLAMetrics(_ context.Context, rng models.DateRange) ([]models.SLAMetrics, error) {
	m.lastRange = rng
	return m.sla, m.err
}

func (m *mockAnalyticsRepo) ClientMetrics(_ context.Context, periodEnd time.Time, limit int) ([]models.ClientMetrics, error) {
	m.lastDate = periodEnd
	m.lastLimit = limit
	return m.clients, m.err
}

type stubCacheRepo struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.store, key)
	}
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	removed := 0
	for key := range s.store {
		if strings.HasPrefix(key, prefix) {
			delete(s.store, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubCacheRepo) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.store[key]
	return ok
}

func newAnalyticsForTest(repo AnalyticsRepository, cacheRepo CacheRepository) *AnalyticsService {
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), cacheRepo != nil)
	svc := NewAnalyticsService(repo, cacheSvc, nil, zap.NewNop(), time.Minute)
	svc.now = func() time.Time { return time.Date(2025, 1, 16, 15, 30, 0, 0, time.UTC) }
	return svc
}

func TestAnalyticsServiceTicketsCaching(t *testing.T) {
	repo := &mockAnalyticsRepo{tickets: []models.TicketMetrics{{Date: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), TotalTickets: 12}}}
	cacheRepo := &stubCacheRepo{}
	svc := newAnalyticsForTest(repo, cacheRepo)
	ctx := context.Background()
	rng := models.DateRange{From: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)}

	result, hit, err := svc.Tickets(ctx, rng)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 12, result[0].TotalTickets)
	assert.True(t, cacheRepo.has("metrics:tickets:2025-01-10:2025-01-15"))

	cached, hit, err := svc.Tickets(ctx, rng)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, repo.ticketsCalls)
	assert.Equal(t, result[0].TotalTickets, cached[0].TotalTickets)

	// an aggregation run drops every metrics key
	_, err = svc.cache.Invalidate(ctx, []string{"metrics:*"})
	require.NoError(t, err)
	_, hit, err = svc.Tickets(ctx, rng)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.ticketsCalls)
}

func TestAnalyticsServiceDefaultsToTrailingWeek(t *testing.T) {
	repo := &mockAnalyticsRepo{}
	svc := newAnalyticsForTest(repo, nil)

	rows, _, err := svc.SLA(context.Background(), models.DateRange{})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), repo.lastRange.From)
	assert.Equal(t, time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC), repo.lastRange.To)
}

func TestAnalyticsServiceRejectsBadRanges(t *testing.T) {
	repo := &mockAnalyticsRepo{}
	svc := newAnalyticsForTest(repo, nil)

	_, _, err := svc.Tickets(context.Background(), models.DateRange{
		From: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, err = svc.SLA(context.Background(), models.DateRange{
		From: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, repo.ticketsCalls)
}

func TestAnalyticsServiceHourlyTruncatesDate(t *testing.T) {
	repo := &mockAnalyticsRepo{hourly: make([]models.HourlyTicketMetrics, 24)}
	svc := newAnalyticsForTest(repo, nil)

	rows, _, err := svc.Hourly(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, rows, 24)
	assert.Equal(t, time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC), repo.lastDate)
}

func TestAnalyticsServiceClientsClampsLimit(t *testing.T) {
	repo := &mockAnalyticsRepo{}
	svc := newAnalyticsForTest(repo, nil)

	_, _, err := svc.Clients(context.Background(), time.Time{}, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, repo.lastLimit)

	_, _, err = svc.Clients(context.Background(), time.Date(2025, 1, 14, 18, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, repo.lastLimit)
	assert.Equal(t, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), repo.lastDate)
}

func TestAnalyticsServiceErrorPassthrough(t *testing.T) {
	repo := &mockAnalyticsRepo{err: assert.AnError}
	svc := newAnalyticsForTest(repo, &stubCacheRepo{})

	_, _, err := svc.Tickets(context.Background(), models.DateRange{})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
