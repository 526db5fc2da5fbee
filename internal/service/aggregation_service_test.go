package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/repository"
	"github.com/aidly/aidly-api/pkg/cache"
	"github.com/aidly/aidly-api/pkg/config"
)

// fakeAggregationDB serves canned grouped results and keeps written rows keyed like the real tables.
type fakeAggregationDB struct {
	mu sync.Mutex

	buckets      map[repository.Dimension][]repository.BucketCount
	timings      repository.TimingAverages
	hourly       []repository.HourBucket
	agentIDs     []string
	activity     map[repository.EntityKind][]repository.EntityActivity
	satisfaction map[repository.EntityKind][]repository.Satisfaction
	activeDays   map[repository.EntityKind][]repository.ActiveDays
	sla          []repository.SLAOutcome
	failOn       string

	locks        []string
	activityArgs []int
	daily        map[string]models.TicketMetrics
	hourlyRows   map[string][]models.HourlyTicketMetrics
	agentRows    map[string][]models.AgentMetrics
	clientRows   map[string][]models.ClientMetrics
	slaRows      map[string]models.SLAMetrics
}

func newFakeAggregationDB() *fakeAggregationDB {
	return &fakeAggregationDB{
		buckets:      map[repository.Dimension][]repository.BucketCount{},
		activity:     map[repository.EntityKind][]repository.EntityActivity{},
		satisfaction: map[repository.EntityKind][]repository.Satisfaction{},
		activeDays:   map[repository.EntityKind][]repository.ActiveDays{},
		daily:        map[string]models.TicketMetrics{},
		hourlyRows:   map[string][]models.HourlyTicketMetrics{},
		agentRows:    map[string][]models.AgentMetrics{},
		clientRows:   map[string][]models.ClientMetrics{},
		slaRows:      map[string]models.SLAMetrics{},
	}
}

func (f *fakeAggregationDB) WithinLock(ctx context.Context, key string, fn func(repository.AggregationQueries) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, key)
	return fn(f)
}

func (f *fakeAggregationDB) fail(op string) error {
	if f.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (f *fakeAggregationDB) CountCreatedBy(_ context.Context, dim repository.Dimension, _, _ time.Time) ([]repository.BucketCount, error) {
	return f.buckets[dim], f.fail("count")
}

func (f *fakeAggregationDB) CreatedTimings(_ context.Context, _, _ time.Time) (repository.TimingAverages, error) {
	return f.timings, nil
}

func (f *fakeAggregationDB) HourlyFlow(_ context.Context, _, _ time.Time) ([]repository.HourBucket, error) {
	return f.hourly, nil
}

func (f *fakeAggregationDB) ActiveAgentIDs(_ context.Context) ([]string, error) {
	return f.agentIDs, nil
}

func (f *fakeAggregationDB) Activity(_ context.Context, kind repository.EntityKind, _, _ time.Time, limit int) ([]repository.EntityActivity, error) {
	f.activityArgs = append(f.activityArgs, limit)
	return f.activity[kind], nil
}

func (f *fakeAggregationDB) Satisfaction(_ context.Context, kind repository.EntityKind, _, _ time.Time) ([]repository.Satisfaction, error) {
	return f.satisfaction[kind], nil
}

func (f *fakeAggregationDB) ActiveDays(_ context.Context, kind repository.EntityKind, _, _ time.Time) ([]repository.ActiveDays, error) {
	return f.activeDays[kind], nil
}

func (f *fakeAggregationDB) SLAOutcomes(_ context.Context, _, _, _ time.Time) ([]repository.SLAOutcome, error) {
	return f.sla, nil
}

func (f *fakeAggregationDB) UpsertTicketMetrics(_ context.Context, m *models.TicketMetrics) error {
	if err := f.fail("upsert_daily"); err != nil {
		return err
	}
	f.daily[m.Date.Format(dateLayout)] = *m
	return nil
}

func (f *fakeAggregationDB) ReplaceHourlyMetrics(_ context.Context, date time.Time, rows []models.HourlyTicketMetrics) error {
	f.hourlyRows[date.Format(dateLayout)] = rows
	return nil
}

func (f *fakeAggregationDB) ReplaceAgentMetrics(_ context.Context, start, end time.Time, rows []models.AgentMetrics) error {
	f.agentRows[start.Format(dateLayout)+"/"+end.Format(dateLayout)] = rows
	return nil
}

func (f *fakeAggregationDB) ReplaceClientMetrics(_ context.Context, start, end time.Time, rows []models.ClientMetrics) error {
	f.clientRows[start.Format(dateLayout)+"/"+end.Format(dateLayout)] = rows
	return nil
}

func (f *fakeAggregationDB) UpsertSLAMetrics(_ context.Context, m *models.SLAMetrics) error {
	f.slaRows[m.Date.Format(dateLayout)] = *m
	return nil
}

type recordingInvalidator struct {
	patterns []string
	keys     []string
	calls    int
}

func (r *recordingInvalidator) Invalidate(_ context.Context, patterns []string, keys ...string) (int, error) {
	r.calls++
	r.patterns = append(r.patterns, patterns...)
	r.keys = append(r.keys, keys...)
	return len(keys), nil
}

func newTestAggregator(db *fakeAggregationDB, inv CacheInvalidator) *AggregationService {
	svc := NewAggregationService(db, inv, nil, config.AggregationConfig{AgentWindowDays: 30, ClientTopN: 100}, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 1, 16, 1, 0, 0, 0, time.UTC) }
	return svc
}

func ptr(v float64) *float64 { return &v }

func TestAggregateDailyScenario(t *testing.T) {
	db := newFakeAggregationDB()
	db.buckets[repository.DimensionStatus] = []repository.BucketCount{
		{Bucket: "new", Count: 3}, {Bucket: "open", Count: 4}, {Bucket: "resolved", Count: 3},
	}
	db.buckets[repository.DimensionPriority] = []repository.BucketCount{{Bucket: "high", Count: 6}, {Bucket: "low", Count: 4}}
	db.buckets[repository.DimensionSource] = []repository.BucketCount{{Bucket: "email", Count: 10}}
	db.timings = repository.TimingAverages{AvgFirstResponse: ptr(1800.456), AvgResolution: ptr(7200.004)}
	inv := &recordingInvalidator{}
	svc := newTestAggregator(db, inv)

	res, err := svc.Aggregate(context.Background(), time.Date(2025, 1, 15, 13, 45, 0, 0, time.UTC), models.MetricTypeDaily)
	require.NoError(t, err)
	assert.Equal(t, []models.MetricType{models.MetricTypeDaily}, res.Types)
	assert.Equal(t, 1, res.Rows["daily"])

	row, ok := db.daily["2025-01-15"]
	require.True(t, ok)
	assert.Equal(t, 10, row.TotalTickets)
	assert.Equal(t, 3, row.NewTickets)
	assert.Equal(t, 4, row.OpenTickets)
	assert.Equal(t, 3, row.ResolvedTickets)
	assert.Equal(t, 6, row.HighPriority)
	assert.Equal(t, 4, row.LowPriority)
	assert.Equal(t, 1800.46, row.AvgFirstResponseTime)
	assert.Equal(t, 7200.0, row.AvgResolutionTime)
	assert.Equal(t, models.CountMap{"email": 10}, row.SourceBreakdown)
	assert.Equal(t, []string{"metrics:daily:2025-01-15"}, db.locks)

	assert.Equal(t, 1, inv.calls)
	assert.ElementsMatch(t, []string{cache.MetricsPattern, cache.DashboardPattern}, inv.patterns)
	assert.ElementsMatch(t, cache.RealtimeCounters(), inv.keys)
}

func TestAggregateIsIdempotent(t *testing.T) {
	db := newFakeAggregationDB()
	db.buckets[repository.DimensionStatus] = []repository.BucketCount{{Bucket: "open", Count: 2}}
	svc := newTestAggregator(db, nil)
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	_, err := svc.Aggregate(context.Background(), day, models.MetricTypeDaily)
	require.NoError(t, err)
	first := db.daily["2025-01-15"]

	_, err = svc.Aggregate(context.Background(), day, models.MetricTypeDaily)
	require.NoError(t, err)
	assert.Len(t, db.daily, 1)
	assert.Equal(t, first, db.daily["2025-01-15"])
	assert.Equal(t, 2, db.daily["2025-01-15"].TotalTickets)
}

func TestAggregateZeroActivityStillWritesRows(t *testing.T) {
	db := newFakeAggregationDB()
	db.agentIDs = []string{"agent-1", "agent-2"}
	svc := newTestAggregator(db, nil)

	res, err := svc.Aggregate(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), models.MetricTypeAll)
	require.NoError(t, err)
	assert.Equal(t, models.MetricTypes(), res.Types)

	daily, ok := db.daily["2025-02-01"]
	require.True(t, ok)
	assert.Zero(t, daily.TotalTickets)
	assert.Zero(t, daily.AvgResolutionTime)

	hourly := db.hourlyRows["2025-02-01"]
	require.Len(t, hourly, 24)
	for h, row := range hourly {
		assert.Equal(t, h, row.Hour)
		assert.Zero(t, row.TicketsCreated)
	}

	agents := db.agentRows["2025-01-03/2025-02-01"]
	require.Len(t, agents, 2)
	assert.Zero(t, agents[0].TicketsAssigned)

	sla, ok := db.slaRows["2025-02-01"]
	require.True(t, ok)
	assert.Equal(t, 100.0, sla.ComplianceRate)
}

func TestAggregateHourlyFillsBuckets(t *testing.T) {
	db := newFakeAggregationDB()
	db.hourly = []repository.HourBucket{{Hour: 9, Created: 4, Resolved: 1}, {Hour: 23, Closed: 2}}
	svc := newTestAggregator(db, nil)

	_, err := svc.Aggregate(context.Background(), time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), models.MetricTypeHourly)
	require.NoError(t, err)
	rows := db.hourlyRows["2025-01-15"]
	require.Len(t, rows, 24)
	assert.Equal(t, 4, rows[9].TicketsCreated)
	assert.Equal(t, 1, rows[9].TicketsResolved)
	assert.Equal(t, 2, rows[23].TicketsClosed)
	assert.Zero(t, rows[0].TicketsCreated)
}

func TestAggregateAgentsMergesActivity(t *testing.T) {
	db := newFakeAggregationDB()
	db.agentIDs = []string{"agent-1", "agent-2"}
	db.activity[repository.EntityAgent] = []repository.EntityActivity{
		{EntityID: "agent-1", Opened: 12, Resolved: 9, Closed: 7, AvgResolution: ptr(3600.125)},
		{EntityID: "ghost", Opened: 1},
	}
	db.satisfaction[repository.EntityAgent] = []repository.Satisfaction{{EntityID: "agent-1", AvgRating: ptr(4.666), FeedbackCount: 3}}
	db.activeDays[repository.EntityAgent] = []repository.ActiveDays{{EntityID: "agent-2", Days: 5}}
	svc := newTestAggregator(db, nil)

	_, err := svc.Aggregate(context.Background(), time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC), models.MetricTypeAgents)
	require.NoError(t, err)

	rows := db.agentRows["2025-01-01/2025-01-30"]
	require.Len(t, rows, 2)
	assert.Equal(t, "agent-1", rows[0].AgentID)
	assert.Equal(t, 12, rows[0].TicketsAssigned)
	assert.Equal(t, 3600.13, rows[0].AvgResolutionTime)
	assert.Equal(t, 4.67, rows[0].SatisfactionScore)
	assert.Equal(t, 3, rows[0].FeedbackCount)
	assert.Equal(t, "agent-2", rows[1].AgentID)
	assert.Equal(t, 5, rows[1].ActiveDays)
	assert.Zero(t, rows[1].TicketsAssigned)
}

func TestAggregateClientsKeepsTopN(t *testing.T) {
	db := newFakeAggregationDB()
	db.activity[repository.EntityClient] = []repository.EntityActivity{
		{EntityID: "client-1", Opened: 20, Resolved: 10},
		{EntityID: "client-2", Opened: 5},
	}
	db.satisfaction[repository.EntityClient] = []repository.Satisfaction{{EntityID: "client-9", AvgRating: ptr(1), FeedbackCount: 1}}
	svc := newTestAggregator(db, nil)

	_, err := svc.Aggregate(context.Background(), time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC), models.MetricTypeClients)
	require.NoError(t, err)

	assert.Equal(t, []int{100}, db.activityArgs)
	rows := db.clientRows["2025-01-01/2025-01-30"]
	require.Len(t, rows, 2)
	assert.Equal(t, "client-1", rows[0].ClientID)
	assert.Equal(t, 20, rows[0].TicketsCreated)
}

func TestAggregateSLACompliance(t *testing.T) {
	db := newFakeAggregationDB()
	db.sla = []repository.SLAOutcome{
		{Priority: "high", Total: 4, FirstResponseMet: 3, FirstResponseBreached: 1, ResolutionMet: 2, ResolutionBreached: 1},
		{Priority: "low", Total: 2, FirstResponseMet: 2},
	}
	svc := newTestAggregator(db, nil)

	_, err := svc.Aggregate(context.Background(), time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), models.MetricTypeSLA)
	require.NoError(t, err)

	row := db.slaRows["2025-01-15"]
	assert.Equal(t, 6, row.TotalTickets)
	assert.Equal(t, 5, row.FirstResponseMet)
	assert.Equal(t, 77.78, row.ComplianceRate)
	assert.Equal(t, 1, row.PriorityBreakdown["high"].FirstResponseBreached)
}

func TestAggregateFailureSkipsInvalidation(t *testing.T) {
	db := newFakeAggregationDB()
	db.failOn = "upsert_daily"
	inv := &recordingInvalidator{}
	svc := newTestAggregator(db, inv)

	_, err := svc.Aggregate(context.Background(), time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), models.MetricTypeAll)
	require.Error(t, err)
	assert.Zero(t, inv.calls)
	assert.Len(t, db.locks, 1)
}

func TestAggregateRejectsUnknownType(t *testing.T) {
	svc := newTestAggregator(newFakeAggregationDB(), nil)
	_, err := svc.Aggregate(context.Background(), time.Now(), models.MetricType("weekly"))
	require.Error(t, err)
}

func TestComplianceRate(t *testing.T) {
	assert.Equal(t, 100.0, ComplianceRate(0, 0))
	assert.Equal(t, 50.0, ComplianceRate(1, 1))
	assert.Equal(t, 66.67, ComplianceRate(2, 1))
	assert.Equal(t, 0.0, ComplianceRate(0, 3))
}
