package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/repository"
	"github.com/aidly/aidly-api/pkg/cache"
	"github.com/aidly/aidly-api/pkg/config"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

// AggregationStore runs a roll-up while holding the lock for its key.
type AggregationStore interface {
	WithinLock(ctx context.Context, key string, fn func(repository.AggregationQueries) error) error
}

// CacheInvalidator clears cached payloads derived from metrics.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, patterns []string, keys ...string) (int, error)
}

// AggregationService recomputes metric roll-ups from the ticket tables.
type AggregationService struct {
	store      AggregationStore
	cache      CacheInvalidator
	metrics    *MetricsService
	windowDays int
	clientTopN int
	logger     *zap.Logger
	now        func() time.Time
}

// NewAggregationService constructs the aggregator.
func NewAggregationService(store AggregationStore, cache CacheInvalidator, metrics *MetricsService, cfg config.AggregationConfig, logger *zap.Logger) *AggregationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	windowDays := cfg.AgentWindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	topN := cfg.ClientTopN
	if topN <= 0 {
		topN = 100
	}
	return &AggregationService{
		store:      store,
		cache:      cache,
		metrics:    metrics,
		windowDays: windowDays,
		clientTopN: topN,
		logger:     logger,
		now:        time.Now,
	}
}

// Aggregate recomputes the requested roll-ups for date. Every type runs in its own
// locked transaction; the first failure aborts the remaining types.
func (s *AggregationService) Aggregate(ctx context.Context, date time.Time, metricType models.MetricType) (*models.AggregationResult, error) {
	if !metricType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown metric type %q", metricType))
	}
	day := truncateDay(date)
	started := s.now()
	result := &models.AggregationResult{Date: day, Rows: make(map[string]int)}

	for _, t := range metricType.Expand() {
		typeStart := time.Now()
		rows, err := s.aggregateOne(ctx, day, t)
		s.metrics.ObserveAggregation(t, err, time.Since(typeStart))
		if err != nil {
			s.logger.Warn("aggregation failed",
				zap.String("type", string(t)),
				zap.String("date", day.Format(dateLayout)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("aggregate %s for %s: %w", t, day.Format(dateLayout), err)
		}
		result.Types = append(result.Types, t)
		result.Rows[string(t)] = rows
	}

	s.invalidate(ctx)
	result.Duration = s.now().Sub(started)
	s.logger.Info("aggregation completed",
		zap.String("date", day.Format(dateLayout)),
		zap.String("type", string(metricType)),
		zap.Any("rows", result.Rows),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *AggregationService) aggregateOne(ctx context.Context, day time.Time, t models.MetricType) (int, error) {
	key := fmt.Sprintf("metrics:%s:%s", t, day.Format(dateLayout))
	var rows int
	err := s.store.WithinLock(ctx, key, func(q repository.AggregationQueries) error {
		var err error
		switch t {
		case models.MetricTypeDaily:
			rows, err = s.daily(ctx, q, day)
		case models.MetricTypeHourly:
			rows, err = s.hourly(ctx, q, day)
		case models.MetricTypeAgents:
			rows, err = s.agents(ctx, q, day)
		case models.MetricTypeClients:
			rows, err = s.clients(ctx, q, day)
		case models.MetricTypeSLA:
			rows, err = s.sla(ctx, q, day)
		default:
			err = fmt.Errorf("unsupported metric type %q", t)
		}
		return err
	})
	return rows, err
}

func (s *AggregationService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	removed, err := s.cache.Invalidate(ctx, []string{cache.MetricsPattern, cache.DashboardPattern}, cache.RealtimeCounters()...)
	if err != nil {
		s.logger.Warn("metrics cache invalidation failed", zap.Error(err))
		return
	}
	s.logger.Debug("metrics cache invalidated", zap.Int("keys", removed))
}

func (s *AggregationService) daily(ctx context.Context, q repository.AggregationQueries, day time.Time) (int, error) {
	from, to := day, day.AddDate(0, 0, 1)
	row := &models.TicketMetrics{
		Date:              day,
		CategoryBreakdown: models.CountMap{},
		SourceBreakdown:   models.CountMap{},
		UpdatedAt:         s.now().UTC(),
	}

	statuses, err := q.CountCreatedBy(ctx, repository.DimensionStatus, from, to)
	if err != nil {
		return 0, err
	}
	for _, b := range statuses {
		row.TotalTickets += b.Count
		switch models.TicketStatus(b.Bucket) {
		case models.TicketStatusNew:
			row.NewTickets = b.Count
		case models.TicketStatusOpen:
			row.OpenTickets = b.Count
		case models.TicketStatusPending:
			row.PendingTickets = b.Count
		case models.TicketStatusOnHold:
			row.OnHoldTickets = b.Count
		case models.TicketStatusResolved:
			row.ResolvedTickets = b.Count
		case models.TicketStatusClosed:
			row.ClosedTickets = b.Count
		case models.TicketStatusCancelled:
			row.CancelledTickets = b.Count
		}
	}

	priorities, err := q.CountCreatedBy(ctx, repository.DimensionPriority, from, to)
	if err != nil {
		return 0, err
	}
	for _, b := range priorities {
		switch models.TicketPriority(b.Bucket) {
		case models.TicketPriorityLow:
			row.LowPriority = b.Count
		case models.TicketPriorityMedium:
			row.MediumPriority = b.Count
		case models.TicketPriorityHigh:
			row.HighPriority = b.Count
		case models.TicketPriorityUrgent:
			row.UrgentPriority = b.Count
		}
	}

	categories, err := q.CountCreatedBy(ctx, repository.DimensionCategory, from, to)
	if err != nil {
		return 0, err
	}
	for _, b := range categories {
		row.CategoryBreakdown[b.Bucket] = b.Count
	}

	sources, err := q.CountCreatedBy(ctx, repository.DimensionSource, from, to)
	if err != nil {
		return 0, err
	}
	for _, b := range sources {
		row.SourceBreakdown[b.Bucket] = b.Count
	}

	timings, err := q.CreatedTimings(ctx, from, to)
	if err != nil {
		return 0, err
	}
	row.AvgFirstResponseTime = roundPtr(timings.AvgFirstResponse)
	row.AvgResolutionTime = roundPtr(timings.AvgResolution)

	if err := q.UpsertTicketMetrics(ctx, row); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *AggregationService) hourly(ctx context.Context, q repository.AggregationQueries, day time.Time) (int, error) {
	buckets, err := q.HourlyFlow(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}
	updated := s.now().UTC()
	rows := make([]models.HourlyTicketMetrics, 24)
	for h := range rows {
		rows[h] = models.HourlyTicketMetrics{Date: day, Hour: h, UpdatedAt: updated}
	}
	for _, b := range buckets {
		if b.Hour < 0 || b.Hour > 23 {
			continue
		}
		rows[b.Hour].TicketsCreated = b.Created
		rows[b.Hour].TicketsResolved = b.Resolved
		rows[b.Hour].TicketsClosed = b.Closed
	}
	if err := q.ReplaceHourlyMetrics(ctx, day, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// window returns the trailing window ending at (and including) day.
func (s *AggregationService) window(day time.Time) (time.Time, time.Time) {
	return day.AddDate(0, 0, -(s.windowDays - 1)), day.AddDate(0, 0, 1)
}

type entityRollup struct {
	activity     repository.EntityActivity
	satisfaction repository.Satisfaction
	activeDays   int
}

func (s *AggregationService) rollup(ctx context.Context, q repository.AggregationQueries, kind repository.EntityKind, from, to time.Time, limit int) ([]string, map[string]*entityRollup, error) {
	activity, err := q.Activity(ctx, kind, from, to, limit)
	if err != nil {
		return nil, nil, err
	}
	order := make([]string, 0, len(activity))
	byID := make(map[string]*entityRollup, len(activity))
	for _, a := range activity {
		order = append(order, a.EntityID)
		byID[a.EntityID] = &entityRollup{activity: a}
	}

	satisfaction, err := q.Satisfaction(ctx, kind, from, to)
	if err != nil {
		return nil, nil, err
	}
	days, err := q.ActiveDays(ctx, kind, from, to)
	if err != nil {
		return nil, nil, err
	}

	get := func(id string) *entityRollup {
		if r, ok := byID[id]; ok {
			return r
		}
		if limit > 0 {
			return nil
		}
		r := &entityRollup{activity: repository.EntityActivity{EntityID: id}}
		byID[id] = r
		order = append(order, id)
		return r
	}
	for _, sat := range satisfaction {
		if r := get(sat.EntityID); r != nil {
			r.satisfaction = sat
		}
	}
	for _, d := range days {
		if r := get(d.EntityID); r != nil {
			r.activeDays = d.Days
		}
	}
	return order, byID, nil
}

func (s *AggregationService) agents(ctx context.Context, q repository.AggregationQueries, day time.Time) (int, error) {
	from, to := s.window(day)
	agentIDs, err := q.ActiveAgentIDs(ctx)
	if err != nil {
		return 0, err
	}
	_, byID, err := s.rollup(ctx, q, repository.EntityAgent, from, to, 0)
	if err != nil {
		return 0, err
	}

	updated := s.now().UTC()
	rows := make([]models.AgentMetrics, 0, len(agentIDs))
	for _, id := range agentIDs {
		row := models.AgentMetrics{AgentID: id, PeriodStart: from, PeriodEnd: day, UpdatedAt: updated}
		if r, ok := byID[id]; ok {
			row.TicketsAssigned = r.activity.Opened
			row.TicketsResolved = r.activity.Resolved
			row.TicketsClosed = r.activity.Closed
			row.AvgFirstResponseTime = roundPtr(r.activity.AvgFirstResponse)
			row.AvgResolutionTime = roundPtr(r.activity.AvgResolution)
			row.SatisfactionScore = roundPtr(r.satisfaction.AvgRating)
			row.FeedbackCount = r.satisfaction.FeedbackCount
			row.ActiveDays = r.activeDays
		}
		rows = append(rows, row)
	}
	if err := q.ReplaceAgentMetrics(ctx, from, day, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *AggregationService) clients(ctx context.Context, q repository.AggregationQueries, day time.Time) (int, error) {
	from, to := s.window(day)
	order, byID, err := s.rollup(ctx, q, repository.EntityClient, from, to, s.clientTopN)
	if err != nil {
		return 0, err
	}

	updated := s.now().UTC()
	rows := make([]models.ClientMetrics, 0, len(order))
	for _, id := range order {
		r := byID[id]
		rows = append(rows, models.ClientMetrics{
			ClientID:          id,
			PeriodStart:       from,
			PeriodEnd:         day,
			TicketsCreated:    r.activity.Opened,
			TicketsResolved:   r.activity.Resolved,
			TicketsClosed:     r.activity.Closed,
			AvgResolutionTime: roundPtr(r.activity.AvgResolution),
			SatisfactionScore: roundPtr(r.satisfaction.AvgRating),
			FeedbackCount:     r.satisfaction.FeedbackCount,
			ActiveDays:        r.activeDays,
			UpdatedAt:         updated,
		})
	}
	if err := q.ReplaceClientMetrics(ctx, from, day, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *AggregationService) sla(ctx context.Context, q repository.AggregationQueries, day time.Time) (int, error) {
	outcomes, err := q.SLAOutcomes(ctx, day, day.AddDate(0, 0, 1), s.now().UTC())
	if err != nil {
		return 0, err
	}
	row := &models.SLAMetrics{Date: day, PriorityBreakdown: models.SLABreakdown{}, UpdatedAt: s.now().UTC()}
	for _, o := range outcomes {
		row.TotalTickets += o.Total
		row.FirstResponseMet += o.FirstResponseMet
		row.FirstResponseBreached += o.FirstResponseBreached
		row.ResolutionMet += o.ResolutionMet
		row.ResolutionBreached += o.ResolutionBreached
		row.PriorityBreakdown[o.Priority] = models.SLAPriorityStats{
			Total:                 o.Total,
			FirstResponseMet:      o.FirstResponseMet,
			FirstResponseBreached: o.FirstResponseBreached,
			ResolutionMet:         o.ResolutionMet,
			ResolutionBreached:    o.ResolutionBreached,
		}
	}
	row.ComplianceRate = ComplianceRate(row.FirstResponseMet+row.ResolutionMet, row.FirstResponseBreached+row.ResolutionBreached)
	if err := q.UpsertSLAMetrics(ctx, row); err != nil {
		return 0, err
	}
	return 1, nil
}

// ComplianceRate is met/(met+breached) as a percentage rounded to two places, 100 when nothing was measured.
func ComplianceRate(met, breached int) float64 {
	total := met + breached
	if total == 0 {
		return 100
	}
	rate, _ := decimal.NewFromInt(int64(met)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		Float64()
	return rate
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func roundPtr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return round2(*v)
}

const dateLayout = "2006-01-02"

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
