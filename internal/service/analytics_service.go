package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

// maxMetricsRange bounds the range accepted by the daily metric readers.
const maxMetricsRange = 366 * 24 * time.Hour

// AnalyticsRepository describes the roll-up tables read by AnalyticsService.
type AnalyticsRepository interface {
	TicketMetrics(ctx context.Context, rng models.DateRange) ([]models.TicketMetrics, error)
	HourlyMetrics(ctx context.Context, date time.Time) ([]models.HourlyTicketMetrics, error)
	SLAMetrics(ctx context.Context, rng models.DateRange) ([]models.SLAMetrics, error)
	ClientMetrics(ctx context.Context, periodEnd time.Time, limit int) ([]models.ClientMetrics, error)
}

// AnalyticsService provides read-optimised access to the aggregated metrics with cache integration.
// Keys live under metrics:* so a finished aggregation drops them.
type AnalyticsService struct {
	repo    AnalyticsRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	ttl     time.Duration
	now     func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger, ttl: ttl, now: time.Now}
}

// Tickets returns the daily ticket roll-ups in the range. The boolean indicates whether data originated from cache.
func (s *AnalyticsService) Tickets(ctx context.Context, rng models.DateRange) ([]models.TicketMetrics, bool, error) {
	rng, err := s.normalizeRange(rng)
	if err != nil {
		return nil, false, err
	}
	key := makeMetricsCacheKey("tickets", formatDate(rng.From), formatDate(rng.To))
	return remember(ctx, s.cache, key, s.ttl, func() ([]models.TicketMetrics, error) {
		start := time.Now()
		rows, err := s.repo.TicketMetrics(ctx, rng)
		if err != nil {
			return nil, fmt.Errorf("load ticket metrics: %w", err)
		}
		s.metrics.ObserveDBQuery("metrics_tickets", time.Since(start))
		if rows == nil {
			rows = []models.TicketMetrics{}
		}
		return rows, nil
	})
}

// SLA returns the daily SLA compliance roll-ups in the range.
func (s *AnalyticsService) SLA(ctx context.Context, rng models.DateRange) ([]models.SLAMetrics, bool, error) {
	rng, err := s.normalizeRange(rng)
	if err != nil {
		return nil, false, err
	}
	key := makeMetricsCacheKey("sla", formatDate(rng.From), formatDate(rng.To))
	return remember(ctx, s.cache, key, s.ttl, func() ([]models.SLAMetrics, error) {
		start := time.Now()
		rows, err := s.repo.SLAMetrics(ctx, rng)
		if err != nil {
			return nil, fmt.Errorf("load sla metrics: %w", err)
		}
		s.metrics.ObserveDBQuery("metrics_sla", time.Since(start))
		if rows == nil {
			rows = []models.SLAMetrics{}
		}
		return rows, nil
	})
}

// Hourly returns the 24 hourly buckets of one day. A zero date means today.
func (s *AnalyticsService) Hourly(ctx context.Context, date time.Time) ([]models.HourlyTicketMetrics, bool, error) {
	if date.IsZero() {
		date = s.now()
	}
	date = truncateDay(date.UTC())
	key := makeMetricsCacheKey("hourly", formatDate(date))
	return remember(ctx, s.cache, key, s.ttl, func() ([]models.HourlyTicketMetrics, error) {
		start := time.Now()
		rows, err := s.repo.HourlyMetrics(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("load hourly metrics: %w", err)
		}
		s.metrics.ObserveDBQuery("metrics_hourly", time.Since(start))
		if rows == nil {
			rows = []models.HourlyTicketMetrics{}
		}
		return rows, nil
	})
}

// Clients returns the busiest clients of the window ending on periodEnd.
func (s *AnalyticsService) Clients(ctx context.Context, periodEnd time.Time, limit int) ([]models.ClientMetrics, bool, error) {
	if periodEnd.IsZero() {
		periodEnd = s.now()
	}
	periodEnd = truncateDay(periodEnd.UTC())
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	key := makeMetricsCacheKey("clients", formatDate(periodEnd), fmt.Sprint(limit))
	return remember(ctx, s.cache, key, s.ttl, func() ([]models.ClientMetrics, error) {
		start := time.Now()
		rows, err := s.repo.ClientMetrics(ctx, periodEnd, limit)
		if err != nil {
			return nil, fmt.Errorf("load client metrics: %w", err)
		}
		s.metrics.ObserveDBQuery("metrics_clients", time.Since(start))
		if rows == nil {
			rows = []models.ClientMetrics{}
		}
		return rows, nil
	})
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	return s.metrics.Snapshot()
}

// normalizeRange defaults an empty range to the trailing seven days.
func (s *AnalyticsService) normalizeRange(rng models.DateRange) (models.DateRange, error) {
	today := truncateDay(s.now().UTC())
	if rng.To.IsZero() {
		rng.To = today
	}
	if rng.From.IsZero() {
		rng.From = truncateDay(rng.To.UTC()).AddDate(0, 0, -6)
	}
	rng.From = truncateDay(rng.From.UTC())
	rng.To = truncateDay(rng.To.UTC())
	if rng.From.After(rng.To) {
		return rng, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	if rng.To.Sub(rng.From) > maxMetricsRange {
		return rng, appErrors.Clone(appErrors.ErrValidation, "date range must not exceed 366 days")
	}
	return rng, nil
}

func makeMetricsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("metrics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
