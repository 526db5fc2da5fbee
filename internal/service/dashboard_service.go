package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/cache"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

type dashboardRepository interface {
	AgentQueue(ctx context.Context, agentID string, now time.Time, page, perPage int) ([]models.QueueTicket, int, error)
	AgentWorkload(ctx context.Context, agentID string, dayStart time.Time) (open, today int, err error)
	RealtimeCounters(ctx context.Context, now, dayStart time.Time) (models.RealtimeCounters, error)
}

type agentMetricsReader interface {
	LatestAgentMetrics(ctx context.Context, agentID string) (*models.AgentMetrics, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL    time.Duration
	CounterTTL  time.Duration
	MaxPageSize int
}

// DashboardService composes the agent dashboard from live queries and stored roll-ups.
type DashboardService struct {
	repo    dashboardRepository
	metrics agentMetricsReader
	cache   *CacheService
	logger  *zap.Logger
	now     func() time.Time
	cfg     DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Repo    dashboardRepository
	Metrics agentMetricsReader
	Cache   *CacheService
	Logger  *zap.Logger
	Config  DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CounterTTL <= 0 {
		cfg.CounterTTL = time.Minute
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		repo:    params.Repo,
		metrics: params.Metrics,
		cache:   params.Cache,
		logger:  logger,
		now:     time.Now,
		cfg:     cfg,
	}
}

// AgentQueue returns the open tickets assigned to an agent, most urgent first, and
// whether the page came from cache.
func (s *DashboardService) AgentQueue(ctx context.Context, agentID string, page, perPage int) (*dto.AgentQueueResponse, bool, error) {
	if agentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "agent_id is required")
	}
	page, perPage = models.NormalizePage(page, perPage, s.cfg.MaxPageSize)
	key := fmt.Sprintf("dashboard:agent-queue:%s:%d:%d", agentID, page, perPage)

	resp, hit, err := remember(ctx, s.cache, key, s.cfg.CacheTTL, func() (*dto.AgentQueueResponse, error) {
		tickets, total, err := s.repo.AgentQueue(ctx, agentID, s.now().UTC(), page, perPage)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load agent queue")
		}
		if tickets == nil {
			tickets = []models.QueueTicket{}
		}
		lastPage := (total + perPage - 1) / perPage
		if lastPage < 1 {
			lastPage = 1
		}
		return &dto.AgentQueueResponse{
			AgentID:    agentID,
			Tickets:    tickets,
			Pagination: models.Pagination{Page: page, PerPage: perPage, Total: total, LastPage: lastPage},
		}, nil
	})
	return resp, hit, err
}

// AgentStats returns the agent's latest rolling metrics together with live counters.
func (s *DashboardService) AgentStats(ctx context.Context, agentID string) (*models.AgentStats, bool, error) {
	if agentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "agent_id is required")
	}
	key := fmt.Sprintf("dashboard:agent-stats:%s", agentID)
	return remember(ctx, s.cache, key, s.cfg.CacheTTL, func() (*models.AgentStats, error) {
		now := s.now().UTC()
		dayStart := truncateDay(now)
		stats := &models.AgentStats{AgentID: agentID}

		latest, err := s.metrics.LatestAgentMetrics(ctx, agentID)
		switch {
		case err == nil:
			stats.Metrics = latest
		case !errors.Is(err, appErrors.ErrNotFound):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load agent metrics")
		}

		if stats.AssignedOpen, stats.AssignedToday, err = s.repo.AgentWorkload(ctx, agentID, dayStart); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load agent workload")
		}
		if stats.Counters, err = s.RealtimeCounters(ctx); err != nil {
			return nil, err
		}
		return stats, nil
	})
}

// RealtimeCounters returns the header counters. Each counter lives under its own
// key so the aggregator can drop them individually.
func (s *DashboardService) RealtimeCounters(ctx context.Context) (models.RealtimeCounters, error) {
	keys := cache.RealtimeCounters()
	values := make([]int, len(keys))
	cached := s.cache.Enabled()
	for i, key := range keys {
		if !cached {
			break
		}
		hit, _ := s.cache.Get(ctx, key, &values[i])
		cached = hit
	}
	if cached {
		return models.RealtimeCounters{
			OpenTickets:       values[0],
			UnassignedTickets: values[1],
			OverdueTickets:    values[2],
			TodayTickets:      values[3],
		}, nil
	}

	now := s.now().UTC()
	counters, err := s.repo.RealtimeCounters(ctx, now, truncateDay(now))
	if err != nil {
		return models.RealtimeCounters{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load realtime counters")
	}
	fresh := []int{counters.OpenTickets, counters.UnassignedTickets, counters.OverdueTickets, counters.TodayTickets}
	for i, key := range keys {
		_ = s.cache.Set(ctx, key, fresh[i], s.cfg.CounterTTL)
	}
	return counters, nil
}
