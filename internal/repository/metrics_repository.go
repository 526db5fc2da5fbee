package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

// MetricsRepository reads stored roll-ups.
type MetricsRepository struct {
	db *sqlx.DB
}

// NewMetricsRepository constructs the repository.
func NewMetricsRepository(db *sqlx.DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// TicketMetrics returns daily rows in the inclusive range ordered by date.
func (r *MetricsRepository) TicketMetrics(ctx context.Context, rng models.DateRange) ([]models.TicketMetrics, error) {
	const query = `SELECT date, total_tickets, new_tickets, open_tickets, pending_tickets, on_hold_tickets, resolved_tickets,
closed_tickets, cancelled_tickets, low_priority, medium_priority, high_priority, urgent_priority,
avg_first_response_time, avg_resolution_time, category_breakdown, source_breakdown, updated_at
FROM ticket_metrics WHERE date >= $1 AND date <= $2 ORDER BY date ASC`
	var rows []models.TicketMetrics
	if err := r.db.SelectContext(ctx, &rows, query, rng.From, rng.To); err != nil {
		return nil, fmt.Errorf("list ticket metrics: %w", err)
	}
	return rows, nil
}

// HourlyMetrics returns the 24 hourly rows for a date.
func (r *MetricsRepository) HourlyMetrics(ctx context.Context, date time.Time) ([]models.HourlyTicketMetrics, error) {
	const query = `SELECT date, hour, tickets_created, tickets_resolved, tickets_closed, updated_at
FROM ticket_hourly_metrics WHERE date = $1 ORDER BY hour ASC`
	var rows []models.HourlyTicketMetrics
	if err := r.db.SelectContext(ctx, &rows, query, date); err != nil {
		return nil, fmt.Errorf("list hourly metrics: %w", err)
	}
	return rows, nil
}

// SLAMetrics returns daily SLA rows in the inclusive range ordered by date.
func (r *MetricsRepository) SLAMetrics(ctx context.Context, rng models.DateRange) ([]models.SLAMetrics, error) {
	const query = `SELECT date, total_tickets, first_response_met, first_response_breached, resolution_met, resolution_breached,
compliance_rate, priority_breakdown, updated_at
FROM sla_metrics WHERE date >= $1 AND date <= $2 ORDER BY date ASC`
	var rows []models.SLAMetrics
	if err := r.db.SelectContext(ctx, &rows, query, rng.From, rng.To); err != nil {
		return nil, fmt.Errorf("list sla metrics: %w", err)
	}
	return rows, nil
}

// LatestAgentMetrics returns the most recent window computed for an agent.
func (r *MetricsRepository) LatestAgentMetrics(ctx context.Context, agentID string) (*models.AgentMetrics, error) {
	const query = `SELECT agent_id, period_start, period_end, tickets_assigned, tickets_resolved, tickets_closed,
avg_first_response_time, avg_resolution_time, satisfaction_score, feedback_count, active_days, updated_at
FROM agent_metrics WHERE agent_id = $1 ORDER BY period_end DESC LIMIT 1`
	var row models.AgentMetrics
	if err := r.db.GetContext(ctx, &row, query, agentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("get agent metrics: %w", err)
	}
	return &row, nil
}

// ClientMetrics returns the client leaderboard for the window ending at periodEnd.
func (r *MetricsRepository) ClientMetrics(ctx context.Context, periodEnd time.Time, limit int) ([]models.ClientMetrics, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT client_id, period_start, period_end, tickets_created, tickets_resolved, tickets_closed,
avg_resolution_time, satisfaction_score, feedback_count, active_days, updated_at
FROM client_metrics WHERE period_end = $1 ORDER BY tickets_created DESC, client_id ASC LIMIT $2`
	var rows []models.ClientMetrics
	if err := r.db.SelectContext(ctx, &rows, query, periodEnd, limit); err != nil {
		return nil, fmt.Errorf("list client metrics: %w", err)
	}
	return rows, nil
}
