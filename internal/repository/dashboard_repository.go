package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
)

// DashboardRepository serves live reads against the ticket tables.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

const openStatuses = `('new', 'open', 'pending', 'on_hold')`

// AgentQueue lists open tickets assigned to an agent, most urgent first.
func (r *DashboardRepository) AgentQueue(ctx context.Context, agentID string, now time.Time, page, perPage int) ([]models.QueueTicket, int, error) {
	const countQuery = `SELECT COUNT(*) FROM tickets WHERE assigned_agent_id = $1 AND deleted_at IS NULL AND status IN ` + openStatuses
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, agentID); err != nil {
		return nil, 0, fmt.Errorf("count agent queue: %w", err)
	}

	const query = `SELECT t.id, t.subject, t.client_id, c.name AS client_name, t.status, t.priority, t.created_at,
t.first_response_due_at, t.resolution_due_at, t.first_response_at,
(t.resolution_due_at IS NOT NULL AND t.resolution_due_at < $2) AS overdue
FROM tickets t
LEFT JOIN clients c ON c.id = t.client_id
WHERE t.assigned_agent_id = $1 AND t.deleted_at IS NULL AND t.status IN ` + openStatuses + `
ORDER BY CASE t.priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, t.created_at ASC
LIMIT $3 OFFSET $4`
	var rows []models.QueueTicket
	if err := r.db.SelectContext(ctx, &rows, query, agentID, now, perPage, (page-1)*perPage); err != nil {
		return nil, 0, fmt.Errorf("list agent queue: %w", err)
	}
	return rows, total, nil
}

// AgentWorkload counts an agent's open tickets and the ones assigned since dayStart.
func (r *DashboardRepository) AgentWorkload(ctx context.Context, agentID string, dayStart time.Time) (open, today int, err error) {
	const query = `SELECT
COUNT(*) FILTER (WHERE status IN ` + openStatuses + `) AS open,
COUNT(*) FILTER (WHERE created_at >= $2) AS today
FROM tickets WHERE assigned_agent_id = $1 AND deleted_at IS NULL`
	var out struct {
		Open  int `db:"open"`
		Today int `db:"today"`
	}
	if err := r.db.GetContext(ctx, &out, query, agentID, dayStart); err != nil {
		return 0, 0, fmt.Errorf("agent workload: %w", err)
	}
	return out.Open, out.Today, nil
}

// RealtimeCounters computes the dashboard header counters.
func (r *DashboardRepository) RealtimeCounters(ctx context.Context, now, dayStart time.Time) (models.RealtimeCounters, error) {
	const query = `SELECT
COUNT(*) FILTER (WHERE status IN ` + openStatuses + `) AS open_tickets,
COUNT(*) FILTER (WHERE status IN ` + openStatuses + ` AND assigned_agent_id IS NULL) AS unassigned_tickets,
COUNT(*) FILTER (WHERE status IN ` + openStatuses + ` AND resolution_due_at IS NOT NULL AND resolution_due_at < $1) AS overdue_tickets,
COUNT(*) FILTER (WHERE created_at >= $2) AS today_tickets
FROM tickets WHERE deleted_at IS NULL`
	var out struct {
		Open       int `db:"open_tickets"`
		Unassigned int `db:"unassigned_tickets"`
		Overdue    int `db:"overdue_tickets"`
		Today      int `db:"today_tickets"`
	}
	if err := r.db.GetContext(ctx, &out, query, now, dayStart); err != nil {
		return models.RealtimeCounters{}, fmt.Errorf("realtime counters: %w", err)
	}
	return models.RealtimeCounters{
		OpenTickets:       out.Open,
		UnassignedTickets: out.Unassigned,
		OverdueTickets:    out.Overdue,
		TodayTickets:      out.Today,
	}, nil
}
