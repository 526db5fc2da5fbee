package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/database"
)

// Dimension is a ticket attribute the daily roll-up buckets by.
type Dimension string

const (
	DimensionStatus   Dimension = "status"
	DimensionPriority Dimension = "priority"
	DimensionCategory Dimension = "category"
	DimensionSource   Dimension = "source"
)

var dimensionExpr = map[Dimension]string{
	DimensionStatus:   "status::text",
	DimensionPriority: "priority::text",
	DimensionCategory: "COALESCE(category_id::text, 'uncategorized')",
	DimensionSource:   "COALESCE(NULLIF(source, ''), 'unknown')",
}

// EntityKind selects whose tickets a rolling-window query groups by.
type EntityKind string

const (
	EntityAgent  EntityKind = "agent"
	EntityClient EntityKind = "client"
)

var entityColumn = map[EntityKind]string{
	EntityAgent:  "assigned_agent_id",
	EntityClient: "client_id",
}

// BucketCount is one GROUP BY bucket.
type BucketCount struct {
	Bucket string `db:"bucket"`
	Count  int    `db:"count"`
}

// TimingAverages are average durations in seconds; nil when nothing qualified.
type TimingAverages struct {
	AvgFirstResponse *float64 `db:"avg_first_response"`
	AvgResolution    *float64 `db:"avg_resolution"`
}

// HourBucket is ticket flow for one hour of the day.
type HourBucket struct {
	Hour     int `db:"hour"`
	Created  int `db:"tickets_created"`
	Resolved int `db:"tickets_resolved"`
	Closed   int `db:"tickets_closed"`
}

// EntityActivity is ticket activity for one agent or client in a window.
type EntityActivity struct {
	EntityID         string   `db:"entity_id"`
	Opened           int      `db:"opened"`
	Resolved         int      `db:"resolved"`
	Closed           int      `db:"closed"`
	AvgFirstResponse *float64 `db:"avg_first_response"`
	AvgResolution    *float64 `db:"avg_resolution"`
}

// Satisfaction is feedback received by one agent or client in a window.
type Satisfaction struct {
	EntityID      string   `db:"entity_id"`
	AvgRating     *float64 `db:"avg_rating"`
	FeedbackCount int      `db:"feedback_count"`
}

// ActiveDays counts distinct days with activity.
type ActiveDays struct {
	EntityID string `db:"entity_id"`
	Days     int    `db:"days"`
}

// SLAOutcome is SLA compliance for one priority.
type SLAOutcome struct {
	Priority              string `db:"priority"`
	Total                 int    `db:"total"`
	FirstResponseMet      int    `db:"first_response_met"`
	FirstResponseBreached int    `db:"first_response_breached"`
	ResolutionMet         int    `db:"resolution_met"`
	ResolutionBreached    int    `db:"resolution_breached"`
}

// AggregationQueries are the grouped reads and metric writes one roll-up needs, bound to a single transaction.
type AggregationQueries interface {
	CountCreatedBy(ctx context.Context, dim Dimension, from, to time.Time) ([]BucketCount, error)
	CreatedTimings(ctx context.Context, from, to time.Time) (TimingAverages, error)
	HourlyFlow(ctx context.Context, from, to time.Time) ([]HourBucket, error)
	ActiveAgentIDs(ctx context.Context) ([]string, error)
	Activity(ctx context.Context, kind EntityKind, from, to time.Time, limit int) ([]EntityActivity, error)
	Satisfaction(ctx context.Context, kind EntityKind, from, to time.Time) ([]Satisfaction, error)
	ActiveDays(ctx context.Context, kind EntityKind, from, to time.Time) ([]ActiveDays, error)
	SLAOutcomes(ctx context.Context, from, to, asOf time.Time) ([]SLAOutcome, error)

	UpsertTicketMetrics(ctx context.Context, m *models.TicketMetrics) error
	ReplaceHourlyMetrics(ctx context.Context, date time.Time, rows []models.HourlyTicketMetrics) error
	ReplaceAgentMetrics(ctx context.Context, start, end time.Time, rows []models.AgentMetrics) error
	ReplaceClientMetrics(ctx context.Context, start, end time.Time, rows []models.ClientMetrics) error
	UpsertSLAMetrics(ctx context.Context, m *models.SLAMetrics) error
}

// AggregationRepository runs roll-ups against the live ticket tables.
type AggregationRepository struct {
	db *sqlx.DB
}

// NewAggregationRepository constructs the repository.
func NewAggregationRepository(db *sqlx.DB) *AggregationRepository {
	return &AggregationRepository{db: db}
}

// WithinLock runs fn in a transaction holding a transaction-scoped advisory lock on key.
// Concurrent runs for the same key queue behind each other, across processes.
func (r *AggregationRepository) WithinLock(ctx context.Context, key string, fn func(AggregationQueries) error) error {
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("acquire aggregation lock %s: %w", key, err)
		}
		return fn(&aggregationTx{tx: tx})
	})
}

type aggregationTx struct {
	tx *sqlx.Tx
}

func (q *aggregationTx) CountCreatedBy(ctx context.Context, dim Dimension, from, to time.Time) ([]BucketCount, error) {
	expr, ok := dimensionExpr[dim]
	if !ok {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}
	query := fmt.Sprintf(`SELECT %s AS bucket, COUNT(*) AS count
FROM tickets
WHERE created_at >= $1 AND created_at < $2 AND deleted_at IS NULL
GROUP BY 1 ORDER BY 1`, expr)
	var rows []BucketCount
	if err := q.tx.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("count tickets by %s: %w", dim, err)
	}
	return rows, nil
}

func (q *aggregationTx) CreatedTimings(ctx context.Context, from, to time.Time) (TimingAverages, error) {
	const query = `SELECT
AVG(EXTRACT(EPOCH FROM (first_response_at - created_at))) FILTER (WHERE first_response_at IS NOT NULL) AS avg_first_response,
AVG(EXTRACT(EPOCH FROM (resolved_at - created_at))) FILTER (WHERE resolved_at IS NOT NULL) AS avg_resolution
FROM tickets
WHERE created_at >= $1 AND created_at < $2 AND deleted_at IS NULL`
	var out TimingAverages
	if err := q.tx.GetContext(ctx, &out, query, from, to); err != nil {
		return TimingAverages{}, fmt.Errorf("average ticket timings: %w", err)
	}
	return out, nil
}

func (q *aggregationTx) HourlyFlow(ctx context.Context, from, to time.Time) ([]HourBucket, error) {
	const query = `SELECT hour, SUM(created) AS tickets_created, SUM(resolved) AS tickets_resolved, SUM(closed) AS tickets_closed
FROM (
	SELECT EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC')::int AS hour, 1 AS created, 0 AS resolved, 0 AS closed
	FROM tickets WHERE created_at >= $1 AND created_at < $2 AND deleted_at IS NULL
	UNION ALL
	SELECT EXTRACT(HOUR FROM resolved_at AT TIME ZONE 'UTC')::int, 0, 1, 0
	FROM tickets WHERE resolved_at >= $1 AND resolved_at < $2 AND deleted_at IS NULL
	UNION ALL
	SELECT EXTRACT(HOUR FROM closed_at AT TIME ZONE 'UTC')::int, 0, 0, 1
	FROM tickets WHERE closed_at >= $1 AND closed_at < $2 AND deleted_at IS NULL
) flow
GROUP BY hour ORDER BY hour`
	var rows []HourBucket
	if err := q.tx.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("hourly ticket flow: %w", err)
	}
	return rows, nil
}

func (q *aggregationTx) ActiveAgentIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id::text FROM users WHERE role IN ('agent', 'admin') AND is_active = TRUE ORDER BY id`
	var ids []string
	if err := q.tx.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}
	return ids, nil
}

// Activity groups window activity per entity. A positive limit keeps only the busiest entities by tickets opened.
func (q *aggregationTx) Activity(ctx context.Context, kind EntityKind, from, to time.Time, limit int) ([]EntityActivity, error) {
	col, ok := entityColumn[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	query := fmt.Sprintf(`SELECT %[1]s::text AS entity_id,
COUNT(*) FILTER (WHERE created_at >= $1 AND created_at < $2) AS opened,
COUNT(*) FILTER (WHERE resolved_at >= $1 AND resolved_at < $2) AS resolved,
COUNT(*) FILTER (WHERE closed_at >= $1 AND closed_at < $2) AS closed,
AVG(EXTRACT(EPOCH FROM (first_response_at - created_at))) FILTER (WHERE first_response_at IS NOT NULL AND created_at >= $1 AND created_at < $2) AS avg_first_response,
AVG(EXTRACT(EPOCH FROM (resolved_at - created_at))) FILTER (WHERE resolved_at >= $1 AND resolved_at < $2) AS avg_resolution
FROM tickets
WHERE %[1]s IS NOT NULL AND deleted_at IS NULL
AND ((created_at >= $1 AND created_at < $2) OR (resolved_at >= $1 AND resolved_at < $2) OR (closed_at >= $1 AND closed_at < $2))
GROUP BY %[1]s`, col)
	args := []interface{}{from, to}
	if limit > 0 {
		query += " ORDER BY opened DESC, entity_id ASC LIMIT $3"
		args = append(args, limit)
	} else {
		query += " ORDER BY entity_id ASC"
	}
	var rows []EntityActivity
	if err := q.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s activity: %w", kind, err)
	}
	return rows, nil
}

func (q *aggregationTx) Satisfaction(ctx context.Context, kind EntityKind, from, to time.Time) ([]Satisfaction, error) {
	col, ok := entityColumn[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	query := fmt.Sprintf(`SELECT t.%[1]s::text AS entity_id, AVG(f.rating)::float8 AS avg_rating, COUNT(f.id) AS feedback_count
FROM ticket_feedback f
JOIN tickets t ON t.id = f.ticket_id
WHERE f.created_at >= $1 AND f.created_at < $2 AND t.%[1]s IS NOT NULL
GROUP BY t.%[1]s`, col)
	var rows []Satisfaction
	if err := q.tx.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("%s satisfaction: %w", kind, err)
	}
	return rows, nil
}

// ActiveDays counts distinct comment days for agents and distinct ticket days for clients.
func (q *aggregationTx) ActiveDays(ctx context.Context, kind EntityKind, from, to time.Time) ([]ActiveDays, error) {
	var query string
	switch kind {
	case EntityAgent:
		query = `SELECT user_id::text AS entity_id, COUNT(DISTINCT (created_at AT TIME ZONE 'UTC')::date) AS days
FROM ticket_comments
WHERE created_at >= $1 AND created_at < $2
GROUP BY user_id`
	case EntityClient:
		query = `SELECT client_id::text AS entity_id, COUNT(DISTINCT (created_at AT TIME ZONE 'UTC')::date) AS days
FROM tickets
WHERE created_at >= $1 AND created_at < $2 AND deleted_at IS NULL
GROUP BY client_id`
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	var rows []ActiveDays
	if err := q.tx.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("%s active days: %w", kind, err)
	}
	return rows, nil
}

// SLAOutcomes evaluates tickets created in the window. Targets still open past their due time at asOf count as breached.
func (q *aggregationTx) SLAOutcomes(ctx context.Context, from, to, asOf time.Time) ([]SLAOutcome, error) {
	const query = `SELECT priority::text AS priority,
COUNT(*) AS total,
COUNT(*) FILTER (WHERE first_response_due_at IS NOT NULL AND first_response_at IS NOT NULL AND first_response_at <= first_response_due_at) AS first_response_met,
COUNT(*) FILTER (WHERE first_response_due_at IS NOT NULL AND ((first_response_at IS NOT NULL AND first_response_at > first_response_due_at) OR (first_response_at IS NULL AND first_response_due_at < $3))) AS first_response_breached,
COUNT(*) FILTER (WHERE resolution_due_at IS NOT NULL AND resolved_at IS NOT NULL AND resolved_at <= resolution_due_at) AS resolution_met,
COUNT(*) FILTER (WHERE resolution_due_at IS NOT NULL AND ((resolved_at IS NOT NULL AND resolved_at > resolution_due_at) OR (resolved_at IS NULL AND resolution_due_at < $3))) AS resolution_breached
FROM tickets
WHERE created_at >= $1 AND created_at < $2 AND deleted_at IS NULL
GROUP BY priority ORDER BY priority`
	var rows []SLAOutcome
	if err := q.tx.SelectContext(ctx, &rows, query, from, to, asOf); err != nil {
		return nil, fmt.Errorf("sla outcomes: %w", err)
	}
	return rows, nil
}

func (q *aggregationTx) UpsertTicketMetrics(ctx context.Context, m *models.TicketMetrics) error {
	const query = `INSERT INTO ticket_metrics (date, total_tickets, new_tickets, open_tickets, pending_tickets, on_hold_tickets,
resolved_tickets, closed_tickets, cancelled_tickets, low_priority, medium_priority, high_priority, urgent_priority,
avg_first_response_time, avg_resolution_time, category_breakdown, source_breakdown, updated_at)
VALUES (:date, :total_tickets, :new_tickets, :open_tickets, :pending_tickets, :on_hold_tickets,
:resolved_tickets, :closed_tickets, :cancelled_tickets, :low_priority, :medium_priority, :high_priority, :urgent_priority,
:avg_first_response_time, :avg_resolution_time, :category_breakdown, :source_breakdown, :updated_at)
ON CONFLICT (date) DO UPDATE SET
total_tickets = EXCLUDED.total_tickets, new_tickets = EXCLUDED.new_tickets, open_tickets = EXCLUDED.open_tickets,
pending_tickets = EXCLUDED.pending_tickets, on_hold_tickets = EXCLUDED.on_hold_tickets,
resolved_tickets = EXCLUDED.resolved_tickets, closed_tickets = EXCLUDED.closed_tickets,
cancelled_tickets = EXCLUDED.cancelled_tickets, low_priority = EXCLUDED.low_priority,
medium_priority = EXCLUDED.medium_priority, high_priority = EXCLUDED.high_priority,
urgent_priority = EXCLUDED.urgent_priority, avg_first_response_time = EXCLUDED.avg_first_response_time,
avg_resolution_time = EXCLUDED.avg_resolution_time, category_breakdown = EXCLUDED.category_breakdown,
source_breakdown = EXCLUDED.source_breakdown, updated_at = EXCLUDED.updated_at`
	if _, err := q.tx.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("upsert ticket metrics: %w", err)
	}
	return nil
}

func (q *aggregationTx) ReplaceHourlyMetrics(ctx context.Context, date time.Time, rows []models.HourlyTicketMetrics) error {
	if _, err := q.tx.ExecContext(ctx, `DELETE FROM ticket_hourly_metrics WHERE date = $1`, date); err != nil {
		return fmt.Errorf("clear hourly metrics: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	const query = `INSERT INTO ticket_hourly_metrics (date, hour, tickets_created, tickets_resolved, tickets_closed, updated_at)
VALUES (:date, :hour, :tickets_created, :tickets_resolved, :tickets_closed, :updated_at)`
	if _, err := q.tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("insert hourly metrics: %w", err)
	}
	return nil
}

func (q *aggregationTx) ReplaceAgentMetrics(ctx context.Context, start, end time.Time, rows []models.AgentMetrics) error {
	if _, err := q.tx.ExecContext(ctx, `DELETE FROM agent_metrics WHERE period_start = $1 AND period_end = $2`, start, end); err != nil {
		return fmt.Errorf("clear agent metrics: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	const query = `INSERT INTO agent_metrics (agent_id, period_start, period_end, tickets_assigned, tickets_resolved, tickets_closed,
avg_first_response_time, avg_resolution_time, satisfaction_score, feedback_count, active_days, updated_at)
VALUES (:agent_id, :period_start, :period_end, :tickets_assigned, :tickets_resolved, :tickets_closed,
:avg_first_response_time, :avg_resolution_time, :satisfaction_score, :feedback_count, :active_days, :updated_at)`
	if _, err := q.tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("insert agent metrics: %w", err)
	}
	return nil
}

func (q *aggregationTx) ReplaceClientMetrics(ctx context.Context, start, end time.Time, rows []models.ClientMetrics) error {
	if _, err := q.tx.ExecContext(ctx, `DELETE FROM client_metrics WHERE period_start = $1 AND period_end = $2`, start, end); err != nil {
		return fmt.Errorf("clear client metrics: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	const query = `INSERT INTO client_metrics (client_id, period_start, period_end, tickets_created, tickets_resolved, tickets_closed,
avg_resolution_time, satisfaction_score, feedback_count, active_days, updated_at)
VALUES (:client_id, :period_start, :period_end, :tickets_created, :tickets_resolved, :tickets_closed,
:avg_resolution_time, :satisfaction_score, :feedback_count, :active_days, :updated_at)`
	if _, err := q.tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("insert client metrics: %w", err)
	}
	return nil
}

func (q *aggregationTx) UpsertSLAMetrics(ctx context.Context, m *models.SLAMetrics) error {
	const query = `INSERT INTO sla_metrics (date, total_tickets, first_response_met, first_response_breached, resolution_met,
resolution_breached, compliance_rate, priority_breakdown, updated_at)
VALUES (:date, :total_tickets, :first_response_met, :first_response_breached, :resolution_met,
:resolution_breached, :compliance_rate, :priority_breakdown, :updated_at)
ON CONFLICT (date) DO UPDATE SET
total_tickets = EXCLUDED.total_tickets, first_response_met = EXCLUDED.first_response_met,
first_response_breached = EXCLUDED.first_response_breached, resolution_met = EXCLUDED.resolution_met,
resolution_breached = EXCLUDED.resolution_breached, compliance_rate = EXCLUDED.compliance_rate,
priority_breakdown = EXCLUDED.priority_breakdown, updated_at = EXCLUDED.updated_at`
	if _, err := q.tx.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("upsert sla metrics: %w", err)
	}
	return nil
}
