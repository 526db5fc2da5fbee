package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

// ScheduleRepository persists scheduled report policies.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, report_id, cron_expression, timezone, recipients, format, is_active, last_run_at,
next_run_at, failure_count, created_at, updated_at`

// FindByID retrieves a schedule by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ScheduledReport, error) {
	return r.get(ctx, `SELECT `+scheduleColumns+` FROM scheduled_reports WHERE id = $1`, id)
}

// FindByReport retrieves the schedule attached to a report.
func (r *ScheduleRepository) FindByReport(ctx context.Context, reportID string) (*models.ScheduledReport, error) {
	return r.get(ctx, `SELECT `+scheduleColumns+` FROM scheduled_reports WHERE report_id = $1`, reportID)
}

func (r *ScheduleRepository) get(ctx context.Context, query string, arg string) (*models.ScheduledReport, error) {
	var schedule models.ScheduledReport
	if err := r.db.GetContext(ctx, &schedule, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return &schedule, nil
}

// Upsert stores the schedule for its report, replacing any previous policy.
// Saving a schedule re-activates it and clears the failure counter.
func (r *ScheduleRepository) Upsert(ctx context.Context, schedule *models.ScheduledReport) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now
	schedule.IsActive = true
	schedule.FailureCount = 0

	query := `INSERT INTO scheduled_reports (` + scheduleColumns + `)
VALUES (:id, :report_id, :cron_expression, :timezone, :recipients, :format, :is_active, :last_run_at,
:next_run_at, :failure_count, :created_at, :updated_at)
ON CONFLICT (report_id) DO UPDATE SET cron_expression = EXCLUDED.cron_expression, timezone = EXCLUDED.timezone,
recipients = EXCLUDED.recipients, format = EXCLUDED.format, is_active = EXCLUDED.is_active,
next_run_at = EXCLUDED.next_run_at, failure_count = 0, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	rows, err := r.db.NamedQueryContext(ctx, query, schedule)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&schedule.ID, &schedule.CreatedAt); err != nil {
			return fmt.Errorf("upsert schedule: %w", err)
		}
	}
	return rows.Err()
}

// DeleteByReport removes the schedule attached to a report.
func (r *ScheduleRepository) DeleteByReport(ctx context.Context, reportID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_reports WHERE report_id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete schedule rows affected: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
	}
	return nil
}

// ListDue returns active schedules whose next run is at or before now.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledReport, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + scheduleColumns + ` FROM scheduled_reports
WHERE is_active = TRUE AND next_run_at IS NOT NULL AND next_run_at <= $1 ORDER BY next_run_at ASC LIMIT $2`
	var schedules []models.ScheduledReport
	if err := r.db.SelectContext(ctx, &schedules, query, now, limit); err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return schedules, nil
}

// Claim moves next_run_at from the value the caller observed to next. It reports
// false when another dispatcher already claimed the run.
func (r *ScheduleRepository) Claim(ctx context.Context, id string, observed time.Time, next time.Time) (bool, error) {
	const query = `UPDATE scheduled_reports SET next_run_at = $1, updated_at = NOW() WHERE id = $2 AND next_run_at = $3`
	res, err := r.db.ExecContext(ctx, query, next, id, observed)
	if err != nil {
		return false, fmt.Errorf("claim schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim schedule rows affected: %w", err)
	}
	return affected == 1, nil
}

// RecordSuccess resets the failure counter after a successful run.
func (r *ScheduleRepository) RecordSuccess(ctx context.Context, id string, ranAt time.Time, next time.Time) error {
	const query = `UPDATE scheduled_reports SET failure_count = 0, last_run_at = $1, next_run_at = $2, updated_at = NOW() WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, ranAt, next, id); err != nil {
		return fmt.Errorf("record schedule success: %w", err)
	}
	return nil
}

// RecordFailure increments the failure counter and deactivates the schedule once
// the counter reaches threshold. It returns the new counter and whether the
// schedule is still active.
func (r *ScheduleRepository) RecordFailure(ctx context.Context, id string, next time.Time, threshold int) (int, bool, error) {
	const query = `UPDATE scheduled_reports
SET failure_count = failure_count + 1,
is_active = CASE WHEN failure_count + 1 >= $1 THEN FALSE ELSE is_active END,
next_run_at = $2, updated_at = NOW()
WHERE id = $3
RETURNING failure_count, is_active`
	var out struct {
		FailureCount int  `db:"failure_count"`
		IsActive     bool `db:"is_active"`
	}
	if err := r.db.GetContext(ctx, &out, query, threshold, next, id); err != nil {
		return 0, false, fmt.Errorf("record schedule failure: %w", err)
	}
	return out.FailureCount, out.IsActive, nil
}
