package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

// ReportRepository persists report definitions and their executions.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, name, description, type, query_template, parameters, filters, columns, chart_config,
format, version, owner_id, is_public, created_at, updated_at`

const executionColumns = `id, report_id, scheduled_report_id, status, format, parameters, row_count, execution_time_ms,
file_path, file_size, error_message, started_at, completed_at, triggered_by`

// GetReport returns a report definition by id.
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

// CreateExecution inserts a new execution row with generated defaults.
func (r *ReportRepository) CreateExecution(ctx context.Context, exec *models.ReportExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.Status == "" {
		exec.Status = models.ExecutionStatusRunning
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}
	if exec.Parameters == nil {
		exec.Parameters = models.JSONMap{}
	}
	query := `INSERT INTO report_executions (` + executionColumns + `)
VALUES (:id, :report_id, :scheduled_report_id, :status, :format, :parameters, :row_count, :execution_time_ms,
:file_path, :file_size, :error_message, :started_at, :completed_at, :triggered_by)`
	if _, err := r.db.NamedExecContext(ctx, query, exec); err != nil {
		return fmt.Errorf("create report execution: %w", err)
	}
	return nil
}

// UpdateExecutionParams defines the mutable fields of an execution.
type UpdateExecutionParams struct {
	Status          *models.ExecutionStatus
	RowCount        *int
	ExecutionTimeMs *int64
	FilePath        *string
	FileSize        *int64
	ErrorMessage    *string
	CompletedAt     *time.Time
}

// UpdateExecution persists the provided changes for an execution row.
func (r *ReportRepository) UpdateExecution(ctx context.Context, id string, params UpdateExecutionParams) error {
	set := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	argPos := 1

	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.RowCount != nil {
		add("row_count", *params.RowCount)
	}
	if params.ExecutionTimeMs != nil {
		add("execution_time_ms", *params.ExecutionTimeMs)
	}
	if params.FilePath != nil {
		add("file_path", *params.FilePath)
	}
	if params.FileSize != nil {
		add("file_size", *params.FileSize)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.CompletedAt != nil {
		add("completed_at", *params.CompletedAt)
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE report_executions SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report execution: %w", err)
	}
	return nil
}

// GetExecution returns an execution by id.
func (r *ReportRepository) GetExecution(ctx context.Context, id string) (*models.ReportExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM report_executions WHERE id = $1`
	var exec models.ReportExecution
	if err := r.db.GetContext(ctx, &exec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "execution not found")
		}
		return nil, fmt.Errorf("get report execution: %w", err)
	}
	return &exec, nil
}

// ListExecutions returns the newest executions of a report.
func (r *ReportRepository) ListExecutions(ctx context.Context, reportID string, limit int) ([]models.ReportExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + executionColumns + ` FROM report_executions WHERE report_id = $1 ORDER BY started_at DESC LIMIT $2`
	var execs []models.ReportExecution
	if err := r.db.SelectContext(ctx, &execs, query, reportID, limit); err != nil {
		return nil, fmt.Errorf("list report executions: %w", err)
	}
	return execs, nil
}

// PruneExecutions deletes every execution of a report except the newest keep rows
// and returns the file paths the deleted rows referenced along with the number of rows removed.
func (r *ReportRepository) PruneExecutions(ctx context.Context, reportID string, keep int) ([]string, int, error) {
	const query = `DELETE FROM report_executions
WHERE report_id = $1 AND id NOT IN (
SELECT id FROM report_executions WHERE report_id = $1 ORDER BY started_at DESC LIMIT $2
)
RETURNING file_path`
	var paths []sql.NullString
	if err := r.db.SelectContext(ctx, &paths, query, reportID, keep); err != nil {
		return nil, 0, fmt.Errorf("prune report executions: %w", err)
	}
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		if p.Valid && p.String != "" {
			files = append(files, p.String)
		}
	}
	return files, len(paths), nil
}
