package models

import (
	"time"

	"github.com/lib/pq"
)

// ReportFormat enumerates supported output formats.
type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
	ReportFormatXLSX ReportFormat = "xlsx"
	ReportFormatJSON ReportFormat = "json"
)

// ExecutionStatus captures a report run's lifecycle.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Report is a named, versioned query template.
type Report struct {
	ID            string       `db:"id" json:"id"`
	Name          string       `db:"name" json:"name"`
	Description   *string      `db:"description" json:"description,omitempty"`
	Type          string       `db:"type" json:"type"`
	QueryTemplate string       `db:"query_template" json:"query_template"`
	Parameters    JSONMap      `db:"parameters" json:"parameters"`
	Filters       RawJSON      `db:"filters" json:"filters"`
	Columns       RawJSON      `db:"columns" json:"columns"`
	ChartConfig   RawJSON      `db:"chart_config" json:"chart_config"`
	Format        ReportFormat `db:"format" json:"format"`
	Version       int          `db:"version" json:"version"`
	OwnerID       string       `db:"owner_id" json:"owner_id"`
	IsPublic      bool         `db:"is_public" json:"is_public"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// ReportExecution is one run of a report.
type ReportExecution struct {
	ID                string                   `db:"id" json:"id"`
	ReportID          string                   `db:"report_id" json:"report_id"`
	ScheduledReportID *string                  `db:"scheduled_report_id" json:"scheduled_report_id,omitempty"`
	Status            ExecutionStatus          `db:"status" json:"status"`
	Format            ReportFormat             `db:"format" json:"format"`
	Parameters        JSONMap                  `db:"parameters" json:"parameters"`
	RowCount          int                      `db:"row_count" json:"row_count"`
	ExecutionTimeMs   int64                    `db:"execution_time_ms" json:"execution_time_ms"`
	FilePath          *string                  `db:"file_path" json:"file_path,omitempty"`
	FileSize          int64                    `db:"file_size" json:"file_size"`
	ErrorMessage      *string                  `db:"error_message" json:"error_message,omitempty"`
	StartedAt         time.Time                `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time               `db:"completed_at" json:"completed_at,omitempty"`
	TriggeredBy       string                   `db:"triggered_by" json:"triggered_by"`
	DownloadURL       string                   `db:"-" json:"download_url,omitempty"`
	Result            []map[string]interface{} `db:"-" json:"result,omitempty"`
}

// HasFile reports whether the run left an output file behind.
func (e *ReportExecution) HasFile() bool {
	return e != nil && e.FilePath != nil && *e.FilePath != ""
}

// ScheduledReport is the recurrence policy attached to a report.
type ScheduledReport struct {
	ID             string         `db:"id" json:"id"`
	ReportID       string         `db:"report_id" json:"report_id"`
	CronExpression string         `db:"cron_expression" json:"cron_expression"`
	Timezone       string         `db:"timezone" json:"timezone"`
	Recipients     pq.StringArray `db:"recipients" json:"recipients"`
	Format         ReportFormat   `db:"format" json:"format"`
	IsActive       bool           `db:"is_active" json:"is_active"`
	LastRunAt      *time.Time     `db:"last_run_at" json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `db:"next_run_at" json:"next_run_at,omitempty"`
	FailureCount   int            `db:"failure_count" json:"failure_count"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// ExecutionTrigger identifies who or what started a run.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerExport    = "export"
)
