package dto

import "github.com/aidly/aidly-api/internal/models"

// ExecuteReportRequest captures POST /reports/:id/execute payload.
type ExecuteReportRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
	Format     models.ReportFormat    `json:"format" validate:"omitempty,oneof=csv pdf xlsx json"`
}

// ExportReportRequest captures POST /exports/reports payload.
type ExportReportRequest struct {
	ReportID   string                 `json:"report_id" validate:"required"`
	Parameters map[string]interface{} `json:"parameters"`
	Format     models.ReportFormat    `json:"format" validate:"omitempty,oneof=csv pdf xlsx json"`
}

// ScheduleReportRequest captures PUT /reports/:id/schedule payload.
type ScheduleReportRequest struct {
	CronExpression string              `json:"cron_expression" validate:"required"`
	Timezone       string              `json:"timezone"`
	Recipients     []string            `json:"recipients" validate:"required,min=1,dive,email"`
	Format         models.ReportFormat `json:"format" validate:"omitempty,oneof=csv pdf xlsx json"`
}

// ExecutionListResponse wraps a report's recent executions.
type ExecutionListResponse struct {
	ReportID   string                   `json:"report_id"`
	Executions []models.ReportExecution `json:"executions"`
}
