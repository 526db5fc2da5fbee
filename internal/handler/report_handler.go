package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/service"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/response"
)

type reportService interface {
	Execute(ctx context.Context, reportID string, opts service.ExecuteOptions) (*models.ReportExecution, error)
	Export(ctx context.Context, reportID string, opts service.ExecuteOptions) (*models.ReportExecution, *service.RenderedFile, error)
	GetExecution(ctx context.Context, id string) (*models.ReportExecution, error)
	ListExecutions(ctx context.Context, reportID string, limit int) ([]models.ReportExecution, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

type reportScheduler interface {
	GetSchedule(ctx context.Context, reportID string) (*models.ScheduledReport, error)
	SaveSchedule(ctx context.Context, reportID string, req dto.ScheduleReportRequest) (*models.ScheduledReport, error)
	DeleteSchedule(ctx context.Context, reportID string) error
}

// ReportHandler exposes report execution, export and scheduling endpoints.
type ReportHandler struct {
	reports   reportService
	schedules reportScheduler
	validate  *validator.Validate
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService, schedules reportScheduler, validate *validator.Validate) *ReportHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ReportHandler{reports: reports, schedules: schedules, validate: validate}
}

// Execute godoc
// @Summary Run a report synchronously
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.ExecuteReportRequest false "Parameters and format"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/execute [post]
func (h *ReportHandler) Execute(c *gin.Context) {
	var req dto.ExecuteReportRequest
	if err := bindJSON(c, h.validate, &req, true); err != nil {
		response.Error(c, err)
		return
	}
	exec, err := h.reports.Execute(c.Request.Context(), c.Param("id"), service.ExecuteOptions{
		Params: req.Parameters,
		Format: req.Format,
	})
	if err != nil {
		if exec != nil {
			c.Header("X-Execution-ID", exec.ID)
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exec, nil)
}

// Executions godoc
// @Summary Recent executions of a report
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/executions [get]
func (h *ReportHandler) Executions(c *gin.Context) {
	limit, err := parseIntQuery(c, "limit", 30)
	if err != nil {
		response.Error(c, err)
		return
	}
	reportID := c.Param("id")
	rows, err := h.reports.ListExecutions(c.Request.Context(), reportID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if rows == nil {
		rows = []models.ReportExecution{}
	}
	response.JSON(c, http.StatusOK, dto.ExecutionListResponse{ReportID: reportID, Executions: rows}, nil)
}

// Execution godoc
// @Summary Execution status
// @Tags Reports
// @Produce json
// @Param id path string true "Execution ID"
// @Success 200 {object} response.Envelope
// @Router /reports/executions/{id} [get]
func (h *ReportHandler) Execution(c *gin.Context) {
	exec, err := h.reports.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exec, nil)
}

// Export godoc
// @Summary Render a report and stream the file
// @Tags Reports
// @Accept json
// @Produce octet-stream
// @Param payload body dto.ExportReportRequest true "Export request"
// @Success 200 {file} binary
// @Router /exports/reports [post]
func (h *ReportHandler) Export(c *gin.Context) {
	var req dto.ExportReportRequest
	if err := bindJSON(c, h.validate, &req, false); err != nil {
		response.Error(c, err)
		return
	}
	exec, file, err := h.reports.Export(c.Request.Context(), req.ReportID, service.ExecuteOptions{
		Params: req.Parameters,
		Format: req.Format,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if file == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export produced no output"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Execution-ID", exec.ID)
	c.DataFromReader(http.StatusOK, int64(len(file.Data)), file.ContentType, bytes.NewReader(file.Data), nil)
}

// Download godoc
// @Summary Download an execution file via signed token
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.reports.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck
	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}

// GetSchedule godoc
// @Summary Schedule of a report
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/schedule [get]
func (h *ReportHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.schedules.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// SaveSchedule godoc
// @Summary Create or replace the schedule of a report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.ScheduleReportRequest true "Schedule"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/schedule [put]
func (h *ReportHandler) SaveSchedule(c *gin.Context) {
	var req dto.ScheduleReportRequest
	if err := bindJSON(c, nil, &req, false); err != nil {
		response.Error(c, err)
		return
	}
	schedule, err := h.schedules.SaveSchedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// DeleteSchedule godoc
// @Summary Remove the schedule of a report
// @Tags Reports
// @Param id path string true "Report ID"
// @Success 204
// @Router /reports/{id}/schedule [delete]
func (h *ReportHandler) DeleteSchedule(c *gin.Context) {
	if err := h.schedules.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
