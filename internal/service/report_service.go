package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/repository"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/export"
)

type reportStore interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	CreateExecution(ctx context.Context, exec *models.ReportExecution) error
	UpdateExecution(ctx context.Context, id string, params repository.UpdateExecutionParams) error
	GetExecution(ctx context.Context, id string) (*models.ReportExecution, error)
	ListExecutions(ctx context.Context, reportID string, limit int) ([]models.ReportExecution, error)
	PruneExecutions(ctx context.Context, reportID string, keep int) ([]string, int, error)
}

type queryRunner interface {
	Run(ctx context.Context, report *models.Report, params map[string]interface{}) (export.Dataset, error)
}

// ExecuteOptions describe one report run.
type ExecuteOptions struct {
	Params            map[string]interface{}
	Format            models.ReportFormat
	TriggeredBy       string
	ScheduledReportID *string
}

// ReportServiceConfig governs execution limits.
type ReportServiceConfig struct {
	Timeout time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File        *os.File
	Filename    string
	Format      models.ReportFormat
	ContentType string
	ExpiresAt   time.Time
}

// ReportService executes reports and manages their executions.
type ReportService struct {
	repo     reportStore
	runner   queryRunner
	exporter *ExportService
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ReportServiceConfig
	now      func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportStore, runner queryRunner, exporter *ExportService, metrics *MetricsService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:     repo,
		runner:   runner,
		exporter: exporter,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Execute runs a report and records the execution. When the run fails the
// returned execution is marked failed and the error describes why.
func (s *ReportService) Execute(ctx context.Context, reportID string, opts ExecuteOptions) (*models.ReportExecution, error) {
	exec, _, err := s.execute(ctx, reportID, opts, false)
	return exec, err
}

// Export runs a report and also returns the rendered output for streaming.
func (s *ReportService) Export(ctx context.Context, reportID string, opts ExecuteOptions) (*models.ReportExecution, *RenderedFile, error) {
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = models.TriggerExport
	}
	return s.execute(ctx, reportID, opts, true)
}

func (s *ReportService) execute(ctx context.Context, reportID string, opts ExecuteOptions, keepOutput bool) (*models.ReportExecution, *RenderedFile, error) {
	report, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	format := opts.Format
	if format == "" {
		format = report.Format
	}
	if format == "" {
		format = models.ReportFormatCSV
	}
	if !export.Format(format).Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = models.TriggerManual
	}

	exec := &models.ReportExecution{
		ReportID:          report.ID,
		ScheduledReportID: opts.ScheduledReportID,
		Status:            models.ExecutionStatusRunning,
		Format:            format,
		Parameters:        models.JSONMap(opts.Params),
		TriggeredBy:       opts.TriggeredBy,
		StartedAt:         s.now().UTC(),
	}
	if err := s.repo.CreateExecution(ctx, exec); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report execution")
	}

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	dataset, err := s.runner.Run(runCtx, report, opts.Params)
	if err != nil {
		return s.fail(ctx, exec, err)
	}

	var rendered *RenderedFile
	if export.Format(format).ProducesFile() || keepOutput {
		rendered, err = s.exporter.Render(format, report.Name, dataset)
		if err != nil {
			return s.fail(ctx, exec, err)
		}
	}
	if export.Format(format).ProducesFile() {
		stored, err := s.exporter.Store(exec.ID, rendered)
		if err != nil {
			return s.fail(ctx, exec, err)
		}
		exec.FilePath = &stored.Path
		exec.FileSize = stored.Size
	} else {
		exec.Result = dataset.Records()
	}

	completed := s.now().UTC()
	status := models.ExecutionStatusCompleted
	rowCount := dataset.Len()
	elapsed := completed.Sub(exec.StartedAt).Milliseconds()
	exec.Status = status
	exec.RowCount = rowCount
	exec.ExecutionTimeMs = elapsed
	exec.CompletedAt = &completed
	params := repository.UpdateExecutionParams{
		Status:          &status,
		RowCount:        &rowCount,
		ExecutionTimeMs: &elapsed,
		CompletedAt:     &completed,
	}
	if exec.HasFile() {
		params.FilePath = exec.FilePath
		params.FileSize = &exec.FileSize
	}
	if err := s.repo.UpdateExecution(ctx, exec.ID, params); err != nil {
		return s.fail(ctx, exec, err)
	}
	s.metrics.ObserveReportExecution(status, completed.Sub(exec.StartedAt))
	s.attachDownloadURL(exec)

	s.logger.Sugar().Infow("report executed",
		"report_id", report.ID,
		"execution_id", exec.ID,
		"format", format,
		"rows", rowCount,
		"duration_ms", elapsed,
		"triggered_by", exec.TriggeredBy,
	)
	if !keepOutput {
		rendered = nil
	}
	return exec, rendered, nil
}

func (s *ReportService) fail(ctx context.Context, exec *models.ReportExecution, cause error) (*models.ReportExecution, *RenderedFile, error) {
	completed := s.now().UTC()
	status := models.ExecutionStatusFailed
	message := cause.Error()
	elapsed := completed.Sub(exec.StartedAt).Milliseconds()
	exec.Status = status
	exec.ErrorMessage = &message
	exec.CompletedAt = &completed
	exec.ExecutionTimeMs = elapsed
	exec.Result = nil
	if exec.FilePath != nil {
		if err := s.exporter.Delete(*exec.FilePath); err != nil {
			s.logger.Sugar().Warnw("failed to delete orphaned report file", "execution_id", exec.ID, "path", *exec.FilePath, "error", err)
		}
		exec.FilePath = nil
		exec.FileSize = 0
	}

	// the caller's context may be the one that expired
	updateCtx := context.WithoutCancel(ctx)
	if err := s.repo.UpdateExecution(updateCtx, exec.ID, repository.UpdateExecutionParams{
		Status:          &status,
		ErrorMessage:    &message,
		ExecutionTimeMs: &elapsed,
		CompletedAt:     &completed,
	}); err != nil {
		s.logger.Sugar().Errorw("failed to record report failure", "execution_id", exec.ID, "error", err)
	}
	s.metrics.ObserveReportExecution(status, completed.Sub(exec.StartedAt))
	s.logger.Sugar().Warnw("report execution failed", "report_id", exec.ReportID, "execution_id", exec.ID, "error", cause)

	var appErr *appErrors.Error
	if errors.As(cause, &appErr) {
		return exec, nil, cause
	}
	return exec, nil, appErrors.Wrap(cause, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "report execution failed")
}

func (s *ReportService) attachDownloadURL(exec *models.ReportExecution) {
	if !exec.HasFile() || exec.Status != models.ExecutionStatusCompleted {
		return
	}
	url, _, err := s.exporter.DownloadURL(exec.ID, *exec.FilePath)
	if err != nil {
		s.logger.Sugar().Warnw("failed to sign download url", "execution_id", exec.ID, "error", err)
		return
	}
	exec.DownloadURL = url
}

// GetReport loads a report definition.
func (s *ReportService) GetReport(ctx context.Context, id string) (*models.Report, error) {
	return s.repo.GetReport(ctx, id)
}

// ReadOutput loads the stored file of a completed execution.
func (s *ReportService) ReadOutput(exec *models.ReportExecution) (*RenderedFile, error) {
	if !exec.HasFile() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "execution has no output file")
	}
	data, err := s.exporter.Read(*exec.FilePath)
	if err != nil {
		return nil, err
	}
	return &RenderedFile{
		Filename:    strings.TrimPrefix(filepath.Base(*exec.FilePath), exec.ID+"_"),
		ContentType: s.exporter.ContentType(exec.Format),
		Data:        data,
	}, nil
}

// GetExecution returns an execution with a fresh download link when it produced a file.
func (s *ReportService) GetExecution(ctx context.Context, id string) (*models.ReportExecution, error) {
	exec, err := s.repo.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	s.attachDownloadURL(exec)
	return exec, nil
}

// ListExecutions returns the newest executions of a report.
func (s *ReportService) ListExecutions(ctx context.Context, reportID string, limit int) ([]models.ReportExecution, error) {
	if _, err := s.repo.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	execs, err := s.repo.ListExecutions(ctx, reportID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report executions")
	}
	for i := range execs {
		s.attachDownloadURL(&execs[i])
	}
	return execs, nil
}

// Prune keeps the newest keep executions of a report and deletes the rest along with their files.
func (s *ReportService) Prune(ctx context.Context, reportID string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	paths, deleted, err := s.repo.PruneExecutions(ctx, reportID, keep)
	if err != nil {
		return 0, err
	}
	for _, path := range paths {
		if err := s.exporter.Delete(path); err != nil {
			s.logger.Sugar().Warnw("failed to delete pruned report file", "report_id", reportID, "path", path, "error", err)
		}
	}
	return deleted, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	executionID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	exec, err := s.repo.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if !exec.HasFile() || *exec.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if exec.Status != models.ExecutionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report file no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:        file,
		Filename:    strings.TrimPrefix(filepath.Base(relPath), exec.ID+"_"),
		Format:      exec.Format,
		ContentType: s.exporter.ContentType(exec.Format),
		ExpiresAt:   expiresAt,
	}, nil
}
