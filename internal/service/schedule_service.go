package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/alerting"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/jobs"
	"github.com/aidly/aidly-api/pkg/mail"
)

// JobTypeScheduledReport labels queued scheduled report runs.
const JobTypeScheduledReport = "scheduled_report"

// ErrScheduledRunFailed marks a run whose failure was already recorded on the schedule.
var ErrScheduledRunFailed = errors.New("scheduled report run failed")

type scheduleStore interface {
	FindByID(ctx context.Context, id string) (*models.ScheduledReport, error)
	FindByReport(ctx context.Context, reportID string) (*models.ScheduledReport, error)
	Upsert(ctx context.Context, schedule *models.ScheduledReport) error
	DeleteByReport(ctx context.Context, reportID string) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledReport, error)
	Claim(ctx context.Context, id string, observed time.Time, next time.Time) (bool, error)
	RecordSuccess(ctx context.Context, id string, ranAt time.Time, next time.Time) error
	RecordFailure(ctx context.Context, id string, next time.Time, threshold int) (int, bool, error)
}

type scheduledExecutor interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	Execute(ctx context.Context, reportID string, opts ExecuteOptions) (*models.ReportExecution, error)
	ReadOutput(exec *models.ReportExecution) (*RenderedFile, error)
	Prune(ctx context.Context, reportID string, keep int) (int, error)
}

// ScheduleServiceConfig tunes scheduled runs.
type ScheduleServiceConfig struct {
	FailureThreshold int
	RetentionCount   int
	Workers          int
	Retries          int
	Timeout          time.Duration
	BaseURL          string
}

// ScheduleService owns report schedules: saving them, dispatching due runs and
// delivering the results by email.
type ScheduleService struct {
	schedules scheduleStore
	reports   scheduledExecutor
	mailer    mail.Sender
	markdown  *mail.Markdown
	alerter   alerting.Alerter
	validator *validator.Validate
	queue     *jobs.Queue
	logger    *zap.Logger
	cfg       ScheduleServiceConfig
	now       func() time.Time
}

// NewScheduleService instantiates ScheduleService and its run queue.
func NewScheduleService(schedules scheduleStore, reports scheduledExecutor, mailer mail.Sender, alerter alerting.Alerter, validate *validator.Validate, logger *zap.Logger, cfg ScheduleServiceConfig) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	s := &ScheduleService{
		schedules: schedules,
		reports:   reports,
		mailer:    mailer,
		markdown:  mail.NewMarkdown(),
		alerter:   alerter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	s.queue = jobs.NewQueue(JobTypeScheduledReport, s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: 30 * time.Second,
		Timeout:    cfg.Timeout,
		Logger:     logger,
	})
	return s
}

// Start launches the run workers.
func (s *ScheduleService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains the run workers.
func (s *ScheduleService) Stop() { s.queue.Stop() }

// GetSchedule returns the schedule attached to a report.
func (s *ScheduleService) GetSchedule(ctx context.Context, reportID string) (*models.ScheduledReport, error) {
	return s.schedules.FindByReport(ctx, reportID)
}

// SaveSchedule creates or replaces the schedule of a report.
func (s *ScheduleService) SaveSchedule(ctx context.Context, reportID string, req dto.ScheduleReportRequest) (*models.ScheduledReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	expr := strings.TrimSpace(req.CronExpression)
	if err := ValidateCron(expr, timezone); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	next, err := NextRun(expr, timezone, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	format := req.Format
	if format == "" {
		format = report.Format
	}
	if format == "" {
		format = models.ReportFormatCSV
	}

	schedule := &models.ScheduledReport{
		ReportID:       report.ID,
		CronExpression: expr,
		Timezone:       timezone,
		Recipients:     normalizeRecipients(req.Recipients),
		Format:         format,
		NextRunAt:      &next,
	}
	if err := s.schedules.Upsert(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save schedule")
	}
	s.logger.Sugar().Infow("report schedule saved", "report_id", report.ID, "cron", expr, "timezone", timezone, "next_run_at", next)
	return schedule, nil
}

// DeleteSchedule removes the schedule of a report.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, reportID string) error {
	if err := s.schedules.DeleteByReport(ctx, reportID); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	return nil
}

// DispatchDue claims every active schedule that is due and queues a run for it.
// It returns the number of runs queued.
func (s *ScheduleService) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.schedules.ListDue(ctx, now, 100)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, schedule := range due {
		if schedule.NextRunAt == nil {
			continue
		}
		next, cronErr := nextRunOrRetry(schedule.CronExpression, schedule.Timezone, now)
		if cronErr != nil {
			s.logger.Sugar().Warnw("schedule has an invalid cron expression", "schedule_id", schedule.ID, "error", cronErr)
		}
		claimed, err := s.schedules.Claim(ctx, schedule.ID, *schedule.NextRunAt, next)
		if err != nil {
			s.logger.Sugar().Errorw("failed to claim schedule", "schedule_id", schedule.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		job := jobs.Job{ID: uuid.NewString(), Type: JobTypeScheduledReport, Payload: schedule.ID}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Sugar().Errorw("failed to queue scheduled report", "schedule_id", schedule.ID, "error", err)
			// hand the claim back so the next tick picks the run up again
			if _, revertErr := s.schedules.Claim(context.WithoutCancel(ctx), schedule.ID, next, *schedule.NextRunAt); revertErr != nil {
				s.logger.Sugar().Errorw("failed to release schedule claim", "schedule_id", schedule.ID, "error", revertErr)
			}
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		s.logger.Sugar().Infow("scheduled reports dispatched", "count", dispatched)
	}
	return dispatched, nil
}

func (s *ScheduleService) handle(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected scheduled report payload %T", job.Payload)
	}
	_, err := s.RunScheduled(ctx, id)
	if errors.Is(err, ErrScheduledRunFailed) {
		// counted against the schedule already; the next cron tick retries
		return nil
	}
	return err
}

// RunScheduled executes one scheduled report, emails the result to every
// recipient and prunes old executions. A failed run is counted against the
// schedule, which is deactivated and escalated once the threshold is reached.
func (s *ScheduleService) RunScheduled(ctx context.Context, scheduleID string) (*models.ReportExecution, error) {
	schedule, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.IsActive {
		s.logger.Sugar().Infow("skipping inactive schedule", "schedule_id", schedule.ID)
		return nil, nil
	}

	if next, cronErr := nextRunOrRetry(schedule.CronExpression, schedule.Timezone, s.now()); cronErr != nil {
		s.recordFailure(ctx, schedule, next, cronErr)
		return nil, fmt.Errorf("%w: %w", ErrScheduledRunFailed, cronErr)
	}

	exec, runErr := s.reports.Execute(ctx, schedule.ReportID, ExecuteOptions{
		Format:            schedule.Format,
		TriggeredBy:       models.TriggerScheduled,
		ScheduledReportID: &schedule.ID,
	})
	finished := s.now().UTC()
	next, _ := nextRunOrRetry(schedule.CronExpression, schedule.Timezone, finished)
	if runErr != nil {
		s.recordFailure(ctx, schedule, next, runErr)
		return exec, fmt.Errorf("%w: %w", ErrScheduledRunFailed, runErr)
	}

	if err := s.schedules.RecordSuccess(context.WithoutCancel(ctx), schedule.ID, finished, next); err != nil {
		s.logger.Sugar().Errorw("failed to record schedule success", "schedule_id", schedule.ID, "error", err)
	}
	s.deliver(ctx, schedule, exec)

	removed, err := s.reports.Prune(ctx, schedule.ReportID, s.cfg.RetentionCount)
	if err != nil {
		s.logger.Sugar().Warnw("failed to prune report executions", "report_id", schedule.ReportID, "error", err)
	} else if removed > 0 {
		s.logger.Sugar().Infow("pruned report executions", "report_id", schedule.ReportID, "removed", removed)
	}
	return exec, nil
}

func (s *ScheduleService) recordFailure(ctx context.Context, schedule *models.ScheduledReport, next time.Time, cause error) {
	count, active, err := s.schedules.RecordFailure(context.WithoutCancel(ctx), schedule.ID, next, s.cfg.FailureThreshold)
	if err != nil {
		s.logger.Sugar().Errorw("failed to record schedule failure", "schedule_id", schedule.ID, "error", err, "cause", cause)
		return
	}
	s.logger.Sugar().Warnw("scheduled report failed",
		"schedule_id", schedule.ID,
		"report_id", schedule.ReportID,
		"failure_count", count,
		"next_run_at", next,
		"error", cause,
	)
	if active {
		return
	}
	tags := map[string]string{
		"schedule_id":   schedule.ID,
		"report_id":     schedule.ReportID,
		"failure_count": fmt.Sprint(count),
	}
	if s.alerter != nil {
		s.alerter.Critical(context.WithoutCancel(ctx), "scheduled report disabled after repeated failures", cause, tags)
		return
	}
	s.logger.Error("scheduled report disabled after repeated failures", zap.Any("tags", tags), zap.Error(cause))
}

// deliver emails the run to each recipient separately. Individual failures are
// logged and do not stop the remaining recipients.
func (s *ScheduleService) deliver(ctx context.Context, schedule *models.ScheduledReport, exec *models.ReportExecution) int {
	if s.mailer == nil || len(schedule.Recipients) == 0 {
		return 0
	}
	name := schedule.ReportID
	if report, err := s.reports.GetReport(ctx, schedule.ReportID); err == nil {
		name = report.Name
	}

	var attachments []mail.Attachment
	if exec.HasFile() {
		file, err := s.reports.ReadOutput(exec)
		if err != nil {
			s.logger.Sugar().Warnw("failed to read report output for email", "execution_id", exec.ID, "error", err)
		} else {
			attachments = append(attachments, mail.Attachment{Filename: file.Filename, ContentType: file.ContentType, Data: file.Data})
		}
	}

	subject, htmlBody, textBody := s.composeReportEmail(name, schedule, exec, len(attachments) > 0)
	sent := 0
	for _, recipient := range schedule.Recipients {
		msg := mail.Message{
			To:          recipient,
			Subject:     subject,
			HTMLBody:    htmlBody,
			TextBody:    textBody,
			Attachments: attachments,
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Sugar().Warnw("failed to email scheduled report", "schedule_id", schedule.ID, "recipient", recipient, "error", err)
			continue
		}
		sent++
	}
	s.logger.Sugar().Infow("scheduled report delivered", "schedule_id", schedule.ID, "sent", sent, "recipients", len(schedule.Recipients))
	return sent
}

func (s *ScheduleService) composeReportEmail(name string, schedule *models.ScheduledReport, exec *models.ReportExecution, attached bool) (subject, htmlBody, textBody string) {
	ranAt := exec.StartedAt
	if exec.CompletedAt != nil {
		ranAt = *exec.CompletedAt
	}
	subject = fmt.Sprintf("Scheduled report: %s (%s)", name, ranAt.Format("2006-01-02"))

	var b strings.Builder
	fmt.Fprintf(&b, "Your scheduled report **%s** finished %s.\n\n", name, ranAt.Format("Jan 2, 2006 15:04 MST"))
	fmt.Fprintf(&b, "- Rows: %s\n", humanize.Comma(int64(exec.RowCount)))
	fmt.Fprintf(&b, "- Format: %s\n", strings.ToUpper(string(exec.Format)))
	if attached {
		fmt.Fprintf(&b, "- Size: %s\n\nThe report is attached to this email.\n", humanize.Bytes(uint64(exec.FileSize)))
	} else {
		b.WriteString("\nThis format has no file attachment. Open AidlY to view the results.\n")
	}
	textBody = b.String()

	fragment, err := s.markdown.ToHTML(textBody)
	if err != nil {
		fragment = "<pre>" + html.EscapeString(textBody) + "</pre>"
	}
	actionURL := ""
	if s.cfg.BaseURL != "" {
		actionURL = strings.TrimRight(s.cfg.BaseURL, "/") + "/reports/" + schedule.ReportID
	}
	htmlBody = mail.Layout(subject, fragment, actionURL, "View report")
	return subject, htmlBody, textBody
}

func normalizeRecipients(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
