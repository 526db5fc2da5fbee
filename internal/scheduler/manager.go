// Package scheduler drives the periodic background work of the service using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/service"
)

// AggregationQueue accepts aggregation runs for background execution.
type AggregationQueue interface {
	Enqueue(req models.AggregationRequest) (string, error)
}

// ReportDispatcher enqueues scheduled reports that are due.
type ReportDispatcher interface {
	DispatchDue(ctx context.Context, now time.Time) (int, error)
}

// NotificationRetrier redelivers pending and failed notifications.
type NotificationRetrier interface {
	ProcessQueue(ctx context.Context) (service.RetrySummary, error)
}

// DigestSweeper sends batched email digests.
type DigestSweeper interface {
	Sweep(ctx context.Context) (service.DigestSummary, error)
}

// hourlyTypes are refreshed for the current day every hour.
var hourlyTypes = []models.MetricType{models.MetricTypeDaily, models.MetricTypeHourly, models.MetricTypeSLA}

// Manager owns a single gocron scheduler and every periodic job registered on it.
type Manager struct {
	scheduler gocron.Scheduler
	logger    *zap.SugaredLogger
	now       func() time.Time

	started   bool
	startedMu sync.Mutex
}

// NewManager creates a scheduler evaluating cron expressions in UTC.
func NewManager(logger *zap.Logger) (*Manager, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{scheduler: s, logger: logger.Sugar(), now: time.Now}, nil
}

// RegisterAggregationJobs schedules the nightly full roll-up of yesterday and the
// hourly refresh of today's daily, hourly and SLA rows.
func (m *Manager) RegisterAggregationJobs(queue AggregationQueue, dailyCron, hourlyCron string) error {
	_, err := m.scheduler.NewJob(
		gocron.CronJob(dailyCron, false),
		gocron.NewTask(func() { m.enqueueNightly(queue) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("aggregation", "daily"),
		gocron.WithName("aggregation-daily"),
	)
	if err != nil {
		return err
	}

	_, err = m.scheduler.NewJob(
		gocron.CronJob(hourlyCron, false),
		gocron.NewTask(func() { m.enqueueHourly(queue) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("aggregation", "hourly"),
		gocron.WithName("aggregation-hourly"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered aggregation jobs", "daily", dailyCron, "hourly", hourlyCron)
	return nil
}

// RegisterReportJobs polls for due report schedules on a fixed interval.
func (m *Manager) RegisterReportJobs(dispatcher ReportDispatcher, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			m.dispatchReports(ctx, dispatcher)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("reports", "dispatch"),
		gocron.WithName("report-dispatch"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered report jobs", "interval", interval.String())
	return nil
}

// RegisterNotificationJobs schedules delivery retries and the email digest sweep.
func (m *Manager) RegisterNotificationJobs(retrier NotificationRetrier, digest DigestSweeper, retryInterval time.Duration, digestCron string) error {
	if retryInterval <= 0 {
		retryInterval = 5 * time.Minute
	}
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(retryInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), retryInterval)
			defer cancel()
			m.retryNotifications(ctx, retrier)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("notifications", "retry"),
		gocron.WithName("notification-retry"),
	)
	if err != nil {
		return err
	}

	_, err = m.scheduler.NewJob(
		gocron.CronJob(digestCron, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			m.sweepDigests(ctx, digest)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("notifications", "digest"),
		gocron.WithName("notification-digest"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered notification jobs", "retry_interval", retryInterval.String(), "digest", digestCron)
	return nil
}

func (m *Manager) enqueueNightly(queue AggregationQueue) {
	yesterday := m.now().UTC().AddDate(0, 0, -1)
	m.enqueue(queue, yesterday, models.MetricTypeAll)
}

func (m *Manager) enqueueHourly(queue AggregationQueue) {
	today := m.now().UTC()
	for _, t := range hourlyTypes {
		m.enqueue(queue, today, t)
	}
}

func (m *Manager) enqueue(queue AggregationQueue, date time.Time, t models.MetricType) {
	if _, err := queue.Enqueue(models.AggregationRequest{Date: date, Type: t}); err != nil {
		m.logger.Errorw("failed to enqueue scheduled aggregation", "type", t, "date", date.Format("2006-01-02"), "error", err)
	}
}

func (m *Manager) dispatchReports(ctx context.Context, dispatcher ReportDispatcher) {
	count, err := dispatcher.DispatchDue(ctx, m.now().UTC())
	if err != nil {
		m.logger.Errorw("failed to dispatch due reports", "error", err)
		return
	}
	if count > 0 {
		m.logger.Infow("due reports dispatched", "count", count)
	}
}

func (m *Manager) retryNotifications(ctx context.Context, retrier NotificationRetrier) {
	startTime := m.now()
	summary, err := retrier.ProcessQueue(ctx)
	if err != nil {
		m.logger.Errorw("failed to process notification queue", "error", err, "duration", time.Since(startTime))
		return
	}
	if summary.Attempted > 0 {
		m.logger.Infow("notification queue processed",
			"attempted", summary.Attempted,
			"delivered", summary.Delivered,
			"failed", summary.Failed,
			"duration", time.Since(startTime),
		)
	}
}

func (m *Manager) sweepDigests(ctx context.Context, digest DigestSweeper) {
	if _, err := digest.Sweep(ctx); err != nil {
		m.logger.Errorw("failed to sweep notification digests", "error", err)
	}
}

// Start starts the scheduler and all registered jobs.
func (m *Manager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}
	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler started", "job_count", len(m.scheduler.Jobs()))
}

// Stop waits for running jobs and shuts the scheduler down.
func (m *Manager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}
	err := m.scheduler.Shutdown()
	m.started = false
	if err != nil {
		m.logger.Errorw("scheduler shutdown with error", "error", err)
		return err
	}
	m.logger.Infow("scheduler stopped")
	return nil
}

// Jobs returns all registered jobs for inspection.
func (m *Manager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
