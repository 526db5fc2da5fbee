package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/handler"
	"github.com/aidly/aidly-api/internal/repository"
	"github.com/aidly/aidly-api/internal/service"
	"github.com/aidly/aidly-api/pkg/alerting"
	"github.com/aidly/aidly-api/pkg/cache"
	"github.com/aidly/aidly-api/pkg/config"
	"github.com/aidly/aidly-api/pkg/database"
	"github.com/aidly/aidly-api/pkg/logger"
	"github.com/aidly/aidly-api/pkg/mail"
	"github.com/aidly/aidly-api/pkg/realtime"
	"github.com/aidly/aidly-api/pkg/storage"
)

// app holds the shared infrastructure and services every command builds on.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *sqlx.DB
	redis    *redis.Client
	validate *validator.Validate
	metrics  *service.MetricsService
	alerter  *alerting.SentryAlerter
	cache    *service.CacheService
	mailer   *mail.SMTPSender
	relay    *realtime.RedisRelay

	metricsRepo      *repository.MetricsRepository
	notificationRepo *repository.NotificationRepository
	preferenceRepo   *repository.PreferenceRepository
	recipientRepo    *repository.RecipientRepository

	aggregation   *service.AggregationService
	aggregations  *service.AggregationJobs
	analytics     *service.AnalyticsService
	dashboard     *service.DashboardService
	reports       *service.ReportService
	schedules     *service.ScheduleService
	notifications *service.NotificationService
	digests       *service.DigestService
}

// loadConfig reads configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, log, nil
}

// newApp connects to Postgres and Redis and wires every service. When requireRedis
// is false a Redis outage only disables caching and realtime delivery.
func newApp(cfg *config.Config, log *zap.Logger, requireRedis bool) (*app, error) {
	a := &app{cfg: cfg, log: log, validate: validator.New(), metrics: service.NewMetricsService()}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	a.db = db

	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if requireRedis {
			a.close()
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		log.Sugar().Warnw("redis unavailable, caching and realtime disabled", "error", err)
	}
	a.redis = client

	if a.alerter, err = alerting.New(cfg.Sentry.DSN, cfg.Env, log); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}

	var cacheRepo service.CacheRepository
	if client != nil {
		cacheRepo = repository.NewCacheRepository(client, log)
	}
	a.cache = service.NewCacheService(cacheRepo, a.metrics, cfg.Dashboard.CacheTTL, log, client != nil)
	a.mailer = mail.NewSMTPSender(cfg.Mail)
	a.relay = realtime.NewRedisRelay(client, cfg.Realtime.ChannelPrefix, log)

	a.metricsRepo = repository.NewMetricsRepository(db)
	a.notificationRepo = repository.NewNotificationRepository(db)
	a.recipientRepo = repository.NewRecipientRepository(db)

	a.aggregation = service.NewAggregationService(repository.NewAggregationRepository(db), a.cache, a.metrics, cfg.Aggregation, log)
	a.aggregations = service.NewAggregationJobs(a.aggregation, a.alerter, cfg.Aggregation, log)
	a.analytics = service.NewAnalyticsService(a.metricsRepo, a.cache, a.metrics, log, cfg.Dashboard.CacheTTL)
	a.dashboard = service.NewDashboardService(service.DashboardServiceParams{
		Repo:    repository.NewDashboardRepository(db),
		Metrics: a.metricsRepo,
		Cache:   a.cache,
		Logger:  log,
		Config:  service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to init report storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(files, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, log)
	a.reports = service.NewReportService(
		repository.NewReportRepository(db),
		service.NewReportRunner(db, cfg.Reports.StatementTimeout),
		exporter,
		a.metrics,
		log,
		service.ReportServiceConfig{Timeout: cfg.Reports.Timeout},
	)
	a.schedules = service.NewScheduleService(
		repository.NewScheduleRepository(db),
		a.reports,
		a.mailer,
		a.alerter,
		a.validate,
		log,
		service.ScheduleServiceConfig{
			FailureThreshold: cfg.Reports.FailureThreshold,
			RetentionCount:   cfg.Reports.RetentionCount,
			Workers:          cfg.Reports.WorkerConcurrency,
			Retries:          cfg.Reports.WorkerRetries,
			Timeout:          cfg.Reports.Timeout,
			BaseURL:          cfg.Mail.BaseURL,
		},
	)

	senders := []service.ChannelSender{
		service.NewEmailChannel(a.mailer, cfg.Mail.BaseURL),
		service.NewInAppChannel(a.relay),
		service.NewPushChannel(log),
		service.NewSMSChannel(log),
	}
	a.preferenceRepo = repository.NewPreferenceRepository(db)
	a.notifications = service.NewNotificationService(
		a.notificationRepo,
		a.preferenceRepo,
		a.recipientRepo,
		senders,
		a.validate,
		a.metrics,
		log,
		cfg.Notifications,
	)
	a.digests = service.NewDigestService(a.notificationRepo, a.preferenceRepo, a.recipientRepo, a.mailer, cfg.Mail.BaseURL, log)

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Sugar().Warnw("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Sugar().Warnw("failed to close database", "error", err)
		}
	}
	if a.alerter != nil {
		a.alerter.Flush(2 * time.Second)
	}
}

func (a *app) readinessChecks() map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"postgres": a.db.PingContext}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}
