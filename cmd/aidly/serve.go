package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidly/aidly-api/internal/events"
	"github.com/aidly/aidly-api/internal/handler"
	"github.com/aidly/aidly-api/internal/middleware"
	"github.com/aidly/aidly-api/internal/scheduler"
	"github.com/aidly/aidly-api/internal/server"
	"github.com/aidly/aidly-api/pkg/realtime"
)

func newServeCommand() *cobra.Command {
	var withoutJobs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(withoutJobs)
		},
	}
	cmd.Flags().BoolVar(&withoutJobs, "without-jobs", false, "Serve the API without periodic jobs or the ticket event consumer")
	return cmd
}

func serve(withoutJobs bool) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	a, err := newApp(cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	background := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				log.Sugar().Errorw("background worker stopped", "worker", name, "error", err)
			}
		}()
	}

	a.aggregations.Start(ctx)
	defer a.aggregations.Stop()
	a.schedules.Start(ctx)
	defer a.schedules.Stop()

	authorizer := realtime.NewAuthorizer(cfg.Realtime.AppKey, cfg.Realtime.AppSecret)
	hub := realtime.NewHub(a.relay, authorizer, cfg.Realtime.SendBuffer, cfg.CORS.AllowedOrigins, log)
	background("realtime-hub", hub.Run)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go limiter.Cleanup(ctx.Done(), time.Minute)
	}

	if !withoutJobs {
		jobs, err := scheduler.NewManager(log)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if cfg.Aggregation.Enabled {
			if err := jobs.RegisterAggregationJobs(a.aggregations, cfg.Aggregation.DailyCron, cfg.Aggregation.HourlyCron); err != nil {
				return fmt.Errorf("failed to register aggregation jobs: %w", err)
			}
		}
		if err := jobs.RegisterReportJobs(a.schedules, cfg.Reports.DispatchInterval); err != nil {
			return fmt.Errorf("failed to register report jobs: %w", err)
		}
		if err := jobs.RegisterNotificationJobs(a.notifications, a.digests, cfg.Notifications.RetryInterval, cfg.Notifications.DigestCron); err != nil {
			return fmt.Errorf("failed to register notification jobs: %w", err)
		}
		jobs.Start()
		defer jobs.Stop() //nolint:errcheck

		if cfg.Kafka.Enabled {
			consumer := events.NewConsumer(cfg.Kafka, a.notifications, log)
			background("ticket-events", consumer.Run)
		}
	}

	router := server.NewRouter(server.Options{
		Config:      cfg,
		Logger:      log,
		Metrics:     a.metrics,
		RateLimiter: limiter,
	}, server.Handlers{
		Notifications: handler.NewNotificationHandler(a.notifications, a.validate),
		Reports:       handler.NewReportHandler(a.reports, a.schedules, a.validate),
		Dashboard:     handler.NewDashboardHandler(a.dashboard),
		Analytics:     handler.NewAnalyticsHandler(a.analytics, a.aggregation, a.aggregations, a.validate),
		Realtime:      handler.NewRealtimeHandler(authorizer, hub, a.recipientRepo, a.validate),
		Metrics:       handler.NewMetricsHandler(a.metrics, a.readinessChecks()),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Sugar().Infow("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Sugar().Errorw("server forced to shutdown", "error", err)
		return err
	}
	stop()
	wg.Wait()
	log.Sugar().Infow("server exited gracefully")
	return nil
}
