// Package alerting forwards critical escalations to Sentry.
package alerting

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/pkg/logger"
)

// Alerter raises an incident that needs human attention.
type Alerter interface {
	Critical(ctx context.Context, message string, err error, tags map[string]string)
}

// SentryAlerter logs the escalation at error level and captures it in Sentry when a DSN is configured.
type SentryAlerter struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// New initialises the Sentry client. An empty DSN yields a log-only alerter.
func New(dsn, environment string, log *zap.Logger) (*SentryAlerter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &SentryAlerter{logger: log}
	if dsn == "" {
		return a, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, err
	}
	a.hub = sentry.NewHub(client, sentry.NewScope())
	return a, nil
}

// Critical records a critical escalation.
func (a *SentryAlerter) Critical(ctx context.Context, message string, err error, tags map[string]string) {
	fields := make([]zap.Field, 0, len(tags)+1)
	for k, v := range tags {
		fields = append(fields, zap.String(k, v))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	a.logger.Error(message, logger.Critical(fields...)...)

	if a.hub == nil {
		return
	}
	hub := a.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTag("severity", logger.SeverityCritical)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if err != nil {
			scope.SetExtra("error", err.Error())
		}
	})
	hub.CaptureMessage(message)
}

// Flush waits for buffered events before shutdown.
func (a *SentryAlerter) Flush(timeout time.Duration) bool {
	if a.hub == nil {
		return true
	}
	return a.hub.Flush(timeout)
}
