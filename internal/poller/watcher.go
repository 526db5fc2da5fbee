// Package poller implements poll-and-diff watching of a monotonically reported total,
// such as the unread notification count shown in the agent header.
package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is how often the frontend refreshes unread counts.
const DefaultInterval = 30 * time.Second

// FetchFunc returns the current total.
type FetchFunc func(ctx context.Context) (int, error)

// IncreaseFunc is called once per tick in which the total grew.
type IncreaseFunc func(delta, total int)

// Watcher polls Fetch and reports increases of the returned total.
type Watcher struct {
	Interval   time.Duration
	Fetch      FetchFunc
	OnIncrease IncreaseFunc
	Logger     *zap.Logger

	total  int
	seeded bool
}

// Total returns the last known total.
func (w *Watcher) Total() int { return w.total }

// Run polls until ctx is cancelled. The first successful fetch seeds the baseline
// without firing. A failed fetch keeps the previous total.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Fetch == nil {
		return errors.New("poller: fetch function is required")
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w.tick(ctx, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick(ctx, logger)
		}
	}
}

func (w *Watcher) tick(ctx context.Context, logger *zap.Logger) {
	total, err := w.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Sugar().Warnw("poll failed", "error", err, "total", w.total)
		}
		return
	}
	if !w.seeded {
		w.total, w.seeded = total, true
		return
	}
	previous := w.total
	w.total = total
	if total > previous && w.OnIncrease != nil {
		w.OnIncrease(total-previous, total)
	}
}
