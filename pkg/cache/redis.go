package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aidly/aidly-api/pkg/config"
)

// Key families shared by the aggregator, the dashboard readers and the realtime counters.
const (
	MetricsPattern   = "metrics:*"
	DashboardPattern = "dashboard:*"

	RealtimeOpenTickets       = "realtime:open_tickets"
	RealtimeUnassignedTickets = "realtime:unassigned_tickets"
	RealtimeOverdueTickets    = "realtime:overdue_tickets"
	RealtimeTodayTickets      = "realtime:today_tickets"
)

// RealtimeCounters lists the counter keys dropped after every aggregation.
func RealtimeCounters() []string {
	return []string{
		RealtimeOpenTickets,
		RealtimeUnassignedTickets,
		RealtimeOverdueTickets,
		RealtimeTodayTickets,
	}
}

// NewRedis returns a configured Redis client.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
