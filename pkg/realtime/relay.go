package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is the envelope published on a channel.
type Event struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Relay publishes events to named channels.
type Relay interface {
	Trigger(ctx context.Context, channels []string, event string, payload interface{}) error
}

// RedisRelay fans events out through Redis pub/sub so every API replica's hub receives them.
type RedisRelay struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisRelay builds a relay publishing under prefix.
func NewRedisRelay(client *redis.Client, prefix string, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "aidly:realtime"
	}
	return &RedisRelay{client: client, prefix: strings.TrimRight(prefix, ":"), logger: logger}
}

// Topic maps a channel name onto its Redis pub/sub topic.
func (r *RedisRelay) Topic(channel string) string {
	return r.prefix + ":" + channel
}

// Pattern is the PSUBSCRIBE pattern covering every channel.
func (r *RedisRelay) Pattern() string {
	return r.prefix + ":*"
}

// Trigger publishes payload on each channel. Publishing is fire-and-forget: subscribers that are offline miss the event.
func (r *RedisRelay) Trigger(ctx context.Context, channels []string, event string, payload interface{}) error {
	if r.client == nil {
		return fmt.Errorf("realtime relay not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode realtime payload: %w", err)
	}
	var firstErr error
	for _, channel := range channels {
		if !ValidChannel(channel) {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid channel name %q", channel)
			}
			continue
		}
		msg, err := json.Marshal(Event{Channel: channel, Event: event, Data: data})
		if err != nil {
			return fmt.Errorf("encode realtime event: %w", err)
		}
		if err := r.client.Publish(ctx, r.Topic(channel), msg).Err(); err != nil {
			r.logger.Warn("realtime publish failed", zap.String("channel", channel), zap.String("event", event), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("publish %s: %w", channel, err)
			}
		}
	}
	return firstErr
}
