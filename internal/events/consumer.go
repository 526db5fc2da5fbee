package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/config"
)

const handleTimeout = 30 * time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type dispatcher interface {
	NotifyAllChannels(ctx context.Context, event models.NotificationEvent) ([]models.Notification, error)
}

// Consumer reads ticket events from Kafka and fans them out as notifications.
type Consumer struct {
	reader     messageReader
	dispatcher dispatcher
	logger     *zap.SugaredLogger
}

// NewConsumer creates a consumer-group reader on the ticket events topic.
func NewConsumer(cfg config.KafkaConfig, d dispatcher, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(reader, d, logger)
}

func newConsumer(reader messageReader, d dispatcher, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, dispatcher: d, logger: logger.Sugar().With("component", "ticket_events")}
}

// Run consumes until ctx is cancelled. Bad messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warnw("failed to close kafka reader", "error", err)
		}
	}()

	c.logger.Infow("ticket event consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Infow("ticket event consumer stopping")
			return nil
		}
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Infow("ticket event consumer stopping")
				return nil
			}
			c.logger.Warnw("failed to read ticket event", "error", err)
			continue
		}

		handleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleTimeout)
		if err := c.handle(handleCtx, msg); err != nil {
			c.logger.Errorw("failed to handle ticket event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
		cancel()
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var event TicketEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode ticket event: %w", err)
	}

	notifications := Translate(event)
	if len(notifications) == 0 {
		c.logger.Debugw("ticket event produced no notifications", "type", event.Type, "ticket_id", event.TicketID)
		return nil
	}

	var failed int
	for _, n := range notifications {
		if _, err := c.dispatcher.NotifyAllChannels(ctx, n); err != nil {
			failed++
			c.logger.Warnw("failed to notify recipient", "type", n.Type, "recipient_id", n.Recipient.ID, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d notifications failed for %s", failed, len(notifications), event.Type)
	}
	return nil
}
