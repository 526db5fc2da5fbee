package service

import (
	"context"
	"errors"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/mail"
	"github.com/aidly/aidly-api/pkg/realtime"
)

// EventNotificationCreated is the realtime event name for new notifications.
const EventNotificationCreated = "notification.created"

// Delivery is one notification on its way to its recipient.
type Delivery struct {
	Notification *models.Notification
	Recipient    models.Recipient
	Broadcast    bool
}

// ChannelSender delivers notifications over one medium.
type ChannelSender interface {
	Channel() models.Channel
	Send(ctx context.Context, d Delivery) error
}

// EmailChannel renders the notification markdown into the shared layout and mails it.
type EmailChannel struct {
	sender   mail.Sender
	markdown *mail.Markdown
	baseURL  string
}

// NewEmailChannel constructs the email channel. baseURL prefixes relative action links.
func NewEmailChannel(sender mail.Sender, baseURL string) *EmailChannel {
	return &EmailChannel{sender: sender, markdown: mail.NewMarkdown(), baseURL: strings.TrimRight(baseURL, "/")}
}

// Channel implements ChannelSender.
func (c *EmailChannel) Channel() models.Channel { return models.ChannelEmail }

// Send implements ChannelSender.
func (c *EmailChannel) Send(ctx context.Context, d Delivery) error {
	if d.Recipient.Email == "" {
		return errors.New("recipient has no email address")
	}
	n := d.Notification
	fragment, err := c.markdown.ToHTML(n.Message)
	if err != nil {
		fragment = "<p>" + html.EscapeString(n.Message) + "</p>"
	}
	actionText := ""
	if n.ActionText != nil {
		actionText = *n.ActionText
	}
	return c.sender.Send(ctx, mail.Message{
		To:       d.Recipient.Email,
		Subject:  n.Title,
		HTMLBody: mail.Layout(n.Title, fragment, c.absoluteURL(n.ActionURL), actionText),
		TextBody: n.Message,
	})
}

func (c *EmailChannel) absoluteURL(link *string) string {
	if link == nil || *link == "" {
		return ""
	}
	if strings.HasPrefix(*link, "http://") || strings.HasPrefix(*link, "https://") || c.baseURL == "" {
		return *link
	}
	return c.baseURL + "/" + strings.TrimLeft(*link, "/")
}

// InAppChannel publishes the notification on the recipient's realtime channels.
type InAppChannel struct {
	relay realtime.Relay
}

// NewInAppChannel constructs the in-app channel.
func NewInAppChannel(relay realtime.Relay) *InAppChannel {
	return &InAppChannel{relay: relay}
}

// Channel implements ChannelSender.
func (c *InAppChannel) Channel() models.Channel { return models.ChannelInApp }

// Send implements ChannelSender. The stored row is the in-app record, so
// without a relay there is nothing further to do.
func (c *InAppChannel) Send(ctx context.Context, d Delivery) error {
	if c.relay == nil {
		return nil
	}
	return c.relay.Trigger(ctx, InAppChannels(d), EventNotificationCreated, d.Notification)
}

// InAppChannels lists the realtime channels a delivery is published on.
func InAppChannels(d Delivery) []string {
	var channels []string
	switch d.Recipient.Type {
	case models.NotifiableClient:
		channels = append(channels, realtime.ClientChannel(d.Recipient.ID))
	default:
		channels = append(channels, realtime.UserChannel(d.Recipient.ID))
	}
	if d.Recipient.DepartmentID != nil && *d.Recipient.DepartmentID != "" {
		channels = append(channels, realtime.DepartmentChannel(*d.Recipient.DepartmentID))
	}
	if d.Broadcast {
		channels = append(channels, realtime.GlobalChannel)
	}
	return channels
}

// LogChannel stands in for providers that are not integrated yet.
type LogChannel struct {
	channel models.Channel
	logger  *zap.Logger
}

// NewPushChannel returns the push stub.
func NewPushChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{channel: models.ChannelPush, logger: logger}
}

// NewSMSChannel returns the SMS stub.
func NewSMSChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{channel: models.ChannelSMS, logger: logger}
}

// Channel implements ChannelSender.
func (c *LogChannel) Channel() models.Channel { return c.channel }

// Send implements ChannelSender.
func (c *LogChannel) Send(_ context.Context, d Delivery) error {
	if c.logger != nil {
		c.logger.Sugar().Infow("notification delivered to stub channel",
			"channel", c.channel,
			"notification_id", d.Notification.ID,
			"recipient_id", d.Recipient.ID,
			"title", d.Notification.Title,
		)
	}
	return nil
}
