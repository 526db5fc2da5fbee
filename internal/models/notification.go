package models

import (
	"database/sql/driver"
	"time"
)

// NotifiableType identifies what kind of party receives a notification.
type NotifiableType string

const (
	NotifiableUser   NotifiableType = "user"
	NotifiableClient NotifiableType = "client"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

// Channels lists every delivery medium in fan-out order.
func Channels() []Channel {
	return []Channel{ChannelInApp, ChannelEmail, ChannelPush, ChannelSMS}
}

// Valid reports whether c names a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelInApp, ChannelPush, ChannelSMS:
		return true
	}
	return false
}

// NotificationPriority ranks how prominently a notification is shown.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// NotificationStatus is the delivery state of a notification.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationQueued    NotificationStatus = "queued"
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
	NotificationSkipped   NotificationStatus = "skipped"
)

// Notification is one event addressed to one recipient over one channel.
type Notification struct {
	ID             string               `db:"id" json:"id"`
	NotifiableID   string               `db:"notifiable_id" json:"notifiable_id"`
	NotifiableType NotifiableType       `db:"notifiable_type" json:"notifiable_type"`
	Type           string               `db:"type" json:"type"`
	Channel        Channel              `db:"channel" json:"channel"`
	Priority       NotificationPriority `db:"priority" json:"priority"`
	Title          string               `db:"title" json:"title"`
	Message        string               `db:"message" json:"message"`
	Data           JSONMap              `db:"data" json:"data"`
	ActionURL      *string              `db:"action_url" json:"action_url,omitempty"`
	ActionText     *string              `db:"action_text" json:"action_text,omitempty"`
	Status         NotificationStatus   `db:"status" json:"status"`
	Attempts       int                  `db:"attempts" json:"attempts"`
	LastError      *string              `db:"last_error" json:"last_error,omitempty"`
	ReadAt         *time.Time           `db:"read_at" json:"read_at,omitempty"`
	SentAt         *time.Time           `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt    *time.Time           `db:"delivered_at" json:"delivered_at,omitempty"`
	FailedAt       *time.Time           `db:"failed_at" json:"failed_at,omitempty"`
	CreatedAt      time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `db:"updated_at" json:"updated_at"`
}

// IsRead reports whether the recipient has opened the notification.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Recipient is the addressee of an event.
type Recipient struct {
	ID           string         `json:"id" validate:"required"`
	Type         NotifiableType `json:"type" validate:"required,oneof=user client"`
	Name         string         `json:"name,omitempty"`
	Email        string         `json:"email,omitempty"`
	DepartmentID *string        `json:"department_id,omitempty"`
}

// NotificationEvent is a domain event to be turned into notifications.
type NotificationEvent struct {
	Type         string                 `json:"type" validate:"required,max=100"`
	Recipient    Recipient              `json:"recipient" validate:"required"`
	Channel      Channel                `json:"channel,omitempty" validate:"omitempty,oneof=email in_app push sms"`
	Priority     NotificationPriority   `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	Title        string                 `json:"title" validate:"required,max=255"`
	Message      string                 `json:"message" validate:"required"`
	Data         map[string]interface{} `json:"data,omitempty"`
	ActionURL    string                 `json:"action_url,omitempty" validate:"omitempty,max=2048"`
	ActionText   string                 `json:"action_text,omitempty" validate:"omitempty,max=100"`
	DepartmentID string                 `json:"department_id,omitempty"`
	Broadcast    bool                   `json:"broadcast,omitempty"`
}

// EmailFrequency controls how quickly email notifications are sent.
type EmailFrequency string

const (
	EmailImmediate EmailFrequency = "immediate"
	EmailHourly    EmailFrequency = "hourly"
	EmailDaily     EmailFrequency = "daily"
)

// EventSettings holds per-event-type channel overrides.
type EventSettings map[string]map[Channel]bool

// Value marshals the settings for persistence.
func (s EventSettings) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return marshalJSON(s)
}

// Scan unmarshals a jsonb column.
func (s *EventSettings) Scan(value interface{}) error {
	*s = EventSettings{}
	return scanJSON(value, s)
}

// NotificationPreference is a recipient's channel and digest settings.
type NotificationPreference struct {
	NotifiableID    string         `db:"notifiable_id" json:"notifiable_id"`
	NotifiableType  NotifiableType `db:"notifiable_type" json:"notifiable_type"`
	EmailEnabled    bool           `db:"email_enabled" json:"email_enabled"`
	InAppEnabled    bool           `db:"in_app_enabled" json:"in_app_enabled"`
	PushEnabled     bool           `db:"push_enabled" json:"push_enabled"`
	SMSEnabled      bool           `db:"sms_enabled" json:"sms_enabled"`
	EventSettings   EventSettings  `db:"event_settings" json:"event_settings"`
	DigestEnabled   bool           `db:"digest_enabled" json:"digest_enabled"`
	DigestFrequency string         `db:"digest_frequency" json:"digest_frequency"`
	EmailFrequency  EmailFrequency `db:"email_frequency" json:"email_frequency"`
	LastDigestAt    *time.Time     `db:"last_digest_at" json:"last_digest_at,omitempty"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// NotificationFilter scopes notification listings.
type NotificationFilter struct {
	NotifiableID   string
	NotifiableType NotifiableType
	Unread         *bool
	Type           string
	Channel        Channel
	Page           int
	PerPage        int
}

// RetryWindow selects notifications eligible for redelivery.
type RetryWindow struct {
	MaxAttempts   int
	CreatedBefore time.Time
	CreatedAfter  time.Time
	Limit         int
}
