package dto

import "github.com/aidly/aidly-api/internal/models"

// MarkReadRequest captures POST /notifications/mark-read payload.
type MarkReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

// BulkUpdateResponse reports how many rows a bulk operation touched.
type BulkUpdateResponse struct {
	Updated int64 `json:"updated"`
}

// UnreadCountResponse is the payload of GET /notifications/unread-count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// UpdatePreferencesRequest captures PUT /notification-preferences payload.
type UpdatePreferencesRequest struct {
	EmailEnabled    bool                  `json:"email_enabled"`
	InAppEnabled    bool                  `json:"in_app_enabled"`
	PushEnabled     bool                  `json:"push_enabled"`
	SMSEnabled      bool                  `json:"sms_enabled"`
	EventSettings   models.EventSettings  `json:"event_settings"`
	DigestEnabled   bool                  `json:"digest_enabled"`
	DigestFrequency string                `json:"digest_frequency" validate:"omitempty,oneof=daily weekly"`
	EmailFrequency  models.EmailFrequency `json:"email_frequency" validate:"omitempty,oneof=immediate hourly daily"`
}

// Preference applies the request to a recipient.
func (r UpdatePreferencesRequest) Preference(recipient models.Recipient) *models.NotificationPreference {
	return &models.NotificationPreference{
		NotifiableID:    recipient.ID,
		NotifiableType:  recipient.Type,
		EmailEnabled:    r.EmailEnabled,
		InAppEnabled:    r.InAppEnabled,
		PushEnabled:     r.PushEnabled,
		SMSEnabled:      r.SMSEnabled,
		EventSettings:   r.EventSettings,
		DigestEnabled:   r.DigestEnabled,
		DigestFrequency: r.DigestFrequency,
		EmailFrequency:  r.EmailFrequency,
	}
}

// RealtimeAuthRequest captures POST /realtime/auth payload.
type RealtimeAuthRequest struct {
	SocketID    string `json:"socket_id" form:"socket_id" validate:"required"`
	ChannelName string `json:"channel_name" form:"channel_name" validate:"required"`
}
