package service

import (
	"time"

	"github.com/aidly/aidly-api/internal/models"
)

// DefaultPreference is what a recipient without a stored row gets: in-app and
// email on, immediate email, no digest.
func DefaultPreference(id string, kind models.NotifiableType) *models.NotificationPreference {
	return &models.NotificationPreference{
		NotifiableID:    id,
		NotifiableType:  kind,
		EmailEnabled:    true,
		InAppEnabled:    true,
		EventSettings:   models.EventSettings{},
		DigestFrequency: "daily",
		EmailFrequency:  models.EmailImmediate,
	}
}

// ChannelEnabled reports whether pref allows delivering eventType over channel.
// The channel switch must be on; a per-event setting can only narrow it.
func ChannelEnabled(pref *models.NotificationPreference, eventType string, channel models.Channel) bool {
	if pref == nil {
		return channel == models.ChannelInApp || channel == models.ChannelEmail
	}
	var on bool
	switch channel {
	case models.ChannelEmail:
		on = pref.EmailEnabled
	case models.ChannelInApp:
		on = pref.InAppEnabled
	case models.ChannelPush:
		on = pref.PushEnabled
	case models.ChannelSMS:
		on = pref.SMSEnabled
	}
	if !on {
		return false
	}
	if overrides, ok := pref.EventSettings[eventType]; ok {
		if enabled, ok := overrides[channel]; ok {
			return enabled
		}
	}
	return true
}

// ResolveChannels lists the channels pref enables for eventType in fan-out order.
func ResolveChannels(pref *models.NotificationPreference, eventType string) []models.Channel {
	var out []models.Channel
	for _, channel := range models.Channels() {
		if ChannelEnabled(pref, eventType, channel) {
			out = append(out, channel)
		}
	}
	return out
}

// DigestApplies reports whether an email for this recipient is parked for the digest.
func DigestApplies(pref *models.NotificationPreference, channel models.Channel) bool {
	if pref == nil || channel != models.ChannelEmail {
		return false
	}
	return pref.DigestEnabled && pref.EmailFrequency != "" && pref.EmailFrequency != models.EmailImmediate
}

// digestGrace absorbs scheduler jitter so a daily digest sent at 08:00:03 is due again at 08:00:01.
const digestGrace = 10 * time.Minute

// DigestInterval is the minimum spacing between two digests for pref. A weekly
// digest frequency wins; otherwise the email frequency decides.
func DigestInterval(pref *models.NotificationPreference) time.Duration {
	if pref == nil {
		return 24 * time.Hour
	}
	if pref.DigestFrequency == "weekly" {
		return 7 * 24 * time.Hour
	}
	if pref.EmailFrequency == models.EmailHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// DigestDue reports whether a recipient's next digest may be sent at now.
func DigestDue(pref *models.NotificationPreference, now time.Time) bool {
	if pref == nil || pref.LastDigestAt == nil {
		return true
	}
	return now.Add(digestGrace).Sub(*pref.LastDigestAt) >= DigestInterval(pref)
}
