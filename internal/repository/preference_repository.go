package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
)

// PreferenceRepository persists notification preferences.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository constructs the repository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Find returns the stored preferences of a recipient, or nil when none exist.
func (r *PreferenceRepository) Find(ctx context.Context, notifiableID string, notifiableType models.NotifiableType) (*models.NotificationPreference, error) {
	const query = `SELECT notifiable_id, notifiable_type, email_enabled, in_app_enabled, push_enabled, sms_enabled,
event_settings, digest_enabled, digest_frequency, email_frequency, last_digest_at, updated_at
FROM notification_preferences WHERE notifiable_id = $1 AND notifiable_type = $2`
	var pref models.NotificationPreference
	if err := r.db.GetContext(ctx, &pref, query, notifiableID, notifiableType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}
	return &pref, nil
}

// Upsert stores preferences for a recipient.
func (r *PreferenceRepository) Upsert(ctx context.Context, pref *models.NotificationPreference) error {
	pref.UpdatedAt = time.Now().UTC()
	if pref.EventSettings == nil {
		pref.EventSettings = models.EventSettings{}
	}
	const query = `INSERT INTO notification_preferences (notifiable_id, notifiable_type, email_enabled, in_app_enabled,
push_enabled, sms_enabled, event_settings, digest_enabled, digest_frequency, email_frequency, updated_at)
VALUES (:notifiable_id, :notifiable_type, :email_enabled, :in_app_enabled, :push_enabled, :sms_enabled,
:event_settings, :digest_enabled, :digest_frequency, :email_frequency, :updated_at)
ON CONFLICT (notifiable_id, notifiable_type) DO UPDATE SET email_enabled = EXCLUDED.email_enabled,
in_app_enabled = EXCLUDED.in_app_enabled, push_enabled = EXCLUDED.push_enabled, sms_enabled = EXCLUDED.sms_enabled,
event_settings = EXCLUDED.event_settings, digest_enabled = EXCLUDED.digest_enabled,
digest_frequency = EXCLUDED.digest_frequency, email_frequency = EXCLUDED.email_frequency, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("upsert notification preferences: %w", err)
	}
	return nil
}

// MarkDigested records when the recipient's last digest went out.
func (r *PreferenceRepository) MarkDigested(ctx context.Context, notifiableID string, notifiableType models.NotifiableType, at time.Time) error {
	const query = `UPDATE notification_preferences SET last_digest_at = $1 WHERE notifiable_id = $2 AND notifiable_type = $3`
	if _, err := r.db.ExecContext(ctx, query, at, notifiableID, notifiableType); err != nil {
		return fmt.Errorf("mark digest sent: %w", err)
	}
	return nil
}
