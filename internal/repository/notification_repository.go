package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/database"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

var notificationColumns = []string{
	"id", "notifiable_id", "notifiable_type", "type", "channel", "priority", "title", "message", "data",
	"action_url", "action_text", "status", "attempts", "last_error", "read_at", "sent_at", "delivered_at",
	"failed_at", "created_at", "updated_at",
}

// NotificationRepository persists notifications.
type NotificationRepository struct {
	db   *sqlx.DB
	psql sq.StatementBuilderType
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db, psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// Create inserts a notification in its own transaction.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if n.Data == nil {
		n.Data = models.JSONMap{}
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	query, args, err := r.psql.Insert("notifications").
		Columns("id", "notifiable_id", "notifiable_type", "type", "channel", "priority", "title", "message",
			"data", "action_url", "action_text", "status", "attempts", "created_at", "updated_at").
		Values(n.ID, n.NotifiableID, n.NotifiableType, n.Type, n.Channel, n.Priority, n.Title, n.Message,
			n.Data, n.ActionURL, n.ActionText, n.Status, n.Attempts, n.CreatedAt, n.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build notification insert: %w", err)
	}
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		return nil
	})
}

// DeliveryUpdate describes the outcome of one delivery attempt.
type DeliveryUpdate struct {
	Status           models.NotificationStatus
	IncrementAttempt bool
	LastError        *string
	SentAt           *time.Time
	DeliveredAt      *time.Time
	FailedAt         *time.Time
}

// UpdateDelivery records a delivery outcome.
func (r *NotificationRepository) UpdateDelivery(ctx context.Context, id string, upd DeliveryUpdate) error {
	builder := r.psql.Update("notifications").
		Set("status", upd.Status).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})
	if upd.IncrementAttempt {
		builder = builder.Set("attempts", sq.Expr("attempts + 1"))
	}
	if upd.LastError != nil {
		builder = builder.Set("last_error", *upd.LastError)
	}
	if upd.SentAt != nil {
		builder = builder.Set("sent_at", *upd.SentAt)
	}
	if upd.DeliveredAt != nil {
		builder = builder.Set("delivered_at", *upd.DeliveredAt)
	}
	if upd.FailedAt != nil {
		builder = builder.Set("failed_at", *upd.FailedAt)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build delivery update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update notification delivery: %w", err)
	}
	return nil
}

// FindByID returns a notification.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query, args, err := r.psql.Select(notificationColumns...).From("notifications").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build notification select: %w", err)
	}
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

func applyNotificationFilter(builder sq.SelectBuilder, filter models.NotificationFilter) sq.SelectBuilder {
	builder = builder.Where(sq.Eq{"notifiable_id": filter.NotifiableID, "notifiable_type": filter.NotifiableType})
	if filter.Unread != nil {
		if *filter.Unread {
			builder = builder.Where(sq.Eq{"read_at": nil})
		} else {
			builder = builder.Where(sq.NotEq{"read_at": nil})
		}
	}
	if filter.Type != "" {
		builder = builder.Where(sq.Eq{"type": filter.Type})
	}
	if filter.Channel != "" {
		builder = builder.Where(sq.Eq{"channel": filter.Channel})
	}
	return builder
}

// List returns a recipient's notifications newest first with the total count.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	countQuery, countArgs, err := applyNotificationFilter(r.psql.Select("COUNT(*)").From("notifications"), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build notification count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	builder := applyNotificationFilter(r.psql.Select(notificationColumns...).From("notifications"), filter).
		OrderBy("created_at DESC").
		Limit(uint64(filter.PerPage)).
		Offset(uint64((filter.Page - 1) * filter.PerPage))
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build notification list: %w", err)
	}
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return rows, total, nil
}

// UnreadCount counts a recipient's unread in-app notifications.
func (r *NotificationRepository) UnreadCount(ctx context.Context, notifiableID string, notifiableType models.NotifiableType) (int, error) {
	query, args, err := r.psql.Select("COUNT(*)").From("notifications").
		Where(sq.Eq{"notifiable_id": notifiableID, "notifiable_type": notifiableType, "channel": models.ChannelInApp, "read_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build unread count: %w", err)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// SetRead sets or clears read_at for one notification owned by recipient.
func (r *NotificationRepository) SetRead(ctx context.Context, recipient models.Recipient, id string, readAt *time.Time) error {
	query, args, err := r.psql.Update("notifications").
		Set("read_at", readAt).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "notifiable_id": recipient.ID, "notifiable_type": recipient.Type}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build read update: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update notification read state: %w", err)
	}
	return requireAffected(res, "notification not found")
}

// MarkManyRead marks the given unread notifications of a recipient read.
func (r *NotificationRepository) MarkManyRead(ctx context.Context, recipient models.Recipient, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.markRead(ctx, sq.And{
		sq.Eq{"notifiable_id": recipient.ID, "notifiable_type": recipient.Type, "read_at": nil},
		sq.Eq{"id": ids},
	}, at)
}

// MarkAllRead marks every unread notification of a recipient read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient models.Recipient, at time.Time) (int64, error) {
	return r.markRead(ctx, sq.Eq{"notifiable_id": recipient.ID, "notifiable_type": recipient.Type, "read_at": nil}, at)
}

func (r *NotificationRepository) markRead(ctx context.Context, where sq.Sqlizer, at time.Time) (int64, error) {
	query, args, err := r.psql.Update("notifications").
		Set("read_at", at).
		Set("updated_at", at).
		Where(where).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build mark read: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes a notification owned by recipient.
func (r *NotificationRepository) Delete(ctx context.Context, recipient models.Recipient, id string) error {
	query, args, err := r.psql.Delete("notifications").
		Where(sq.Eq{"id": id, "notifiable_id": recipient.ID, "notifiable_type": recipient.Type}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build notification delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return requireAffected(res, "notification not found")
}

// Retryable returns pending or failed notifications inside the retry window, oldest first.
func (r *NotificationRepository) Retryable(ctx context.Context, window models.RetryWindow) ([]models.Notification, error) {
	query, args, err := r.psql.Select(notificationColumns...).From("notifications").
		Where(sq.Eq{"status": []models.NotificationStatus{models.NotificationPending, models.NotificationFailed}}).
		Where(sq.Lt{"attempts": window.MaxAttempts}).
		Where(sq.Lt{"created_at": window.CreatedBefore}).
		Where(sq.Gt{"created_at": window.CreatedAfter}).
		OrderBy("created_at ASC").
		Limit(uint64(window.Limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build retryable select: %w", err)
	}
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list retryable notifications: %w", err)
	}
	return rows, nil
}

// QueuedEmails returns queued email notifications ordered by recipient then age.
func (r *NotificationRepository) QueuedEmails(ctx context.Context, limit int) ([]models.Notification, error) {
	query, args, err := r.psql.Select(notificationColumns...).From("notifications").
		Where(sq.Eq{"status": models.NotificationQueued, "channel": models.ChannelEmail}).
		OrderBy("notifiable_type ASC", "notifiable_id ASC", "created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build queued select: %w", err)
	}
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list queued notifications: %w", err)
	}
	return rows, nil
}

// MarkSent marks a batch of notifications sent.
func (r *NotificationRepository) MarkSent(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := r.psql.Update("notifications").
		Set("status", models.NotificationSent).
		Set("sent_at", at).
		Set("updated_at", at).
		Set("attempts", sq.Expr("attempts + 1")).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark sent: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark notifications sent: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, message string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return nil
}
