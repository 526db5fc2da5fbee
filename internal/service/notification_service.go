package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/repository"
	"github.com/aidly/aidly-api/pkg/config"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	UpdateDelivery(ctx context.Context, id string, upd repository.DeliveryUpdate) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	UnreadCount(ctx context.Context, notifiableID string, notifiableType models.NotifiableType) (int, error)
	SetRead(ctx context.Context, recipient models.Recipient, id string, readAt *time.Time) error
	MarkManyRead(ctx context.Context, recipient models.Recipient, ids []string, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, recipient models.Recipient, at time.Time) (int64, error)
	Delete(ctx context.Context, recipient models.Recipient, id string) error
	Retryable(ctx context.Context, window models.RetryWindow) ([]models.Notification, error)
}

type preferenceStore interface {
	Find(ctx context.Context, notifiableID string, notifiableType models.NotifiableType) (*models.NotificationPreference, error)
	Upsert(ctx context.Context, pref *models.NotificationPreference) error
}

type recipientDirectory interface {
	Find(ctx context.Context, id string, kind models.NotifiableType) (*models.Recipient, error)
}

// RetrySummary reports a ProcessQueue pass.
type RetrySummary struct {
	Attempted int      `json:"attempted"`
	Delivered int      `json:"delivered"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// NotificationService turns domain events into notification rows and delivers them.
type NotificationService struct {
	store      notificationStore
	prefs      preferenceStore
	recipients recipientDirectory
	channels   map[models.Channel]ChannelSender
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        config.NotificationsConfig
	now        func() time.Time
}

// NewNotificationService wires the dispatcher with its delivery channels.
func NewNotificationService(store notificationStore, prefs preferenceStore, recipients recipientDirectory, senders []ChannelSender, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg config.NotificationsConfig) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryMinAge <= 0 {
		cfg.RetryMinAge = 5 * time.Minute
	}
	if cfg.RetryMaxAge <= 0 {
		cfg.RetryMaxAge = 24 * time.Hour
	}
	channels := make(map[models.Channel]ChannelSender, len(senders))
	for _, sender := range senders {
		channels[sender.Channel()] = sender
	}
	return &NotificationService{
		store:      store,
		prefs:      prefs,
		recipients: recipients,
		channels:   channels,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Notify creates one notification on the event's channel (in-app when unset)
// and delivers it unless preferences skip or park it. Delivery failures are
// recorded on the row, never returned.
func (s *NotificationService) Notify(ctx context.Context, event models.NotificationEvent) (*models.Notification, error) {
	if err := s.validator.Struct(event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification event")
	}
	if event.Channel == "" {
		event.Channel = models.ChannelInApp
	}
	recipient := s.resolveRecipient(ctx, event)
	pref := s.preferences(ctx, recipient)
	return s.notify(ctx, event, recipient, pref)
}

// NotifyAllChannels creates one notification per channel the recipient has
// enabled for the event type.
func (s *NotificationService) NotifyAllChannels(ctx context.Context, event models.NotificationEvent) ([]models.Notification, error) {
	if err := s.validator.Struct(event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification event")
	}
	recipient := s.resolveRecipient(ctx, event)
	pref := s.preferences(ctx, recipient)

	channels := ResolveChannels(pref, event.Type)
	out := make([]models.Notification, 0, len(channels))
	for _, channel := range channels {
		ev := event
		ev.Channel = channel
		n, err := s.notify(ctx, ev, recipient, pref)
		if err != nil {
			return out, err
		}
		out = append(out, *n)
	}
	return out, nil
}

func (s *NotificationService) notify(ctx context.Context, event models.NotificationEvent, recipient models.Recipient, pref *models.NotificationPreference) (*models.Notification, error) {
	n := &models.Notification{
		NotifiableID:   recipient.ID,
		NotifiableType: recipient.Type,
		Type:           event.Type,
		Channel:        event.Channel,
		Priority:       event.Priority,
		Title:          event.Title,
		Message:        event.Message,
		Data:           models.JSONMap(event.Data),
		Status:         models.NotificationPending,
	}
	if event.ActionURL != "" {
		n.ActionURL = &event.ActionURL
	}
	if event.ActionText != "" {
		n.ActionText = &event.ActionText
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}

	switch {
	case !ChannelEnabled(pref, event.Type, event.Channel):
		s.setStatus(ctx, n, models.NotificationSkipped)
	case DigestApplies(pref, event.Channel):
		s.setStatus(ctx, n, models.NotificationQueued)
	default:
		s.deliver(ctx, Delivery{Notification: n, Recipient: recipient, Broadcast: event.Broadcast})
	}
	return n, nil
}

func (s *NotificationService) setStatus(ctx context.Context, n *models.Notification, status models.NotificationStatus) {
	n.Status = status
	if err := s.store.UpdateDelivery(ctx, n.ID, repository.DeliveryUpdate{Status: status}); err != nil {
		s.logger.Sugar().Errorw("failed to update notification status", "notification_id", n.ID, "status", status, "error", err)
	}
	s.metrics.ObserveNotification(n.Channel, status)
}

// deliver attempts one delivery and records the outcome on the row. It reports
// whether the delivery succeeded.
func (s *NotificationService) deliver(ctx context.Context, d Delivery) bool {
	n := d.Notification
	now := s.now().UTC()

	var err error
	if sender, ok := s.channels[n.Channel]; ok {
		err = sender.Send(ctx, d)
	} else {
		err = errors.New("no sender registered for channel " + string(n.Channel))
	}

	var upd repository.DeliveryUpdate
	if err != nil {
		message := err.Error()
		upd = repository.DeliveryUpdate{
			Status:           models.NotificationFailed,
			IncrementAttempt: true,
			LastError:        &message,
			FailedAt:         &now,
		}
		n.Attempts++
		n.LastError = &message
		n.FailedAt = &now
		s.logger.Sugar().Warnw("notification delivery failed",
			"notification_id", n.ID,
			"channel", n.Channel,
			"recipient_id", n.NotifiableID,
			"attempts", n.Attempts,
			"error", err,
		)
	} else {
		upd = repository.DeliveryUpdate{Status: models.NotificationSent, SentAt: &now}
		if n.Channel == models.ChannelInApp {
			upd.Status = models.NotificationDelivered
			upd.DeliveredAt = &now
			n.DeliveredAt = &now
		}
		n.SentAt = &now
	}
	n.Status = upd.Status
	if uerr := s.store.UpdateDelivery(context.WithoutCancel(ctx), n.ID, upd); uerr != nil {
		s.logger.Sugar().Errorw("failed to record notification delivery", "notification_id", n.ID, "error", uerr)
	}
	s.metrics.ObserveNotification(n.Channel, n.Status)
	return err == nil
}

// resolveRecipient fills contact details the event did not carry from the directory.
func (s *NotificationService) resolveRecipient(ctx context.Context, event models.NotificationEvent) models.Recipient {
	recipient := event.Recipient
	if event.DepartmentID != "" {
		dept := event.DepartmentID
		recipient.DepartmentID = &dept
	}
	if s.recipients == nil || (recipient.Email != "" && recipient.DepartmentID != nil) {
		return recipient
	}
	found, err := s.recipients.Find(ctx, recipient.ID, recipient.Type)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve notification recipient", "recipient_id", recipient.ID, "type", recipient.Type, "error", err)
		return recipient
	}
	if recipient.Email == "" {
		recipient.Email = found.Email
	}
	if recipient.Name == "" {
		recipient.Name = found.Name
	}
	if recipient.DepartmentID == nil {
		recipient.DepartmentID = found.DepartmentID
	}
	return recipient
}

// preferences loads a recipient's snapshot, falling back to the defaults.
func (s *NotificationService) preferences(ctx context.Context, recipient models.Recipient) *models.NotificationPreference {
	if s.prefs == nil {
		return DefaultPreference(recipient.ID, recipient.Type)
	}
	pref, err := s.prefs.Find(ctx, recipient.ID, recipient.Type)
	if err != nil {
		s.logger.Sugar().Warnw("failed to load notification preferences", "recipient_id", recipient.ID, "error", err)
	}
	if pref == nil {
		return DefaultPreference(recipient.ID, recipient.Type)
	}
	return pref
}

// ProcessQueue redelivers pending and failed notifications inside the retry
// window. Each item is attempted independently.
func (s *NotificationService) ProcessQueue(ctx context.Context) (RetrySummary, error) {
	now := s.now().UTC()
	rows, err := s.store.Retryable(ctx, models.RetryWindow{
		MaxAttempts:   s.cfg.RetryMaxAttempts,
		CreatedBefore: now.Add(-s.cfg.RetryMinAge),
		CreatedAfter:  now.Add(-s.cfg.RetryMaxAge),
		Limit:         100,
	})
	if err != nil {
		return RetrySummary{}, err
	}

	var summary RetrySummary
	for i := range rows {
		if ctx.Err() != nil {
			break
		}
		n := &rows[i]
		summary.Attempted++
		recipient := s.resolveRecipient(ctx, models.NotificationEvent{Recipient: models.Recipient{ID: n.NotifiableID, Type: n.NotifiableType}})
		if s.deliver(ctx, Delivery{Notification: n, Recipient: recipient}) {
			summary.Delivered++
			continue
		}
		summary.Failed++
		if n.LastError != nil {
			summary.Errors = append(summary.Errors, n.ID+": "+*n.LastError)
		}
	}
	if summary.Attempted > 0 {
		s.logger.Sugar().Infow("notification retry pass finished", "attempted", summary.Attempted, "delivered", summary.Delivered, "failed", summary.Failed)
	}
	return summary, nil
}

// List returns a recipient's notifications with pagination metadata.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	if filter.NotifiableID == "" || filter.NotifiableType == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "notifiable_id and notifiable_type are required")
	}
	filter.Page, filter.PerPage = models.NormalizePage(filter.Page, filter.PerPage, 100)
	rows, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	lastPage := (total + filter.PerPage - 1) / filter.PerPage
	if lastPage < 1 {
		lastPage = 1
	}
	return rows, &models.Pagination{Page: filter.Page, PerPage: filter.PerPage, Total: total, LastPage: lastPage}, nil
}

// UnreadCount counts unread in-app notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, recipient models.Recipient) (int, error) {
	count, err := s.store.UnreadCount(ctx, recipient.ID, recipient.Type)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one notification read.
func (s *NotificationService) MarkRead(ctx context.Context, recipient models.Recipient, id string) (*models.Notification, error) {
	now := s.now().UTC()
	return s.setRead(ctx, recipient, id, &now)
}

// MarkUnread clears the read marker of one notification.
func (s *NotificationService) MarkUnread(ctx context.Context, recipient models.Recipient, id string) (*models.Notification, error) {
	return s.setRead(ctx, recipient, id, nil)
}

// setRead only touches rows owned by recipient; anything else reads as not found.
func (s *NotificationService) setRead(ctx context.Context, recipient models.Recipient, id string, at *time.Time) (*models.Notification, error) {
	if err := s.store.SetRead(ctx, recipient, id, at); err != nil {
		return nil, wrapStoreError(err, "failed to update notification")
	}
	return s.store.FindByID(ctx, id)
}

// MarkManyRead marks the listed notifications of a recipient read.
func (s *NotificationService) MarkManyRead(ctx context.Context, recipient models.Recipient, ids []string) (int64, error) {
	updated, err := s.store.MarkManyRead(ctx, recipient, ids, s.now().UTC())
	if err != nil {
		return 0, wrapStoreError(err, "failed to mark notifications read")
	}
	return updated, nil
}

// MarkAllRead marks every notification of a recipient read.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipient models.Recipient) (int64, error) {
	updated, err := s.store.MarkAllRead(ctx, recipient, s.now().UTC())
	if err != nil {
		return 0, wrapStoreError(err, "failed to mark notifications read")
	}
	return updated, nil
}

// Delete removes a notification.
func (s *NotificationService) Delete(ctx context.Context, recipient models.Recipient, id string) error {
	if err := s.store.Delete(ctx, recipient, id); err != nil {
		return wrapStoreError(err, "failed to delete notification")
	}
	return nil
}

// GetPreferences returns the stored or default preferences of a recipient.
func (s *NotificationService) GetPreferences(ctx context.Context, recipient models.Recipient) (*models.NotificationPreference, error) {
	pref, err := s.prefs.Find(ctx, recipient.ID, recipient.Type)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	if pref == nil {
		return DefaultPreference(recipient.ID, recipient.Type), nil
	}
	return pref, nil
}

// UpdatePreferences stores a recipient's preferences.
func (s *NotificationService) UpdatePreferences(ctx context.Context, pref *models.NotificationPreference) error {
	if pref.EmailFrequency == "" {
		pref.EmailFrequency = models.EmailImmediate
	}
	if pref.DigestFrequency == "" {
		pref.DigestFrequency = "daily"
	}
	if err := s.prefs.Upsert(ctx, pref); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save preferences")
	}
	return nil
}

func wrapStoreError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
