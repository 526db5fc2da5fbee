package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/repository"
	"github.com/aidly/aidly-api/pkg/config"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/realtime"
)

type memoryNotificationStore struct {
	mu   sync.Mutex
	rows map[string]*models.Notification
	seq  int
}

func newMemoryNotificationStore() *memoryNotificationStore {
	return &memoryNotificationStore{rows: map[string]*models.Notification{}}
}

func (m *memoryNotificationStore) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if n.ID == "" {
		n.ID = fmt.Sprintf("n-%02d", m.seq)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Date(2025, 1, 16, 9, 58, m.seq, 0, time.UTC)
	}
	cp := *n
	m.rows[n.ID] = &cp
	return nil
}

func (m *memoryNotificationStore) UpdateDelivery(_ context.Context, id string, upd repository.DeliveryUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	n.Status = upd.Status
	if upd.IncrementAttempt {
		n.Attempts++
	}
	if upd.LastError != nil {
		n.LastError = upd.LastError
	}
	if upd.SentAt != nil {
		n.SentAt = upd.SentAt
	}
	if upd.DeliveredAt != nil {
		n.DeliveredAt = upd.DeliveredAt
	}
	if upd.FailedAt != nil {
		n.FailedAt = upd.FailedAt
	}
	return nil
}

func (m *memoryNotificationStore) FindByID(_ context.Context, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	cp := *n
	return &cp, nil
}

func (m *memoryNotificationStore) sorted() []*models.Notification {
	out := make([]*models.Notification, 0, len(m.rows))
	for _, n := range m.rows {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memoryNotificationStore) all() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.sorted() {
		out = append(out, *n)
	}
	return out
}

func (m *memoryNotificationStore) List(_ context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.Notification
	for _, n := range m.sorted() {
		if n.NotifiableID != filter.NotifiableID || n.NotifiableType != filter.NotifiableType {
			continue
		}
		if filter.Unread != nil && *filter.Unread == n.IsRead() {
			continue
		}
		matched = append(matched, *n)
	}
	start := (filter.Page - 1) * filter.PerPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (m *memoryNotificationStore) UnreadCount(_ context.Context, id string, kind models.NotifiableType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.rows {
		if n.NotifiableID == id && n.NotifiableType == kind && n.Channel == models.ChannelInApp && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (m *memoryNotificationStore) SetRead(_ context.Context, recipient models.Recipient, id string, readAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.NotifiableID != recipient.ID || n.NotifiableType != recipient.Type {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	n.ReadAt = readAt
	return nil
}

func (m *memoryNotificationStore) MarkManyRead(_ context.Context, recipient models.Recipient, ids []string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	for _, id := range ids {
		n, ok := m.rows[id]
		if ok && n.NotifiableID == recipient.ID && n.NotifiableType == recipient.Type && !n.IsRead() {
			n.ReadAt = &at
			updated++
		}
	}
	return updated, nil
}

func (m *memoryNotificationStore) MarkAllRead(_ context.Context, recipient models.Recipient, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	for _, n := range m.rows {
		if n.NotifiableID == recipient.ID && n.NotifiableType == recipient.Type && !n.IsRead() {
			n.ReadAt = &at
			updated++
		}
	}
	return updated, nil
}

func (m *memoryNotificationStore) Delete(_ context.Context, recipient models.Recipient, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.NotifiableID != recipient.ID || n.NotifiableType != recipient.Type {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryNotificationStore) Retryable(_ context.Context, window models.RetryWindow) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.sorted() {
		eligible := n.Status == models.NotificationPending || n.Status == models.NotificationFailed
		if eligible && n.Attempts < window.MaxAttempts && n.CreatedAt.Before(window.CreatedBefore) && n.CreatedAt.After(window.CreatedAfter) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memoryNotificationStore) QueuedEmails(_ context.Context, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.sorted() {
		if n.Status == models.NotificationQueued && n.Channel == models.ChannelEmail {
			out = append(out, *n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NotifiableType != out[j].NotifiableType {
			return out[i].NotifiableType < out[j].NotifiableType
		}
		return out[i].NotifiableID < out[j].NotifiableID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryNotificationStore) MarkSent(_ context.Context, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if n, ok := m.rows[id]; ok {
			n.Status = models.NotificationSent
			n.SentAt = &at
			n.Attempts++
		}
	}
	return nil
}

type staticPreferences struct {
	prefs map[string]*models.NotificationPreference
	err   error
}

func (s *staticPreferences) Find(_ context.Context, id string, _ models.NotifiableType) (*models.NotificationPreference, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.prefs[id], nil
}

func (s *staticPreferences) Upsert(_ context.Context, pref *models.NotificationPreference) error {
	if s.prefs == nil {
		s.prefs = map[string]*models.NotificationPreference{}
	}
	s.prefs[pref.NotifiableID] = pref
	return nil
}

func (s *staticPreferences) MarkDigested(_ context.Context, id string, _ models.NotifiableType, at time.Time) error {
	if pref, ok := s.prefs[id]; ok {
		pref.LastDigestAt = &at
	}
	return nil
}

type staticDirectory map[string]models.Recipient

func (d staticDirectory) Find(_ context.Context, id string, _ models.NotifiableType) (*models.Recipient, error) {
	r, ok := d[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
	}
	return &r, nil
}

type recordingSender struct {
	mu         sync.Mutex
	channel    models.Channel
	err        error
	deliveries []Delivery
}

func (r *recordingSender) Channel() models.Channel { return r.channel }

func (r *recordingSender) Send(_ context.Context, d Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
	return r.err
}

type recordingRelay struct {
	channels []string
	event    string
}

func (r *recordingRelay) Trigger(_ context.Context, channels []string, event string, _ interface{}) error {
	r.channels = channels
	r.event = event
	return nil
}

var _ realtime.Relay = (*recordingRelay)(nil)

type notificationFixture struct {
	svc   *NotificationService
	store *memoryNotificationStore
	prefs *staticPreferences
	email *recordingSender
	inApp *recordingSender
}

var notificationNow = time.Date(2025, 1, 16, 10, 0, 0, 0, time.UTC)

func newNotificationFixture() *notificationFixture {
	f := &notificationFixture{
		store: newMemoryNotificationStore(),
		prefs: &staticPreferences{prefs: map[string]*models.NotificationPreference{}},
		email: &recordingSender{channel: models.ChannelEmail},
		inApp: &recordingSender{channel: models.ChannelInApp},
	}
	directory := staticDirectory{
		"agent-1": {ID: "agent-1", Type: models.NotifiableUser, Name: "Ana", Email: "ana@example.com"},
	}
	f.svc = NewNotificationService(f.store, f.prefs, directory,
		[]ChannelSender{f.email, f.inApp, NewPushChannel(zap.NewNop()), NewSMSChannel(zap.NewNop())},
		nil, nil, zap.NewNop(), config.NotificationsConfig{RetryMaxAttempts: 3, RetryMinAge: 5 * time.Minute, RetryMaxAge: 24 * time.Hour})
	f.svc.now = func() time.Time { return notificationNow }
	return f
}

func assignedEvent() models.NotificationEvent {
	return models.NotificationEvent{
		Type:      "ticket.assigned",
		Recipient: models.Recipient{ID: "agent-1", Type: models.NotifiableUser},
		Title:     "Ticket #1042 assigned to you",
		Message:   "**VPN down** was assigned to you.",
		ActionURL: "/tickets/1042",
		Data:      map[string]interface{}{"ticket_id": "1042"},
	}
}

func TestNotifyAllChannelsCreatesOneRowPerEnabledChannel(t *testing.T) {
	f := newNotificationFixture()

	rows, err := f.svc.NotifyAllChannels(context.Background(), assignedEvent())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ChannelInApp, rows[0].Channel)
	assert.Equal(t, models.ChannelEmail, rows[1].Channel)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)

	stored := f.store.all()
	require.Len(t, stored, 2)
	for _, n := range stored {
		require.NotNil(t, n.SentAt)
		assert.Zero(t, n.Attempts)
	}
	assert.Equal(t, models.NotificationDelivered, stored[0].Status)
	assert.NotNil(t, stored[0].DeliveredAt)
	assert.Equal(t, models.NotificationSent, stored[1].Status)
	assert.Nil(t, stored[1].DeliveredAt)

	require.Len(t, f.email.deliveries, 1)
	assert.Equal(t, "ana@example.com", f.email.deliveries[0].Recipient.Email)
}

func TestNotifyAllChannelsHonoursEventOverrides(t *testing.T) {
	f := newNotificationFixture()
	pref := DefaultPreference("agent-1", models.NotifiableUser)
	pref.SMSEnabled = true
	pref.EventSettings = models.EventSettings{"ticket.assigned": {models.ChannelEmail: false}}
	f.prefs.prefs["agent-1"] = pref

	rows, err := f.svc.NotifyAllChannels(context.Background(), assignedEvent())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ChannelInApp, rows[0].Channel)
	assert.Equal(t, models.ChannelSMS, rows[1].Channel)
	assert.Empty(t, f.email.deliveries)
}

func TestNotifyParksEmailForDigest(t *testing.T) {
	f := newNotificationFixture()
	pref := DefaultPreference("agent-1", models.NotifiableUser)
	pref.DigestEnabled = true
	pref.EmailFrequency = models.EmailDaily
	f.prefs.prefs["agent-1"] = pref

	event := assignedEvent()
	event.Channel = models.ChannelEmail
	n, err := f.svc.Notify(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationQueued, n.Status)
	assert.Empty(t, f.email.deliveries)

	stored, err := f.store.FindByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationQueued, stored.Status)
	assert.Nil(t, stored.SentAt)
}

func TestNotifySkipsDisabledChannel(t *testing.T) {
	f := newNotificationFixture()
	pref := DefaultPreference("agent-1", models.NotifiableUser)
	pref.InAppEnabled = false
	f.prefs.prefs["agent-1"] = pref

	n, err := f.svc.Notify(context.Background(), assignedEvent())
	require.NoError(t, err)
	assert.Equal(t, models.ChannelInApp, n.Channel)
	assert.Equal(t, models.NotificationSkipped, n.Status)
	assert.Empty(t, f.inApp.deliveries)
	assert.Len(t, f.store.all(), 1)
}

func TestNotifyRecordsDeliveryFailureWithoutReturningIt(t *testing.T) {
	f := newNotificationFixture()
	f.email.err = errors.New("dial tcp: connection refused")

	event := assignedEvent()
	event.Channel = models.ChannelEmail
	n, err := f.svc.Notify(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, n.Status)

	stored, err := f.store.FindByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "connection refused")
	assert.NotNil(t, stored.FailedAt)
}

func TestNotifyFallsBackToDefaultsWhenPreferencesFail(t *testing.T) {
	f := newNotificationFixture()
	f.prefs.err = errors.New("connection reset")

	rows, err := f.svc.NotifyAllChannels(context.Background(), assignedEvent())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestNotifyRejectsInvalidEvent(t *testing.T) {
	f := newNotificationFixture()
	event := assignedEvent()
	event.Recipient.Type = "robot"
	_, err := f.svc.Notify(context.Background(), event)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.store.all())
}

func TestProcessQueueRedeliversInsideWindow(t *testing.T) {
	f := newNotificationFixture()
	f.email.err = errors.New("timeout")
	event := assignedEvent()
	event.Channel = models.ChannelEmail
	n, err := f.svc.Notify(context.Background(), event)
	require.NoError(t, err)

	// too young to retry
	summary, err := f.svc.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Attempted)

	f.email.err = nil
	f.svc.now = func() time.Time { return notificationNow.Add(time.Hour) }
	summary, err = f.svc.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Delivered)

	stored, err := f.store.FindByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, stored.Status)
	assert.Equal(t, "ana@example.com", f.email.deliveries[1].Recipient.Email)

	// delivered rows are not picked up again
	summary, err = f.svc.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Attempted)
}

func TestProcessQueueStopsAtMaxAttempts(t *testing.T) {
	f := newNotificationFixture()
	f.email.err = errors.New("timeout")
	event := assignedEvent()
	event.Channel = models.ChannelEmail
	_, err := f.svc.Notify(context.Background(), event)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return notificationNow.Add(time.Hour) }
	for i := 0; i < 4; i++ {
		_, err := f.svc.ProcessQueue(context.Background())
		require.NoError(t, err)
	}
	stored := f.store.all()
	require.Len(t, stored, 1)
	assert.Equal(t, 3, stored[0].Attempts)
	assert.Len(t, f.email.deliveries, 3)
}

func TestNotificationReadState(t *testing.T) {
	f := newNotificationFixture()
	ctx := context.Background()
	recipient := models.Recipient{ID: "agent-1", Type: models.NotifiableUser}
	var ids []string
	for i := 0; i < 3; i++ {
		n, err := f.svc.Notify(ctx, assignedEvent())
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	count, err := f.svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	n, err := f.svc.MarkRead(ctx, recipient, ids[0])
	require.NoError(t, err)
	assert.True(t, n.IsRead())
	n, err = f.svc.MarkUnread(ctx, recipient, ids[0])
	require.NoError(t, err)
	assert.False(t, n.IsRead())

	updated, err := f.svc.MarkManyRead(ctx, recipient, ids[:2])
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)
	updated, err = f.svc.MarkAllRead(ctx, recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)

	unread := true
	rows, page, err := f.svc.List(ctx, models.NotificationFilter{NotifiableID: "agent-1", NotifiableType: models.NotifiableUser, Unread: &unread})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, page.LastPage)

	require.NoError(t, f.svc.Delete(ctx, recipient, ids[2]))
	assert.ErrorIs(t, f.svc.Delete(ctx, recipient, ids[2]), appErrors.ErrNotFound)
	_, err = f.svc.MarkRead(ctx, recipient, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestNotificationReadStateIsScopedToOwner(t *testing.T) {
	f := newNotificationFixture()
	ctx := context.Background()
	owner := models.Recipient{ID: "agent-1", Type: models.NotifiableUser}
	n, err := f.svc.Notify(ctx, assignedEvent())
	require.NoError(t, err)

	intruders := []models.Recipient{
		{ID: "agent-2", Type: models.NotifiableUser},
		{ID: "agent-1", Type: models.NotifiableClient},
	}
	for _, other := range intruders {
		_, err = f.svc.MarkRead(ctx, other, n.ID)
		assert.ErrorIs(t, err, appErrors.ErrNotFound)
		_, err = f.svc.MarkUnread(ctx, other, n.ID)
		assert.ErrorIs(t, err, appErrors.ErrNotFound)
		assert.ErrorIs(t, f.svc.Delete(ctx, other, n.ID), appErrors.ErrNotFound)
	}

	count, err := f.svc.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, f.svc.Delete(ctx, owner, n.ID))
}

func TestListPaginates(t *testing.T) {
	f := newNotificationFixture()
	for i := 0; i < 5; i++ {
		_, err := f.svc.Notify(context.Background(), assignedEvent())
		require.NoError(t, err)
	}
	rows, page, err := f.svc.List(context.Background(), models.NotificationFilter{NotifiableID: "agent-1", NotifiableType: models.NotifiableUser, Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.LastPage)

	_, _, err = f.svc.List(context.Background(), models.NotificationFilter{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPreferencesDefaultAndUpdate(t *testing.T) {
	f := newNotificationFixture()
	recipient := models.Recipient{ID: "client-9", Type: models.NotifiableClient}

	pref, err := f.svc.GetPreferences(context.Background(), recipient)
	require.NoError(t, err)
	assert.True(t, pref.InAppEnabled)
	assert.True(t, pref.EmailEnabled)
	assert.False(t, pref.SMSEnabled)
	assert.Equal(t, models.EmailImmediate, pref.EmailFrequency)

	pref.PushEnabled = true
	pref.EmailFrequency = ""
	require.NoError(t, f.svc.UpdatePreferences(context.Background(), pref))
	stored, err := f.svc.GetPreferences(context.Background(), recipient)
	require.NoError(t, err)
	assert.True(t, stored.PushEnabled)
	assert.Equal(t, models.EmailImmediate, stored.EmailFrequency)
}

func TestInAppChannelsFanOut(t *testing.T) {
	dept := "support"
	relay := &recordingRelay{}
	channel := NewInAppChannel(relay)
	n := &models.Notification{ID: "n-1"}

	err := channel.Send(context.Background(), Delivery{
		Notification: n,
		Recipient:    models.Recipient{ID: "agent-1", Type: models.NotifiableUser, DepartmentID: &dept},
		Broadcast:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, EventNotificationCreated, relay.event)
	assert.Equal(t, []string{"private-user-agent-1", "private-department-support", "global"}, relay.channels)

	assert.Equal(t, []string{"private-client-c-7"}, InAppChannels(Delivery{Recipient: models.Recipient{ID: "c-7", Type: models.NotifiableClient}}))
}

func TestChannelPreferenceResolution(t *testing.T) {
	assert.Equal(t, []models.Channel{models.ChannelInApp, models.ChannelEmail}, ResolveChannels(nil, "ticket.created"))

	pref := &models.NotificationPreference{
		InAppEnabled:  true,
		PushEnabled:   true,
		EventSettings: models.EventSettings{"ticket.created": {models.ChannelPush: false, models.ChannelEmail: true}},
	}
	assert.Equal(t, []models.Channel{models.ChannelInApp}, ResolveChannels(pref, "ticket.created"))
	assert.Equal(t, []models.Channel{models.ChannelInApp, models.ChannelPush}, ResolveChannels(pref, "ticket.commented"))

	pref.DigestEnabled = true
	pref.EmailFrequency = models.EmailImmediate
	assert.False(t, DigestApplies(pref, models.ChannelEmail))
	pref.EmailFrequency = models.EmailHourly
	assert.True(t, DigestApplies(pref, models.ChannelEmail))
	assert.False(t, DigestApplies(pref, models.ChannelInApp))
	assert.False(t, DigestApplies(nil, models.ChannelEmail))
}
