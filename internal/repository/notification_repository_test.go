package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

func TestNotificationRepositoryCreateRunsInTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n := &models.Notification{NotifiableID: "agent-1", NotifiableType: models.NotifiableUser, Type: "ticket_assigned", Channel: models.ChannelInApp}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.NotificationPending, n.Status)
	assert.Equal(t, models.PriorityNormal, n.Priority)
	assert.NotNil(t, n.Data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Notification{NotifiableID: "agent-1", NotifiableType: models.NotifiableUser})
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryUnreadCountOnlyCountsInApp(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE channel = $1 AND notifiable_id = $2 AND notifiable_type = $3 AND read_at IS NULL")).
		WithArgs(models.ChannelInApp, "agent-1", models.NotifiableUser).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.UnreadCount(context.Background(), "agent-1", models.NotifiableUser)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryDeleteAndSetReadRequireRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	owner := models.Recipient{ID: "agent-1", Type: models.NotifiableUser}

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notifications WHERE id = $1 AND notifiable_id = $2 AND notifiable_type = $3")).
		WithArgs("gone", "agent-1", models.NotifiableUser).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), owner, "gone"), appErrors.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read_at = $1, updated_at = $2 WHERE id = $3 AND notifiable_id = $4 AND notifiable_type = $5")).
		WithArgs(nil, sqlmock.AnyArg(), "n-1", "agent-1", models.NotifiableUser).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetRead(context.Background(), owner, "n-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)
	recipient := models.Recipient{ID: "client-1", Type: models.NotifiableClient}
	at := time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)

	affected, err := repo.MarkManyRead(context.Background(), recipient, nil, at)
	require.NoError(t, err)
	assert.Zero(t, affected)

	mock.ExpectExec(regexp.QuoteMeta("WHERE (notifiable_id = $3 AND notifiable_type = $4 AND read_at IS NULL AND id IN ($5,$6))")).
		WithArgs(at, at, "client-1", models.NotifiableClient, "n-1", "n-2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	affected, err = repo.MarkManyRead(context.Background(), recipient, []string{"n-1", "n-2"}, at)
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	mock.ExpectExec(regexp.QuoteMeta("WHERE notifiable_id = $3 AND notifiable_type = $4 AND read_at IS NULL")).
		WithArgs(at, at, "client-1", models.NotifiableClient).
		WillReturnResult(sqlmock.NewResult(0, 7))
	affected, err = repo.MarkAllRead(context.Background(), recipient, at)
	require.NoError(t, err)
	assert.EqualValues(t, 7, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryRetryableWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	before := time.Date(2025, 1, 16, 8, 55, 0, 0, time.UTC)
	after := before.Add(-24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN ($1,$2) AND attempts < $3 AND created_at < $4 AND created_at > $5 ORDER BY created_at ASC LIMIT 50")).
		WithArgs(models.NotificationPending, models.NotificationFailed, 3, before, after).
		WillReturnRows(sqlmock.NewRows(notificationColumns))

	rows, err := repo.Retryable(context.Background(), models.RetryWindow{MaxAttempts: 3, CreatedBefore: before, CreatedAfter: after, Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkSentSkipsEmptyBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	require.NoError(t, repo.MarkSent(context.Background(), nil, time.Now()))

	mock.ExpectExec(regexp.QuoteMeta("attempts = attempts + 1 WHERE id IN ($4,$5)")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.MarkSent(context.Background(), []string{"a", "b"}, time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}
