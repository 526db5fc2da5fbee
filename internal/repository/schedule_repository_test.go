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

var scheduleRowColumns = []string{
	"id", "report_id", "cron_expression", "timezone", "recipients", "format", "is_active", "last_run_at",
	"next_run_at", "failure_count", "created_at", "updated_at",
}

func TestScheduleRepositoryFindByReport(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	next := time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduled_reports WHERE report_id = $1")).
		WithArgs("rep-1").
		WillReturnRows(sqlmock.NewRows(scheduleRowColumns).
			AddRow("sch-1", "rep-1", "0 8 * * *", "Europe/Berlin", "{ops@example.com,lead@example.com}", "csv", true, nil, next, 2, next, next))

	schedule, err := repo.FindByReport(context.Background(), "rep-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, []string(schedule.Recipients))
	assert.Equal(t, 2, schedule.FailureCount)
	require.NotNil(t, schedule.NextRunAt)
	assert.True(t, next.Equal(*schedule.NextRunAt))

	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduled_reports WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(scheduleRowColumns))
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryUpsertReactivates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	created := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO scheduled_reports")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("sch-existing", created))

	schedule := &models.ScheduledReport{
		ReportID:       "rep-1",
		CronExpression: "@daily",
		Timezone:       "UTC",
		Recipients:     []string{"ops@example.com"},
		Format:         models.ReportFormatPDF,
		FailureCount:   4,
	}
	require.NoError(t, repo.Upsert(context.Background(), schedule))
	assert.Equal(t, "sch-existing", schedule.ID)
	assert.True(t, created.Equal(schedule.CreatedAt))
	assert.True(t, schedule.IsActive)
	assert.Zero(t, schedule.FailureCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryDeleteByReport(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scheduled_reports WHERE report_id = $1")).
		WithArgs("rep-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteByReport(context.Background(), "rep-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scheduled_reports WHERE report_id = $1")).
		WithArgs("rep-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.DeleteByReport(context.Background(), "rep-2"), appErrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryClaimIsConditional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	observed := time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)
	next := observed.Add(24 * time.Hour)
	claim := regexp.QuoteMeta("UPDATE scheduled_reports SET next_run_at = $1, updated_at = NOW() WHERE id = $2 AND next_run_at = $3")

	mock.ExpectExec(claim).WithArgs(next, "sch-1", observed).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.Claim(context.Background(), "sch-1", observed, next)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(claim).WithArgs(next, "sch-1", observed).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.Claim(context.Background(), "sch-1", observed, next)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryRecordOutcomes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	ranAt := time.Date(2025, 1, 16, 8, 0, 5, 0, time.UTC)
	next := time.Date(2025, 1, 17, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduled_reports SET failure_count = 0, last_run_at = $1, next_run_at = $2")).
		WithArgs(ranAt, next, "sch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RecordSuccess(context.Background(), "sch-1", ranAt, next))

	mock.ExpectQuery(regexp.QuoteMeta("SET failure_count = failure_count + 1")).
		WithArgs(5, next, "sch-1").
		WillReturnRows(sqlmock.NewRows([]string{"failure_count", "is_active"}).AddRow(5, false))
	count, active, err := repo.RecordFailure(context.Background(), "sch-1", next, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.False(t, active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryListDue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	now := time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = TRUE AND next_run_at IS NOT NULL AND next_run_at <= $1")).
		WithArgs(now, 100).
		WillReturnRows(sqlmock.NewRows(scheduleRowColumns).
			AddRow("sch-1", "rep-1", "@hourly", "UTC", "{}", "csv", true, nil, now, 0, now, now))

	due, err := repo.ListDue(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Empty(t, due[0].Recipients)
	require.NoError(t, mock.ExpectationsWereMet())
}
