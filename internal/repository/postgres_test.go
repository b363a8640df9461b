package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/NagLine/internal/reminder"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStoreWithQuerier(mock), mock
}

func TestPostgresCreateUppercasesCode(t *testing.T) {
	store, mock := newMockStore(t)
	r := newReminder("pills", time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))

	mock.ExpectExec("INSERT INTO reminders").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), r))
	assert.Equal(t, "PILLS", r.ShortCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	r := newReminder("REM", time.Now().UTC())

	mock.ExpectExec("INSERT INTO reminders").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_reminders_short_code"})

	err := store.Create(context.Background(), r)
	assert.ErrorIs(t, err, reminder.ErrDuplicateShortCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateOtherError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO reminders").WillReturnError(boom)

	err := store.Create(context.Background(), newReminder("REM", time.Now().UTC()))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, reminder.ErrDuplicateShortCode)
}

func TestPostgresMarkFired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("UPDATE reminders SET last_fired_at = $1, nag_count = nag_count + 1 WHERE id = $2")

	mock.ExpectExec(query).WithArgs(now, "r1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(query).WithArgs(now, "gone").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.MarkFired(context.Background(), "r1", now))
	assert.ErrorIs(t, store.MarkFired(context.Background(), "gone", now), reminder.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetNextFireResetsNagCount(t *testing.T) {
	store, mock := newMockStore(t)
	next := time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reminders SET next_fire_at = $1, nag_count = 0 WHERE id = $2")).
		WithArgs(next, "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetNextFire(context.Background(), "r1", next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDueKeepsUnrearmedRecurring(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 10, 19, 9, 1, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("AND (schedule_type = $3 OR last_fired_at IS NULL OR last_fired_at < next_fire_at)")).
		WithArgs("active", now, "recurring").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	due, err := store.GetDue(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetByShortCodeNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM reminders WHERE lower\\(short_code\\) = lower\\(\\$1\\)").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetByShortCode(context.Background(), " nope ")
	assert.ErrorIs(t, err, reminder.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTimezone(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	get := regexp.QuoteMeta("SELECT value FROM settings WHERE key = $1")

	mock.ExpectQuery(get).WithArgs(timezoneKey).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(timezoneKey, "Asia/Taipei").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(get).WithArgs(timezoneKey).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("Asia/Taipei"))

	tz, err := store.GetTimezone(ctx)
	require.NoError(t, err)
	assert.Empty(t, tz)

	require.NoError(t, store.SetTimezone(ctx, "Asia/Taipei"))

	tz, err = store.GetTimezone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Taipei", tz)
	assert.NoError(t, mock.ExpectationsWereMet())
}
