package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hray3182/NagLine/internal/database"
	"github.com/hray3182/NagLine/internal/models"
	"github.com/hray3182/NagLine/internal/reminder"
)

const uniqueViolation = "23505"

// PostgresStore keeps reminders in PostgreSQL. The schema comes from the
// database package migrations.
type PostgresStore struct {
	q       database.Querier
	closeFn func()
}

var _ reminder.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{q: db.Pool, closeFn: db.Close}
}

// NewPostgresStoreWithQuerier is used with a mock pool in tests.
func NewPostgresStoreWithQuerier(q database.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

func (r *PostgresStore) Close() error {
	if r.closeFn != nil {
		r.closeFn()
	}
	return nil
}

func (r *PostgresStore) Create(ctx context.Context, rem *models.Reminder) error {
	code := strings.ToUpper(rem.ShortCode)
	_, err := r.q.Exec(ctx,
		`INSERT INTO reminders (`+reminderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rem.ID, code, rem.Message, string(rem.ScheduleType), rem.NextFireAt,
		nullString(string(rem.Recurrence)), nullString(rem.TimeOfDay), nullString(rem.AnchorDate),
		rem.FuzzyMinutes, rem.WindowStart, rem.WindowEnd,
		rem.NagEnabled, rem.NagInterval, rem.NagCount, string(rem.Status), rem.CreatedAt,
		rem.LastFiredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName != "reminders_pkey" {
			return reminder.ErrDuplicateShortCode
		}
		return err
	}
	rem.ShortCode = code
	return nil
}

func (r *PostgresStore) GetDue(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	return r.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = $1 AND next_fire_at <= $2
		   AND (schedule_type = $3 OR last_fired_at IS NULL OR last_fired_at < next_fire_at)
		 ORDER BY next_fire_at ASC, id ASC`,
		string(models.StatusActive), now, string(models.ScheduleRecurring),
	)
}

func (r *PostgresStore) GetNagCandidates(ctx context.Context, _ time.Time) ([]*models.Reminder, error) {
	return r.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = $1 AND nag_enabled AND nag_count > 0
		 ORDER BY last_fired_at ASC NULLS LAST, id ASC`,
		string(models.StatusActive),
	)
}

func (r *PostgresStore) MarkFired(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx,
		`UPDATE reminders SET last_fired_at = $1, nag_count = nag_count + 1 WHERE id = $2`,
		now, id,
	)
}

func (r *PostgresStore) SetNextFire(ctx context.Context, id string, next time.Time) error {
	return r.exec(ctx,
		`UPDATE reminders SET next_fire_at = $1, nag_count = 0 WHERE id = $2`,
		next, id,
	)
}

func (r *PostgresStore) ResetNagCount(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE reminders SET nag_count = 0 WHERE id = $1`, id)
}

func (r *PostgresStore) SetStatus(ctx context.Context, id string, status models.Status) error {
	return r.exec(ctx, `UPDATE reminders SET status = $1 WHERE id = $2`, string(status), id)
}

func (r *PostgresStore) GetByShortCode(ctx context.Context, code string) (*models.Reminder, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE lower(short_code) = lower($1)`,
		strings.TrimSpace(code),
	)
	rem, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, reminder.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rem, nil
}

func (r *PostgresStore) ListActive(ctx context.Context) ([]*models.Reminder, error) {
	return r.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE status = $1 ORDER BY next_fire_at ASC`,
		string(models.StatusActive),
	)
}

func (r *PostgresStore) ListActiveRecurring(ctx context.Context) ([]*models.Reminder, error) {
	return r.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = $1 AND schedule_type = $2 ORDER BY next_fire_at ASC`,
		string(models.StatusActive), string(models.ScheduleRecurring),
	)
}

func (r *PostgresStore) GetTimezone(ctx context.Context) (string, error) {
	var tz string
	err := r.q.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, timezoneKey).Scan(&tz)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return tz, err
}

func (r *PostgresStore) SetTimezone(ctx context.Context, tz string) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		timezoneKey, tz,
	)
	return err
}

func (r *PostgresStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return reminder.ErrNotFound
	}
	return nil
}

func (r *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]*models.Reminder, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		rem, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func scanPostgres(row rowScanner) (*models.Reminder, error) {
	var (
		rem                               models.Reminder
		scheduleType, status              string
		recurrence, timeOfDay, anchorDate *string
	)
	if err := row.Scan(&rem.ID, &rem.ShortCode, &rem.Message, &scheduleType, &rem.NextFireAt,
		&recurrence, &timeOfDay, &anchorDate, &rem.FuzzyMinutes, &rem.WindowStart, &rem.WindowEnd,
		&rem.NagEnabled, &rem.NagInterval, &rem.NagCount, &status, &rem.CreatedAt, &rem.LastFiredAt); err != nil {
		return nil, err
	}

	rem.ScheduleType = models.ScheduleType(scheduleType)
	rem.Status = models.Status(status)
	if recurrence != nil {
		rem.Recurrence = models.Recurrence(*recurrence)
	}
	if timeOfDay != nil {
		rem.TimeOfDay = *timeOfDay
	}
	if anchorDate != nil {
		rem.AnchorDate = *anchorDate
	}
	rem.NextFireAt = rem.NextFireAt.UTC()
	return &rem, nil
}
