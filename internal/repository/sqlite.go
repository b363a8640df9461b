package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/hray3182/NagLine/internal/models"
	"github.com/hray3182/NagLine/internal/reminder"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

const reminderColumns = `id, short_code, message, schedule_type, next_fire_at, recurrence, time_of_day,
	anchor_date, fuzzy_minutes, window_start, window_end, nag_enabled, nag_interval, nag_count,
	status, created_at, last_fired_at`

const timezoneKey = "timezone"

// SQLiteStore keeps reminders in a single SQLite file. Instants are stored
// as unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ reminder.Store = (*SQLiteStore)(nil)

func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger.With().Str("component", "sqlite").Logger()}
	s.log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, r *models.Reminder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (`+reminderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, strings.ToUpper(r.ShortCode), r.Message, string(r.ScheduleType), r.NextFireAt.UnixMilli(),
		nullString(string(r.Recurrence)), nullString(r.TimeOfDay), nullString(r.AnchorDate),
		r.FuzzyMinutes, nullMillis(r.WindowStart), nullMillis(r.WindowEnd),
		r.NagEnabled, r.NagInterval, r.NagCount, string(r.Status), r.CreatedAt.UnixMilli(),
		nullMillis(r.LastFiredAt),
	)
	if err != nil {
		if msg := err.Error(); strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "reminders.id") {
			return reminder.ErrDuplicateShortCode
		}
		return err
	}
	r.ShortCode = strings.ToUpper(r.ShortCode)
	return nil
}

// GetDue skips one-shot and random rows that already fired at their current
// next_fire_at. Recurring rows have no such check: one whose re-arm was not
// persisted stays due and is fired again.
func (s *SQLiteStore) GetDue(ctx context.Context, now time.Time) ([]*models.Reminder, error) {
	return s.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = ? AND next_fire_at <= ?
		   AND (schedule_type = ? OR last_fired_at IS NULL OR last_fired_at < next_fire_at)
		 ORDER BY next_fire_at ASC, id ASC`,
		string(models.StatusActive), now.UnixMilli(), string(models.ScheduleRecurring),
	)
}

func (s *SQLiteStore) GetNagCandidates(ctx context.Context, _ time.Time) ([]*models.Reminder, error) {
	return s.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = ? AND nag_enabled = 1 AND nag_count > 0
		 ORDER BY last_fired_at ASC, id ASC`,
		string(models.StatusActive),
	)
}

func (s *SQLiteStore) MarkFired(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx,
		`UPDATE reminders SET last_fired_at = ?, nag_count = nag_count + 1 WHERE id = ?`,
		now.UnixMilli(), id,
	)
}

func (s *SQLiteStore) SetNextFire(ctx context.Context, id string, next time.Time) error {
	return s.exec(ctx,
		`UPDATE reminders SET next_fire_at = ?, nag_count = 0 WHERE id = ?`,
		next.UnixMilli(), id,
	)
}

func (s *SQLiteStore) ResetNagCount(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE reminders SET nag_count = 0 WHERE id = ?`, id)
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status models.Status) error {
	return s.exec(ctx, `UPDATE reminders SET status = ? WHERE id = ?`, string(status), id)
}

func (s *SQLiteStore) GetByShortCode(ctx context.Context, code string) (*models.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE short_code = ? COLLATE NOCASE`,
		strings.TrimSpace(code),
	)
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reminder.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]*models.Reminder, error) {
	return s.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE status = ? ORDER BY next_fire_at ASC`,
		string(models.StatusActive),
	)
}

func (s *SQLiteStore) ListActiveRecurring(ctx context.Context) ([]*models.Reminder, error) {
	return s.query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = ? AND schedule_type = ? ORDER BY next_fire_at ASC`,
		string(models.StatusActive), string(models.ScheduleRecurring),
	)
}

// GetTimezone returns "" when no timezone has been stored.
func (s *SQLiteStore) GetTimezone(ctx context.Context) (string, error) {
	var tz string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, timezoneKey).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return tz, err
}

func (s *SQLiteStore) SetTimezone(ctx context.Context, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		timezoneKey, tz,
	)
	return err
}

// Backup writes a consistent copy of the database to path.
func (s *SQLiteStore) Backup(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup target %s already exists", path)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	s.log.Info().Str("path", path).Msg("database backed up")
	return nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return reminder.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (*models.Reminder, error) {
	var (
		r                                   models.Reminder
		scheduleType, status                string
		recurrence, timeOfDay, anchorDate   sql.NullString
		nextFireAt, createdAt               int64
		windowStart, windowEnd, lastFiredAt sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.ShortCode, &r.Message, &scheduleType, &nextFireAt,
		&recurrence, &timeOfDay, &anchorDate, &r.FuzzyMinutes, &windowStart, &windowEnd,
		&r.NagEnabled, &r.NagInterval, &r.NagCount, &status, &createdAt, &lastFiredAt); err != nil {
		return nil, err
	}

	r.ScheduleType = models.ScheduleType(scheduleType)
	r.Status = models.Status(status)
	r.Recurrence = models.Recurrence(recurrence.String)
	r.TimeOfDay = timeOfDay.String
	r.AnchorDate = anchorDate.String
	r.NextFireAt = time.UnixMilli(nextFireAt).UTC()
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.WindowStart = fromMillis(windowStart)
	r.WindowEnd = fromMillis(windowEnd)
	r.LastFiredAt = fromMillis(lastFiredAt)
	return &r, nil
}

func nullString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
