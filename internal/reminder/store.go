package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/hray3182/NagLine/internal/models"
)

var (
	ErrNotFound           = errors.New("reminder not found")
	ErrDuplicateShortCode = errors.New("short code already in use")
)

// Store is the persistence contract of the scheduler core. Every mutation is
// atomic for a single reminder row, and GetByShortCode observes Create calls
// made earlier by the same process.
type Store interface {
	// GetDue returns active reminders with next_fire_at <= now that have not
	// fired since next_fire_at was set.
	GetDue(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	// GetNagCandidates returns active reminders with nagging enabled and
	// nag_count > 0. The interval and attempt budget are checked by the caller.
	GetNagCandidates(ctx context.Context, now time.Time) ([]*models.Reminder, error)
	// MarkFired sets last_fired_at and increments nag_count.
	MarkFired(ctx context.Context, id string, now time.Time) error
	// SetNextFire re-arms a reminder and resets nag_count.
	SetNextFire(ctx context.Context, id string, next time.Time) error
	ResetNagCount(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status models.Status) error
	// GetByShortCode matches case-insensitively and returns ErrNotFound on a miss.
	GetByShortCode(ctx context.Context, code string) (*models.Reminder, error)
	ListActive(ctx context.Context) ([]*models.Reminder, error)
	ListActiveRecurring(ctx context.Context) ([]*models.Reminder, error)
	GetTimezone(ctx context.Context) (string, error)
	SetTimezone(ctx context.Context, tz string) error
	// Create returns ErrDuplicateShortCode if the short code is taken.
	Create(ctx context.Context, r *models.Reminder) error
	Close() error
}
