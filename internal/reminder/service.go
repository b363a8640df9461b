// Package reminder owns the reminder lifecycle: creation from an intake draft,
// acknowledge/cancel/pause/resume, and the timezone setting with its bulk
// recompute of recurring reminders.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/rs/zerolog"

	"github.com/hray3182/NagLine/internal/models"
	"github.com/hray3182/NagLine/internal/schedule"
)

const (
	defaultShortCode = "REM"
	defaultMessage   = "Reminder"
	maxCreateRetries = 5
)

// Defaults are the configured fallbacks applied when a draft leaves a field unset.
type Defaults struct {
	FuzzyMinutes       int
	StrictByDefault    bool
	NagIntervalMinutes int
	Timezone           string
}

type Service struct {
	store    Store
	clock    clock.Clock
	rnd      *schedule.Randomizer
	defaults Defaults
	log      zerolog.Logger

	createMu sync.Mutex
}

func NewService(store Store, clk clock.Clock, defaults Defaults, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		clock:    clk,
		defaults: defaults,
		log:      logger.With().Str("component", "reminder").Logger(),
	}
}

// WithRandomizer replaces the jitter source, mostly for seeded tests.
func (s *Service) WithRandomizer(r *schedule.Randomizer) *Service {
	s.rnd = r
	return s
}

// ResumeResult is returned by Resume. PastDue is set when a one-shot or random
// reminder was resumed with a fire time already behind us; it is rewound to
// now and fires on the next tick. Rearmed is set when a past-due recurring
// reminder was recomputed.
type ResumeResult struct {
	Reminder *models.Reminder
	PastDue  bool
	Rearmed  bool
}

func (s *Service) lookup(ctx context.Context, code string) (*models.Reminder, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &NotFoundError{Code: code}
	}
	r, err := s.store.GetByShortCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, &NotFoundError{Code: strings.ToUpper(code)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder %s: %w", code, err)
	}
	return r, nil
}

// Acknowledge confirms a one-shot or random reminder. A recurring reminder stays
// active and only has its nag counter cleared.
func (s *Service) Acknowledge(ctx context.Context, code string) (*models.Reminder, error) {
	r, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, &TransitionError{Code: r.ShortCode, Action: "acknowledge", Status: r.Status}
	}

	if r.IsRecurring() {
		if err := s.store.ResetNagCount(ctx, r.ID); err != nil {
			return nil, fmt.Errorf("failed to reset nag count: %w", err)
		}
		r.NagCount = 0
		s.log.Info().Str("short_code", r.ShortCode).Msg("recurring reminder acknowledged")
		return r, nil
	}

	if err := s.store.SetStatus(ctx, r.ID, models.StatusConfirmed); err != nil {
		return nil, fmt.Errorf("failed to confirm reminder: %w", err)
	}
	r.Status = models.StatusConfirmed
	s.log.Info().Str("short_code", r.ShortCode).Msg("reminder confirmed")
	return r, nil
}

// Cancel moves a reminder of any status to cancelled. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, code string) (*models.Reminder, error) {
	r, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status == models.StatusCancelled {
		return r, nil
	}
	if err := s.store.SetStatus(ctx, r.ID, models.StatusCancelled); err != nil {
		return nil, fmt.Errorf("failed to cancel reminder: %w", err)
	}
	r.Status = models.StatusCancelled
	s.log.Info().Str("short_code", r.ShortCode).Msg("reminder cancelled")
	return r, nil
}

func (s *Service) Pause(ctx context.Context, code string) (*models.Reminder, error) {
	r, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusActive {
		return nil, &TransitionError{Code: r.ShortCode, Action: "pause", Status: r.Status}
	}
	if err := s.store.SetStatus(ctx, r.ID, models.StatusPaused); err != nil {
		return nil, fmt.Errorf("failed to pause reminder: %w", err)
	}
	r.Status = models.StatusPaused
	s.log.Info().Str("short_code", r.ShortCode).Msg("reminder paused")
	return r, nil
}

// Resume reactivates a paused reminder. A recurring reminder whose fire time
// passed while paused is re-armed from now; other kinds are rewound to now,
// so they fire on the next tick even if they fired before, and reported as
// PastDue.
func (s *Service) Resume(ctx context.Context, code string) (*ResumeResult, error) {
	r, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusPaused {
		return nil, &TransitionError{Code: r.ShortCode, Action: "resume", Status: r.Status}
	}

	result := &ResumeResult{Reminder: r}
	now := s.clock.Now()
	if r.NextFireAt.Before(now) {
		if r.IsRecurring() {
			tz, err := s.Timezone(ctx)
			if err != nil {
				return nil, err
			}
			next, err := s.rearm(ctx, r, tz, now)
			if err != nil {
				return nil, err
			}
			r.NextFireAt = next
			r.NagCount = 0
			result.Rearmed = true
		} else {
			// Rewind to now so a reminder that already fired is due again.
			if err := s.store.SetNextFire(ctx, r.ID, now); err != nil {
				return nil, fmt.Errorf("failed to set next fire: %w", err)
			}
			r.NextFireAt = now
			r.NagCount = 0
			result.PastDue = true
		}
	}

	if err := s.store.SetStatus(ctx, r.ID, models.StatusActive); err != nil {
		return nil, fmt.Errorf("failed to resume reminder: %w", err)
	}
	r.Status = models.StatusActive
	s.log.Info().
		Str("short_code", r.ShortCode).
		Time("next_fire_at", r.NextFireAt).
		Bool("past_due", result.PastDue).
		Msg("reminder resumed")
	return result, nil
}

// rearm computes the next jittered occurrence after now and persists it.
func (s *Service) rearm(ctx context.Context, r *models.Reminder, tz string, now time.Time) (time.Time, error) {
	base, err := schedule.FromReminder(r).Next(tz, now)
	if err != nil {
		return time.Time{}, err
	}
	next := s.rnd.ApplyJitter(base, r.FuzzyMinutes)
	if err := s.store.SetNextFire(ctx, r.ID, next); err != nil {
		return time.Time{}, fmt.Errorf("failed to set next fire: %w", err)
	}
	return next, nil
}

// Timezone returns the persisted timezone, or the configured default when
// none has been set yet.
func (s *Service) Timezone(ctx context.Context) (string, error) {
	tz, err := s.store.GetTimezone(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get timezone: %w", err)
	}
	if tz == "" {
		return s.defaults.Timezone, nil
	}
	return tz, nil
}

// SetTimezone validates and persists tz, then recomputes next_fire_at of every
// active recurring reminder in the new zone. One-shot and random reminders are
// absolute and left alone. It returns how many reminders were recomputed.
func (s *Service) SetTimezone(ctx context.Context, tz string) (int, error) {
	tz = strings.TrimSpace(tz)
	if _, err := schedule.LoadLocation(tz); err != nil {
		return 0, err
	}
	if err := s.store.SetTimezone(ctx, tz); err != nil {
		return 0, fmt.Errorf("failed to set timezone: %w", err)
	}

	reminders, err := s.store.ListActiveRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recurring reminders: %w", err)
	}

	now := s.clock.Now()
	updated := 0
	for _, r := range reminders {
		next, err := s.rearm(ctx, r, tz, now)
		if err != nil {
			s.log.Error().Err(err).Str("short_code", r.ShortCode).Msg("failed to recompute reminder")
			continue
		}
		s.log.Debug().Str("short_code", r.ShortCode).Time("next_fire_at", next).Msg("reminder recomputed")
		updated++
	}

	s.log.Info().Str("timezone", tz).Int("recomputed", updated).Msg("timezone changed")
	return updated, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*models.Reminder, error) {
	reminders, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

// Upcoming previews the next n fire times of a reminder, without jitter.
func (s *Service) Upcoming(ctx context.Context, code string, n int) (*models.Reminder, []time.Time, error) {
	r, err := s.lookup(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if !r.IsRecurring() {
		if r.Status.Terminal() {
			return r, nil, nil
		}
		return r, []time.Time{r.NextFireAt}, nil
	}

	tz, err := s.Timezone(ctx)
	if err != nil {
		return nil, nil, err
	}
	times, err := schedule.Upcoming(schedule.FromReminder(r), tz, s.clock.Now(), n)
	if err != nil {
		return nil, nil, err
	}
	return r, times, nil
}
