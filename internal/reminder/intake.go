package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/hray3182/NagLine/internal/models"
	"github.com/hray3182/NagLine/internal/schedule"
)

const maxCodeSuffix = 10000

// Create validates a draft, computes its first fire time, allocates a unique
// short code and stores the reminder as active.
func (s *Service) Create(ctx context.Context, d models.Draft) (*models.Reminder, error) {
	tz, err := s.Timezone(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	r := &models.Reminder{
		ID:           uuid.NewString(),
		Message:      strings.TrimSpace(d.Message),
		ScheduleType: d.ScheduleType,
		NagEnabled:   d.Nag,
		NagInterval:  d.NagInterval,
		Status:       models.StatusActive,
		CreatedAt:    now,
	}
	if r.Message == "" {
		r.Message = defaultMessage
	}
	if r.ScheduleType == "" {
		r.ScheduleType = models.ScheduleOnce
	}
	if r.NagInterval <= 0 {
		r.NagInterval = s.defaults.NagIntervalMinutes
	}

	fuzzy := !s.defaults.StrictByDefault
	if d.Fuzzy != nil {
		fuzzy = *d.Fuzzy
	}
	if fuzzy {
		r.FuzzyMinutes = d.FuzzyMinutes
		if r.FuzzyMinutes <= 0 {
			r.FuzzyMinutes = s.defaults.FuzzyMinutes
		}
		r.FuzzyMinutes = min(r.FuzzyMinutes, schedule.MaxFuzzyMinutes)
	}

	switch r.ScheduleType {
	case models.ScheduleOnce:
		if d.FireAt == nil {
			return nil, &schedule.InvalidScheduleError{Field: "fire_at", Value: ""}
		}
		r.NextFireAt = s.rnd.ApplyJitter(*d.FireAt, r.FuzzyMinutes)

	case models.ScheduleRecurring:
		rec := schedule.Recurrence{TimeOfDay: strings.TrimSpace(d.TimeOfDay), Pattern: d.Recurrence}
		if d.FireAt != nil {
			// The first occurrence date pins the weekday or day of month.
			if rec.AnchorDate, err = schedule.AnchorFor(*d.FireAt, tz); err != nil {
				return nil, err
			}
		}
		first, err := rec.Next(tz, now)
		if err != nil {
			return nil, err
		}
		if rec.AnchorDate == "" {
			if rec.AnchorDate, err = schedule.AnchorFor(first, tz); err != nil {
				return nil, err
			}
		}
		r.Recurrence = rec.Pattern
		r.TimeOfDay = rec.TimeOfDay
		r.AnchorDate = rec.AnchorDate
		r.NextFireAt = s.rnd.ApplyJitter(first, r.FuzzyMinutes)

	case models.ScheduleRandom:
		if d.WindowStart == nil || d.WindowEnd == nil {
			return nil, &schedule.InvalidScheduleError{Field: "window", Value: ""}
		}
		start, end := d.WindowStart.UTC(), d.WindowEnd.UTC()
		r.WindowStart, r.WindowEnd = &start, &end
		r.NextFireAt = s.rnd.PickInWindow(start, end)

	default:
		return nil, &schedule.InvalidScheduleError{Field: "schedule_type", Value: string(r.ScheduleType)}
	}
	r.NextFireAt = r.NextFireAt.UTC()

	if err := s.insert(ctx, r, normalizeCode(d.ShortCode)); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("short_code", r.ShortCode).
		Str("reminder_id", r.ID).
		Str("schedule_type", string(r.ScheduleType)).
		Time("next_fire_at", r.NextFireAt).
		Msg("reminder created")
	return r, nil
}

// insert allocates a free short code derived from base and stores r. Creation
// is single-writer inside the process; the store's unique index covers writers
// outside it, in which case allocation is retried.
func (s *Service) insert(ctx context.Context, r *models.Reminder, base string) error {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		code, err := s.freeCode(ctx, base)
		if err != nil {
			return err
		}
		r.ShortCode = code
		err = s.store.Create(ctx, r)
		if errors.Is(err, ErrDuplicateShortCode) {
			s.log.Warn().Str("short_code", code).Msg("short code taken concurrently, retrying")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create reminder: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to allocate short code for %s: %w", base, ErrDuplicateShortCode)
}

// freeCode returns base if unused, else base1, base2, ...
func (s *Service) freeCode(ctx context.Context, base string) (string, error) {
	for i := 0; i < maxCodeSuffix; i++ {
		code := base
		if i > 0 {
			code = base + strconv.Itoa(i)
		}
		_, err := s.store.GetByShortCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check short code %s: %w", code, err)
		}
	}
	return "", fmt.Errorf("no free short code for %s: %w", base, ErrDuplicateShortCode)
}

func normalizeCode(code string) string {
	code = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, code)
	if code == "" {
		return defaultShortCode
	}
	return code
}
