package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmhodges/clock"
	"github.com/rs/zerolog"

	"github.com/hray3182/NagLine/internal/models"
	"github.com/hray3182/NagLine/internal/reminder"
	"github.com/hray3182/NagLine/internal/schedule"
)

// Deliverer sends a notification to the user. Deliver returns only after the
// message was accepted by the transport.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

type DeliverFunc func(ctx context.Context, text string) error

func (f DeliverFunc) Deliver(ctx context.Context, text string) error { return f(ctx, text) }

// TimezoneSource yields the timezone used to re-arm recurring reminders.
type TimezoneSource interface {
	Timezone(ctx context.Context) (string, error)
}

type Config struct {
	TickInterval       time.Duration
	MaxNagAttempts     int
	DefaultNagInterval time.Duration
}

type Scheduler struct {
	store     reminder.Store
	timezone  TimezoneSource
	deliverer Deliverer
	clock     clock.Clock
	rnd       *schedule.Randomizer
	log       zerolog.Logger

	interval    time.Duration
	maxNag      int
	nagInterval time.Duration

	notifyCh chan struct{}
	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store reminder.Store, tz TimezoneSource, deliverer Deliverer, clk clock.Clock, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.DefaultNagInterval <= 0 {
		cfg.DefaultNagInterval = 15 * time.Minute
	}
	return &Scheduler{
		store:       store,
		timezone:    tz,
		deliverer:   deliverer,
		clock:       clk,
		log:         logger.With().Str("component", "scheduler").Logger(),
		interval:    cfg.TickInterval,
		maxNag:      cfg.MaxNagAttempts,
		nagInterval: cfg.DefaultNagInterval,
		notifyCh:    make(chan struct{}, 1),
	}
}

// WithRandomizer replaces the jitter source used when re-arming.
func (s *Scheduler) WithRandomizer(r *schedule.Randomizer) *Scheduler {
	s.rnd = r
	return s
}

// Notify triggers an immediate tick. Non-blocking if one is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Start launches the tick loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, context.WithoutCancel(ctx), s.done)

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
}

// Stop ends the tick loop and waits for an in-progress tick to finish, or for
// ctx to expire. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// run drives ticks until loopCtx is cancelled. Ticks use tickCtx, which is
// not cancelled by Stop, so a running tick completes.
func (s *Scheduler) run(loopCtx, tickCtx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(tickCtx)
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			s.Tick(tickCtx)
		case <-s.notifyCh:
			s.log.Debug().Msg("tick triggered by notification")
			s.Tick(tickCtx)
		}
	}
}

// Tick runs one pass over due reminders and nag candidates. It returns false
// without doing anything if another tick is still executing.
func (s *Scheduler) Tick(ctx context.Context) (ran bool) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug().Msg("previous tick still running, skipping")
		return false
	}
	defer s.inFlight.Store(false)

	defer func() {
		if p := recover(); p != nil {
			err := &TickError{Phase: "panic", Err: fmt.Errorf("%v", p)}
			s.log.Error().Err(err).Msg("tick aborted")
			ran = true
		}
	}()

	if err := s.tick(ctx); err != nil {
		s.log.Error().Err(err).Msg("tick aborted")
	}
	return true
}

func (s *Scheduler) tick(ctx context.Context) error {
	now := s.clock.Now()

	due, err := s.store.GetDue(ctx, now)
	if err != nil {
		return &TickError{Phase: "due", Err: err}
	}

	var tz string
	for _, r := range due {
		if r.IsRecurring() && tz == "" {
			if tz, err = s.timezone.Timezone(ctx); err != nil {
				return &TickError{Phase: "timezone", Err: err}
			}
		}
		if err := s.fire(ctx, r, tz, now); err != nil {
			s.log.Error().Err(err).Str("short_code", r.ShortCode).Str("reminder_id", r.ID).Msg("failed to fire reminder")
		}
	}

	candidates, err := s.store.GetNagCandidates(ctx, now)
	if err != nil {
		return &TickError{Phase: "nag", Err: err}
	}
	for _, r := range s.nagDue(candidates, now) {
		if err := s.nag(ctx, r, now); err != nil {
			s.log.Error().Err(err).Str("short_code", r.ShortCode).Str("reminder_id", r.ID).Msg("failed to nag reminder")
		}
	}
	return nil
}

// fire delivers a due reminder, then records the delivery. A failed delivery
// leaves the reminder due for the next tick.
func (s *Scheduler) fire(ctx context.Context, r *models.Reminder, tz string, now time.Time) error {
	if err := s.deliverer.Deliver(ctx, DueMessage(r)); err != nil {
		return &DeliveryError{ReminderID: r.ID, ShortCode: r.ShortCode, Err: err}
	}
	if err := s.store.MarkFired(ctx, r.ID, now); err != nil {
		return fmt.Errorf("failed to mark fired: %w", err)
	}

	switch {
	case r.IsRecurring():
		// Jitter may have fired us before the base time; look past it so the
		// same occurrence is not picked again.
		after := now.Add(time.Duration(r.FuzzyMinutes) * time.Minute)
		base, err := schedule.FromReminder(r).Next(tz, after)
		if err != nil {
			if serr := s.store.SetStatus(ctx, r.ID, models.StatusPaused); serr != nil {
				s.log.Error().Err(serr).Str("short_code", r.ShortCode).Msg("failed to pause unschedulable reminder")
			}
			return fmt.Errorf("failed to re-arm, reminder paused: %w", err)
		}
		next := s.rnd.ApplyJitter(base, r.FuzzyMinutes)
		if err := s.store.SetNextFire(ctx, r.ID, next); err != nil {
			return fmt.Errorf("failed to set next fire: %w", err)
		}
		s.log.Info().Str("short_code", r.ShortCode).Time("next_fire_at", next).Msg("recurring reminder fired")

	case !r.NeedsAck():
		// Nothing asks the user to dismiss it, so it is done.
		if err := s.store.SetStatus(ctx, r.ID, models.StatusConfirmed); err != nil {
			return fmt.Errorf("failed to confirm reminder: %w", err)
		}
		s.log.Info().Str("short_code", r.ShortCode).Msg("reminder fired")

	default:
		s.log.Info().Str("short_code", r.ShortCode).Msg("reminder fired, awaiting acknowledgement")
	}
	return nil
}

func (s *Scheduler) nag(ctx context.Context, r *models.Reminder, now time.Time) error {
	if err := s.deliverer.Deliver(ctx, NagMessage(r)); err != nil {
		return &DeliveryError{ReminderID: r.ID, ShortCode: r.ShortCode, Err: err}
	}
	if err := s.store.MarkFired(ctx, r.ID, now); err != nil {
		return fmt.Errorf("failed to mark nagged: %w", err)
	}
	s.log.Info().Str("short_code", r.ShortCode).Int("attempt", r.NagCount+1).Msg("nag sent")
	return nil
}

// nagDue is the second phase of the nag query: the store returns every active
// nagging reminder that fired at least once, and here the interval and the
// attempt budget are applied.
func (s *Scheduler) nagDue(candidates []*models.Reminder, now time.Time) []*models.Reminder {
	var out []*models.Reminder
	for _, r := range candidates {
		if !r.NagEnabled || r.Status != models.StatusActive || r.LastFiredAt == nil {
			continue
		}
		if r.NagCount >= s.maxNag {
			continue
		}
		interval := time.Duration(r.NagInterval) * time.Minute
		if interval <= 0 {
			interval = s.nagInterval
		}
		if r.LastFiredAt.Add(interval).After(now) {
			continue
		}
		out = append(out, r)
	}
	return out
}
