package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/NagLine/internal/models"
	"github.com/hray3182/NagLine/internal/reminder"
	"github.com/hray3182/NagLine/internal/repository"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
	fail     func(text string) error
}

func (r *recorder) Deliver(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(text); err != nil {
			return err
		}
	}
	r.messages = append(r.messages, text)
	return nil
}

func (r *recorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type harness struct {
	sched *Scheduler
	svc   *reminder.Service
	store reminder.Store
	clock clock.FakeClock
	out   *recorder
}

func newHarness(t *testing.T, tz string, start time.Time) *harness {
	t.Helper()
	store, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nag.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewFake()
	clk.Set(start)

	svc := reminder.NewService(store, clk, reminder.Defaults{
		StrictByDefault:    true,
		NagIntervalMinutes: 15,
		Timezone:           tz,
	}, zerolog.Nop())

	out := &recorder{}
	sched := New(store, svc, out, clk, Config{
		TickInterval:   time.Hour,
		MaxNagAttempts: 3,
	}, zerolog.Nop())
	return &harness{sched: sched, svc: svc, store: store, clock: clk, out: out}
}

func (h *harness) create(t *testing.T, d models.Draft) *models.Reminder {
	t.Helper()
	r, err := h.svc.Create(context.Background(), d)
	require.NoError(t, err)
	return r
}

func (h *harness) get(t *testing.T, code string) *models.Reminder {
	t.Helper()
	r, err := h.store.GetByShortCode(context.Background(), code)
	require.NoError(t, err)
	return r
}

func TestOnceReminderFiresOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "UTC", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	at := h.clock.Now().Add(-5 * time.Minute)
	h.create(t, models.Draft{Message: "take out pizza", ScheduleType: models.ScheduleOnce, FireAt: &at, ShortCode: "PIZZA"})

	due, err := h.store.GetDue(ctx, h.clock.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.True(t, h.sched.Tick(ctx))
	assert.Equal(t, []string{"🔔 take out pizza"}, h.out.sent())

	due, err = h.store.GetDue(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	got := h.get(t, "PIZZA")
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, 1, got.NagCount)
	require.NotNil(t, got.LastFiredAt)

	h.clock.Add(time.Hour)
	h.sched.Tick(ctx)
	assert.Len(t, h.out.sent(), 1)
}

func TestNagUntilBudgetExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "UTC", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	at := h.clock.Now()
	h.create(t, models.Draft{Message: "pay rent", ScheduleType: models.ScheduleOnce, FireAt: &at, ShortCode: "RENT", Nag: true})

	h.sched.Tick(ctx)
	h.sched.Tick(ctx)
	require.Equal(t, []string{"🔔 pay rent\n/done RENT to dismiss"}, h.out.sent())

	h.clock.Add(14 * time.Minute)
	h.sched.Tick(ctx)
	assert.Len(t, h.out.sent(), 1, "interval not elapsed yet")

	h.clock.Add(time.Minute)
	h.sched.Tick(ctx)
	require.Len(t, h.out.sent(), 2)
	assert.Equal(t, "🔔 Still waiting: pay rent\n/done RENT to dismiss", h.out.sent()[1])

	h.clock.Add(15 * time.Minute)
	h.sched.Tick(ctx)
	assert.Len(t, h.out.sent(), 3)
	assert.Equal(t, 3, h.get(t, "RENT").NagCount)

	// Budget of three deliveries is spent.
	h.clock.Add(time.Hour)
	h.sched.Tick(ctx)
	assert.Len(t, h.out.sent(), 3)
	assert.Equal(t, models.StatusActive, h.get(t, "RENT").Status)

	_, err := h.svc.Acknowledge(ctx, "rent")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, h.get(t, "RENT").Status)
}

func TestAcknowledgeStopsNagging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "UTC", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	at := h.clock.Now()
	h.create(t, models.Draft{Message: "call bank", ScheduleType: models.ScheduleOnce, FireAt: &at, ShortCode: "BANK", Nag: true})

	h.sched.Tick(ctx)
	_, err := h.svc.Acknowledge(ctx, "BANK")
	require.NoError(t, err)

	h.clock.Add(time.Hour)
	h.sched.Tick(ctx)
	assert.Len(t, h.out.sent(), 1)
}

func TestRecurringDailyReArmsAcrossFallBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const newYork = "America/New_York"
	// 08:00 EDT on the day before the fall-back transition.
	h := newHarness(t, newYork, time.Date(2026, 10, 31, 12, 0, 0, 0, time.UTC))
	r := h.create(t, models.Draft{Message: "vitamins", ScheduleType: models.ScheduleRecurring, TimeOfDay: "09:00", Recurrence: models.RecurrenceDaily, ShortCode: "VIT"})
	require.True(t, r.NextFireAt.Equal(time.Date(2026, 10, 31, 13, 0, 0, 0, time.UTC)))

	h.clock.Set(r.NextFireAt)
	h.sched.Tick(ctx)
	assert.Equal(t, []string{"🔔 vitamins\n/done VIT to dismiss"}, h.out.sent())

	got := h.get(t, "VIT")
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Zero(t, got.NagCount, "re-arming clears the nag counter")
	// 09:00 EST on 2026-11-01 is 14:00Z, 25 hours later.
	assert.True(t, got.NextFireAt.Equal(time.Date(2026, 11, 1, 14, 0, 0, 0, time.UTC)), "got %v", got.NextFireAt)

	loc, err := time.LoadLocation(newYork)
	require.NoError(t, err)
	assert.Equal(t, "09:00", got.NextFireAt.In(loc).Format("15:04"))

	h.clock.Set(got.NextFireAt)
	h.sched.Tick(ctx)
	assert.Len(t, h.out.sent(), 2)
	assert.True(t, h.get(t, "VIT").NextFireAt.Equal(time.Date(2026, 11, 2, 14, 0, 0, 0, time.UTC)))
}

func TestDeliveryFailureLeavesReminderDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "UTC", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	at := h.clock.Now()
	h.create(t, models.Draft{Message: "first", ScheduleType: models.ScheduleOnce, FireAt: &at, ShortCode: "A"})
	later := at.Add(time.Second)
	h.create(t, models.Draft{Message: "second", ScheduleType: models.ScheduleOnce, FireAt: &later, ShortCode: "B"})
	h.clock.Add(time.Minute)

	down := true
	h.out.fail = func(text string) error {
		if down && text == "🔔 first" {
			return errors.New("network unreachable")
		}
		return nil
	}

	h.sched.Tick(ctx)
	assert.Equal(t, []string{"🔔 second"}, h.out.sent(), "a failure does not block later reminders")

	first := h.get(t, "A")
	assert.Nil(t, first.LastFiredAt)
	assert.Zero(t, first.NagCount)
	assert.Equal(t, models.StatusActive, first.Status)

	down = false
	h.sched.Tick(ctx)
	assert.Equal(t, []string{"🔔 second", "🔔 first"}, h.out.sent())
	assert.Equal(t, models.StatusConfirmed, h.get(t, "A").Status)
}

type failingStore struct {
	reminder.Store
	err error
}

func (f *failingStore) GetDue(context.Context, time.Time) ([]*models.Reminder, error) {
	return nil, f.err
}

func TestStoreFailureEndsTick(t *testing.T) {
	t.Parallel()
	out := &recorder{}
	store := &failingStore{err: errors.New("database is locked")}
	sched := New(store, nil, out, clock.NewFake(), Config{MaxNagAttempts: 3}, zerolog.Nop())

	assert.True(t, sched.Tick(context.Background()))
	assert.Empty(t, out.sent())

	err := sched.tick(context.Background())
	var tickErr *TickError
	require.True(t, errors.As(err, &tickErr))
	assert.Equal(t, "due", tickErr.Phase)
	assert.ErrorIs(t, err, store.err)
}

// flakyRearmStore fails the first SetNextFire call.
type flakyRearmStore struct {
	reminder.Store
	failed bool
}

func (f *flakyRearmStore) SetNextFire(ctx context.Context, id string, next time.Time) error {
	if !f.failed {
		f.failed = true
		return errors.New("database is locked")
	}
	return f.Store.SetNextFire(ctx, id, next)
}

func TestRecurringRefiresAfterFailedRearm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "UTC", time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	h.create(t, models.Draft{
		Message: "meds", ScheduleType: models.ScheduleRecurring,
		TimeOfDay: "09:00", Recurrence: models.RecurrenceDaily, ShortCode: "MEDS",
	})
	h.sched.store = &flakyRearmStore{Store: h.store}

	h.clock.Set(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	require.True(t, h.sched.Tick(ctx))
	require.Len(t, h.out.sent(), 1)
	assert.True(t, h.get(t, "MEDS").NextFireAt.Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)))

	// at-least-once: the occurrence is delivered again and re-armed
	h.clock.Add(time.Minute)
	require.True(t, h.sched.Tick(ctx))
	require.Len(t, h.out.sent(), 2)
	assert.True(t, h.get(t, "MEDS").NextFireAt.Equal(time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)))

	for day := 20; day <= 24; day++ {
		h.clock.Set(time.Date(2026, 10, day, 9, 0, 0, 0, time.UTC))
		require.True(t, h.sched.Tick(ctx))
	}
	assert.Len(t, h.out.sent(), 7)
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "UTC", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	at := h.clock.Now()
	h.create(t, models.Draft{Message: "boom", ScheduleType: models.ScheduleOnce, FireAt: &at})

	h.sched.deliverer = DeliverFunc(func(context.Context, string) error { panic("transport bug") })
	assert.True(t, h.sched.Tick(ctx))

	h.sched.deliverer = h.out
	assert.True(t, h.sched.Tick(ctx), "guard is released after a panic")
	assert.Equal(t, []string{"🔔 boom"}, h.out.sent())
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "UTC", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	at := h.clock.Now()
	h.create(t, models.Draft{Message: "slow", ScheduleType: models.ScheduleOnce, FireAt: &at})

	entered := make(chan struct{})
	release := make(chan struct{})
	h.sched.deliverer = DeliverFunc(func(context.Context, string) error {
		close(entered)
		<-release
		return nil
	})

	finished := make(chan bool)
	go func() { finished <- h.sched.Tick(ctx) }()

	<-entered
	assert.False(t, h.sched.Tick(ctx))
	close(release)
	assert.True(t, <-finished)
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "UTC", time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))

	require.NoError(t, h.sched.Stop(ctx))
	assert.False(t, h.sched.Running())

	h.sched.Start(ctx)
	h.sched.Start(ctx)
	assert.True(t, h.sched.Running())

	at := h.clock.Now()
	h.create(t, models.Draft{Message: "ping", ScheduleType: models.ScheduleOnce, FireAt: &at})
	h.sched.Notify()
	require.Eventually(t, func() bool { return len(h.out.sent()) == 1 }, 5*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.sched.Stop(stopCtx))
	assert.False(t, h.sched.Running())
	require.NoError(t, h.sched.Stop(stopCtx))

	h.sched.Start(ctx)
	assert.True(t, h.sched.Running())
	require.NoError(t, h.sched.Stop(stopCtx))
}

func TestNagDueFilter(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time { v := now.Add(-d); return &v }
	s := New(nil, nil, nil, clock.NewFake(), Config{MaxNagAttempts: 3, DefaultNagInterval: 10 * time.Minute}, zerolog.Nop())

	tests := []struct {
		name string
		r    models.Reminder
		want bool
	}{
		{"interval elapsed", models.Reminder{NagEnabled: true, NagInterval: 15, NagCount: 1, LastFiredAt: ago(15 * time.Minute)}, true},
		{"interval not elapsed", models.Reminder{NagEnabled: true, NagInterval: 15, NagCount: 1, LastFiredAt: ago(14 * time.Minute)}, false},
		{"budget exhausted", models.Reminder{NagEnabled: true, NagInterval: 15, NagCount: 3, LastFiredAt: ago(time.Hour)}, false},
		{"never fired", models.Reminder{NagEnabled: true, NagInterval: 15, NagCount: 1}, false},
		{"nag disabled", models.Reminder{NagInterval: 15, NagCount: 1, LastFiredAt: ago(time.Hour)}, false},
		{"paused", models.Reminder{NagEnabled: true, NagInterval: 15, NagCount: 1, LastFiredAt: ago(time.Hour), Status: models.StatusPaused}, false},
		{"default interval", models.Reminder{NagEnabled: true, NagCount: 1, LastFiredAt: ago(10 * time.Minute)}, true},
	}
	for _, tt := range tests {
		r := tt.r
		if r.Status == "" {
			r.Status = models.StatusActive
		}
		got := s.nagDue([]*models.Reminder{&r}, now)
		assert.Equal(t, tt.want, len(got) == 1, tt.name)
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()
	once := &models.Reminder{ShortCode: "TEA", Message: "steep tea", ScheduleType: models.ScheduleOnce}
	assert.Equal(t, "🔔 steep tea", DueMessage(once))

	once.NagEnabled = true
	assert.Equal(t, "🔔 steep tea\n/done TEA to dismiss", DueMessage(once))
	assert.Equal(t, "🔔 Still waiting: steep tea\n/done TEA to dismiss", NagMessage(once))

	daily := &models.Reminder{ShortCode: "MEDS", Message: "meds", ScheduleType: models.ScheduleRecurring}
	assert.Equal(t, "🔔 meds\n/done MEDS to dismiss", DueMessage(daily))
}
