package schedule

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyJitterZeroBudget(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, base, ApplyJitter(base, 0))
	assert.Equal(t, base, ApplyJitter(base, -5))
}

func TestApplyJitterBounds(t *testing.T) {
	t.Parallel()
	r := NewRandomizer(rand.NewPCG(1, 2))
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	const fuzzy = 10

	seen := map[time.Time]struct{}{}
	var below, above int
	for i := 0; i < 2000; i++ {
		got := r.ApplyJitter(base, fuzzy)
		require.False(t, got.Before(base.Add(-fuzzy*time.Minute)), "%v below window", got)
		require.False(t, got.After(base.Add(fuzzy*time.Minute)), "%v above window", got)
		seen[got] = struct{}{}
		switch {
		case got.Before(base):
			below++
		case got.After(base):
			above++
		}
	}
	assert.Greater(t, len(seen), 1000, "jitter should not be constant")
	// Symmetric: both sides get a fair share.
	assert.InDelta(t, 1000, below, 150)
	assert.InDelta(t, 1000, above, 150)
}

func TestApplyJitterCapsBudget(t *testing.T) {
	t.Parallel()
	r := NewRandomizer(rand.NewPCG(5, 6))
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	for _, fuzzy := range []int{MaxFuzzyMinutes + 1, 1 << 40, math.MaxInt} {
		for i := 0; i < 200; i++ {
			got := r.ApplyJitter(base, fuzzy)
			require.False(t, got.Before(base.Add(-24*time.Hour)), "fuzzy %d: %v below cap", fuzzy, got)
			require.False(t, got.After(base.Add(24*time.Hour)), "fuzzy %d: %v above cap", fuzzy, got)
		}
	}
}

func TestPickInWindow(t *testing.T) {
	t.Parallel()
	r := NewRandomizer(rand.NewPCG(7, 7))
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	assert.Equal(t, start, r.PickInWindow(start, start))
	assert.Equal(t, start, r.PickInWindow(start, start.Add(-time.Hour)))

	seen := map[time.Time]struct{}{}
	for i := 0; i < 500; i++ {
		got := r.PickInWindow(start, end)
		require.False(t, got.Before(start))
		require.False(t, got.After(end))
		seen[got] = struct{}{}
	}
	assert.Greater(t, len(seen), 400)
}

func TestGlobalRandomizer(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	got := PickInWindow(start, end)
	assert.False(t, got.Before(start))
	assert.False(t, got.After(end))
}
