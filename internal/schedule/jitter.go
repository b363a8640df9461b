package schedule

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// MaxFuzzyMinutes caps the jitter budget at one day either side.
const MaxFuzzyMinutes = 24 * 60

// Randomizer produces jittered and windowed instants. A nil *Randomizer
// draws from the global math/rand/v2 source.
type Randomizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomizer returns a Randomizer over src. Pass a seeded source in tests.
func NewRandomizer(src rand.Source) *Randomizer {
	return &Randomizer{rnd: rand.New(src)}
}

// int64n returns a uniform value in [0, n).
func (r *Randomizer) int64n(n int64) int64 {
	if r == nil || r.rnd == nil {
		return rand.Int64N(n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Int64N(n)
}

// ApplyJitter shifts base by a uniform offset in [-fuzzyMinutes, +fuzzyMinutes]
// minutes. Non-positive budgets return base unchanged; larger ones are capped at
// MaxFuzzyMinutes.
func (r *Randomizer) ApplyJitter(base time.Time, fuzzyMinutes int) time.Time {
	if fuzzyMinutes <= 0 {
		return base
	}
	fuzzyMinutes = min(fuzzyMinutes, MaxFuzzyMinutes)
	span := int64(time.Duration(fuzzyMinutes) * time.Minute)
	return base.Add(time.Duration(r.int64n(2*span+1) - span))
}

// PickInWindow returns a uniform instant in [start, end]. A window with
// end <= start yields start.
func (r *Randomizer) PickInWindow(start, end time.Time) time.Time {
	if !end.After(start) {
		return start
	}
	width := int64(end.Sub(start))
	if width < math.MaxInt64 {
		width++
	}
	return start.Add(time.Duration(r.int64n(width)))
}

func ApplyJitter(base time.Time, fuzzyMinutes int) time.Time {
	return (*Randomizer)(nil).ApplyJitter(base, fuzzyMinutes)
}

func PickInWindow(start, end time.Time) time.Time {
	return (*Randomizer)(nil).PickInWindow(start, end)
}
