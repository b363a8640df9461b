// Package schedule computes fire times: recurring wall-clock occurrences in a
// timezone, jitter around a base instant and random picks inside a window.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/NagLine/internal/models"
)

const (
	// An occurrence must be at least this far after the reference time so a
	// reminder that just fired is never re-armed onto itself.
	minLead = time.Minute

	// Monthly rules clamped to day 31 need at most two months of day steps.
	maxDaySteps = 64

	anchorLayout = "2006-01-02"
)

// InvalidScheduleError reports a malformed time of day, unknown timezone or
// inconsistent recurrence fields.
type InvalidScheduleError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidScheduleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid schedule: %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid schedule: %s %q", e.Field, e.Value)
}

func (e *InvalidScheduleError) Unwrap() error { return e.Err }

func invalid(field, value string, err error) error {
	return &InvalidScheduleError{Field: field, Value: value, Err: err}
}

// Recurrence describes a recurring wall-clock time.
//
// AnchorDate is the local civil date of the first occurrence. Weekly rules
// fire on its weekday and monthly rules on its day of month (clamped to the
// month length). An empty anchor lets weekly and monthly rules match any day.
type Recurrence struct {
	TimeOfDay  string
	Pattern    models.Recurrence
	AnchorDate string
}

// FromReminder extracts the recurrence of a recurring reminder.
func FromReminder(r *models.Reminder) Recurrence {
	return Recurrence{TimeOfDay: r.TimeOfDay, Pattern: r.Recurrence, AnchorDate: r.AnchorDate}
}

// NextOccurrence returns the earliest instant at least one minute after
// `after` whose wall clock in timezone reads timeOfDay on a day accepted by
// pattern. Weekly and monthly patterns are not anchored here.
func NextOccurrence(timeOfDay string, pattern models.Recurrence, timezone string, after time.Time) (time.Time, error) {
	return Recurrence{TimeOfDay: timeOfDay, Pattern: pattern}.Next(timezone, after)
}

// Next returns the next occurrence strictly after `after` (plus the one
// minute lead). Each local date contributes at most one occurrence: on a
// fall-back date the first of the two matching instants is used, and a time
// inside a spring-forward gap fires at the equivalent instant after the gap.
func (r Recurrence) Next(timezone string, after time.Time) (time.Time, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseTimeOfDay(r.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	accept, err := r.dayFilter()
	if err != nil {
		return time.Time{}, err
	}

	earliest := after.Add(minLead)
	local := after.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	for i := 0; i < maxDaySteps; i++ {
		day := start.AddDate(0, 0, i)
		if !accept(day) {
			continue
		}
		t := resolveWallClock(day, hour, minute, loc)
		if t.Before(earliest) {
			continue
		}
		return t, nil
	}
	return time.Time{}, invalid("recurrence", string(r.Pattern), fmt.Errorf("no occurrence within %d days", maxDaySteps))
}

// resolveWallClock converts a local (date, hour, minute) into an instant.
// The zone offsets on either side of the date are probed; the earliest
// instant whose local reading matches wins. When none matches the time falls
// into a gap and the pre-transition offset is used, which lands just after it.
func resolveWallClock(day time.Time, hour, minute int, loc *time.Location) time.Time {
	wall := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)

	_, before := wall.Add(-24 * time.Hour).In(loc).Zone()
	_, after := wall.Add(24 * time.Hour).In(loc).Zone()

	var best time.Time
	for _, off := range []int{before, after} {
		t := wall.Add(-time.Duration(off) * time.Second)
		lt := t.In(loc)
		if lt.Year() != day.Year() || lt.Month() != day.Month() || lt.Day() != day.Day() ||
			lt.Hour() != hour || lt.Minute() != minute {
			continue
		}
		if best.IsZero() || t.Before(best) {
			best = t
		}
	}
	if !best.IsZero() {
		return best
	}
	return wall.Add(-time.Duration(before) * time.Second)
}

func (r Recurrence) dayFilter() (func(day time.Time) bool, error) {
	anchor, hasAnchor, err := r.anchor()
	if err != nil {
		return nil, err
	}

	switch r.Pattern {
	case models.RecurrenceDaily:
		return func(time.Time) bool { return true }, nil
	case models.RecurrenceWeekdays:
		return func(day time.Time) bool {
			wd := day.Weekday()
			return wd != time.Saturday && wd != time.Sunday
		}, nil
	case models.RecurrenceWeekly:
		if !hasAnchor {
			return func(time.Time) bool { return true }, nil
		}
		want := anchor.Weekday()
		return func(day time.Time) bool { return day.Weekday() == want }, nil
	case models.RecurrenceMonthly:
		if !hasAnchor {
			return func(time.Time) bool { return true }, nil
		}
		want := anchor.Day()
		return func(day time.Time) bool {
			return day.Day() == min(want, daysIn(day.Year(), day.Month()))
		}, nil
	default:
		return nil, invalid("recurrence", string(r.Pattern), nil)
	}
}

func (r Recurrence) anchor() (time.Time, bool, error) {
	if strings.TrimSpace(r.AnchorDate) == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(anchorLayout, r.AnchorDate)
	if err != nil {
		return time.Time{}, false, invalid("anchor_date", r.AnchorDate, err)
	}
	return t, true, nil
}

// AnchorFor returns the local civil date of t, formatted for AnchorDate.
func AnchorFor(t time.Time, timezone string) (string, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format(anchorLayout), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", strings.TrimSpace(s))
	if perr != nil {
		return 0, 0, invalid("time_of_day", s, perr)
	}
	return t.Hour(), t.Minute(), nil
}

// LoadLocation resolves an IANA timezone name. Unlike time.LoadLocation an
// empty name is rejected instead of meaning UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("timezone", name, nil)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalid("timezone", name, err)
	}
	return loc, nil
}
