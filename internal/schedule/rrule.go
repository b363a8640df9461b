package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hray3182/NagLine/internal/models"
)

var weekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Rule expresses the recurrence as an RFC 5545 rule starting on the local
// date of dtstart. It selects the same days as Next.
func (r Recurrence) Rule(timezone string, dtstart time.Time) (*rrule.RRule, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	hour, minute, err := ParseTimeOfDay(r.TimeOfDay)
	if err != nil {
		return nil, err
	}
	anchor, hasAnchor, err := r.anchor()
	if err != nil {
		return nil, err
	}

	local := dtstart.In(loc)
	opt := rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc),
	}

	switch r.Pattern {
	case models.RecurrenceDaily:
	case models.RecurrenceWeekdays:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case models.RecurrenceWeekly:
		if hasAnchor {
			opt.Freq = rrule.WEEKLY
			opt.Byweekday = []rrule.Weekday{weekdays[anchor.Weekday()]}
		}
	case models.RecurrenceMonthly:
		if hasAnchor {
			opt.Freq = rrule.MONTHLY
			day := anchor.Day()
			if day <= 28 {
				opt.Bymonthday = []int{day}
			} else {
				// Last existing day among 28..day, i.e. the anchor clamped to the month.
				for d := 28; d <= day; d++ {
					opt.Bymonthday = append(opt.Bymonthday, d)
				}
				opt.Bysetpos = []int{-1}
			}
		}
	default:
		return nil, invalid("recurrence", string(r.Pattern), nil)
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule: %w", err)
	}
	return rule, nil
}

// Upcoming returns the next n occurrences after `after`, using the same one
// minute lead as Next.
func Upcoming(rec Recurrence, timezone string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	rule, err := rec.Rule(timezone, after)
	if err != nil {
		return nil, err
	}

	earliest := after.Add(minLead)
	var results []time.Time
	iterator := rule.Iterator()
	for i := 0; i < n+maxDaySteps && len(results) < n; i++ {
		next, ok := iterator()
		if !ok {
			break
		}
		if next.Before(earliest) {
			continue
		}
		results = append(results, next)
	}
	return results, nil
}

// Describe returns a short English description such as "every Monday at 09:00".
func Describe(rec Recurrence) string {
	anchor, hasAnchor, _ := rec.anchor()
	switch rec.Pattern {
	case models.RecurrenceDaily:
		return "every day at " + rec.TimeOfDay
	case models.RecurrenceWeekdays:
		return "weekdays at " + rec.TimeOfDay
	case models.RecurrenceWeekly:
		if hasAnchor {
			return fmt.Sprintf("every %s at %s", anchor.Weekday(), rec.TimeOfDay)
		}
		return "weekly at " + rec.TimeOfDay
	case models.RecurrenceMonthly:
		if hasAnchor {
			return fmt.Sprintf("monthly on day %d at %s", anchor.Day(), rec.TimeOfDay)
		}
		return "monthly at " + rec.TimeOfDay
	}
	return "once"
}
