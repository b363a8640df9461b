package models

import "time"

type ScheduleType string

const (
	ScheduleOnce      ScheduleType = "once"
	ScheduleRecurring ScheduleType = "recurring"
	ScheduleRandom    ScheduleType = "random"
)

func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleOnce, ScheduleRecurring, ScheduleRandom:
		return true
	}
	return false
}

type Recurrence string

const (
	RecurrenceDaily    Recurrence = "daily"
	RecurrenceWeekdays Recurrence = "weekdays"
	RecurrenceWeekly   Recurrence = "weekly"
	RecurrenceMonthly  Recurrence = "monthly"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no lifecycle command other than cancel applies.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

type Reminder struct {
	ID           string       `json:"id"`
	ShortCode    string       `json:"short_code"`
	Message      string       `json:"message"`
	ScheduleType ScheduleType `json:"schedule_type"`
	NextFireAt   time.Time    `json:"next_fire_at"`
	Recurrence   Recurrence   `json:"recurrence,omitempty"`
	TimeOfDay    string       `json:"time_of_day,omitempty"` // HH:MM local
	AnchorDate   string       `json:"anchor_date,omitempty"` // YYYY-MM-DD, first local occurrence
	FuzzyMinutes int          `json:"fuzzy_minutes"`
	WindowStart  *time.Time   `json:"window_start,omitempty"`
	WindowEnd    *time.Time   `json:"window_end,omitempty"`
	NagEnabled   bool         `json:"nag_enabled"`
	NagInterval  int          `json:"nag_interval"` // minutes
	NagCount     int          `json:"nag_count"`
	Status       Status       `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	LastFiredAt  *time.Time   `json:"last_fired_at,omitempty"`
}

// IsRecurring returns true if the reminder re-arms after firing
func (r *Reminder) IsRecurring() bool {
	return r.ScheduleType == ScheduleRecurring
}

// NeedsAck reports whether delivered messages should carry a dismiss hint.
func (r *Reminder) NeedsAck() bool {
	return r.NagEnabled || r.IsRecurring()
}

// Draft is a reminder request produced by the intake layer, before the
// first fire time and short code are assigned.
type Draft struct {
	Message      string
	ScheduleType ScheduleType
	FireAt       *time.Time
	TimeOfDay    string
	Recurrence   Recurrence
	WindowStart  *time.Time
	WindowEnd    *time.Time
	Fuzzy        *bool
	FuzzyMinutes int
	Nag          bool
	NagInterval  int
	ShortCode    string
}
