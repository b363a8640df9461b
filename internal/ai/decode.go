package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/NagLine/internal/models"
)

// response is the wire shape of reminderSchema.
type response struct {
	Type               Kind    `json:"type"`
	Message            *string `json:"message"`
	ScheduleType       *string `json:"schedule_type"`
	FireAt             *string `json:"fire_at"`
	TimeOfDay          *string `json:"time_of_day"`
	Recurrence         *string `json:"recurrence"`
	WindowStart        *string `json:"window_start"`
	WindowEnd          *string `json:"window_end"`
	Fuzzy              *bool   `json:"fuzzy"`
	FuzzyMinutes       *int    `json:"fuzzy_minutes"`
	Nag                *bool   `json:"nag"`
	NagIntervalMinutes *int    `json:"nag_interval_minutes"`
	ShortCode          *string `json:"short_code"`
	Timezone           *string `json:"timezone"`
	Question           *string `json:"question"`
}

// Decode maps a model reply to a Result. Markdown code fences around the
// JSON are tolerated since not every provider honours the response format.
func Decode(content string) (*Result, error) {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	result := &Result{Kind: resp.Type, Raw: content}
	switch resp.Type {
	case KindClarification:
		result.Question = str(resp.Question)
		if result.Question == "" {
			result.Question = "Please provide more details."
		}
	case KindTimezoneChange:
		result.Timezone = str(resp.Timezone)
		if result.Timezone == "" {
			return nil, fmt.Errorf("timezone_change without timezone")
		}
	case KindReminder:
		draft, err := resp.draft()
		if err != nil {
			return nil, err
		}
		result.Draft = draft
	default:
		return nil, fmt.Errorf("unknown response type %q", resp.Type)
	}
	return result, nil
}

func (r *response) draft() (models.Draft, error) {
	d := models.Draft{
		Message:      str(r.Message),
		ScheduleType: models.ScheduleType(str(r.ScheduleType)),
		TimeOfDay:    str(r.TimeOfDay),
		Recurrence:   models.Recurrence(str(r.Recurrence)),
		Fuzzy:        r.Fuzzy,
		ShortCode:    str(r.ShortCode),
	}
	// Empty falls back to once downstream.
	if d.ScheduleType != "" && !d.ScheduleType.Valid() {
		return d, fmt.Errorf("unknown schedule_type %q", d.ScheduleType)
	}
	if r.FuzzyMinutes != nil {
		d.FuzzyMinutes = *r.FuzzyMinutes
	}
	if r.Nag != nil {
		d.Nag = *r.Nag
	}
	if r.NagIntervalMinutes != nil {
		d.NagInterval = *r.NagIntervalMinutes
	}

	var err error
	if d.FireAt, err = instant("fire_at", r.FireAt); err != nil {
		return d, err
	}
	if d.WindowStart, err = instant("window_start", r.WindowStart); err != nil {
		return d, err
	}
	if d.WindowEnd, err = instant("window_end", r.WindowEnd); err != nil {
		return d, err
	}
	return d, nil
}

func instant(field string, v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s %q: %w", field, *v, err)
	}
	t = t.UTC()
	return &t, nil
}

func str(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
