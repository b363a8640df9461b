package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/NagLine/internal/models"
	"github.com/jmhodges/clock"
	"github.com/sashabaranov/go-openai"
)

// Kind tells the caller what the user asked for.
type Kind string

const (
	KindReminder       Kind = "reminder"
	KindTimezoneChange Kind = "timezone_change"
	KindClarification  Kind = "clarification"
)

var ErrEmptyResponse = errors.New("no response from AI")

// Defaults are shown to the model so it can fill in omitted values the way
// the user configured them.
type Defaults struct {
	FuzzyMinutes       int    `json:"fuzzy_minutes"`
	StrictByDefault    bool   `json:"strict_by_default"`
	NagIntervalMinutes int    `json:"nag_interval_minutes"`
	MaxNagAttempts     int    `json:"max_nag_attempts"`
	Timezone           string `json:"timezone"`
}

// Result is one parsed chat message.
type Result struct {
	Kind     Kind
	Draft    models.Draft // KindReminder
	Timezone string       // KindTimezoneChange
	Question string       // KindClarification
	Raw      string
}

type Client struct {
	client   *openai.Client
	model    string
	defaults Defaults
	clock    clock.Clock
}

func New(apiKey, baseURL, model string, defaults Defaults, clk clock.Clock) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client:   openai.NewClientWithConfig(config),
		model:    model,
		defaults: defaults,
		clock:    clk,
	}
}

const systemPrompt = `You turn chat messages into reminder requests for a personal nagging reminder bot.

Reply with one JSON object matching the schema. Set "type" to:
- "reminder" when the user wants to be reminded of something.
- "timezone_change" when the user says where they are or which timezone to use. Put the IANA name in "timezone".
- "clarification" when the request is too vague to schedule. Put a short question in "question".

For reminders:
- "message" is what to remind about, short and imperative ("Take meds").
- "schedule_type" is "once" for a single moment, "recurring" for a repeating time of day, "random" for "sometime between X and Y".
- once: "fire_at" is an absolute ISO 8601 UTC instant. Resolve relative times ("in 2 hours", "tomorrow 9am") against current_time in the user's timezone.
- recurring: "time_of_day" is local HH:MM (24h) and "recurrence" is one of daily, weekdays, weekly, monthly. Weekly and monthly repeat on the weekday or day of month of "fire_at" when given, so set "fire_at" to the first occurrence.
- random: "window_start" and "window_end" are ISO 8601 UTC instants.
- "fuzzy" is true when exact timing does not matter ("around 3pm"), false when the user is strict ("at exactly 3pm"), null to use the defaults.
- "nag" is true when the user wants to be nagged until they confirm (words like "nag", "make sure", "don't let me forget").
- "short_code" is 2-6 uppercase letters naming the reminder (MEDS, GYM, CALLMOM).
Use null for anything that does not apply.`

// JSON Schema for structured output. Strict mode requires every property
// to be listed as required, so optional values are nullable instead.
var reminderSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"type": {"type": "string", "enum": ["reminder", "timezone_change", "clarification"]},
		"message": {"type": ["string", "null"]},
		"schedule_type": {"type": ["string", "null"], "enum": ["once", "recurring", "random", null]},
		"fire_at": {"type": ["string", "null"], "description": "ISO 8601 UTC"},
		"time_of_day": {"type": ["string", "null"], "description": "HH:MM local"},
		"recurrence": {"type": ["string", "null"], "enum": ["daily", "weekdays", "weekly", "monthly", null]},
		"window_start": {"type": ["string", "null"], "description": "ISO 8601 UTC"},
		"window_end": {"type": ["string", "null"], "description": "ISO 8601 UTC"},
		"fuzzy": {"type": ["boolean", "null"]},
		"fuzzy_minutes": {"type": ["integer", "null"]},
		"nag": {"type": ["boolean", "null"]},
		"nag_interval_minutes": {"type": ["integer", "null"]},
		"short_code": {"type": ["string", "null"]},
		"timezone": {"type": ["string", "null"]},
		"question": {"type": ["string", "null"]}
	},
	"required": ["type", "message", "schedule_type", "fire_at", "time_of_day", "recurrence", "window_start", "window_end", "fuzzy", "fuzzy_minutes", "nag", "nag_interval_minutes", "short_code", "timezone", "question"],
	"additionalProperties": false
}`)

// Parse asks the model to interpret text for a user in timezone tz.
func (c *Client) Parse(ctx context.Context, text, tz string) (*Result, error) {
	defaults, err := json.Marshal(c.defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	userMessage := fmt.Sprintf("Request: %q\ncurrent_time: %s\ntimezone: %s\ndefaults: %s",
		text, c.clock.Now().UTC().Format(time.RFC3339), tz, defaults)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessage,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "reminder_request",
				Schema: reminderSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return Decode(resp.Choices[0].Message.Content)
}
