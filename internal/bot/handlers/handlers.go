package handlers

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jmhodges/clock"
	"github.com/rs/zerolog"

	"github.com/hray3182/NagLine/internal/ai"
	"github.com/hray3182/NagLine/internal/command"
	"github.com/hray3182/NagLine/internal/models"
	"github.com/hray3182/NagLine/internal/reminder"
	"github.com/hray3182/NagLine/internal/schedule"
)

// Service is the reminder lifecycle used by the chat handlers.
type Service interface {
	Create(ctx context.Context, d models.Draft) (*models.Reminder, error)
	Acknowledge(ctx context.Context, code string) (*models.Reminder, error)
	Cancel(ctx context.Context, code string) (*models.Reminder, error)
	Pause(ctx context.Context, code string) (*models.Reminder, error)
	Resume(ctx context.Context, code string) (*reminder.ResumeResult, error)
	Timezone(ctx context.Context) (string, error)
	SetTimezone(ctx context.Context, tz string) (int, error)
	ListActive(ctx context.Context) ([]*models.Reminder, error)
	Upcoming(ctx context.Context, code string, n int) (*models.Reminder, []time.Time, error)
}

// Parser turns free text into a reminder request.
type Parser interface {
	Parse(ctx context.Context, text, tz string) (*ai.Result, error)
}

// Backuper writes a consistent database copy to path.
type Backuper interface {
	Backup(ctx context.Context, path string) error
}

// Replier sends messages back to the locked chat.
type Replier interface {
	Deliver(ctx context.Context, text string) error
	SendDocument(ctx context.Context, path, caption string) error
}

type Handlers struct {
	svc     Service
	parser  Parser   // nil disables free-text intake
	backup  Backuper // nil when the store cannot back up
	reply   Replier
	clock   clock.Clock
	log     zerolog.Logger
	notify  func()
	tempDir string
}

func New(svc Service, parser Parser, backup Backuper, reply Replier, clk clock.Clock, logger zerolog.Logger) *Handlers {
	return &Handlers{
		svc:     svc,
		parser:  parser,
		backup:  backup,
		reply:   reply,
		clock:   clk,
		log:     logger.With().Str("component", "handlers").Logger(),
		notify:  func() {},
		tempDir: os.TempDir(),
	}
}

// OnScheduleChange registers fn to run after a reminder was created or
// resumed, so the scheduler can look at it without waiting for a tick.
func (h *Handlers) OnScheduleChange(fn func()) {
	h.notify = fn
}

// SetTempDir sets where backups are written before upload.
func (h *Handlers) SetTempDir(dir string) {
	h.tempDir = dir
}

// Handle routes one chat message.
func (h *Handlers) Handle(ctx context.Context, text string) {
	if command.IsCommand(text) {
		h.HandleCommand(ctx, command.Parse(text))
		return
	}
	h.HandleMessage(ctx, text)
}

func (h *Handlers) send(ctx context.Context, text string) {
	if err := h.reply.Deliver(ctx, text); err != nil {
		h.log.Error().Err(err).Msg("failed to send reply")
	}
}

// sendError answers err the way the user should see it. Unexpected errors
// are logged and replaced by a generic message.
func (h *Handlers) sendError(ctx context.Context, err error) {
	var (
		notFound   *reminder.NotFoundError
		transition *reminder.TransitionError
		invalid    *schedule.InvalidScheduleError
	)
	switch {
	case errors.As(err, &notFound):
		h.send(ctx, "No reminder found with code "+notFound.Code+".")
	case errors.As(err, &transition):
		h.send(ctx, "⚠️ "+capitalize(transition.Error())+".")
	case errors.As(err, &invalid):
		h.send(ctx, "Failed: "+invalid.Error())
	default:
		h.log.Error().Err(err).Msg("error handling message")
		h.send(ctx, "An error occurred processing your request.")
	}
}

// localTime renders t in the user's timezone, falling back to UTC.
func localTime(t time.Time, tz string) string {
	loc, err := schedule.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon Jan 2 15:04 MST")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
