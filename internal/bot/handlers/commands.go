package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hray3182/NagLine/internal/command"
	"github.com/hray3182/NagLine/internal/models"
	"github.com/hray3182/NagLine/internal/schedule"
)

const previewCount = 5

const helpText = `**Commands**
/list - active reminders
/done <CODE> - confirm a reminder
/cancel <CODE> - cancel a reminder
/pause <CODE> - pause a reminder
/resume <CODE> - resume a paused reminder
/next <CODE> - upcoming fire times
/timezone <tz> - show or change the timezone
/backup - download the database

Or just speak naturally! "Remind me to call John tomorrow at 3pm"`

func (h *Handlers) HandleCommand(ctx context.Context, cmd command.Command) {
	switch c := cmd.(type) {
	case command.Done:
		h.handleDone(ctx, c)
	case command.Cancel:
		h.handleCancel(ctx, c)
	case command.Pause:
		h.handlePause(ctx, c)
	case command.Resume:
		h.handleResume(ctx, c)
	case command.List:
		h.handleList(ctx)
	case command.Timezone:
		h.handleTimezone(ctx, c)
	case command.Next:
		h.handleNext(ctx, c)
	case command.Backup:
		h.handleBackup(ctx)
	case command.Help:
		h.send(ctx, helpText)
	case command.Unknown:
		h.send(ctx, fmt.Sprintf("Unknown command: %s", c.Name))
	}
}

func (h *Handlers) handleDone(ctx context.Context, c command.Done) {
	if c.Code == "" {
		h.send(ctx, "Usage: /done <CODE>")
		return
	}
	r, err := h.svc.Acknowledge(ctx, c.Code)
	if err != nil {
		h.sendError(ctx, err)
		return
	}
	if r.IsRecurring() {
		h.send(ctx, fmt.Sprintf("✓ %s acknowledged. It will remind you again next time.", r.ShortCode))
		return
	}
	h.send(ctx, fmt.Sprintf("✓ %s confirmed.", r.ShortCode))
}

func (h *Handlers) handleCancel(ctx context.Context, c command.Cancel) {
	if c.Code == "" {
		h.send(ctx, "Usage: /cancel <CODE>")
		return
	}
	r, err := h.svc.Cancel(ctx, c.Code)
	if err != nil {
		h.sendError(ctx, err)
		return
	}
	h.send(ctx, fmt.Sprintf("🚫 %s cancelled.", r.ShortCode))
}

func (h *Handlers) handlePause(ctx context.Context, c command.Pause) {
	if c.Code == "" {
		h.send(ctx, "Usage: /pause <CODE>")
		return
	}
	r, err := h.svc.Pause(ctx, c.Code)
	if err != nil {
		h.sendError(ctx, err)
		return
	}
	h.send(ctx, fmt.Sprintf("⏸️ %s paused.", r.ShortCode))
}

func (h *Handlers) handleResume(ctx context.Context, c command.Resume) {
	if c.Code == "" {
		h.send(ctx, "Usage: /resume <CODE>")
		return
	}
	res, err := h.svc.Resume(ctx, c.Code)
	if err != nil {
		h.sendError(ctx, err)
		return
	}
	h.notify()

	code := res.Reminder.ShortCode
	if res.PastDue {
		h.send(ctx, fmt.Sprintf("⚠️ %s is now active but its scheduled time is in the past!", code))
	}
	h.send(ctx, fmt.Sprintf("▶️ %s resumed.", code))
}

func (h *Handlers) handleList(ctx context.Context) {
	reminders, err := h.svc.ListActive(ctx)
	if err != nil {
		h.sendError(ctx, err)
		return
	}
	if len(reminders) == 0 {
		h.send(ctx, "No active reminders.")
		return
	}
	tz, err := h.svc.Timezone(ctx)
	if err != nil {
		h.sendError(ctx, err)
		return
	}

	var sb strings.Builder
	sb.WriteString("**Active Reminders**\n\n")
	for _, r := range reminders {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", r.ShortCode, r.Message))
		sb.WriteString(fmt.Sprintf("  Next: %s", localTime(r.NextFireAt, tz)))
		if r.IsRecurring() {
			sb.WriteString(" (" + schedule.Describe(schedule.FromReminder(r)) + ")")
		}
		sb.WriteString("\n")
	}
	h.send(ctx, sb.String())
}

func (h *Handlers) handleTimezone(ctx context.Context, c command.Timezone) {
	if c.Zone == "" {
		tz, err := h.svc.Timezone(ctx)
		if err != nil {
			h.sendError(ctx, err)
			return
		}
		h.send(ctx, fmt.Sprintf("Current timezone: %s\nUsage: /timezone America/New_York", tz))
		return
	}
	if _, err := schedule.LoadLocation(c.Zone); err != nil {
		h.send(ctx, fmt.Sprintf("Invalid timezone: %s", c.Zone))
		return
	}
	h.changeTimezone(ctx, c.Zone)
}

func (h *Handlers) changeTimezone(ctx context.Context, tz string) {
	n, err := h.svc.SetTimezone(ctx, tz)
	if err != nil {
		h.sendError(ctx, err)
		return
	}
	h.notify()
	h.send(ctx, fmt.Sprintf("Timezone updated to %s. Recalculated %d active recurring reminders.", tz, n))
}

func (h *Handlers) handleNext(ctx context.Context, c command.Next) {
	if c.Code == "" {
		h.send(ctx, "Usage: /next <CODE>")
		return
	}
	r, times, err := h.svc.Upcoming(ctx, c.Code, previewCount)
	if err != nil {
		h.sendError(ctx, err)
		return
	}
	tz, err := h.svc.Timezone(ctx)
	if err != nil {
		h.sendError(ctx, err)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s**: %s\n", r.ShortCode, r.Message))
	switch r.ScheduleType {
	case models.ScheduleRecurring:
		sb.WriteString("Repeats " + schedule.Describe(schedule.FromReminder(r)))
		if r.FuzzyMinutes > 0 {
			sb.WriteString(fmt.Sprintf(", give or take %d min", r.FuzzyMinutes))
		}
		sb.WriteString("\n")
	case models.ScheduleRandom:
		sb.WriteString("Random time in its window\n")
	}
	if r.Status != models.StatusActive {
		sb.WriteString(fmt.Sprintf("Status: %s\n", r.Status))
	}
	if len(times) == 0 {
		sb.WriteString("No upcoming fire times.")
	}
	for _, t := range times {
		sb.WriteString("- " + localTime(t, tz) + "\n")
	}
	h.send(ctx, sb.String())
}

func (h *Handlers) handleBackup(ctx context.Context) {
	if h.backup == nil {
		h.send(ctx, "Backups are not available for this storage driver.")
		return
	}
	h.send(ctx, "⏳ Generating safe database backup...")

	now := h.clock.Now()
	path := filepath.Join(h.tempDir, fmt.Sprintf("nag-backup-%s.db", now.UTC().Format("20060102T150405.000")))
	defer os.Remove(path)

	if err := h.backup.Backup(ctx, path); err != nil {
		h.log.Error().Err(err).Msg("backup failed")
		h.send(ctx, fmt.Sprintf("❌ Backup failed: %v", err))
		return
	}

	tz, err := h.svc.Timezone(ctx)
	if err != nil {
		tz = "UTC"
	}
	caption := "📦 NagBot Backup - " + localTime(now, tz)
	if err := h.reply.SendDocument(ctx, path, caption); err != nil {
		h.log.Error().Err(err).Msg("failed to upload backup")
		h.send(ctx, fmt.Sprintf("❌ Backup failed: %v", err))
	}
}
