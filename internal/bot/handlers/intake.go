package handlers

import (
	"context"
	"fmt"

	"github.com/hray3182/NagLine/internal/ai"
)

// HandleMessage treats text as a natural-language reminder request.
func (h *Handlers) HandleMessage(ctx context.Context, text string) {
	if h.parser == nil {
		h.send(ctx, "Natural language input is not configured. Use /help for commands.")
		return
	}

	tz, err := h.svc.Timezone(ctx)
	if err != nil {
		h.sendError(ctx, err)
		return
	}
	res, err := h.parser.Parse(ctx, text, tz)
	if err != nil {
		h.log.Error().Err(err).Str("text", text).Msg("failed to parse message")
		h.send(ctx, "Sorry, I couldn't understand that. Try rephrasing, or use /help.")
		return
	}

	switch res.Kind {
	case ai.KindClarification:
		h.send(ctx, res.Question)
	case ai.KindTimezoneChange:
		h.changeTimezone(ctx, res.Timezone)
	case ai.KindReminder:
		r, err := h.svc.Create(ctx, res.Draft)
		if err != nil {
			h.sendError(ctx, err)
			return
		}
		h.notify()
		h.send(ctx, fmt.Sprintf("👍 Recorded. Will remind you `%s`.\nNext: %s", r.ShortCode, localTime(r.NextFireAt, tz)))
	}
}
