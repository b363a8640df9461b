package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Updates is the polling side of *tgbotapi.BotAPI.
type Updates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler processes the text of one authorised message.
type Handler interface {
	Handle(ctx context.Context, text string)
}

type Bot struct {
	updates Updates
	handler Handler
	sender  *Sender
	log     zerolog.Logger
}

func New(updates Updates, handler Handler, sender *Sender, logger zerolog.Logger) *Bot {
	return &Bot{
		updates: updates,
		handler: handler,
		sender:  sender,
		log:     logger.With().Str("component", "bot").Logger(),
	}
}

// Start polls for updates until ctx is cancelled. Messages are handled one
// at a time so replies keep the order of the requests.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.updates.GetUpdatesChan(u)
	defer b.updates.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if !b.authorize(ctx, msg.Chat.ID) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("handler panicked")
		}
	}()
	b.handler.Handle(ctx, text)
}

// authorize locks the bot to the first chat that writes when no chat was
// configured, and drops messages from any other chat.
func (b *Bot) authorize(ctx context.Context, chatID int64) bool {
	if b.sender.Lock(chatID) {
		b.log.Info().Int64("chat_id", chatID).Msg("auto-discovered chat ID")
		if err := b.sender.Deliver(ctx, "Bot locked to this chat ID. Welcome!"); err != nil {
			b.log.Error().Err(err).Msg("failed to send welcome")
		}
		return true
	}
	if locked := b.sender.ChatID(); locked != chatID {
		b.log.Warn().Int64("chat_id", chatID).Int64("authorized_chat_id", locked).Msg("rejecting unauthorized chat")
		return false
	}
	return true
}
