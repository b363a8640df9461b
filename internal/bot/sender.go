package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hray3182/NagLine/internal/format"
)

// ErrNoChat is returned while no chat has been locked yet.
var ErrNoChat = errors.New("no chat locked")

// API is the part of *tgbotapi.BotAPI the sender needs.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender delivers text to the single locked chat. It implements
// scheduler.Deliverer and is also used for command replies.
type Sender struct {
	api     API
	chatID  atomic.Int64
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewSender wraps api. Telegram allows roughly one message per second per
// chat, so limiter is usually rate.NewLimiter(1, 3).
func NewSender(api API, chatID int64, limiter *rate.Limiter, logger zerolog.Logger) *Sender {
	s := &Sender{
		api:     api,
		limiter: limiter,
		log:     logger.With().Str("component", "sender").Logger(),
	}
	s.chatID.Store(chatID)
	return s
}

func (s *Sender) ChatID() int64 {
	return s.chatID.Load()
}

// Lock binds the sender to chatID if no chat is bound yet and reports
// whether it did.
func (s *Sender) Lock(chatID int64) bool {
	return s.chatID.CompareAndSwap(0, chatID)
}

// Deliver sends text, split into Telegram-sized chunks. Markdown is
// converted to entities; a chunk Telegram rejects for bad entities is
// resent as plain text.
func (s *Sender) Deliver(ctx context.Context, text string) error {
	chatID := s.ChatID()
	if chatID == 0 {
		return ErrNoChat
	}

	for _, chunk := range format.Chunk(text, format.MaxMessageLen) {
		parsed := format.ParseMarkdown(chunk)
		msg := tgbotapi.NewMessage(chatID, parsed.Text)
		msg.Entities = parsed.Entities

		err := s.send(ctx, msg)
		if err != nil && isEntityError(err) {
			s.log.Warn().Err(err).Msg("entities rejected, resending as plain text")
			err = s.send(ctx, tgbotapi.NewMessage(chatID, chunk))
		}
		if err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// SendDocument uploads the file at path to the locked chat.
func (s *Sender) SendDocument(ctx context.Context, path, caption string) error {
	chatID := s.ChatID()
	if chatID == 0 {
		return ErrNoChat
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	if err := s.send(ctx, doc); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}
	return nil
}

func (s *Sender) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.api.Send(c)
	return err
}

func isEntityError(err error) bool {
	return strings.Contains(err.Error(), "can't parse entities")
}
