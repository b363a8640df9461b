package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmhodges/clock"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hray3182/NagLine/internal/ai"
	"github.com/hray3182/NagLine/internal/bot"
	"github.com/hray3182/NagLine/internal/bot/handlers"
	"github.com/hray3182/NagLine/internal/config"
	"github.com/hray3182/NagLine/internal/database"
	"github.com/hray3182/NagLine/internal/logx"
	"github.com/hray3182/NagLine/internal/reminder"
	"github.com/hray3182/NagLine/internal/repository"
	"github.com/hray3182/NagLine/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logx.New(logx.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("bot stopped")
	}
	log.Info().Msg("graceful shutdown completed")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, backup, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	clk := clock.New()
	d := cfg.Nag.Defaults
	svc := reminder.NewService(store, clk, reminder.Defaults{
		FuzzyMinutes:       d.FuzzyMinutes,
		StrictByDefault:    d.StrictByDefault,
		NagIntervalMinutes: d.NagIntervalMinutes,
		Timezone:           d.Timezone,
	}, log)

	// Initialize AI client (optional)
	var parser handlers.Parser
	if cfg.AIAPIKey != "" {
		parser = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, ai.Defaults{
			FuzzyMinutes:       d.FuzzyMinutes,
			StrictByDefault:    d.StrictByDefault,
			NagIntervalMinutes: d.NagIntervalMinutes,
			MaxNagAttempts:     d.MaxNagAttempts,
			Timezone:           d.Timezone,
		}, clk)
		log.Info().Str("model", cfg.AIModel).Msg("AI client initialized")
	} else {
		log.Warn().Msg("AI client not configured, natural language features disabled")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("failed to create Telegram API: %w", err)
	}
	log.Info().Str("account", api.Self.UserName).Msg("authorized on Telegram")

	sender := bot.NewSender(api, cfg.ChatID, rate.NewLimiter(rate.Limit(1), 3), log)
	if cfg.ChatID == 0 {
		log.Warn().Msg("TELEGRAM_CHAT_ID not set, locking to the first chat that writes")
	}

	sched := scheduler.New(store, svc, sender, clk, scheduler.Config{
		TickInterval:       cfg.Nag.TickInterval(),
		MaxNagAttempts:     d.MaxNagAttempts,
		DefaultNagInterval: time.Duration(d.NagIntervalMinutes) * time.Minute,
	}, log)

	h := handlers.New(svc, parser, backup, sender, clk, log)
	h.OnScheduleChange(sched.Notify)

	sched.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			log.Error().Err(err).Msg("scheduler did not stop cleanly")
		}
	}()

	log.Info().Msg("starting bot")
	err = bot.New(api, h, sender, log).Start(ctx)
	log.Info().Msg("shutting down")
	return err
}

// openStore returns the configured store. backup is nil when the driver has
// no file to copy.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (reminder.Store, handlers.Backuper, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx, log); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("connected to postgres")
		return repository.NewPostgresStore(db), nil, nil

	default:
		store, err := repository.OpenSQLite(ctx, cfg.DBPath, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.DBPath).Msg("opened sqlite database")
		return store, store, nil
	}
}
