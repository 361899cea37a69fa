package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog"

	"beautybot/internal/bot"
	"beautybot/internal/config"
	"beautybot/internal/lifecycle"
	"beautybot/internal/notify"
	"beautybot/internal/schedule"
	"beautybot/internal/storage"
	"beautybot/internal/summary"
)

const archiveSweepInterval = 24 * time.Hour

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	defer store.Close()

	if err := store.SeedProcedureTypes(storage.DefaultProcedureTypes); err != nil {
		log.Fatal().Err(err).Msg("seed procedure types")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("authorize bot")
	}

	channel := notify.NewTelegram(api)
	summaries := summary.NewService(store, channel, cfg, log)
	apps := lifecycle.NewService(store, channel, cfg, summaries, log)
	b := bot.New(api, channel, store, apps, summaries, cfg, log)

	go archiveSweep(store, cfg, log)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutting down")
		store.Close()
		os.Exit(0)
	}()

	if err := b.Run(); err != nil {
		log.Fatal().Err(err).Msg("bot stopped")
	}
}

// archiveSweep periodically archives events past the retention window.
func archiveSweep(store *storage.Store, cfg *config.Config, log zerolog.Logger) {
	ticker := time.NewTicker(archiveSweepInterval)
	defer ticker.Stop()
	for {
		cutoff := schedule.RetentionCutoff(time.Now(), cfg.RetentionDays)
		n, err := store.ArchiveEventsBefore(cutoff)
		if err != nil {
			log.Error().Err(err).Str("cutoff", cutoff).Msg("archive sweep failed")
		} else if n > 0 {
			log.Info().Int64("archived", n).Str("cutoff", cutoff).Msg("archive sweep")
		}
		<-ticker.C
	}
}
