// Package bot is the Telegram surface: command and callback routing, the
// multi-step admin and candidate forms, and publishing of events and
// applications. All state changes go through the lifecycle service; this
// package only renders and routes.
package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog"

	"beautybot/internal/config"
	"beautybot/internal/lifecycle"
	"beautybot/internal/notify"
	"beautybot/internal/storage"
	"beautybot/internal/summary"
)

// Bot wires the Telegram transport to the core services.
type Bot struct {
	api     *tgbotapi.BotAPI
	channel notify.Channel
	store   *storage.Store
	apps    *lifecycle.Service
	summary *summary.Service
	cfg     *config.Config
	dialogs *DialogManager
	log     zerolog.Logger
}

// New builds the bot surface.
func New(api *tgbotapi.BotAPI, channel notify.Channel, store *storage.Store,
	apps *lifecycle.Service, sum *summary.Service, cfg *config.Config, log zerolog.Logger) *Bot {
	return &Bot{
		api:     api,
		channel: channel,
		store:   store,
		apps:    apps,
		summary: sum,
		cfg:     cfg,
		dialogs: NewDialogManager(),
		log:     log,
	}
}

// Run polls for updates until the update channel closes.
func (b *Bot) Run() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		return err
	}

	b.log.Info().Str("username", b.api.Self.UserName).Msg("bot started")
	for update := range updates {
		if update.CallbackQuery != nil {
			b.handleCallback(update.CallbackQuery)
			continue
		}
		if update.Message != nil {
			b.handleMessage(update.Message)
		}
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.channel.Send(chatID, text, nil); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

func (b *Bot) replyKeyboard(chatID int64, text string, kb notify.Keyboard) {
	if _, err := b.channel.Send(chatID, text, kb); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.AnswerCallbackQuery(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Warn().Err(err).Msg("answer callback failed")
	}
}
