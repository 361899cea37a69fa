package bot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

type commandHandler func(msg *tgbotapi.Message)

// adminOnly wraps a command handler with an administrator check.
func (b *Bot) adminOnly(handler commandHandler) commandHandler {
	return func(msg *tgbotapi.Message) {
		if !b.cfg.IsAdmin(int64(msg.From.ID)) {
			b.reply(msg.Chat.ID, "You do not have permission to run this command.")
			return
		}
		handler(msg)
	}
}
