package notify

import (
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Telegram implements Channel over the Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram wraps an authorized bot client.
func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{bot: bot}
}

func toMarkup(kb Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range kb {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
			}
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// Send delivers a text message with an optional inline keyboard.
func (t *Telegram) Send(chatID int64, text string, kb Keyboard) (MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup := toMarkup(kb); markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return MessageRef{}, classify(err)
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// SendPhotos delivers the photos by file id; the caption and keyboard ride on
// the first one, whose handle is returned.
func (t *Telegram) SendPhotos(chatID int64, fileIDs []string, caption string, kb Keyboard) (MessageRef, error) {
	if len(fileIDs) == 0 {
		return t.Send(chatID, caption, kb)
	}
	var first MessageRef
	for i, fileID := range fileIDs {
		photo := tgbotapi.NewPhotoShare(chatID, fileID)
		if i == 0 {
			photo.Caption = caption
			if markup := toMarkup(kb); markup != nil {
				photo.ReplyMarkup = markup
			}
		}
		sent, err := t.bot.Send(photo)
		if err != nil {
			return MessageRef{}, classify(err)
		}
		if i == 0 {
			first = MessageRef{ChatID: chatID, MessageID: sent.MessageID}
		}
	}
	return first, nil
}

// Edit replaces the text and keyboard of an existing message. An edit that
// changes nothing is treated as success.
func (t *Telegram) Edit(ref MessageRef, text string, kb Keyboard) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	if markup := toMarkup(kb); markup != nil {
		edit.ReplyMarkup = markup
	}
	_, err := t.bot.Send(edit)
	return classify(err)
}

// EditMarkup replaces only the inline keyboard.
func (t *Telegram) EditMarkup(ref MessageRef, kb Keyboard) error {
	markup := toMarkup(kb)
	if markup == nil {
		empty := tgbotapi.NewInlineKeyboardMarkup()
		markup = &empty
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, *markup)
	_, err := t.bot.Send(edit)
	return classify(err)
}

// Delete removes the message.
func (t *Telegram) Delete(ref MessageRef) error {
	_, err := t.bot.DeleteMessage(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
	return classify(err)
}

// classify maps Bot API failures onto the package error kinds. Anything not
// recognized stays as-is and is treated as transient by callers.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.MigrateToChatID != 0 {
		return &MigratedError{NewChatID: apiErr.MigrateToChatID}
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "not modified"):
		return nil
	case strings.Contains(msg, "blocked by the user"),
		strings.Contains(msg, "user is deactivated"),
		strings.Contains(msg, "bot can't initiate conversation"):
		return ErrUnreachable
	case strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message to delete not found"),
		strings.Contains(msg, "message not found"):
		return ErrNotFound
	}
	return err
}
