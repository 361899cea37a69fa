// Package notify abstracts the outbound chat transport. The core talks to a
// Channel and distinguishes error kinds; the Telegram adapter maps API
// failures onto them.
package notify

import (
	"errors"
	"fmt"
)

// MessageRef is an opaque handle to a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline action. Data buttons carry a callback payload, URL
// buttons open a link.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Keyboard is rows of inline buttons.
type Keyboard [][]Button

// Row builds a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Channel is the outbound message surface the core depends on.
type Channel interface {
	Send(chatID int64, text string, kb Keyboard) (MessageRef, error)
	SendPhotos(chatID int64, fileIDs []string, caption string, kb Keyboard) (MessageRef, error)
	Edit(ref MessageRef, text string, kb Keyboard) error
	EditMarkup(ref MessageRef, kb Keyboard) error
	Delete(ref MessageRef) error
}

// ErrUnreachable marks a recipient that will never receive messages again
// (blocked the bot, deactivated account). Callers flip the blocked flag on
// the user record and stop retrying.
var ErrUnreachable = errors.New("notify: recipient unreachable")

// ErrNotFound marks a message that no longer exists; callers clear the stale
// handle and fall back to sending a fresh message.
var ErrNotFound = errors.New("notify: message not found")

// MigratedError signals that the chat moved to a new identity (group to
// supergroup migration). Callers update the stored chat id and retry once.
type MigratedError struct {
	NewChatID int64
}

func (e *MigratedError) Error() string {
	return fmt.Sprintf("notify: chat migrated to %d", e.NewChatID)
}
