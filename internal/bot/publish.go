package bot

import (
	"errors"
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/skip2/go-qrcode"

	"beautybot/internal/lifecycle"
	"beautybot/internal/models"
	"beautybot/internal/notify"
	"beautybot/internal/schedule"
)

// deepLink builds the apply link carried by the channel post.
func (b *Bot) deepLink(eventID int) string {
	return fmt.Sprintf("https://t.me/%s?start=event_%d", b.api.Self.UserName, eventID)
}

// publishEvent posts the event to the public channel, records the message
// handle and flips the event to published. A migrated channel updates the
// stored identity and retries once.
func (b *Bot) publishEvent(eventID int) error {
	ev, err := b.store.GetEvent(eventID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("New session!\n\nProcedure: %s\nDate: %s\nTime: %s\n",
		ev.ProcedureName, schedule.DisplayDate(ev.Date), ev.Time)
	if ev.Comment != "" {
		text += "\n" + ev.Comment + "\n"
	}
	if ev.NeedsPhoto {
		text += "\nA photo of the treatment area is required.\n"
	}
	text += "\nTap the button below to apply:"

	kb := notify.Keyboard{notify.Row(notify.Button{Label: "Apply", URL: b.deepLink(eventID)})}

	ref, err := b.channel.Send(b.cfg.ChannelID(), text, kb)
	var migrated *notify.MigratedError
	if errors.As(err, &migrated) {
		b.cfg.UpdateChannelID(migrated.NewChatID)
		ref, err = b.channel.Send(migrated.NewChatID, text, kb)
	}
	if err != nil {
		return fmt.Errorf("publish event %d: %w", eventID, err)
	}

	if err := b.store.SetEventChannelMessage(eventID, ref.MessageID); err != nil {
		return err
	}
	if err := b.store.UpdateEventStatus(eventID, models.EventPublished); err != nil {
		return err
	}

	b.sendEventQR(eventID)
	b.log.Info().Int("event_id", eventID).Int("message_id", ref.MessageID).Msg("event published")
	return nil
}

// sendEventQR sends the admin a QR code of the apply link, for printing or
// sharing outside the channel. Best-effort.
func (b *Bot) sendEventQR(eventID int) {
	file := fmt.Sprintf("event_%d_qr.png", eventID)
	if err := qrcode.WriteFile(b.deepLink(eventID), qrcode.Medium, 256, file); err != nil {
		b.log.Warn().Err(err).Int("event_id", eventID).Msg("qr generation failed")
		return
	}
	defer os.Remove(file)

	photo := tgbotapi.NewPhotoUpload(b.cfg.AdminID, file)
	photo.Caption = fmt.Sprintf("Apply link for event #%d", eventID)
	if _, err := b.api.Send(photo); err != nil {
		b.log.Warn().Err(err).Int("event_id", eventID).Msg("qr send failed")
	}
}

// publishApplicationGroup posts a combined submission to the admin group and
// stamps the shared message handle on its applications.
func (b *Bot) publishApplicationGroup(result *lifecycle.SubmitResult) error {
	items, err := b.store.ApplicationsByGroupKey(result.GroupKey)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	text := lifecycle.RenderGroupMessage(items)
	kb := lifecycle.GroupKeyboard(items)
	photos, err := b.store.ApplicationPhotos(items[0].ID)
	if err != nil {
		return err
	}

	send := func(chatID int64) (notify.MessageRef, error) {
		if len(photos) > 0 {
			return b.channel.SendPhotos(chatID, photos, text, kb)
		}
		return b.channel.Send(chatID, text, kb)
	}

	ref, err := send(b.cfg.GroupID())
	var migrated *notify.MigratedError
	if errors.As(err, &migrated) {
		b.cfg.UpdateGroupID(migrated.NewChatID)
		ref, err = send(migrated.NewChatID)
	}
	if err != nil {
		return fmt.Errorf("publish application group: %w", err)
	}

	return b.store.SetGroupMessageForKey(result.GroupKey, ref.MessageID)
}
