// Package summary maintains one aggregated admin-group message per calendar
// date: every event of the day with its queue and per-status counts. The
// stored message handle is allowed to go stale and self-heals by recreating
// the message.
package summary

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"beautybot/internal/config"
	"beautybot/internal/models"
	"beautybot/internal/notify"
	"beautybot/internal/schedule"
)

// Store is the repository surface the aggregator needs.
type Store interface {
	EventsByDate(date string) ([]models.Event, error)
	ApplicationsByEvent(eventID int) ([]models.Application, error)
	DayMessageID(date string) (int, error)
	SetDayMessageID(date string, messageID int) error
	DeleteDayMessage(date string) error
}

// Service builds and publishes day summaries.
type Service struct {
	store   Store
	channel notify.Channel
	cfg     *config.Config
	log     zerolog.Logger
}

// NewService builds the aggregator.
func NewService(store Store, channel notify.Channel, cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{store: store, channel: channel, cfg: cfg, log: log}
}

// Refresh rebuilds the summary for the date and edits the existing message
// in place. A vanished message is recreated and its new handle stored; a
// migrated group updates the stored identity and retries once. Refreshing
// with no data change is a no-op on the external side.
func (s *Service) Refresh(date string) error {
	err := s.refresh(s.cfg.GroupID(), date)
	var migrated *notify.MigratedError
	if errors.As(err, &migrated) {
		s.cfg.UpdateGroupID(migrated.NewChatID)
		s.log.Info().Int64("group_id", migrated.NewChatID).Msg("admin group migrated, retrying summary")
		err = s.refresh(migrated.NewChatID, date)
	}
	if err != nil {
		return fmt.Errorf("refresh day summary %s: %w", date, err)
	}
	return nil
}

func (s *Service) refresh(chatID int64, date string) error {
	text, err := s.render(date)
	if err != nil {
		return err
	}

	messageID, err := s.store.DayMessageID(date)
	if err != nil {
		return err
	}
	if messageID != 0 {
		editErr := s.channel.Edit(notify.MessageRef{ChatID: chatID, MessageID: messageID}, text, nil)
		if editErr == nil {
			return nil
		}
		if !errors.Is(editErr, notify.ErrNotFound) {
			return editErr
		}
		// The message is gone; clear the handle and recreate below.
		if err := s.store.DeleteDayMessage(date); err != nil {
			return err
		}
		s.log.Warn().Str("date", date).Msg("stale day summary handle cleared")
	}

	ref, err := s.channel.Send(chatID, text, nil)
	if err != nil {
		return err
	}
	return s.store.SetDayMessageID(date, ref.MessageID)
}

// render builds the deterministic text for the date: events by time, then a
// per-status count line and one line per application. A candidate holding
// several applications on the same date is flagged.
func (s *Service) render(date string) (string, error) {
	events, err := s.store.EventsByDate(date)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Day summary — %s\n", schedule.DisplayDate(date))

	if len(events) == 0 {
		b.WriteString("\nNo procedures scheduled.")
		return b.String(), nil
	}

	type eventApps struct {
		event models.Event
		apps  []models.Application
	}
	loaded := make([]eventApps, 0, len(events))
	perUser := make(map[int64]int)
	for _, ev := range events {
		apps, err := s.store.ApplicationsByEvent(ev.ID)
		if err != nil {
			return "", err
		}
		for _, app := range apps {
			perUser[app.UserID]++
		}
		loaded = append(loaded, eventApps{event: ev, apps: apps})
	}

	for _, ea := range loaded {
		fmt.Fprintf(&b, "\n%s %s (event #%d)\n", ea.event.Time, ea.event.ProcedureName, ea.event.ID)
		b.WriteString("  " + countLine(ea.apps) + "\n")
		for _, app := range ea.apps {
			fmt.Fprintf(&b, "  %s  %s, %s", marker(app), app.FullName, app.Phone)
			if n := perUser[app.UserID]; n > 1 {
				fmt.Fprintf(&b, " (%d applications today)", n)
			}
			if app.GroupMessageID != 0 {
				fmt.Fprintf(&b, " [msg #%d]", app.GroupMessageID)
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func countLine(apps []models.Application) string {
	counts := make(map[models.ApplicationStatus]int)
	for _, app := range apps {
		counts[app.Status]++
	}
	return fmt.Sprintf("%d primary / %d reserve / %d pending / %d rejected / %d cancelled",
		counts[models.StatusPrimary], counts[models.StatusApproved],
		counts[models.StatusPending], counts[models.StatusRejected],
		counts[models.StatusCancelled])
}

func marker(app models.Application) string {
	switch app.Status {
	case models.StatusPrimary:
		return "[PRIMARY]"
	case models.StatusApproved:
		return fmt.Sprintf("[reserve %d]", app.Position)
	case models.StatusPending:
		return "[pending]"
	case models.StatusRejected:
		return "[rejected]"
	case models.StatusCancelled:
		return "[cancelled]"
	}
	return "[" + string(app.Status) + "]"
}
