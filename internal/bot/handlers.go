package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"beautybot/internal/lifecycle"
	"beautybot/internal/models"
	"beautybot/internal/notify"
	"beautybot/internal/schedule"
	"beautybot/internal/storage"
)

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}
	b.handleDialogInput(msg)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(msg)
	case "create_event":
		b.adminOnly(b.handleCreateEvent)(msg)
	case "manage_events":
		b.adminOnly(b.handleManageEvents)(msg)
	case "past_events":
		b.adminOnly(b.handlePastEvents)(msg)
	case "block_user":
		b.adminOnly(b.handleBlockUser)(msg)
	case "procedures":
		b.adminOnly(b.handleProcedures)(msg)
	case "add_procedure":
		b.adminOnly(b.handleAddProcedure)(msg)
	case "rename_procedure":
		b.adminOnly(b.handleRenameProcedure)(msg)
	case "day":
		b.adminOnly(b.handleDayCommand)(msg)
	case "myapps":
		b.handleMyApplications(msg)
	case "done":
		b.handlePhotosDone(msg)
	case "cancel":
		b.dialogs.Clear(int64(msg.From.ID))
		b.reply(msg.Chat.ID, "Cancelled.")
	default:
		b.reply(msg.Chat.ID, "Unknown command.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	userID := int64(msg.From.ID)
	if err := b.store.EnsureUser(userID); err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("ensure user")
	}

	args := msg.CommandArguments()
	if strings.HasPrefix(args, "event_") {
		eventID, err := strconv.Atoi(strings.TrimPrefix(args, "event_"))
		if err == nil {
			b.startApply(msg.Chat.ID, userID, eventID)
			return
		}
	}

	if b.cfg.IsAdmin(userID) {
		b.reply(msg.Chat.ID, "Hello, administrator!\n\n"+
			"/create_event — create a new session\n"+
			"/manage_events — list active sessions\n"+
			"/past_events — list past sessions\n"+
			"/procedures — manage procedure types\n"+
			"/day — refresh a day summary\n"+
			"/block_user — block a user\n\n"+
			"Application triage happens in the admin group.")
		return
	}
	b.reply(msg.Chat.ID, "Welcome!\n\n"+
		"This bot books you into beauty procedure sessions. "+
		"To apply, tap a session post in our channel.\n\n"+
		"/myapps — your applications")
}

// ==================== event creation (admin) ====================

func (b *Bot) handleCreateEvent(msg *tgbotapi.Message) {
	userID := int64(msg.From.ID)
	b.dialogs.Clear(userID)
	b.dialogs.SetState(userID, EventDate, 0)

	var kb notify.Keyboard
	for _, opt := range schedule.DateOptions(time.Now(), 7) {
		kb = append(kb, notify.Row(notify.Button{Label: opt.Display, Data: "date_" + opt.Date}))
	}
	kb = append(kb, notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}))
	b.replyKeyboard(msg.Chat.ID, "Pick the session date:", kb)
}

func (b *Bot) onEventDate(cq *tgbotapi.CallbackQuery, date string) {
	userID := int64(cq.From.ID)
	b.dialogs.SetData(userID, "date", date)
	b.dialogs.SetState(userID, EventTime, 0)

	var kb notify.Keyboard
	for _, row := range chunk(schedule.TimeSlots(), 4) {
		var buttons []notify.Button
		for _, slot := range row {
			buttons = append(buttons, notify.Button{Label: slot, Data: "time_" + slot})
		}
		kb = append(kb, buttons)
	}
	kb = append(kb, notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}))
	b.replyKeyboard(cq.Message.Chat.ID, "Pick the session time:", kb)
}

func (b *Bot) onEventTime(cq *tgbotapi.CallbackQuery, slot string) {
	userID := int64(cq.From.ID)
	b.dialogs.SetData(userID, "time", slot)
	b.dialogs.SetState(userID, EventProcedure, 0)

	types, err := b.store.ActiveProcedureTypes()
	if err != nil || len(types) == 0 {
		b.reply(cq.Message.Chat.ID, "No active procedure types; add one with /add_procedure first.")
		b.dialogs.Clear(userID)
		return
	}
	var kb notify.Keyboard
	for _, pt := range types {
		kb = append(kb, notify.Row(notify.Button{Label: pt.Name, Data: fmt.Sprintf("ptype_sel_%d", pt.ID)}))
	}
	kb = append(kb, notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}))
	b.replyKeyboard(cq.Message.Chat.ID, "Pick the procedure type:", kb)
}

func (b *Bot) onEventProcedure(cq *tgbotapi.CallbackQuery, typeID int) {
	userID := int64(cq.From.ID)
	pt, err := b.store.GetProcedureType(typeID)
	if err != nil {
		b.reply(cq.Message.Chat.ID, "That procedure type no longer exists.")
		return
	}
	b.dialogs.SetData(userID, "proc_id", strconv.Itoa(pt.ID))
	b.dialogs.SetData(userID, "proc_name", pt.Name)
	b.dialogs.SetState(userID, EventPhotoNeeded, 0)

	kb := notify.Keyboard{
		notify.Row(
			notify.Button{Label: "Yes", Data: "photo_yes"},
			notify.Button{Label: "No", Data: "photo_no"},
		),
		notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}),
	}
	b.replyKeyboard(cq.Message.Chat.ID, "Should candidates attach a photo of the treatment area?", kb)
}

func (b *Bot) onEventPhotoNeeded(cq *tgbotapi.CallbackQuery, needed bool) {
	userID := int64(cq.From.ID)
	b.dialogs.SetData(userID, "needs_photo", strconv.FormatBool(needed))
	b.dialogs.SetState(userID, EventComment, 0)

	kb := notify.Keyboard{
		notify.Row(notify.Button{Label: "Skip", Data: "skip_comment"}),
		notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}),
	}
	b.replyKeyboard(cq.Message.Chat.ID, "Add a comment for the post (optional):", kb)
}

func (b *Bot) showEventSummary(chatID, userID int64) {
	b.dialogs.SetState(userID, EventConfirm, 0)
	comment := b.dialogs.GetData(userID, "comment")
	if comment == "" {
		comment = "—"
	}
	photo := "not required"
	if b.dialogs.GetData(userID, "needs_photo") == "true" {
		photo = "required"
	}
	text := fmt.Sprintf("Session draft:\n\nDate: %s\nTime: %s\nProcedure: %s\nCandidate photo: %s\nComment: %s",
		b.dialogs.GetData(userID, "date"), b.dialogs.GetData(userID, "time"),
		b.dialogs.GetData(userID, "proc_name"), photo, comment)

	kb := notify.Keyboard{
		notify.Row(notify.Button{Label: "Confirm and publish", Data: "confirm_event"}),
		notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}),
	}
	b.replyKeyboard(chatID, text, kb)
}

func (b *Bot) onConfirmEvent(cq *tgbotapi.CallbackQuery) {
	userID := int64(cq.From.ID)
	typeID, _ := strconv.Atoi(b.dialogs.GetData(userID, "proc_id"))
	ev := &models.Event{
		Date:            b.dialogs.GetData(userID, "date"),
		Time:            b.dialogs.GetData(userID, "time"),
		ProcedureTypeID: typeID,
		ProcedureName:   b.dialogs.GetData(userID, "proc_name"),
		NeedsPhoto:      b.dialogs.GetData(userID, "needs_photo") == "true",
		Comment:         b.dialogs.GetData(userID, "comment"),
	}
	b.dialogs.Clear(userID)

	eventID, err := b.store.CreateEvent(ev)
	if err != nil {
		b.log.Error().Err(err).Msg("create event")
		b.reply(cq.Message.Chat.ID, "Could not create the session.")
		return
	}
	if err := b.publishEvent(eventID); err != nil {
		b.log.Error().Err(err).Int("event_id", eventID).Msg("publish event")
		b.reply(cq.Message.Chat.ID, "Session saved but publishing failed; it stays in draft.")
		return
	}
	if err := b.summary.Refresh(ev.Date); err != nil {
		b.log.Warn().Err(err).Str("date", ev.Date).Msg("day summary refresh failed")
	}
	b.reply(cq.Message.Chat.ID, "Session published to the channel.")
}

// ==================== application form (candidate) ====================

func (b *Bot) startApply(chatID, userID int64, eventID int) {
	blocked, err := b.store.IsUserBlocked(userID)
	if err == nil && blocked {
		b.reply(chatID, "You are blocked and cannot apply.")
		return
	}
	ev, err := b.store.GetEvent(eventID)
	if err != nil || !ev.AcceptsApplications() {
		b.reply(chatID, "This session is no longer available.")
		return
	}

	// A second application on the same date is allowed but called out, the
	// admin sees the same flag in the day summary.
	if existing, err := b.store.UserApplicationsForDate(userID, ev.Date); err == nil {
		for _, item := range existing {
			if item.InQueue() || item.Status == models.StatusPending {
				b.reply(chatID, fmt.Sprintf("Note: you already have an application on %s.",
					schedule.DisplayDate(ev.Date)))
				break
			}
		}
	}

	b.dialogs.Clear(userID)
	b.dialogs.SetState(userID, ApplyName, eventID)

	user, err := b.store.GetUser(userID)
	if err == nil && user.HasContact() {
		kb := notify.Keyboard{
			notify.Row(notify.Button{Label: "Use saved details", Data: "use_saved"}),
			notify.Row(notify.Button{Label: "Enter new details", Data: "enter_new"}),
			notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}),
		}
		b.replyKeyboard(chatID, fmt.Sprintf("We have your details on file:\n\nName: %s\nPhone: %s\n\nUse them?",
			user.FullName, user.Phone), kb)
		return
	}
	b.reply(chatID, "Enter your full name (surname and name):")
}

func (b *Bot) afterContact(chatID, userID int64) {
	_, eventID := b.dialogs.GetState(userID)
	ev, err := b.store.GetEvent(eventID)
	if err != nil {
		b.reply(chatID, "This session is no longer available.")
		b.dialogs.Clear(userID)
		return
	}
	if ev.NeedsPhoto {
		b.dialogs.SetState(userID, ApplyPhotos, 0)
		b.reply(chatID, fmt.Sprintf("Send photos of the treatment area (up to %d).\n\nSend /done when finished.",
			models.MaxApplicationPhotos))
		return
	}
	b.showConsent(chatID, userID)
}

func (b *Bot) showConsent(chatID, userID int64) {
	b.dialogs.SetState(userID, ApplyConsent, 0)
	kb := notify.Keyboard{
		notify.Row(notify.Button{Label: "I confirm", Data: "consent_yes"}),
		notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}),
	}
	b.replyKeyboard(chatID, "Please confirm that:\n"+
		"- you are 18 or older\n"+
		"- you understand the nature of the procedure\n"+
		"- you understand its possible consequences", kb)
}

func (b *Bot) showApplicationSummary(chatID, userID int64) {
	_, eventID := b.dialogs.GetState(userID)
	ev, err := b.store.GetEvent(eventID)
	if err != nil {
		b.reply(chatID, "This session is no longer available.")
		b.dialogs.Clear(userID)
		return
	}
	b.dialogs.SetState(userID, ApplyConfirm, 0)
	text := fmt.Sprintf("Application summary:\n\nProcedure: %s\nDate: %s\nTime: %s\n\nName: %s\nPhone: %s\nPhotos: %d\nConsent: yes",
		ev.ProcedureName, schedule.DisplayDate(ev.Date), ev.Time,
		b.dialogs.GetData(userID, "full_name"), b.dialogs.GetData(userID, "phone"),
		len(b.dialogs.Photos(userID)))
	kb := notify.Keyboard{
		notify.Row(notify.Button{Label: "Submit application", Data: "submit_application"}),
		notify.Row(notify.Button{Label: "Cancel", Data: "cancel"}),
	}
	b.replyKeyboard(chatID, text, kb)
}

func (b *Bot) onSubmitApplication(cq *tgbotapi.CallbackQuery) {
	userID := int64(cq.From.ID)
	_, eventID := b.dialogs.GetState(userID)
	req := lifecycle.SubmitRequest{
		UserID:   userID,
		FullName: b.dialogs.GetData(userID, "full_name"),
		Phone:    b.dialogs.GetData(userID, "phone"),
		Consent:  true,
		EventIDs: []int{eventID},
		Photos:   b.dialogs.Photos(userID),
	}
	b.dialogs.Clear(userID)

	result, err := b.apps.Submit(req)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("submit application")
		b.reply(cq.Message.Chat.ID, "Could not submit the application; please try again.")
		return
	}
	if result.PhotosDropped > 0 {
		b.reply(cq.Message.Chat.ID, fmt.Sprintf("Only the first %d photos were kept.", models.MaxApplicationPhotos))
	}
	if err := b.publishApplicationGroup(result); err != nil {
		b.log.Error().Err(err).Str("group_key", result.GroupKey).Msg("publish application group")
	}
	b.reply(cq.Message.Chat.ID, "Your application is in!\n\nThe administrator will review it shortly.")
}

// ==================== free text & photos ====================

func (b *Bot) handleDialogInput(msg *tgbotapi.Message) {
	userID := int64(msg.From.ID)
	state, _ := b.dialogs.GetState(userID)

	switch state {
	case EventComment:
		b.dialogs.SetData(userID, "comment", msg.Text)
		b.showEventSummary(msg.Chat.ID, userID)
	case ApplyName:
		if !ValidateName(msg.Text) {
			b.reply(msg.Chat.ID, "Please enter both surname and name:")
			return
		}
		b.dialogs.SetData(userID, "full_name", strings.TrimSpace(msg.Text))
		b.dialogs.SetState(userID, ApplyPhone, 0)
		b.reply(msg.Chat.ID, "Enter your phone number:")
	case ApplyPhone:
		digits := 0
		for _, r := range msg.Text {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits < 10 {
			b.reply(msg.Chat.ID, "That does not look like a phone number; try again:")
			return
		}
		b.dialogs.SetData(userID, "phone", strings.TrimSpace(msg.Text))
		b.afterContact(msg.Chat.ID, userID)
	case ApplyPhotos:
		if msg.Photo == nil || len(*msg.Photo) == 0 {
			b.reply(msg.Chat.ID, "Send a photo, or /done to finish.")
			return
		}
		if len(b.dialogs.Photos(userID)) >= models.MaxApplicationPhotos {
			b.reply(msg.Chat.ID, fmt.Sprintf("No more than %d photos, the rest are ignored.", models.MaxApplicationPhotos))
			return
		}
		sizes := *msg.Photo
		count := b.dialogs.AddPhoto(userID, sizes[len(sizes)-1].FileID)
		b.reply(msg.Chat.ID, fmt.Sprintf("Photo added (%d/%d). Send more or /done.", count, models.MaxApplicationPhotos))
	default:
		b.reply(msg.Chat.ID, "Use /start to begin, or /myapps to see your applications.")
	}
}

func (b *Bot) handlePhotosDone(msg *tgbotapi.Message) {
	userID := int64(msg.From.ID)
	state, eventID := b.dialogs.GetState(userID)
	if state != ApplyPhotos {
		b.reply(msg.Chat.ID, "Nothing to finish.")
		return
	}
	ev, err := b.store.GetEvent(eventID)
	if err != nil {
		b.reply(msg.Chat.ID, "This session is no longer available.")
		b.dialogs.Clear(userID)
		return
	}
	if ev.NeedsPhoto && len(b.dialogs.Photos(userID)) == 0 {
		b.reply(msg.Chat.ID, "A photo is required for this session; please add at least one.")
		return
	}
	b.showConsent(msg.Chat.ID, userID)
}

// ==================== admin commands ====================

func (b *Bot) handleManageEvents(msg *tgbotapi.Message) {
	events, err := b.store.ActiveEvents(schedule.Today(time.Now()))
	if err != nil {
		b.reply(msg.Chat.ID, "Could not load sessions.")
		return
	}
	if len(events) == 0 {
		b.reply(msg.Chat.ID, "No active sessions.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Active sessions:\n")
	var kb notify.Keyboard
	for _, ev := range events {
		fmt.Fprintf(&sb, "\n#%d %s — %s %s", ev.ID, ev.ProcedureName, schedule.DisplayDate(ev.Date), ev.Time)
		kb = append(kb, notify.Row(
			notify.Button{Label: fmt.Sprintf("Queue for #%d", ev.ID), Data: fmt.Sprintf("view_apps_%d", ev.ID)},
			notify.Button{Label: fmt.Sprintf("Cancel session #%d", ev.ID), Data: fmt.Sprintf("cancel_event_%d", ev.ID)},
		))
	}
	b.replyKeyboard(msg.Chat.ID, sb.String(), kb)
}

func (b *Bot) handlePastEvents(msg *tgbotapi.Message) {
	events, err := b.store.PastEvents(schedule.Today(time.Now()))
	if err != nil {
		b.reply(msg.Chat.ID, "Could not load past sessions.")
		return
	}
	if len(events) == 0 {
		b.reply(msg.Chat.ID, "No past sessions.")
		return
	}
	const limit = 20
	if len(events) > limit {
		events = events[:limit]
	}
	var sb strings.Builder
	sb.WriteString("Past sessions (newest first):\n")
	for _, ev := range events {
		fmt.Fprintf(&sb, "\n#%d %s — %s %s", ev.ID, ev.ProcedureName, schedule.DisplayDate(ev.Date), ev.Time)
	}
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) handleBlockUser(msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	userID, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.reply(msg.Chat.ID, "Usage: /block_user <user_id>")
		return
	}
	if err := b.store.BlockUser(userID); err != nil {
		b.reply(msg.Chat.ID, "Could not block the user.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("User %d blocked.", userID))
}

func (b *Bot) handleProcedures(msg *tgbotapi.Message) {
	types, err := b.store.AllProcedureTypes()
	if err != nil {
		b.reply(msg.Chat.ID, "Could not load procedure types.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Procedure types (/add_procedure <name>, /rename_procedure <id> <name>):\n")
	var kb notify.Keyboard
	for _, pt := range types {
		state := "active"
		if !pt.IsActive {
			state = "inactive"
		}
		fmt.Fprintf(&sb, "\n#%d %s (%s)", pt.ID, pt.Name, state)
		kb = append(kb, notify.Row(
			notify.Button{Label: fmt.Sprintf("Toggle #%d", pt.ID), Data: fmt.Sprintf("ptype_toggle_%d", pt.ID)},
			notify.Button{Label: fmt.Sprintf("Delete #%d", pt.ID), Data: fmt.Sprintf("ptype_del_%d", pt.ID)},
		))
	}
	b.replyKeyboard(msg.Chat.ID, sb.String(), kb)
}

func (b *Bot) handleAddProcedure(msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		b.reply(msg.Chat.ID, "Usage: /add_procedure <name>")
		return
	}
	if _, err := b.store.CreateProcedureType(name); err != nil {
		b.reply(msg.Chat.ID, "Could not add the procedure type (duplicate name?).")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Procedure type %q added.", name))
}

func (b *Bot) handleRenameProcedure(msg *tgbotapi.Message) {
	parts := strings.SplitN(strings.TrimSpace(msg.CommandArguments()), " ", 2)
	if len(parts) < 2 {
		b.reply(msg.Chat.ID, "Usage: /rename_procedure <id> <new name>")
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		b.reply(msg.Chat.ID, "Usage: /rename_procedure <id> <new name>")
		return
	}
	if err := b.store.RenameProcedureType(id, strings.TrimSpace(parts[1])); err != nil {
		b.reply(msg.Chat.ID, "Could not rename the procedure type.")
		return
	}
	b.reply(msg.Chat.ID, "Renamed. Existing sessions keep the old name.")
}

func (b *Bot) handleDayCommand(msg *tgbotapi.Message) {
	date := strings.TrimSpace(msg.CommandArguments())
	if date == "" {
		date = schedule.Today(time.Now())
	}
	if _, err := time.Parse(models.DateFormat, date); err != nil {
		b.reply(msg.Chat.ID, "Usage: /day [YYYY-MM-DD]")
		return
	}
	if err := b.summary.Refresh(date); err != nil {
		b.log.Error().Err(err).Str("date", date).Msg("manual day summary refresh")
		b.reply(msg.Chat.ID, "Could not refresh the day summary.")
		return
	}
	b.reply(msg.Chat.ID, "Day summary refreshed.")
}

func (b *Bot) handleMyApplications(msg *tgbotapi.Message) {
	userID := int64(msg.From.ID)
	items, err := b.store.UserApplications(userID)
	if err != nil {
		b.reply(msg.Chat.ID, "Could not load your applications.")
		return
	}
	if len(items) == 0 {
		b.reply(msg.Chat.ID, "You have no applications yet.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Your applications:\n")
	var kb notify.Keyboard
	for _, item := range items {
		fmt.Fprintf(&sb, "\n#%d %s — %s %s: %s", item.ID, item.Event.ProcedureName,
			schedule.DisplayDate(item.Event.Date), item.Event.Time, item.Status)
		switch item.Status {
		case models.StatusPending, models.StatusApproved, models.StatusPrimary:
			kb = append(kb, notify.Row(notify.Button{
				Label: fmt.Sprintf("Cancel #%d", item.ID),
				Data:  fmt.Sprintf("self_cancel_%d", item.ID),
			}))
		}
	}
	b.replyKeyboard(msg.Chat.ID, sb.String(), kb)
}

// ==================== callbacks ====================

func (b *Bot) handleCallback(cq *tgbotapi.CallbackQuery) {
	// Inline-mode callbacks carry no message to act on.
	if cq.Message == nil {
		return
	}
	data := cq.Data
	userID := int64(cq.From.ID)
	chatID := cq.Message.Chat.ID

	// Candidate-facing callbacks first; everything below the admin gate is
	// triage or event management.
	switch {
	case data == "cancel":
		b.dialogs.Clear(userID)
		b.answerCallback(cq.ID, "Cancelled")
		b.reply(chatID, "Cancelled.")
		return
	case data == "use_saved":
		b.answerCallback(cq.ID, "")
		user, err := b.store.GetUser(userID)
		if err != nil || !user.HasContact() {
			b.reply(chatID, "No saved details; enter your full name:")
			return
		}
		b.dialogs.SetData(userID, "full_name", user.FullName)
		b.dialogs.SetData(userID, "phone", user.Phone)
		b.afterContact(chatID, userID)
		return
	case data == "enter_new":
		b.answerCallback(cq.ID, "")
		b.dialogs.SetState(userID, ApplyName, 0)
		b.reply(chatID, "Enter your full name (surname and name):")
		return
	case data == "consent_yes":
		b.answerCallback(cq.ID, "")
		b.showApplicationSummary(chatID, userID)
		return
	case data == "submit_application":
		b.answerCallback(cq.ID, "")
		b.onSubmitApplication(cq)
		return
	case strings.HasPrefix(data, "self_cancel_"):
		b.onSelfCancel(cq, strings.TrimPrefix(data, "self_cancel_"))
		return
	}

	if !b.cfg.IsAdmin(userID) {
		b.answerCallback(cq.ID, "No permission")
		return
	}

	switch {
	case strings.HasPrefix(data, "date_"):
		b.answerCallback(cq.ID, "")
		b.onEventDate(cq, strings.TrimPrefix(data, "date_"))
	case strings.HasPrefix(data, "time_"):
		b.answerCallback(cq.ID, "")
		b.onEventTime(cq, strings.TrimPrefix(data, "time_"))
	case strings.HasPrefix(data, "ptype_sel_"):
		b.answerCallback(cq.ID, "")
		if id, err := strconv.Atoi(strings.TrimPrefix(data, "ptype_sel_")); err == nil {
			b.onEventProcedure(cq, id)
		}
	case data == "photo_yes", data == "photo_no":
		b.answerCallback(cq.ID, "")
		b.onEventPhotoNeeded(cq, data == "photo_yes")
	case data == "skip_comment":
		b.answerCallback(cq.ID, "")
		b.showEventSummary(chatID, userID)
	case data == "confirm_event":
		b.answerCallback(cq.ID, "")
		b.onConfirmEvent(cq)
	case strings.HasPrefix(data, "confirm_reject_"):
		b.onTriage(cq, strings.TrimPrefix(data, "confirm_reject_"), func(id int) error {
			return b.apps.Reject(id, true)
		})
	case strings.HasPrefix(data, "confirm_cancel_"):
		b.onTriage(cq, strings.TrimPrefix(data, "confirm_cancel_"), func(id int) error {
			return b.apps.CancelByAdmin(id, true)
		})
	case strings.HasPrefix(data, "approve_"):
		b.onTriage(cq, strings.TrimPrefix(data, "approve_"), b.apps.Approve)
	case strings.HasPrefix(data, "reject_"):
		b.onRemoval(cq, strings.TrimPrefix(data, "reject_"), "reject", func(id int) error {
			return b.apps.Reject(id, false)
		})
	case strings.HasPrefix(data, "cancel_app_"):
		b.onRemoval(cq, strings.TrimPrefix(data, "cancel_app_"), "cancel", func(id int) error {
			return b.apps.CancelByAdmin(id, false)
		})
	case strings.HasPrefix(data, "cancel_event_"):
		b.onCancelEvent(cq, strings.TrimPrefix(data, "cancel_event_"))
	case strings.HasPrefix(data, "primary_"):
		b.onTriage(cq, strings.TrimPrefix(data, "primary_"), b.apps.Promote)
	case strings.HasPrefix(data, "keep_"):
		b.onKeepPrimary(cq, strings.TrimPrefix(data, "keep_"))
	case strings.HasPrefix(data, "view_apps_"):
		b.onViewQueue(cq, strings.TrimPrefix(data, "view_apps_"))
	case strings.HasPrefix(data, "ptype_toggle_"):
		b.onToggleProcedure(cq, strings.TrimPrefix(data, "ptype_toggle_"))
	case strings.HasPrefix(data, "ptype_del_"):
		b.onDeleteProcedure(cq, strings.TrimPrefix(data, "ptype_del_"))
	default:
		b.answerCallback(cq.ID, "")
	}
}

// onTriage runs an unconditional lifecycle action from a callback.
func (b *Bot) onTriage(cq *tgbotapi.CallbackQuery, rawID string, action func(int) error) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		b.answerCallback(cq.ID, "")
		return
	}
	err = action(id)
	switch {
	case err == nil:
		b.answerCallback(cq.ID, "Done")
	case errors.Is(err, storage.ErrNotFound):
		b.answerCallback(cq.ID, "Application no longer exists")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		b.answerCallback(cq.ID, "Status changed in the meantime, reopen the application")
	default:
		b.log.Error().Err(err).Int("application_id", id).Msg("triage action failed")
		b.answerCallback(cq.ID, "Action failed")
	}
}

// onRemoval runs reject/cancel and, when the target is the primary
// candidate, swaps the message keyboard for an explicit confirm step instead
// of applying the change.
func (b *Bot) onRemoval(cq *tgbotapi.CallbackQuery, rawID, verb string, action func(int) error) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		b.answerCallback(cq.ID, "")
		return
	}
	err = action(id)
	if errors.Is(err, lifecycle.ErrPrimaryConfirmation) {
		b.answerCallback(cq.ID, "This is the primary candidate")
		kb := notify.Keyboard{notify.Row(
			notify.Button{Label: fmt.Sprintf("Yes, %s the primary", verb), Data: fmt.Sprintf("confirm_%s_%d", confirmKey(verb), id)},
			notify.Button{Label: "Keep as is", Data: fmt.Sprintf("keep_%d", id)},
		)}
		ref := notify.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
		if err := b.channel.EditMarkup(ref, kb); err != nil {
			b.log.Warn().Err(err).Msg("confirm keyboard edit failed")
		}
		return
	}
	switch {
	case err == nil:
		b.answerCallback(cq.ID, "Done")
	case errors.Is(err, storage.ErrNotFound):
		b.answerCallback(cq.ID, "Application no longer exists")
	default:
		b.log.Error().Err(err).Int("application_id", id).Msg("removal action failed")
		b.answerCallback(cq.ID, "Action failed")
	}
}

// onKeepPrimary restores the normal triage keyboard after a declined
// confirmation.
func (b *Bot) onKeepPrimary(cq *tgbotapi.CallbackQuery, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		b.answerCallback(cq.ID, "")
		return
	}
	b.answerCallback(cq.ID, "Kept")
	app, err := b.store.GetApplication(id)
	if err != nil || app.GroupMessageID == 0 {
		return
	}
	items, err := b.store.ApplicationsByGroupMessage(app.GroupMessageID)
	if err != nil || len(items) == 0 {
		return
	}
	ref := notify.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
	if err := b.channel.EditMarkup(ref, lifecycle.GroupKeyboard(items)); err != nil {
		b.log.Warn().Err(err).Msg("keyboard restore failed")
	}
}

func (b *Bot) onSelfCancel(cq *tgbotapi.CallbackQuery, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		b.answerCallback(cq.ID, "")
		return
	}
	err = b.apps.CancelByUser(id, int64(cq.From.ID))
	switch {
	case err == nil:
		b.answerCallback(cq.ID, "Cancelled")
		b.reply(cq.Message.Chat.ID, "Your application has been cancelled.")
	case errors.Is(err, storage.ErrNotFound):
		b.answerCallback(cq.ID, "Application not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		b.answerCallback(cq.ID, "This application can no longer be cancelled")
	default:
		b.log.Error().Err(err).Int("application_id", id).Msg("self-cancel failed")
		b.answerCallback(cq.ID, "Action failed")
	}
}

// onViewQueue posts (or refreshes) the per-event queue overview in the admin
// group, keeping a single overview message per event.
func (b *Bot) onViewQueue(cq *tgbotapi.CallbackQuery, rawID string) {
	eventID, err := strconv.Atoi(rawID)
	if err != nil {
		b.answerCallback(cq.ID, "")
		return
	}
	ev, err := b.store.GetEvent(eventID)
	if err != nil {
		b.answerCallback(cq.ID, "Session no longer exists")
		return
	}
	apps, err := b.store.ApplicationsByEvent(eventID)
	if err != nil {
		b.answerCallback(cq.ID, "Could not load the queue")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Queue for event #%d (%s, %s %s):\n",
		ev.ID, ev.ProcedureName, schedule.DisplayDate(ev.Date), ev.Time)
	queued := 0
	for _, app := range apps {
		if !app.InQueue() {
			continue
		}
		queued++
		label := fmt.Sprintf("%d.", app.Position)
		if app.IsPrimary() {
			label = "PRIMARY"
		}
		fmt.Fprintf(&sb, "\n%s %s — %s", label, app.FullName, app.Phone)
	}
	if queued == 0 {
		sb.WriteString("\nNo approved applications yet.")
	}

	if ev.GroupAppsMessageID != 0 {
		ref := notify.MessageRef{ChatID: b.cfg.GroupID(), MessageID: ev.GroupAppsMessageID}
		err := b.channel.Edit(ref, sb.String(), nil)
		if err == nil {
			b.answerCallback(cq.ID, "Queue overview updated in the group")
			return
		}
		if !errors.Is(err, notify.ErrNotFound) {
			b.log.Warn().Err(err).Int("event_id", eventID).Msg("queue overview edit failed")
			b.answerCallback(cq.ID, "Could not update the overview")
			return
		}
		// Stale handle, fall through and recreate.
	}
	ref, err := b.channel.Send(b.cfg.GroupID(), sb.String(), nil)
	if err != nil {
		b.log.Warn().Err(err).Int("event_id", eventID).Msg("queue overview send failed")
		b.answerCallback(cq.ID, "Could not post the overview")
		return
	}
	if err := b.store.SetEventAppsMessage(eventID, ref.MessageID); err != nil {
		b.log.Error().Err(err).Int("event_id", eventID).Msg("store overview handle")
	}
	b.answerCallback(cq.ID, "Queue overview posted to the group")
}

// onCancelEvent cancels a whole session and cascades to its applicants.
func (b *Bot) onCancelEvent(cq *tgbotapi.CallbackQuery, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		b.answerCallback(cq.ID, "")
		return
	}
	err = b.apps.CancelEvent(id)
	switch {
	case err == nil:
		b.answerCallback(cq.ID, "Session cancelled")
		b.reply(cq.Message.Chat.ID, fmt.Sprintf("Session #%d cancelled; applicants have been notified.", id))
	case errors.Is(err, storage.ErrNotFound):
		b.answerCallback(cq.ID, "Session no longer exists")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		b.answerCallback(cq.ID, "Session can no longer be cancelled")
	default:
		b.log.Error().Err(err).Int("event_id", id).Msg("cancel event failed")
		b.answerCallback(cq.ID, "Action failed")
	}
}

func (b *Bot) onToggleProcedure(cq *tgbotapi.CallbackQuery, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		b.answerCallback(cq.ID, "")
		return
	}
	if err := b.store.ToggleProcedureType(id); err != nil {
		b.answerCallback(cq.ID, "Toggle failed")
		return
	}
	b.answerCallback(cq.ID, "Toggled")
}

func (b *Bot) onDeleteProcedure(cq *tgbotapi.CallbackQuery, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err != nil {
		b.answerCallback(cq.ID, "")
		return
	}
	deleted, err := b.store.DeleteProcedureType(id)
	switch {
	case err != nil:
		b.answerCallback(cq.ID, "Delete failed")
	case deleted:
		b.answerCallback(cq.ID, "Deleted")
	default:
		b.answerCallback(cq.ID, "Type is in use; deactivated instead")
	}
}

func confirmKey(verb string) string {
	if verb == "cancel" {
		return "cancel"
	}
	return "reject"
}

func chunk(items []string, n int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
