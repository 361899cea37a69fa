// Package lifecycle is the application state machine: submission, admin
// triage (approve / reject / promote / cancel), user self-cancellation, the
// primary-safety confirmation gate and auto-promotion of the reserve queue.
// It is transport-independent; any UI layer drives it through the exported
// methods.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"beautybot/internal/config"
	"beautybot/internal/models"
	"beautybot/internal/notify"
	"beautybot/internal/queue"
	"beautybot/internal/storage"
)

var (
	// ErrInvalidTransition is returned when the requested status change is
	// not legal from the application's current status. Callers should
	// re-fetch and present updated options.
	ErrInvalidTransition = errors.New("lifecycle: invalid status transition")

	// ErrPrimaryConfirmation is returned when rejecting or cancelling the
	// current primary without an explicit confirmation.
	ErrPrimaryConfirmation = errors.New("lifecycle: primary candidate, confirmation required")

	// ErrBlocked is returned when a blocked user tries to submit.
	ErrBlocked = errors.New("lifecycle: user is blocked")

	// ErrEventClosed is returned when the target event no longer accepts
	// applications.
	ErrEventClosed = errors.New("lifecycle: event does not accept applications")
)

// Store is the repository surface the state machine needs.
type Store interface {
	GetEvent(id int) (*models.Event, error)
	UpdateEventStatus(id int, status models.EventStatus) error
	GetApplication(id int) (*models.Application, error)
	GetApplicationWithEvent(id int) (*models.ApplicationWithEvent, error)
	CreateApplication(app *models.Application) (int, error)
	SetApplicationStatus(id int, status models.ApplicationStatus) error
	RecalculatePositions(eventID int) error
	ApplicationsByEvent(eventID int) ([]models.Application, error)
	ApplicationsByGroupMessage(messageID int) ([]models.ApplicationWithEvent, error)
	AddApplicationPhoto(applicationID int, fileID string) error
	EnsureUser(userID int64) error
	GetUser(userID int64) (*models.User, error)
	UpdateUserContact(userID int64, fullName, phone string) error
	BlockUser(userID int64) error
	IsUserBlocked(userID int64) (bool, error)
}

// SummaryRefresher refreshes the aggregated per-day view after a mutation.
type SummaryRefresher interface {
	Refresh(date string) error
}

// Service drives the application lifecycle.
type Service struct {
	store    Store
	channel  notify.Channel
	cfg      *config.Config
	summary  SummaryRefresher
	validate *validator.Validate
	log      zerolog.Logger
}

// NewService builds the state machine service. summary may be nil when no
// day view exists (tests).
func NewService(store Store, channel notify.Channel, cfg *config.Config, summary SummaryRefresher, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		channel:  channel,
		cfg:      cfg,
		summary:  summary,
		validate: validator.New(),
		log:      log,
	}
}

// SubmitRequest is a candidate submission against one or more events
// (a combined application group).
type SubmitRequest struct {
	UserID   int64  `validate:"required"`
	FullName string `validate:"required,min=3"`
	Phone    string `validate:"required"`
	Consent  bool   `validate:"required"`
	EventIDs []int  `validate:"required,min=1"`
	Photos   []string
}

// SubmitResult reports what Submit created.
type SubmitResult struct {
	Applications  []models.ApplicationWithEvent
	GroupKey      string
	PhotosDropped int // photos beyond the cap, silently ignored
}

// Submit validates the request and creates one pending application per
// target event, all sharing a combined-group key. Photos beyond the cap are
// dropped, not rejected; the caller warns the candidate once.
func (s *Service) Submit(req SubmitRequest) (*SubmitResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("validate submission: %w", err)
	}
	if digits := countDigits(req.Phone); digits < 10 {
		return nil, fmt.Errorf("validate submission: phone has %d digits, need at least 10", digits)
	}

	blocked, err := s.store.IsUserBlocked(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("check blocked: %w", err)
	}
	if blocked {
		return nil, ErrBlocked
	}

	events := make([]*models.Event, 0, len(req.EventIDs))
	for _, id := range req.EventIDs {
		ev, err := s.store.GetEvent(id)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", id, err)
		}
		if !ev.AcceptsApplications() {
			return nil, fmt.Errorf("event %d: %w", id, ErrEventClosed)
		}
		events = append(events, ev)
	}

	if err := s.store.EnsureUser(req.UserID); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if err := s.store.UpdateUserContact(req.UserID, req.FullName, req.Phone); err != nil {
		return nil, fmt.Errorf("save contact: %w", err)
	}

	photos := req.Photos
	dropped := 0
	if len(photos) > models.MaxApplicationPhotos {
		dropped = len(photos) - models.MaxApplicationPhotos
		photos = photos[:models.MaxApplicationPhotos]
	}

	result := &SubmitResult{
		GroupKey:      uuid.NewString(),
		PhotosDropped: dropped,
	}
	for _, ev := range events {
		app := &models.Application{
			EventID:  ev.ID,
			UserID:   req.UserID,
			FullName: req.FullName,
			Phone:    req.Phone,
			Consent:  req.Consent,
			Status:   models.StatusPending,
			GroupKey: result.GroupKey,
		}
		if _, err := s.store.CreateApplication(app); err != nil {
			return nil, fmt.Errorf("create application for event %d: %w", ev.ID, err)
		}
		for _, fileID := range photos {
			if err := s.store.AddApplicationPhoto(app.ID, fileID); err != nil {
				return nil, fmt.Errorf("store photo: %w", err)
			}
		}
		if err := s.store.RecalculatePositions(ev.ID); err != nil {
			return nil, fmt.Errorf("recalculate event %d: %w", ev.ID, err)
		}
		s.refreshSummary(ev.Date)
		result.Applications = append(result.Applications, models.ApplicationWithEvent{
			Application: *app,
			Event:       *ev,
		})
	}

	s.log.Info().Int64("user_id", req.UserID).Ints("event_ids", req.EventIDs).
		Str("group_key", result.GroupKey).Msg("application submitted")
	return result, nil
}

// Approve moves the application into the approved reserve. Re-approving a
// rejected or cancelled application is legal and re-queues it.
func (s *Service) Approve(applicationID int) error {
	item, err := s.store.GetApplicationWithEvent(applicationID)
	if err != nil {
		return err
	}
	if err := s.transition(&item.Application, models.StatusApproved); err != nil {
		return err
	}
	s.notifyCandidate(item.UserID, "Your application has been approved!\n\nYou are in the reserve queue; we will let you know once a slot opens up.")
	s.rerenderGroup(item.GroupMessageID)
	s.refreshSummary(item.Event.Date)
	return nil
}

// Promote makes an approved application the event's primary candidate and
// sends the appointment instructions. Promoting anything but an approved
// application is an invalid transition.
func (s *Service) Promote(applicationID int) error {
	item, err := s.store.GetApplicationWithEvent(applicationID)
	if err != nil {
		return err
	}
	if item.Status != models.StatusApproved {
		return fmt.Errorf("promote %s application: %w", item.Status, ErrInvalidTransition)
	}
	if err := s.transition(&item.Application, models.StatusPrimary); err != nil {
		return err
	}
	s.notifyCandidate(item.UserID, instructionText(&item.Event))
	s.rerenderGroup(item.GroupMessageID)
	s.refreshSummary(item.Event.Date)
	return nil
}

// Reject declines the application. Rejecting the current primary requires
// confirmed=true; the first unconfirmed call returns ErrPrimaryConfirmation
// and changes nothing. A vacated primary slot is refilled from the reserve.
func (s *Service) Reject(applicationID int, confirmed bool) error {
	return s.remove(applicationID, models.StatusRejected, confirmed)
}

// CancelByAdmin cancels the application on the admin's behalf, with the same
// primary-safety gate as Reject.
func (s *Service) CancelByAdmin(applicationID int, confirmed bool) error {
	return s.remove(applicationID, models.StatusCancelled, confirmed)
}

func (s *Service) remove(applicationID int, target models.ApplicationStatus, confirmed bool) error {
	item, err := s.store.GetApplicationWithEvent(applicationID)
	if err != nil {
		return err
	}
	wasPrimary := item.IsPrimary()
	if wasPrimary && !confirmed {
		return ErrPrimaryConfirmation
	}
	if err := s.transition(&item.Application, target); err != nil {
		return err
	}

	text := "Unfortunately, your application has been declined."
	if target == models.StatusCancelled {
		text = "Your appointment has been cancelled."
	}
	if wasPrimary {
		text = "We are very sorry: your confirmed appointment had to be withdrawn.\n\n" +
			"We apologize for the inconvenience and hope to see you at another session."
	}
	s.notifyCandidate(item.UserID, text)

	s.autoPromote(&item.Event)
	s.rerenderGroup(item.GroupMessageID)
	s.refreshSummary(item.Event.Date)
	return nil
}

// CancelEvent cancels a whole session: the event stops accepting
// applications and every live application is cancelled, each candidate is
// told. Already-cancelled and archived events cannot be cancelled again.
func (s *Service) CancelEvent(eventID int) error {
	ev, err := s.store.GetEvent(eventID)
	if err != nil {
		return err
	}
	switch ev.Status {
	case models.EventDraft, models.EventPublished:
	default:
		return fmt.Errorf("cancel %s event: %w", ev.Status, ErrInvalidTransition)
	}
	if err := s.store.UpdateEventStatus(eventID, models.EventCancelled); err != nil {
		return fmt.Errorf("set event status: %w", err)
	}

	apps, err := s.store.ApplicationsByEvent(eventID)
	if err != nil {
		return fmt.Errorf("load applications: %w", err)
	}
	groups := make(map[int]bool)
	cancelled := 0
	for i := range apps {
		app := &apps[i]
		switch app.Status {
		case models.StatusPending, models.StatusApproved, models.StatusPrimary:
		default:
			continue
		}
		if err := s.store.SetApplicationStatus(app.ID, models.StatusCancelled); err != nil {
			return fmt.Errorf("cancel application %d: %w", app.ID, err)
		}
		cancelled++
		s.notifyCandidate(app.UserID, fmt.Sprintf(
			"Unfortunately, the session %s on %s at %s has been cancelled.\n\n"+
				"We hope to see you at another one.",
			ev.ProcedureName, ev.Date, ev.Time))
		if app.GroupMessageID != 0 {
			groups[app.GroupMessageID] = true
		}
	}
	if err := s.store.RecalculatePositions(eventID); err != nil {
		return fmt.Errorf("recalculate event %d: %w", eventID, err)
	}
	for id := range groups {
		s.rerenderGroup(id)
	}
	s.refreshSummary(ev.Date)

	s.log.Info().Int("event_id", eventID).Int("applications_cancelled", cancelled).
		Msg("event cancelled")
	return nil
}

// CancelByUser is candidate self-service cancellation. Only the owner can
// cancel, and only from pending, approved or primary. The admin is told what
// status the application held.
func (s *Service) CancelByUser(applicationID int, userID int64) error {
	item, err := s.store.GetApplicationWithEvent(applicationID)
	if err != nil {
		return err
	}
	if item.UserID != userID {
		return storage.ErrNotFound
	}
	switch item.Status {
	case models.StatusPending, models.StatusApproved, models.StatusPrimary:
	default:
		return fmt.Errorf("self-cancel %s application: %w", item.Status, ErrInvalidTransition)
	}
	prior := item.Status
	if err := s.transition(&item.Application, models.StatusCancelled); err != nil {
		return err
	}

	s.notifyAdmin(fmt.Sprintf("Candidate %s cancelled their application #%d (%s, %s %s); status was %q.",
		item.FullName, item.ID, item.Event.ProcedureName, item.Event.Date, item.Event.Time, prior))

	s.autoPromote(&item.Event)
	s.rerenderGroup(item.GroupMessageID)
	s.refreshSummary(item.Event.Date)
	return nil
}

// transition persists the status change and recomputes the event's queue.
// The storage mutation is the source of truth; everything after it is
// best-effort.
func (s *Service) transition(app *models.Application, target models.ApplicationStatus) error {
	if err := s.store.SetApplicationStatus(app.ID, target); err != nil {
		return fmt.Errorf("set status %s: %w", target, err)
	}
	app.Status = target
	if err := s.store.RecalculatePositions(app.EventID); err != nil {
		return fmt.Errorf("recalculate event %d: %w", app.EventID, err)
	}
	s.log.Info().Int("application_id", app.ID).Int("event_id", app.EventID).
		Str("status", string(target)).Msg("application transitioned")
	return nil
}

// autoPromote refills a vacated primary slot: if the event still has no
// primary and the reserve is not empty, the earliest approved application is
// promoted with its full side effects. An empty reserve is reported to the
// admin.
func (s *Service) autoPromote(ev *models.Event) {
	apps, err := s.store.ApplicationsByEvent(ev.ID)
	if err != nil {
		s.log.Error().Err(err).Int("event_id", ev.ID).Msg("auto-promotion: load applications")
		return
	}
	for i := range apps {
		if apps[i].IsPrimary() {
			return
		}
	}
	next := queue.NextPrimary(apps)
	if next == nil {
		s.notifyAdmin(fmt.Sprintf("Event #%d (%s, %s %s) is left without a primary candidate.",
			ev.ID, ev.ProcedureName, ev.Date, ev.Time))
		return
	}
	if err := s.transition(next, models.StatusPrimary); err != nil {
		s.log.Error().Err(err).Int("application_id", next.ID).Msg("auto-promotion failed")
		return
	}
	s.notifyCandidate(next.UserID, instructionText(ev))
	s.rerenderGroup(next.GroupMessageID)
	s.log.Info().Int("application_id", next.ID).Int("event_id", ev.ID).Msg("auto-promoted from reserve")
}

// notifyCandidate delivers a best-effort direct message. A permanently
// unreachable candidate gets the blocked flag; no notification failure ever
// aborts the state change that already persisted.
func (s *Service) notifyCandidate(userID int64, text string) {
	_, err := s.channel.Send(userID, text, nil)
	if err == nil {
		return
	}
	if errors.Is(err, notify.ErrUnreachable) {
		if berr := s.store.BlockUser(userID); berr != nil {
			s.log.Error().Err(berr).Int64("user_id", userID).Msg("mark user blocked")
		}
		s.log.Warn().Int64("user_id", userID).Msg("candidate unreachable, marked blocked")
		return
	}
	s.log.Warn().Err(err).Int64("user_id", userID).Msg("candidate notification failed")
}

func (s *Service) notifyAdmin(text string) {
	if _, err := s.channel.Send(s.cfg.AdminID, text, nil); err != nil {
		s.log.Warn().Err(err).Msg("admin notification failed")
	}
}

func (s *Service) refreshSummary(date string) {
	if s.summary == nil {
		return
	}
	if err := s.summary.Refresh(date); err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("day summary refresh failed")
	}
}

func instructionText(ev *models.Event) string {
	return fmt.Sprintf(
		"Congratulations! You are the primary candidate.\n\n"+
			"Procedure: %s\nDate: %s\nTime: %s\n\n"+
			"Please arrive 10 minutes early and bring an ID document. "+
			"If you cannot make it, let us know in advance.",
		ev.ProcedureName, ev.Date, ev.Time)
}

func countDigits(phone string) int {
	n := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// statusLabel is the short marker used in group and summary renderings.
func statusLabel(status models.ApplicationStatus) string {
	switch status {
	case models.StatusPrimary:
		return "PRIMARY"
	case models.StatusApproved:
		return "reserve"
	case models.StatusPending:
		return "pending"
	case models.StatusRejected:
		return "rejected"
	case models.StatusCancelled:
		return "cancelled"
	}
	return string(status)
}

// rerenderGroup re-renders the shared admin-group message of a combined
// submission after any member changed. Best-effort: a vanished message is
// logged, a migrated group updates the stored identity and retries once.
func (s *Service) rerenderGroup(groupMessageID int) {
	if groupMessageID == 0 {
		return
	}
	items, err := s.store.ApplicationsByGroupMessage(groupMessageID)
	if err != nil {
		s.log.Error().Err(err).Int("group_message_id", groupMessageID).Msg("load combined group")
		return
	}
	if len(items) == 0 {
		return
	}

	text := RenderGroupMessage(items)
	kb := GroupKeyboard(items)
	ref := notify.MessageRef{ChatID: s.cfg.GroupID(), MessageID: groupMessageID}
	err = s.channel.Edit(ref, text, kb)
	var migrated *notify.MigratedError
	if errors.As(err, &migrated) {
		s.cfg.UpdateGroupID(migrated.NewChatID)
		ref.ChatID = migrated.NewChatID
		err = s.channel.Edit(ref, text, kb)
	}
	if err != nil && !errors.Is(err, notify.ErrNotFound) {
		s.log.Warn().Err(err).Int("group_message_id", groupMessageID).Msg("combined message edit failed")
	}
}

// RenderGroupMessage builds the admin-group text for a combined submission.
func RenderGroupMessage(items []models.ApplicationWithEvent) string {
	var b strings.Builder
	first := items[0]
	fmt.Fprintf(&b, "Application group by %s, %s\n", first.FullName, first.Phone)
	for _, item := range items {
		fmt.Fprintf(&b, "\n#%d %s — %s %s: %s",
			item.ID, item.Event.ProcedureName, item.Event.Date, item.Event.Time,
			statusLabel(item.Status))
		if item.Position > 0 {
			fmt.Fprintf(&b, " (position %d)", item.Position)
		}
	}
	return b.String()
}

// GroupKeyboard builds per-application action buttons for the combined
// message: triage actions for live applications, promotion for approved ones.
func GroupKeyboard(items []models.ApplicationWithEvent) notify.Keyboard {
	var kb notify.Keyboard
	for _, item := range items {
		switch item.Status {
		case models.StatusPending:
			kb = append(kb, notify.Row(
				notify.Button{Label: fmt.Sprintf("Approve #%d", item.ID), Data: fmt.Sprintf("approve_%d", item.ID)},
				notify.Button{Label: fmt.Sprintf("Reject #%d", item.ID), Data: fmt.Sprintf("reject_%d", item.ID)},
			))
		case models.StatusApproved:
			kb = append(kb, notify.Row(
				notify.Button{Label: fmt.Sprintf("Make primary #%d", item.ID), Data: fmt.Sprintf("primary_%d", item.ID)},
				notify.Button{Label: fmt.Sprintf("Reject #%d", item.ID), Data: fmt.Sprintf("reject_%d", item.ID)},
			))
		case models.StatusPrimary:
			kb = append(kb, notify.Row(
				notify.Button{Label: fmt.Sprintf("Reject #%d", item.ID), Data: fmt.Sprintf("reject_%d", item.ID)},
				notify.Button{Label: fmt.Sprintf("Cancel #%d", item.ID), Data: fmt.Sprintf("cancel_app_%d", item.ID)},
			))
		case models.StatusRejected, models.StatusCancelled:
			kb = append(kb, notify.Row(
				notify.Button{Label: fmt.Sprintf("Re-approve #%d", item.ID), Data: fmt.Sprintf("approve_%d", item.ID)},
			))
		}
	}
	return kb
}
