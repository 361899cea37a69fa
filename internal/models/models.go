package models

import "time"

// EventStatus is the lifecycle state of a procedure slot.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
	EventArchived  EventStatus = "archived"
)

// ApplicationStatus is the lifecycle state of a candidate application.
type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "pending"
	StatusApproved  ApplicationStatus = "approved"
	StatusPrimary   ApplicationStatus = "primary"
	StatusRejected  ApplicationStatus = "rejected"
	StatusCancelled ApplicationStatus = "cancelled"
)

// DateFormat and TimeFormat are the storage formats for event dates and time slots.
const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

// Event represents a published procedure slot.
type Event struct {
	ID                 int
	Date               string // calendar date, DateFormat
	Time               string // time-of-day slot, TimeFormat
	ProcedureTypeID    int
	ProcedureName      string // snapshot of the type name at creation time
	NeedsPhoto         bool
	Comment            string
	Status             EventStatus
	ChannelMessageID   int // channel post with the apply button
	GroupAppsMessageID int // grouped applications overview in the admin group
	CreatedAt          time.Time
}

// AcceptsApplications reports whether new applications may be submitted.
func (e *Event) AcceptsApplications() bool {
	return e.Status == EventPublished
}

// Application represents one candidate's application to one event.
type Application struct {
	ID             int
	EventID        int
	UserID         int64
	FullName       string
	Phone          string
	Consent        bool
	Status         ApplicationStatus
	Position       int    // queue rank, 0 = not queued
	GroupKey       string // shared key for combined multi-event submissions
	GroupMessageID int    // admin-group message shared by the submission group
	CreatedAt      time.Time
}

// IsPrimary reports whether this application holds the single primary slot.
func (a *Application) IsPrimary() bool {
	return a.Status == StatusPrimary
}

// InQueue reports whether the application occupies a queue position.
func (a *Application) InQueue() bool {
	return a.Status == StatusPrimary || a.Status == StatusApproved
}

// ApplicationPhoto is an opaque media reference attached to an application.
type ApplicationPhoto struct {
	ID            int
	ApplicationID int
	FileID        string
}

// ApplicationWithEvent carries an application joined with its owning event.
type ApplicationWithEvent struct {
	Application
	Event Event
}

// ProcedureType is a catalog entry for the kinds of procedures offered.
type ProcedureType struct {
	ID        int
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// User is a candidate known to the bot.
type User struct {
	ID        int64
	FullName  string
	Phone     string
	IsBlocked bool
	CreatedAt time.Time
}

// HasContact reports whether saved contact data can be offered back on the
// next application.
func (u *User) HasContact() bool {
	return u.FullName != "" && u.Phone != ""
}

// DaySummaryMessage links a calendar date to its aggregated admin-group post.
type DaySummaryMessage struct {
	Date      string
	MessageID int
}

// MaxApplicationPhotos is the soft cap on candidate-submitted photos.
const MaxApplicationPhotos = 3
