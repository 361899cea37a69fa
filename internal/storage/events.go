package storage

import (
	"database/sql"

	"beautybot/internal/models"
)

const eventColumns = `id, date, time, procedure_type_id, procedure_name, needs_photo,
	comment, status, channel_message_id, group_apps_message_id, created_at`

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	var ev models.Event
	var needsPhoto int
	var createdAt string
	err := row.Scan(&ev.ID, &ev.Date, &ev.Time, &ev.ProcedureTypeID, &ev.ProcedureName,
		&needsPhoto, &ev.Comment, &ev.Status, &ev.ChannelMessageID,
		&ev.GroupAppsMessageID, &createdAt)
	if err != nil {
		return nil, err
	}
	ev.NeedsPhoto = needsPhoto == 1
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

// CreateEvent inserts a new event in draft status and returns its id.
// The procedure name is snapshotted so later renames of the type do not
// rewrite history.
func (s *Store) CreateEvent(ev *models.Event) (int, error) {
	if ev.Status == "" {
		ev.Status = models.EventDraft
	}
	needsPhoto := 0
	if ev.NeedsPhoto {
		needsPhoto = 1
	}
	res, err := s.db.Exec(`
		INSERT INTO events (date, time, procedure_type_id, procedure_name, needs_photo, comment, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Date, ev.Time, ev.ProcedureTypeID, ev.ProcedureName, needsPhoto,
		ev.Comment, ev.Status, now())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	ev.ID = int(id)
	return ev.ID, nil
}

// GetEvent returns the event with the given id.
func (s *Store) GetEvent(id int) (*models.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return ev, err
}

// UpdateEventStatus sets the event status.
func (s *Store) UpdateEventStatus(id int, status models.EventStatus) error {
	_, err := s.db.Exec(`UPDATE events SET status = ? WHERE id = ?`, status, id)
	return err
}

// SetEventChannelMessage records the channel post handle for the event.
func (s *Store) SetEventChannelMessage(id, messageID int) error {
	_, err := s.db.Exec(`UPDATE events SET channel_message_id = ? WHERE id = ?`, messageID, id)
	return err
}

// SetEventAppsMessage records (or clears with 0) the grouped applications
// message handle for the event.
func (s *Store) SetEventAppsMessage(id, messageID int) error {
	_, err := s.db.Exec(`UPDATE events SET group_apps_message_id = ? WHERE id = ?`, messageID, id)
	return err
}

func (s *Store) queryEvents(query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// ActiveEvents returns published events from today onward, ordered by date
// and time.
func (s *Store) ActiveEvents(today string) ([]models.Event, error) {
	return s.queryEvents(`
		SELECT `+eventColumns+` FROM events
		WHERE status = ? AND date >= ?
		ORDER BY date, time`, models.EventPublished, today)
}

// PastEvents returns published events before today, newest first.
func (s *Store) PastEvents(today string) ([]models.Event, error) {
	return s.queryEvents(`
		SELECT `+eventColumns+` FROM events
		WHERE status = ? AND date < ?
		ORDER BY date DESC, time DESC`, models.EventPublished, today)
}

// EventsByDate returns all non-cancelled events on the date, ordered by time.
func (s *Store) EventsByDate(date string) ([]models.Event, error) {
	return s.queryEvents(`
		SELECT `+eventColumns+` FROM events
		WHERE date = ? AND status != ?
		ORDER BY time, id`, date, models.EventCancelled)
}

// ArchiveEventsBefore moves published events older than the cutoff date to
// archived and returns how many were touched.
func (s *Store) ArchiveEventsBefore(cutoff string) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE events SET status = ?
		WHERE status = ? AND date < ?`,
		models.EventArchived, models.EventPublished, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
