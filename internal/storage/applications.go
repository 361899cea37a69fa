package storage

import (
	"database/sql"
	"fmt"

	"beautybot/internal/models"
	"beautybot/internal/queue"
)

const applicationColumns = `id, event_id, user_id, full_name, phone, consent,
	status, position, group_key, group_message_id, created_at`

func scanApplication(row interface{ Scan(...any) error }) (*models.Application, error) {
	var app models.Application
	var consent int
	var createdAt string
	err := row.Scan(&app.ID, &app.EventID, &app.UserID, &app.FullName, &app.Phone,
		&consent, &app.Status, &app.Position, &app.GroupKey, &app.GroupMessageID,
		&createdAt)
	if err != nil {
		return nil, err
	}
	app.Consent = consent == 1
	if app.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &app, nil
}

// CreateApplication inserts a new pending application and returns its id.
func (s *Store) CreateApplication(app *models.Application) (int, error) {
	if app.Status == "" {
		app.Status = models.StatusPending
	}
	consent := 0
	if app.Consent {
		consent = 1
	}
	res, err := s.db.Exec(`
		INSERT INTO applications (event_id, user_id, full_name, phone, consent, status, group_key, group_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.EventID, app.UserID, app.FullName, app.Phone, consent, app.Status,
		app.GroupKey, app.GroupMessageID, now())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	app.ID = int(id)
	return app.ID, nil
}

// GetApplication returns the application with the given id.
func (s *Store) GetApplication(id int) (*models.Application, error) {
	row := s.db.QueryRow(`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return app, err
}

// GetApplicationWithEvent returns the application joined with its event.
func (s *Store) GetApplicationWithEvent(id int) (*models.ApplicationWithEvent, error) {
	app, err := s.GetApplication(id)
	if err != nil {
		return nil, err
	}
	ev, err := s.GetEvent(app.EventID)
	if err != nil {
		return nil, err
	}
	return &models.ApplicationWithEvent{Application: *app, Event: *ev}, nil
}

// SetApplicationStatus updates the application status. Positions become stale
// until the next RecalculatePositions for the event.
func (s *Store) SetApplicationStatus(id int, status models.ApplicationStatus) error {
	res, err := s.db.Exec(`UPDATE applications SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetGroupMessageForKey stamps the admin-group message handle on every
// application of a combined submission.
func (s *Store) SetGroupMessageForKey(groupKey string, messageID int) error {
	_, err := s.db.Exec(`UPDATE applications SET group_message_id = ? WHERE group_key = ?`,
		messageID, groupKey)
	return err
}

func (s *Store) queryApplications(query string, args ...any) ([]models.Application, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// ApplicationsByEvent returns every application for the event in display
// order: queue first (by position), then pending, cancelled, rejected, each
// group by submission time.
func (s *Store) ApplicationsByEvent(eventID int) ([]models.Application, error) {
	return s.queryApplications(`
		SELECT `+applicationColumns+` FROM applications
		WHERE event_id = ?
		ORDER BY
			CASE status
				WHEN 'primary' THEN 0
				WHEN 'approved' THEN 1
				WHEN 'pending' THEN 2
				WHEN 'cancelled' THEN 3
				WHEN 'rejected' THEN 4
				ELSE 5
			END,
			CASE WHEN position > 0 THEN position ELSE 999 END,
			created_at, id`, eventID)
}

// ApplicationsByGroupMessage returns all applications sharing one
// admin-group message, joined with their events, in event order.
func (s *Store) ApplicationsByGroupMessage(messageID int) ([]models.ApplicationWithEvent, error) {
	return s.queryJoined(`WHERE a.group_message_id = ? ORDER BY e.date, e.time, a.id`, messageID)
}

// ApplicationsByGroupKey returns all applications of one combined submission.
func (s *Store) ApplicationsByGroupKey(groupKey string) ([]models.ApplicationWithEvent, error) {
	return s.queryJoined(`WHERE a.group_key = ? ORDER BY e.date, e.time, a.id`, groupKey)
}

// UserApplicationsForDate returns the user's applications against any event
// on the given date. Used to flag double-booking in the day summary.
func (s *Store) UserApplicationsForDate(userID int64, date string) ([]models.ApplicationWithEvent, error) {
	return s.queryJoined(`WHERE a.user_id = ? AND e.date = ? ORDER BY e.time, a.id`, userID, date)
}

// UserApplications returns every application of the user, newest event first.
func (s *Store) UserApplications(userID int64) ([]models.ApplicationWithEvent, error) {
	return s.queryJoined(`WHERE a.user_id = ? ORDER BY e.date DESC, e.time DESC, a.id`, userID)
}

func (s *Store) queryJoined(clause string, args ...any) ([]models.ApplicationWithEvent, error) {
	query := fmt.Sprintf(`
		SELECT a.id, a.event_id, a.user_id, a.full_name, a.phone, a.consent,
			a.status, a.position, a.group_key, a.group_message_id, a.created_at,
			e.id, e.date, e.time, e.procedure_type_id, e.procedure_name, e.needs_photo,
			e.comment, e.status, e.channel_message_id, e.group_apps_message_id, e.created_at
		FROM applications a
		JOIN events e ON a.event_id = e.id
		%s`, clause)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ApplicationWithEvent
	for rows.Next() {
		var item models.ApplicationWithEvent
		var consent, needsPhoto int
		var appCreated, evCreated string
		err := rows.Scan(
			&item.ID, &item.EventID, &item.UserID, &item.FullName, &item.Phone,
			&consent, &item.Status, &item.Position, &item.GroupKey,
			&item.GroupMessageID, &appCreated,
			&item.Event.ID, &item.Event.Date, &item.Event.Time,
			&item.Event.ProcedureTypeID, &item.Event.ProcedureName, &needsPhoto,
			&item.Event.Comment, &item.Event.Status, &item.Event.ChannelMessageID,
			&item.Event.GroupAppsMessageID, &evCreated)
		if err != nil {
			return nil, err
		}
		item.Consent = consent == 1
		item.Event.NeedsPhoto = needsPhoto == 1
		if item.CreatedAt, err = parseTime(appCreated); err != nil {
			return nil, err
		}
		if item.Event.CreatedAt, err = parseTime(evCreated); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// RecalculatePositions rebuilds queue positions for the event inside a single
// immediate transaction: load every application in submission order, let the
// queue engine normalize primary and positions, persist the whole batch.
// Unknown event ids are a no-op. On any failure the transaction rolls back
// and no partial position writes remain.
func (s *Store) RecalculatePositions(eventID int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin recalculation: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT `+applicationColumns+` FROM applications
		WHERE event_id = ?
		ORDER BY created_at, id`, eventID)
	if err != nil {
		return err
	}
	var apps []models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			rows.Close()
			return err
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	res := queue.Order(apps)
	for _, id := range res.Demoted {
		if _, err := tx.Exec(`UPDATE applications SET status = ? WHERE id = ?`,
			models.StatusApproved, id); err != nil {
			return err
		}
	}
	for _, a := range res.Assignments {
		if _, err := tx.Exec(`UPDATE applications SET position = ? WHERE id = ?`,
			a.Position, a.ApplicationID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddApplicationPhoto attaches a media reference to the application.
func (s *Store) AddApplicationPhoto(applicationID int, fileID string) error {
	_, err := s.db.Exec(`INSERT INTO application_photos (application_id, file_id) VALUES (?, ?)`,
		applicationID, fileID)
	return err
}

// ApplicationPhotos returns the media references of the application in
// insertion order.
func (s *Store) ApplicationPhotos(applicationID int) ([]string, error) {
	rows, err := s.db.Query(`SELECT file_id FROM application_photos WHERE application_id = ? ORDER BY id`,
		applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []string
	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			return nil, err
		}
		photos = append(photos, fileID)
	}
	return photos, rows.Err()
}
