package storage

import "database/sql"

// DayMessageID returns the stored summary message id for the date, 0 if none.
func (s *Store) DayMessageID(date string) (int, error) {
	row := s.db.QueryRow(`SELECT message_id FROM day_messages WHERE date = ?`, date)
	var id int
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SetDayMessageID stores or replaces the summary message id for the date.
func (s *Store) SetDayMessageID(date string, messageID int) error {
	_, err := s.db.Exec(`
		INSERT INTO day_messages (date, message_id)
		VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET message_id = excluded.message_id`,
		date, messageID)
	return err
}

// DeleteDayMessage drops the stored handle, e.g. after the external message
// was found to be gone.
func (s *Store) DeleteDayMessage(date string) error {
	_, err := s.db.Exec(`DELETE FROM day_messages WHERE date = ?`, date)
	return err
}
