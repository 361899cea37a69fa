package storage

import (
	"database/sql"

	"beautybot/internal/models"
)

// EnsureUser creates the user record if it does not exist yet.
func (s *Store) EnsureUser(userID int64) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?)`,
		userID, now())
	return err
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(userID int64) (*models.User, error) {
	row := s.db.QueryRow(`SELECT user_id, full_name, phone, is_blocked, created_at FROM users WHERE user_id = ?`,
		userID)
	var u models.User
	var blocked int
	var createdAt string
	err := row.Scan(&u.ID, &u.FullName, &u.Phone, &blocked, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.IsBlocked = blocked == 1
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserContact saves the user's contact data for reuse on the next
// application.
func (s *Store) UpdateUserContact(userID int64, fullName, phone string) error {
	_, err := s.db.Exec(`UPDATE users SET full_name = ?, phone = ? WHERE user_id = ?`,
		fullName, phone, userID)
	return err
}

// BlockUser flags the user as blocked; blocked users cannot submit
// applications and are excluded from outbound notifications.
func (s *Store) BlockUser(userID int64) error {
	_, err := s.db.Exec(`UPDATE users SET is_blocked = 1 WHERE user_id = ?`, userID)
	return err
}

// IsUserBlocked reports whether the user is blocked. Unknown users are not
// blocked.
func (s *Store) IsUserBlocked(userID int64) (bool, error) {
	row := s.db.QueryRow(`SELECT is_blocked FROM users WHERE user_id = ?`, userID)
	var blocked int
	err := row.Scan(&blocked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return blocked == 1, nil
}
