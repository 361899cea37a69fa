// Package storage is the SQLite repository behind the application and event
// stores. All writes go through this package; queue recomputation runs inside
// an immediate transaction so that concurrent recomputations for the same
// event serialize on the database write lock.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// timeLayout is the storage format for timestamps. Nanosecond precision keeps
// submission order stable even for back-to-back inserts.
const timeLayout = time.RFC3339Nano

// Store implements the repository over a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// _txlock=immediate makes every transaction take the write lock up front,
// which is what serializes queue recomputations across goroutines and
// processes.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	if err := s.ensureSchemaUpgrades(); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			is_blocked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS procedure_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			procedure_type_id INTEGER NOT NULL REFERENCES procedure_types(id),
			procedure_name TEXT NOT NULL,
			needs_photo INTEGER NOT NULL DEFAULT 0,
			comment TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'draft',
			channel_message_id INTEGER NOT NULL DEFAULT 0,
			group_apps_message_id INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id INTEGER NOT NULL REFERENCES events(id),
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			full_name TEXT NOT NULL,
			phone TEXT NOT NULL,
			consent INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			position INTEGER NOT NULL DEFAULT 0,
			group_key TEXT NOT NULL DEFAULT '',
			group_message_id INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS application_photos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			application_id INTEGER NOT NULL REFERENCES applications(id),
			file_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS day_messages (
			date TEXT PRIMARY KEY,
			message_id INTEGER NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ensureSchemaUpgrades brings databases created by older versions up to the
// current schema.
func (s *Store) ensureSchemaUpgrades() error {
	upgrades := []struct {
		table, column, definition string
	}{
		{"applications", "position", "INTEGER NOT NULL DEFAULT 0"},
		{"applications", "group_key", "TEXT NOT NULL DEFAULT ''"},
		{"events", "group_apps_message_id", "INTEGER NOT NULL DEFAULT 0"},
	}
	for _, u := range upgrades {
		if err := s.addColumnIfMissing(u.table, u.column, u.definition); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) addColumnIfMissing(table, column, definition string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	exists := false
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		if name == column {
			exists = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err == nil {
		return t, nil
	}
	// Older rows may carry second-precision timestamps.
	if t, err2 := time.Parse(time.RFC3339, value); err2 == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
}
