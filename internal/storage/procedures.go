package storage

import (
	"database/sql"

	"beautybot/internal/models"
)

// DefaultProcedureTypes seeds an empty catalog on first start.
var DefaultProcedureTypes = []string{
	"Laser hair removal",
	"Tattoo removal",
	"Vein removal",
	"Lesion removal",
	"Carbon facial peel",
	"Lip PM removal",
	"Eyeliner removal",
}

func scanProcedureType(row interface{ Scan(...any) error }) (*models.ProcedureType, error) {
	var pt models.ProcedureType
	var active int
	var createdAt string
	if err := row.Scan(&pt.ID, &pt.Name, &active, &createdAt); err != nil {
		return nil, err
	}
	pt.IsActive = active == 1
	var err error
	if pt.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &pt, nil
}

// SeedProcedureTypes inserts the given names when the catalog is empty.
func (s *Store) SeedProcedureTypes(names []string) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM procedure_types`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, name := range names {
		if _, err := s.db.Exec(`INSERT INTO procedure_types (name, created_at) VALUES (?, ?)`,
			name, now()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) queryProcedureTypes(query string, args ...any) ([]models.ProcedureType, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []models.ProcedureType
	for rows.Next() {
		pt, err := scanProcedureType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *pt)
	}
	return types, rows.Err()
}

// ActiveProcedureTypes returns the types offered for new events.
func (s *Store) ActiveProcedureTypes() ([]models.ProcedureType, error) {
	return s.queryProcedureTypes(`
		SELECT id, name, is_active, created_at FROM procedure_types
		WHERE is_active = 1 ORDER BY name`)
}

// AllProcedureTypes returns the whole catalog, active first.
func (s *Store) AllProcedureTypes() ([]models.ProcedureType, error) {
	return s.queryProcedureTypes(`
		SELECT id, name, is_active, created_at FROM procedure_types
		ORDER BY is_active DESC, name`)
}

// GetProcedureType returns the type with the given id.
func (s *Store) GetProcedureType(id int) (*models.ProcedureType, error) {
	row := s.db.QueryRow(`SELECT id, name, is_active, created_at FROM procedure_types WHERE id = ?`, id)
	pt, err := scanProcedureType(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return pt, err
}

// CreateProcedureType adds a new active type and returns its id.
func (s *Store) CreateProcedureType(name string) (int, error) {
	res, err := s.db.Exec(`INSERT INTO procedure_types (name, is_active, created_at) VALUES (?, 1, ?)`,
		name, now())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// RenameProcedureType changes the catalog name. Events keep the name they
// snapshotted at creation.
func (s *Store) RenameProcedureType(id int, name string) error {
	_, err := s.db.Exec(`UPDATE procedure_types SET name = ? WHERE id = ?`, name, id)
	return err
}

// ToggleProcedureType flips the active flag.
func (s *Store) ToggleProcedureType(id int) error {
	_, err := s.db.Exec(`
		UPDATE procedure_types
		SET is_active = CASE WHEN is_active = 1 THEN 0 ELSE 1 END
		WHERE id = ?`, id)
	return err
}

// DeleteProcedureType removes the type when no event has ever referenced it;
// otherwise it is only deactivated, preserving referential integrity for
// historical events. Returns true when the row was actually deleted.
func (s *Store) DeleteProcedureType(id int) (bool, error) {
	var used int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE procedure_type_id = ?`, id).Scan(&used); err != nil {
		return false, err
	}
	if used > 0 {
		_, err := s.db.Exec(`UPDATE procedure_types SET is_active = 0 WHERE id = ?`, id)
		return false, err
	}
	res, err := s.db.Exec(`DELETE FROM procedure_types WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return true, nil
}
