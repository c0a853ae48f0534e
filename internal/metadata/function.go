package metadata

import (
	"database/sql"
	"fmt"
	"time"
)

// FunctionStatus is the lifecycle state of a Function.
type FunctionStatus string

const (
	FunctionStatusActive   FunctionStatus = "active"
	FunctionStatusDisabled FunctionStatus = "disabled"
)

// PythonRuntimeID is the sole runtime identifier the core defines; the
// field exists on Function so the design admits plural runtimes later.
const PythonRuntimeID = "python3.11"

// Function is a stored piece of user code, optionally grouped into a
// Project.
type Function struct {
	ID          string
	ProjectID   string // empty for legacy project-less functions
	OwnerID     string
	Name        string
	Description string
	Code        string
	RuntimeID   string
	Status      FunctionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const functionColumns = `id, project_id, owner_id, name, description, code, runtime_id, status, created_at, updated_at`

func scanFunction(scan func(dest ...any) error) (*Function, error) {
	var f Function
	var projectID sql.NullString
	var createdAt, updatedAt int64

	if err := scan(&f.ID, &projectID, &f.OwnerID, &f.Name, &f.Description, &f.Code, &f.RuntimeID, &f.Status,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	f.ProjectID = projectID.String
	f.CreatedAt = time.Unix(createdAt, 0)
	f.UpdatedAt = time.Unix(updatedAt, 0)
	return &f, nil
}

// RegisterFunction inserts a new Function. projectID may be empty for a
// legacy project-less function.
func (s *Store) RegisterFunction(id, projectID, ownerID, name, description, code string) (*Function, error) {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO functions (id, project_id, owner_id, name, description, code, runtime_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, nullableString(projectID), ownerID, name, description, code, PythonRuntimeID, FunctionStatusActive, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to register function: %w", err)
	}
	return s.GetFunctionByID(id)
}

// GetFunctionByID looks up a Function by its opaque id.
func (s *Store) GetFunctionByID(id string) (*Function, error) {
	row := s.db.QueryRow(`SELECT `+functionColumns+` FROM functions WHERE id = ?`, id)
	f, err := scanFunction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get function: %w", err)
	}
	return f, nil
}

// ListFunctionsByProject lists Functions belonging to a Project, newest
// first.
func (s *Store) ListFunctionsByProject(projectID string) ([]*Function, error) {
	rows, err := s.db.Query(`SELECT `+functionColumns+` FROM functions WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}
	defer rows.Close()

	var out []*Function
	for rows.Next() {
		f, err := scanFunction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan function: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFunctionsByOwner lists every Function owned by ownerID, across every
// Project and including legacy project-less functions, newest first.
func (s *Store) ListFunctionsByOwner(ownerID string) ([]*Function, error) {
	rows, err := s.db.Query(`SELECT `+functionColumns+` FROM functions WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}
	defer rows.Close()

	var out []*Function
	for rows.Next() {
		f, err := scanFunction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan function: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFunctionCode replaces a Function's source text.
func (s *Store) UpdateFunctionCode(id, code string) error {
	_, err := s.db.Exec(`UPDATE functions SET code = ?, updated_at = ? WHERE id = ?`, code, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update function code: %w", err)
	}
	return nil
}

// SetFunctionStatus transitions a Function between active and disabled.
func (s *Store) SetFunctionStatus(id string, status FunctionStatus) error {
	_, err := s.db.Exec(`UPDATE functions SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set function status: %w", err)
	}
	return nil
}

// DeleteFunction removes a Function and the Routes that reference it.
// Invocations for this function live in the separate invocation record
// store and must be cleared there by the caller.
func (s *Store) DeleteFunction(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM routes WHERE function_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete routes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM functions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete function: %w", err)
	}

	return tx.Commit()
}
