package metadata

import (
	"fmt"
	"time"
)

// EnvVar is a single project-scoped environment variable injected into
// every invocation container for that project.
type EnvVar struct {
	ProjectID string
	Key       string
	Value     string
	IsSecret  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertEnvVar creates or replaces the (project_id, key) row. Writing the
// same (key, value, is_secret) twice leaves created_at untouched and only
// advances updated_at.
func (s *Store) UpsertEnvVar(projectID, key, value string, isSecret bool) (*EnvVar, error) {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO env_vars (project_id, key, value, is_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, key) DO UPDATE SET
			value = excluded.value,
			is_secret = excluded.is_secret,
			updated_at = excluded.updated_at
	`, projectID, key, value, isSecret, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert env var: %w", err)
	}

	var e EnvVar
	var createdAt, updatedAt int64
	row := s.db.QueryRow(`SELECT project_id, key, value, is_secret, created_at, updated_at
		FROM env_vars WHERE project_id = ? AND key = ?`, projectID, key)
	if err := row.Scan(&e.ProjectID, &e.Key, &e.Value, &e.IsSecret, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to read back env var: %w", err)
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

// ListEnvVarsByProject lists every EnvVar for a Project.
func (s *Store) ListEnvVarsByProject(projectID string) ([]*EnvVar, error) {
	rows, err := s.db.Query(`SELECT project_id, key, value, is_secret, created_at, updated_at
		FROM env_vars WHERE project_id = ? ORDER BY key`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list env vars: %w", err)
	}
	defer rows.Close()

	var out []*EnvVar
	for rows.Next() {
		var e EnvVar
		var createdAt, updatedAt int64
		if err := rows.Scan(&e.ProjectID, &e.Key, &e.Value, &e.IsSecret, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan env var: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		e.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DeleteEnvVar removes a single env var.
func (s *Store) DeleteEnvVar(projectID, key string) error {
	_, err := s.db.Exec(`DELETE FROM env_vars WHERE project_id = ? AND key = ?`, projectID, key)
	if err != nil {
		return fmt.Errorf("failed to delete env var: %w", err)
	}
	return nil
}
