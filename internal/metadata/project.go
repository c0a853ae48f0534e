package metadata

import (
	"database/sql"
	"fmt"
	"time"
)

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusArchived ProjectStatus = "archived"
)

// ImageBuildStatus tracks the state of a Project's runtime image build.
type ImageBuildStatus string

const (
	ImageBuildNone     ImageBuildStatus = "none"
	ImageBuildBuilding ImageBuildStatus = "building"
	ImageBuildReady    ImageBuildStatus = "ready"
	ImageBuildFailed   ImageBuildStatus = "failed"
)

// Project groups Functions under a shared environment, dependency
// manifest, and route table.
type Project struct {
	ID                string
	OwnerID           string
	Name              string
	Slug              string
	Status            ProjectStatus
	DatabaseURL       string // empty if unset
	RuntimeImageTag   string // empty until C2 has built one
	RequirementsText  string
	RequirementsHash  string
	ImageBuildStatus  ImageBuildStatus
	ImageBuildError   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const projectColumns = `id, owner_id, name, slug, status, database_url, runtime_image_tag,
	requirements_text, requirements_hash, image_build_status, image_build_error, created_at, updated_at`

func scanProject(scan func(dest ...any) error) (*Project, error) {
	var p Project
	var databaseURL, runtimeImageTag, buildError sql.NullString
	var createdAt, updatedAt int64

	if err := scan(&p.ID, &p.OwnerID, &p.Name, &p.Slug, &p.Status, &databaseURL, &runtimeImageTag,
		&p.RequirementsText, &p.RequirementsHash, &p.ImageBuildStatus, &buildError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.DatabaseURL = databaseURL.String
	p.RuntimeImageTag = runtimeImageTag.String
	p.ImageBuildError = buildError.String
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// CreateProject inserts a new Project in the "none" build state.
func (s *Store) CreateProject(id, ownerID, name, slug, databaseURL string) (*Project, error) {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO projects (id, owner_id, name, slug, status, database_url, runtime_image_tag,
			requirements_text, requirements_hash, image_build_status, image_build_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', '', '', ?, '', ?, ?)
	`, id, ownerID, name, slug, ProjectStatusActive, nullableString(databaseURL), ImageBuildNone, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return s.GetProjectByID(id)
}

// GetProjectByID looks up a Project by its opaque id.
func (s *Store) GetProjectByID(id string) (*Project, error) {
	row := s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetProjectBySlug looks up a Project by its gateway slug. The HTTP gateway
// surface carries no owner context, so the lookup is global; uniqueness of
// the (owner_id, slug) pair is still enforced at write time by the schema.
func (s *Store) GetProjectBySlug(slug string) (*Project, error) {
	row := s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE slug = ? LIMIT 1`, slug)
	p, err := scanProject(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjectsByOwner lists all Projects owned by ownerID, newest first.
func (s *Store) ListProjectsByOwner(ownerID string) ([]*Project, error) {
	rows, err := s.db.Query(`SELECT `+projectColumns+` FROM projects WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SetProjectRequirements stores the canonicalized manifest and its hash,
// ahead of a build decision by the image lifecycle manager.
func (s *Store) SetProjectRequirements(id, canonicalText, hash string) error {
	_, err := s.db.Exec(`UPDATE projects SET requirements_text = ?, requirements_hash = ?, updated_at = ? WHERE id = ?`,
		canonicalText, hash, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set project requirements: %w", err)
	}
	return nil
}

// BeginImageBuild transitions a Project into the "building" state.
func (s *Store) BeginImageBuild(id string) error {
	_, err := s.db.Exec(`UPDATE projects SET image_build_status = ?, updated_at = ? WHERE id = ?`,
		ImageBuildBuilding, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to begin image build: %w", err)
	}
	return nil
}

// CompleteImageBuild transitions a Project to "ready" and records the tag it
// built, clearing any previous build error.
func (s *Store) CompleteImageBuild(id, tag string) error {
	_, err := s.db.Exec(`
		UPDATE projects SET image_build_status = ?, runtime_image_tag = ?, image_build_error = '', updated_at = ?
		WHERE id = ?
	`, ImageBuildReady, tag, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to complete image build: %w", err)
	}
	return nil
}

// FailImageBuild transitions a Project to "failed", retaining whatever
// runtime_image_tag it already had so prior invocations keep working.
func (s *Store) FailImageBuild(id, buildError string) error {
	_, err := s.db.Exec(`
		UPDATE projects SET image_build_status = ?, image_build_error = ?, updated_at = ?
		WHERE id = ?
	`, ImageBuildFailed, buildError, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to fail image build: %w", err)
	}
	return nil
}

// DeleteProject removes a Project and everything it owns: its Functions,
// EnvVars, and Routes. Invocations belong to a separate database (the
// invocation record store) and must be cleared by the caller before or
// after this call; see internal/store.
func (s *Store) DeleteProject(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM routes WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete routes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM env_vars WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete env vars: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM functions WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete functions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	return tx.Commit()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
