// Package metadata owns the Project/Function/EnvVar/Route records that the
// rest of the engine reads and writes. It is the one piece of "external
// collaborator" plumbing (the spec calls record-store CRUD out of scope)
// that the engine still needs in-process, since there is no separate
// control-plane service in this deployment shape.
package metadata

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages Project/Function/EnvVar/Route metadata in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) the metadata database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id                TEXT PRIMARY KEY,
		owner_id          TEXT NOT NULL,
		name              TEXT NOT NULL,
		slug              TEXT NOT NULL,
		status            TEXT NOT NULL,
		database_url      TEXT,
		runtime_image_tag TEXT,
		requirements_text TEXT NOT NULL DEFAULT '',
		requirements_hash TEXT NOT NULL DEFAULT '',
		image_build_status TEXT NOT NULL DEFAULT 'none',
		image_build_error  TEXT,
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL,
		UNIQUE(owner_id, slug)
	);

	CREATE TABLE IF NOT EXISTS functions (
		id           TEXT PRIMARY KEY,
		project_id   TEXT,
		owner_id     TEXT NOT NULL,
		name         TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		code         TEXT NOT NULL DEFAULT '',
		runtime_id   TEXT NOT NULL,
		status       TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_functions_project_name
		ON functions(project_id, name) WHERE project_id IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_functions_owner_name
		ON functions(owner_id, name) WHERE project_id IS NULL;
	CREATE INDEX IF NOT EXISTS idx_functions_project_id ON functions(project_id);

	CREATE TABLE IF NOT EXISTS env_vars (
		project_id TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL DEFAULT '',
		is_secret  INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (project_id, key),
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);

	CREATE TABLE IF NOT EXISTS routes (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL,
		function_id  TEXT NOT NULL,
		method       TEXT NOT NULL,
		path_pattern TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL,
		UNIQUE(project_id, method, path_pattern),
		FOREIGN KEY (project_id)  REFERENCES projects(id),
		FOREIGN KEY (function_id) REFERENCES functions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_routes_project_id ON routes(project_id);
	CREATE INDEX IF NOT EXISTS idx_projects_slug ON projects(slug);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	// ErrNotFound is returned by lookups that find no matching row.
	ErrNotFound = fmt.Errorf("metadata: not found")
)
