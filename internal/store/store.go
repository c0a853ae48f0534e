// Package store is the append-only Invocation Record Store (C7): every
// invocation, however it was triggered, is written here exactly once and
// never mutated afterward.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Source identifies what triggered an invocation.
type Source string

const (
	SourceDirect  Source = "direct"
	SourceGateway Source = "gateway"
)

// Status is the terminal classification the Invocation Engine assigned.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Invocation is one append-only execution record.
type Invocation struct {
	ID         string    `json:"id"`
	FunctionID string    `json:"function_id"`
	InputJSON  string    `json:"input_json"`
	OutputJSON string    `json:"output_json"`
	Status     Status    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Source     Source    `json:"source"`
	HTTPMethod string    `json:"http_method"` // empty for direct invocations
	HTTPPath   string    `json:"http_path"`   // empty for direct invocations
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages the invocations table in its own SQLite database,
// deliberately separate from the metadata database: the spec draws C7 as
// an independent component with no transactions spanning it and C8.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if necessary) the invocation database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invocations (
		id          TEXT PRIMARY KEY,
		function_id TEXT NOT NULL,
		input_json  TEXT NOT NULL,
		output_json TEXT NOT NULL,
		status      TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		source      TEXT NOT NULL,
		http_method TEXT,
		http_path   TEXT,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invocations_function_id ON invocations(function_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append writes inv as a single INSERT statement. Invocations are never
// updated or deleted afterward.
func (s *Store) Append(inv *Invocation) error {
	_, err := s.db.Exec(`
		INSERT INTO invocations (id, function_id, input_json, output_json, status, duration_ms, source, http_method, http_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.FunctionID, inv.InputJSON, inv.OutputJSON, inv.Status, inv.DurationMS, inv.Source,
		nullableString(inv.HTTPMethod), nullableString(inv.HTTPPath), inv.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append invocation: %w", err)
	}
	return nil
}

// ListForFunction returns a function's Invocations, newest first, limited
// to limit rows (a limit of 0 defaults to 50, matching the HTTP surface's
// default page size).
func (s *Store) ListForFunction(functionID string, limit int) ([]*Invocation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, function_id, input_json, output_json, status, duration_ms, source, http_method, http_path, created_at
		FROM invocations WHERE function_id = ? ORDER BY created_at DESC LIMIT ?
	`, functionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	var out []*Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// DeleteForFunction removes every Invocation belonging to functionID.
// metadata.Store.DeleteFunction does not reach this database, so a caller
// deleting a Function calls this separately; the cascade cannot be
// expressed as a single cross-database transaction.
func (s *Store) DeleteForFunction(functionID string) error {
	_, err := s.db.Exec(`DELETE FROM invocations WHERE function_id = ?`, functionID)
	if err != nil {
		return fmt.Errorf("failed to delete invocations: %w", err)
	}
	return nil
}

// Aggregate holds the owner-scoped summary exposed at /stats.
type Aggregate struct {
	TotalInvocations int64
	SuccessRate      float64
	AvgDurationMS    float64
}

// AggregateForFunctions summarizes every Invocation belonging to any of
// functionIDs. The caller (the /stats handler) supplies the owner's
// function ids from the metadata store and folds in TotalFunctions itself,
// since ownership is metadata's concern, not this store's.
func (s *Store) AggregateForFunctions(functionIDs []string) (*Aggregate, error) {
	agg := &Aggregate{}
	if len(functionIDs) == 0 {
		return agg, nil
	}

	placeholders := make([]byte, 0, len(functionIDs)*2)
	args := make([]any, 0, len(functionIDs))
	for i, id := range functionIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM invocations WHERE function_id IN (%s)
	`, string(placeholders))

	var total, successes int64
	var avgDuration float64
	if err := s.db.QueryRow(query, args...).Scan(&total, &successes, &avgDuration); err != nil {
		return nil, fmt.Errorf("failed to aggregate invocations: %w", err)
	}

	agg.TotalInvocations = total
	agg.AvgDurationMS = avgDuration
	if total > 0 {
		agg.SuccessRate = float64(successes) / float64(total)
	}
	return agg, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanInvocation(scan func(dest ...any) error) (*Invocation, error) {
	var inv Invocation
	var httpMethod, httpPath sql.NullString
	var createdAt int64

	if err := scan(&inv.ID, &inv.FunctionID, &inv.InputJSON, &inv.OutputJSON, &inv.Status, &inv.DurationMS,
		&inv.Source, &httpMethod, &httpPath, &createdAt); err != nil {
		return nil, err
	}

	inv.HTTPMethod = httpMethod.String
	inv.HTTPPath = httpPath.String
	inv.CreatedAt = time.Unix(createdAt, 0)
	return &inv, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
