package metadata

import (
	"fmt"
	"time"
)

// RouteMethod is an HTTP method a Route matches, or ANY to match every
// method.
type RouteMethod string

const (
	MethodGet    RouteMethod = "GET"
	MethodPost   RouteMethod = "POST"
	MethodPut    RouteMethod = "PUT"
	MethodPatch  RouteMethod = "PATCH"
	MethodDelete RouteMethod = "DELETE"
	MethodAny    RouteMethod = "ANY"
)

// Route maps one (method, path pattern) pair to a Function within a
// Project's gateway.
type Route struct {
	ID          string
	ProjectID   string
	FunctionID  string
	Method      RouteMethod
	PathPattern string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateRoute inserts a new Route. The (project_id, method, path_pattern)
// triple must be unique; a conflicting insert returns the underlying
// sqlite3 constraint error unchanged so callers can detect it.
func (s *Store) CreateRoute(id, projectID, functionID string, method RouteMethod, pathPattern string) (*Route, error) {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO routes (id, project_id, function_id, method, path_pattern, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, projectID, functionID, method, pathPattern, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create route: %w", err)
	}
	return &Route{
		ID: id, ProjectID: projectID, FunctionID: functionID, Method: method, PathPattern: pathPattern,
		CreatedAt: time.Unix(now, 0), UpdatedAt: time.Unix(now, 0),
	}, nil
}

// ListRoutesByProject returns every Route for a Project in insertion order
// (oldest first), the order the route compiler uses as its stable
// tie-break.
func (s *Store) ListRoutesByProject(projectID string) ([]*Route, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, function_id, method, path_pattern, created_at, updated_at
		FROM routes WHERE project_id = ? ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var out []*Route
	for rows.Next() {
		var r Route
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.FunctionID, &r.Method, &r.PathPattern, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		r.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteRoute removes a single Route.
func (s *Store) DeleteRoute(id string) error {
	_, err := s.db.Exec(`DELETE FROM routes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	return nil
}
