package metadata

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "metadata.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectCreateAndFetch(t *testing.T) {
	s := newTestStore(t)

	p, err := s.CreateProject("proj-1", "owner-1", "My Project", "my-project", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ImageBuildStatus != ImageBuildNone {
		t.Errorf("expected initial build status 'none', got %q", p.ImageBuildStatus)
	}

	got, err := s.GetProjectBySlug("my-project")
	if err != nil {
		t.Fatalf("GetProjectBySlug: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("expected project id %q, got %q", p.ID, got.ID)
	}
}

func TestProjectBuildStateTransitions(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.CreateProject("proj-1", "owner-1", "P", "p", "")

	if err := s.BeginImageBuild(p.ID); err != nil {
		t.Fatalf("BeginImageBuild: %v", err)
	}
	mid, _ := s.GetProjectByID(p.ID)
	if mid.ImageBuildStatus != ImageBuildBuilding {
		t.Errorf("expected 'building', got %q", mid.ImageBuildStatus)
	}

	if err := s.CompleteImageBuild(p.ID, "clowdy-project-proj-1-abc123def456"); err != nil {
		t.Fatalf("CompleteImageBuild: %v", err)
	}
	done, _ := s.GetProjectByID(p.ID)
	if done.ImageBuildStatus != ImageBuildReady {
		t.Errorf("expected 'ready', got %q", done.ImageBuildStatus)
	}
	if done.RuntimeImageTag != "clowdy-project-proj-1-abc123def456" {
		t.Errorf("unexpected runtime image tag %q", done.RuntimeImageTag)
	}

	// A later failed build retains the previous ready tag.
	if err := s.FailImageBuild(p.ID, "pip install exploded"); err != nil {
		t.Fatalf("FailImageBuild: %v", err)
	}
	failed, _ := s.GetProjectByID(p.ID)
	if failed.ImageBuildStatus != ImageBuildFailed {
		t.Errorf("expected 'failed', got %q", failed.ImageBuildStatus)
	}
	if failed.RuntimeImageTag != "clowdy-project-proj-1-abc123def456" {
		t.Error("failed build should retain the last ready tag")
	}
	if failed.ImageBuildError != "pip install exploded" {
		t.Errorf("unexpected build error %q", failed.ImageBuildError)
	}
}

func TestFunctionUniquePerProject(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.CreateProject("proj-1", "owner-1", "P", "p", "")

	if _, err := s.RegisterFunction("fn-1", p.ID, "owner-1", "greet", "", "def handler(i): return i"); err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	if _, err := s.RegisterFunction("fn-2", p.ID, "owner-1", "greet", "", "def handler(i): return i"); err == nil {
		t.Error("expected unique constraint violation for duplicate (project_id, name)")
	}
}

func TestEnvVarUpsertIsIdempotentOnCreatedAt(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.CreateProject("proj-1", "owner-1", "P", "p", "")

	first, err := s.UpsertEnvVar(p.ID, "API_KEY", "secret-value", true)
	if err != nil {
		t.Fatalf("UpsertEnvVar: %v", err)
	}

	second, err := s.UpsertEnvVar(p.ID, "API_KEY", "secret-value", true)
	if err != nil {
		t.Fatalf("UpsertEnvVar: %v", err)
	}

	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("created_at should be stable across idempotent upserts: %v != %v", first.CreatedAt, second.CreatedAt)
	}

	vars, err := s.ListEnvVarsByProject(p.ID)
	if err != nil {
		t.Fatalf("ListEnvVarsByProject: %v", err)
	}
	if len(vars) != 1 {
		t.Errorf("expected exactly one env var row, got %d", len(vars))
	}
}

func TestRouteUniquePerProject(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.CreateProject("proj-1", "owner-1", "P", "p", "")
	fn, _ := s.RegisterFunction("fn-1", p.ID, "owner-1", "users", "", "")

	if _, err := s.CreateRoute("route-1", p.ID, fn.ID, MethodGet, "/users/:id"); err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}
	if _, err := s.CreateRoute("route-2", p.ID, fn.ID, MethodGet, "/users/:id"); err == nil {
		t.Error("expected unique constraint violation for duplicate (project_id, method, path_pattern)")
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.CreateProject("proj-1", "owner-1", "P", "p", "")
	fn, _ := s.RegisterFunction("fn-1", p.ID, "owner-1", "users", "", "")
	s.UpsertEnvVar(p.ID, "KEY", "value", false)
	s.CreateRoute("route-1", p.ID, fn.ID, MethodGet, "/users")

	if err := s.DeleteProject(p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}

	if _, err := s.GetFunctionByID(fn.ID); err != ErrNotFound {
		t.Error("expected function to be cascade-deleted with its project")
	}
	routes, _ := s.ListRoutesByProject(p.ID)
	if len(routes) != 0 {
		t.Error("expected routes to be cascade-deleted with their project")
	}
	vars, _ := s.ListEnvVarsByProject(p.ID)
	if len(vars) != 0 {
		t.Error("expected env vars to be cascade-deleted with their project")
	}
}
