package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/clowdy-platform/engine/internal/containerhost"
	"github.com/clowdy-platform/engine/internal/engine"
	"github.com/clowdy-platform/engine/internal/limits"
	"github.com/clowdy-platform/engine/internal/logger"
	"github.com/clowdy-platform/engine/internal/metadata"
	"github.com/clowdy-platform/engine/internal/store"
)

type fakeDocker struct {
	stdout string
}

func (f *fakeDocker) CreateContainer(ctx context.Context, image string, env map[string]string, lim *limits.ContainerLimits) (string, error) {
	return "c1", nil
}
func (f *fakeDocker) PutArchive(ctx context.Context, containerID, destPath string, archive containerhost.TarArchive) error {
	return nil
}
func (f *fakeDocker) StartAndWait(ctx context.Context, containerID string, timeout time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeDocker) ReadLogs(ctx context.Context, containerID string) ([]byte, []byte, error) {
	return []byte(f.stdout), nil, nil
}
func (f *fakeDocker) RemoveContainer(ctx context.Context, containerID string) {}

type fakeImages struct{ tag string }

func (f *fakeImages) GetOrBuildTag(ctx context.Context, project *metadata.Project) (string, error) {
	return f.tag, nil
}

func newTestServer(t *testing.T, stdout string) (*Server, *metadata.Store) {
	t.Helper()

	meta, err := metadata.NewStore(filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("metadata.NewStore: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	records, err := store.NewStore(filepath.Join(t.TempDir(), "invocations.db"))
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { records.Close() })

	counter := 0
	eng := engine.New(&fakeDocker{stdout: stdout}, &fakeImages{tag: "clowdy-python-runtime:latest"}, meta, records, 4, func() string {
		counter++
		return "inv-test"
	}, logger.Default())

	srv := New(meta, records, eng, nil, Config{HTTPPort: 0, MaxBodyBytes: 1 << 20}, logger.Default())
	return srv, meta
}

func TestGatewayDispatchMatchesRouteAndInvokes(t *testing.T) {
	srv, meta := newTestServer(t, `{"greeting": "hi"}`)

	proj, _ := meta.CreateProject("proj-1", "owner-1", "P", "myapi", "")
	fn, _ := meta.RegisterFunction("fn-1", proj.ID, "owner-1", "greet", "", "def handler(e):\n    return {}\n")
	meta.CreateRoute("route-1", proj.ID, fn.ID, metadata.MethodGet, "/hello/:name")

	req := httptest.NewRequest(http.MethodGet, "/gateway/myapi/hello/world", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() == "" {
		t.Error("expected a non-empty response body")
	}
}

func TestGatewayDispatchUnknownProjectIs404(t *testing.T) {
	srv, _ := newTestServer(t, `{}`)

	req := httptest.NewRequest(http.MethodGet, "/gateway/no-such-project/anything", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDirectInvokeReturnsEnvelope(t *testing.T) {
	srv, meta := newTestServer(t, `{"ok": true}`)

	fn, _ := meta.RegisterFunction("fn-1", "", "owner-1", "standalone", "", "def handler(e):\n    return {}\n")

	req := httptest.NewRequest(http.MethodPost, "/invoke/"+fn.ID, nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, `{}`)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatsWithoutIdentityConfiguredIs503(t *testing.T) {
	srv, _ := newTestServer(t, `{}`)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no identity verifier is configured, got %d", rec.Code)
	}
}
