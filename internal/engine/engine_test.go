package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/clowdy-platform/engine/internal/containerhost"
	"github.com/clowdy-platform/engine/internal/limits"
	"github.com/clowdy-platform/engine/internal/logger"
	"github.com/clowdy-platform/engine/internal/metadata"
	"github.com/clowdy-platform/engine/internal/store"
)

type fakeDocker struct {
	createErr    error
	putErr       error
	waitErr      error
	exitCode     int
	stdout       []byte
	stderr       []byte
	removedCount int
}

func (f *fakeDocker) CreateContainer(ctx context.Context, image string, env map[string]string, lim *limits.ContainerLimits) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return "container-1", nil
}

func (f *fakeDocker) PutArchive(ctx context.Context, containerID, destPath string, archive containerhost.TarArchive) error {
	return f.putErr
}

func (f *fakeDocker) StartAndWait(ctx context.Context, containerID string, timeout time.Duration) (int, error) {
	return f.exitCode, f.waitErr
}

func (f *fakeDocker) ReadLogs(ctx context.Context, containerID string) ([]byte, []byte, error) {
	return f.stdout, f.stderr, nil
}

func (f *fakeDocker) RemoveContainer(ctx context.Context, containerID string) {
	f.removedCount++
}

type fakeImages struct {
	tag string
	err error
}

func (f *fakeImages) GetOrBuildTag(ctx context.Context, project *metadata.Project) (string, error) {
	return f.tag, f.err
}

type fakeEnvVars struct {
	vars []*metadata.EnvVar
}

func (f *fakeEnvVars) ListEnvVarsByProject(projectID string) ([]*metadata.EnvVar, error) {
	return f.vars, nil
}

type fakeRecorder struct {
	recorded []*store.Invocation
}

func (f *fakeRecorder) Append(inv *store.Invocation) error {
	f.recorded = append(f.recorded, inv)
	return nil
}

func newTestEngine(docker Docker, imgs Images) (*Engine, *fakeRecorder) {
	rec := &fakeRecorder{}
	counter := 0
	eng := New(docker, imgs, &fakeEnvVars{}, rec, 4, func() string {
		counter++
		return fmt.Sprintf("inv-%d", counter)
	}, logger.Default())
	return eng, rec
}

func testRequest() Request {
	return Request{
		Function: &metadata.Function{ID: "fn-1", Code: "def handler(event):\n    return event\n"},
		Project:  &metadata.Project{ID: "proj-1"},
		Source:   store.SourceDirect,
	}
}

func TestRunSuccessEchoesOutput(t *testing.T) {
	docker := &fakeDocker{exitCode: 0, stdout: []byte(`{"ok": true}` + "\n")}
	eng, rec := newTestEngine(docker, &fakeImages{tag: "clowdy-project-proj-1-abc"})

	result, err := eng.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Status != store.StatusSuccess {
		t.Fatalf("expected success, got status=%s success=%v", result.Status, result.Success)
	}
	if result.OutputJSON != `{"ok": true}` {
		t.Errorf("unexpected output: %q", result.OutputJSON)
	}
	if docker.removedCount != 1 {
		t.Errorf("expected exactly one RemoveContainer call, got %d", docker.removedCount)
	}
	if len(rec.recorded) != 1 {
		t.Fatalf("expected one recorded invocation, got %d", len(rec.recorded))
	}
	if rec.recorded[0].Status != store.StatusSuccess {
		t.Errorf("recorded status = %s, want success", rec.recorded[0].Status)
	}
}

func TestRunTimeoutClassifiesAsTimeoutRegardlessOfStdout(t *testing.T) {
	docker := &fakeDocker{
		exitCode: 0,
		stdout:   []byte(`{"partial": true}`),
		waitErr:  containerhost.ErrTimeout,
	}
	eng, _ := newTestEngine(docker, &fakeImages{tag: "clowdy-python-runtime:latest"})

	result, err := eng.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != store.StatusTimeout {
		t.Errorf("expected timeout status, got %s", result.Status)
	}
	if result.Success {
		t.Error("a timed-out run must not be reported as success")
	}
}

func TestRunNonZeroExitParsesStderrError(t *testing.T) {
	docker := &fakeDocker{
		exitCode: 1,
		stderr:   []byte(`{"error": "boom", "traceback": "Traceback..."}` + "\n"),
	}
	eng, _ := newTestEngine(docker, &fakeImages{tag: "clowdy-python-runtime:latest"})

	result, err := eng.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != store.StatusError || result.Success {
		t.Fatalf("expected error status, got status=%s success=%v", result.Status, result.Success)
	}
	var parsed map[string]string
	if err := json.Unmarshal([]byte(result.OutputJSON), &parsed); err != nil {
		t.Fatalf("output should be valid JSON: %v", err)
	}
	if parsed["error"] != "boom" {
		t.Errorf("expected error message 'boom', got %q", parsed["error"])
	}
}

func TestRunCreateContainerFailureSkipsAdmissionLeak(t *testing.T) {
	docker := &fakeDocker{createErr: containerhost.ErrEngineUnavailable}
	eng, rec := newTestEngine(docker, &fakeImages{tag: "clowdy-python-runtime:latest"})

	result, err := eng.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != store.StatusError {
		t.Errorf("expected error status, got %s", result.Status)
	}
	if len(rec.recorded) != 1 {
		t.Fatalf("expected the failed run to still be recorded, got %d", len(rec.recorded))
	}

	if eng.admission.InFlight() != 0 {
		t.Error("admission slot must be released even when container creation fails")
	}
}
