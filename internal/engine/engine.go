// Package engine implements the Invocation Engine (C3): it resolves a
// project's runtime image, creates a fresh container per call, injects the
// function's code, runs it to completion or timeout, and records the
// result. No container is ever reused across invocations.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clowdy-platform/engine/internal/containerhost"
	"github.com/clowdy-platform/engine/internal/limits"
	"github.com/clowdy-platform/engine/internal/logger"
	"github.com/clowdy-platform/engine/internal/logstore"
	"github.com/clowdy-platform/engine/internal/metadata"
	"github.com/clowdy-platform/engine/internal/prometrics"
	"github.com/clowdy-platform/engine/internal/store"
)

// ExecutionTimeout is the fixed wall-clock budget granted to every
// invocation container, not configurable per-function.
const ExecutionTimeout = 30 * time.Second

// Docker is the subset of containerhost.Client the engine drives.
type Docker interface {
	CreateContainer(ctx context.Context, image string, env map[string]string, lim *limits.ContainerLimits) (string, error)
	PutArchive(ctx context.Context, containerID, destPath string, archive containerhost.TarArchive) error
	StartAndWait(ctx context.Context, containerID string, timeout time.Duration) (int, error)
	ReadLogs(ctx context.Context, containerID string) ([]byte, []byte, error)
	RemoveContainer(ctx context.Context, containerID string)
}

// Images is the subset of images.Manager the engine drives.
type Images interface {
	GetOrBuildTag(ctx context.Context, project *metadata.Project) (string, error)
}

// Recorder is the subset of store.Store the engine appends completed
// invocations to.
type Recorder interface {
	Append(inv *store.Invocation) error
}

// Engine orchestrates a single function execution end to end.
type Engine struct {
	docker    Docker
	images    Images
	envVars   EnvVarLister
	recorder  Recorder
	logs      logstore.Store
	admission *Admission
	timeout   time.Duration
	log       *logger.Logger
	newID     func() string
}

// EnvVarLister is the subset of metadata.Store the engine reads a
// project's environment from.
type EnvVarLister interface {
	ListEnvVarsByProject(projectID string) ([]*metadata.EnvVar, error)
}

// New builds an Engine. maxConcurrent bounds how many containers may be
// in flight across every invocation at once; newID generates invocation
// ids (normally uuid.NewString).
func New(docker Docker, imgs Images, envVars EnvVarLister, recorder Recorder, maxConcurrent int, newID func() string, log *logger.Logger) *Engine {
	return &Engine{
		docker:    docker,
		images:    imgs,
		envVars:   envVars,
		recorder:  recorder,
		logs:      logstore.NoopStore{},
		admission: NewAdmission(maxConcurrent),
		timeout:   ExecutionTimeout,
		log:       log,
		newID:     newID,
	}
}

// WithLogStore swaps in a non-noop log sink (normally a logstore.LokiStore),
// returning e for chaining at construction time.
func (e *Engine) WithLogStore(logs logstore.Store) *Engine {
	e.logs = logs
	return e
}

// Request describes one invocation to run.
type Request struct {
	Function   *metadata.Function
	Project    *metadata.Project // nil for a project-less legacy function
	InputJSON  string            // raw JSON text, defaults to "null" if empty
	Source     store.Source
	HTTPMethod string
	HTTPPath   string
}

// Result is the outcome of one invocation.
type Result struct {
	InvocationID string
	Status       store.Status
	OutputJSON   string
	Success      bool
	DurationMS   int64
}

// Run executes req to completion. It returns an error only when the image
// cannot be resolved or no admission slot can be acquired, before any
// container is created; once a run is attempted it always returns a Result.
// Persistence failures are logged but never turned into an error for the
// caller since the invocation itself already happened.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	invocationID := e.newID()
	input := req.InputJSON
	if input == "" {
		input = "null"
	}

	imageTag, env, err := e.resolveImageAndEnv(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("engine: resolving image: %w", err)
	}
	env["INPUT_JSON"] = input
	env["CLOWDY_FUNCTION_ID"] = req.Function.ID
	env["CLOWDY_INVOCATION_ID"] = invocationID

	if err := e.admission.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("engine: admission: %w", err)
	}
	defer e.admission.Release()

	projectID := ""
	if req.Project != nil {
		projectID = req.Project.ID
	}
	lim := limits.DefaultLimits(projectID)

	start := time.Now()
	status, outputJSON, success := e.execute(ctx, imageTag, env, lim, req.Function.Code, req.Function.ID, invocationID)
	duration := time.Since(start)

	result := &Result{
		InvocationID: invocationID,
		Status:       status,
		OutputJSON:   outputJSON,
		Success:      success,
		DurationMS:   duration.Milliseconds(),
	}

	inv := &store.Invocation{
		ID:         invocationID,
		FunctionID: req.Function.ID,
		InputJSON:  input,
		OutputJSON: outputJSON,
		Status:     status,
		DurationMS: result.DurationMS,
		Source:     req.Source,
		HTTPMethod: req.HTTPMethod,
		HTTPPath:   req.HTTPPath,
		CreatedAt:  start,
	}
	if err := e.recorder.Append(inv); err != nil {
		e.log.Warn("failed to record invocation %s: %v", invocationID, err)
	}
	prometrics.RecordInvocation(req.Function.ID, string(status), string(req.Source), result.DurationMS)

	return result, nil
}

// execute runs one container from creation through cleanup. Cleanup
// failures never change the classification of the run; only create, put
// archive, and start-and-wait failures do.
func (e *Engine) execute(ctx context.Context, imageTag string, env map[string]string, lim *limits.ContainerLimits, code, functionID, invocationID string) (store.Status, string, bool) {
	containerID, err := e.docker.CreateContainer(ctx, imageTag, env, lim)
	if err != nil {
		return store.StatusError, genericErrorJSON(containerErrorMessage(err), nil), false
	}
	defer e.docker.RemoveContainer(context.Background(), containerID)

	archive := containerhost.TarArchive{"function.py": []byte(code)}
	if err := e.docker.PutArchive(ctx, containerID, "/app", archive); err != nil {
		return store.StatusError, genericErrorJSON(containerErrorMessage(err), nil), false
	}

	exitCode, waitErr := e.docker.StartAndWait(ctx, containerID, e.timeout)
	timedOut := waitErr == containerhost.ErrTimeout
	if waitErr != nil && !timedOut {
		return store.StatusError, genericErrorJSON(waitErr.Error(), nil), false
	}

	stdout, stderr, logErr := e.docker.ReadLogs(ctx, containerID)
	if logErr != nil {
		e.log.Warn("failed to read logs for container %s: %v", containerID, logErr)
	}
	e.appendLogs(functionID, invocationID, stdout, stderr)

	return parseOutput(stdout, stderr, exitCode, timedOut)
}

// containerErrorMessage normalizes a container-runtime failure to the
// sentinel message it wraps, dropping the underlying docker CLI output so
// the recorded output.error is exactly "engine unavailable" rather than a
// one-off wrapped string.
func containerErrorMessage(err error) string {
	if errors.Is(err, containerhost.ErrEngineUnavailable) {
		return "engine unavailable"
	}
	return err.Error()
}

// appendLogs pushes captured stdout/stderr lines to the log store,
// best-effort; a log sink failure never affects the invocation's result.
func (e *Engine) appendLogs(functionID, invocationID string, stdout, stderr []byte) {
	for _, line := range splitNonEmptyLines(stdout) {
		if err := e.logs.Append(functionID, invocationID, "stdout", line); err != nil {
			e.log.Warn("failed to append stdout log for invocation %s: %v", invocationID, err)
			break
		}
	}
	for _, line := range splitNonEmptyLines(stderr) {
		if err := e.logs.Append(functionID, invocationID, "stderr", line); err != nil {
			e.log.Warn("failed to append stderr log for invocation %s: %v", invocationID, err)
			break
		}
	}
}

// resolveImageAndEnv picks the image tag to run and assembles the base
// environment: a project's stored env vars, overridden by its database
// URL if set. Project-less legacy functions run on the bare base image
// with no extra environment.
func (e *Engine) resolveImageAndEnv(ctx context.Context, req Request) (string, map[string]string, error) {
	env := map[string]string{}
	if req.Project == nil {
		tag, err := e.images.GetOrBuildTag(ctx, &metadata.Project{})
		return tag, env, err
	}

	vars, err := e.envVars.ListEnvVarsByProject(req.Project.ID)
	if err != nil {
		return "", nil, fmt.Errorf("listing env vars: %w", err)
	}
	for _, v := range vars {
		env[v.Key] = v.Value
	}
	if req.Project.DatabaseURL != "" {
		env["DATABASE_URL"] = req.Project.DatabaseURL
	}

	tag, err := e.images.GetOrBuildTag(ctx, req.Project)
	if err != nil {
		e.log.Warn("image build failed for project %s, running on fallback tag %s: %v", req.Project.ID, tag, err)
	}
	return tag, env, nil
}

// Shutdown waits up to timeout for in-flight invocations to drain.
func (e *Engine) Shutdown(timeout time.Duration) {
	e.admission.Shutdown(timeout)
}

// MarshalInput is a small helper used by callers (the gateway and direct
// invoker) to turn a decoded request body back into the raw JSON text the
// engine expects as INPUT_JSON.
func MarshalInput(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("engine: marshaling input: %w", err)
	}
	return string(out), nil
}
