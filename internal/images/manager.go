package images

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clowdy-platform/engine/internal/buildlog"
	"github.com/clowdy-platform/engine/internal/containerhost"
	"github.com/clowdy-platform/engine/internal/logger"
	"github.com/clowdy-platform/engine/internal/metadata"
	"github.com/clowdy-platform/engine/internal/prometrics"
)

// Docker is the subset of containerhost.Client the image manager needs,
// narrowed to an interface so tests can substitute a fake builder.
type Docker interface {
	ImageExists(ctx context.Context, tag string) (bool, error)
	BuildImage(ctx context.Context, buildCtx containerhost.BuildContext, tag string) error
}

// Manager implements the Image Lifecycle Manager (C2).
type Manager struct {
	docker           Docker
	meta             *metadata.Store
	baseRuntimeImage string
	tagPrefix        string
	log              *logger.Logger
	logs             *buildlog.Archive // nil disables on-disk build log archiving

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-project build lock, created lazily
}

// NewManager builds a Manager.
func NewManager(docker Docker, meta *metadata.Store, baseRuntimeImage, tagPrefix string, log *logger.Logger) *Manager {
	return &Manager{
		docker:           docker,
		meta:             meta,
		baseRuntimeImage: baseRuntimeImage,
		tagPrefix:        tagPrefix,
		log:              log,
		locks:            make(map[string]*sync.Mutex),
	}
}

// WithBuildLogArchive enables persisting each build attempt's output under
// archive's base directory, returning m for chaining at construction time.
func (m *Manager) WithBuildLogArchive(archive *buildlog.Archive) *Manager {
	m.logs = archive
	return m
}

func (m *Manager) recordBuildLog(projectID, outcome, tag string, lines []string) {
	if m.logs == nil {
		return
	}
	if err := m.logs.Record(projectID, time.Now(), outcome, tag, lines); err != nil {
		m.log.Warn("failed to archive build log for project %s: %v", projectID, err)
	}
}

func (m *Manager) lockFor(projectID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[projectID] = l
	}
	return l
}

// EnsureBaseImage builds the shared base runtime image if it is not
// already present locally. It embeds the Python bootstrap program that
// every invocation container runs as its entrypoint.
func (m *Manager) EnsureBaseImage(ctx context.Context) error {
	exists, err := m.docker.ImageExists(ctx, m.baseRuntimeImage)
	if err != nil {
		return fmt.Errorf("images: checking base image: %w", err)
	}
	if exists {
		return nil
	}

	m.log.Info("base runtime image %s not found locally, building it", m.baseRuntimeImage)
	buildCtx := containerhost.BuildContext{
		"Dockerfile":   []byte(baseDockerfile),
		"bootstrap.py": []byte(bootstrapScript),
	}
	if err := m.docker.BuildImage(ctx, buildCtx, m.baseRuntimeImage); err != nil {
		return fmt.Errorf("images: building base image: %w", err)
	}
	return nil
}

// GetOrBuildTag returns the image tag that satisfies project's current
// requirements text, building on demand and blocking concurrent callers
// for the same project behind its build lock. Build requests for
// different projects proceed in parallel.
//
// On a build failure, the returned tag falls back to the project's last
// ready tag (or the base runtime image if it never had one), while the
// error is still returned so the caller that triggered the build can
// surface it; invocation callers that merely resolve an image for
// execution should ignore a non-nil error and use the fallback tag.
func (m *Manager) GetOrBuildTag(ctx context.Context, project *metadata.Project) (string, error) {
	canonical := Canonicalize(project.RequirementsText)
	if canonical == "" {
		return m.baseRuntimeImage, nil
	}

	hash := Hash(canonical)
	tag := Tag(m.tagPrefix, project.ID, hash)

	if project.ImageBuildStatus == metadata.ImageBuildReady && project.RequirementsHash == hash {
		return tag, nil
	}

	lock := m.lockFor(project.ID)
	lock.Lock()
	defer lock.Unlock()

	fresh, err := m.meta.GetProjectByID(project.ID)
	if err != nil {
		return "", fmt.Errorf("images: re-reading project: %w", err)
	}
	if fresh.ImageBuildStatus == metadata.ImageBuildReady && fresh.RequirementsHash == hash {
		return fresh.RuntimeImageTag, nil
	}

	if err := m.meta.BeginImageBuild(project.ID); err != nil {
		return fallbackTag(fresh, m.baseRuntimeImage), err
	}
	if err := m.meta.SetProjectRequirements(project.ID, canonical, hash); err != nil {
		m.log.Warn("failed to persist canonicalized requirements for project %s: %v", project.ID, err)
	}

	buildCtx := containerhost.BuildContext{
		"Dockerfile":       []byte(projectDockerfile(m.baseRuntimeImage)),
		"requirements.txt": []byte(canonical),
	}

	if err := m.docker.BuildImage(ctx, buildCtx, tag); err != nil {
		buildErrMsg := err.Error()
		var lines []string
		if buildErr, ok := err.(*containerhost.BuildError); ok {
			buildErrMsg = buildErr.Error()
			lines = buildErr.LastLines
		}
		if failErr := m.meta.FailImageBuild(project.ID, buildErrMsg); failErr != nil {
			m.log.Warn("failed to record failed build for project %s: %v", project.ID, failErr)
		}
		prometrics.RecordBuild(project.ID, "failed")
		m.recordBuildLog(project.ID, "failed", tag, lines)
		return fallbackTag(fresh, m.baseRuntimeImage), err
	}

	if err := m.meta.CompleteImageBuild(project.ID, tag); err != nil {
		m.log.Warn("failed to record completed build for project %s: %v", project.ID, err)
	}
	prometrics.RecordBuild(project.ID, "ready")
	m.recordBuildLog(project.ID, "ready", tag, nil)
	return tag, nil
}

func fallbackTag(project *metadata.Project, baseImage string) string {
	if project.RuntimeImageTag != "" {
		return project.RuntimeImageTag
	}
	return baseImage
}
