// Package containerhost wraps the local docker CLI binary (no Docker Go
// SDK exists anywhere in the reference corpus) the same way the teacher
// wraps the bun runtime process: exec.CommandContext, dedicated pipes, a
// line-scanning goroutine for the side channel, and context-scoped
// cancellation for timeouts.
package containerhost

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/clowdy-platform/engine/internal/limits"
	"github.com/clowdy-platform/engine/internal/logger"
)

// Client drives a local docker engine via its CLI.
type Client struct {
	binaryPath string
	host       string
	log        *logger.Logger
}

// Config controls how a Client reaches the container runtime.
type Config struct {
	BinaryPath string
	HostOverride string
}

// NewClient discovers the docker endpoint and verifies it answers before
// returning. A container runtime is not optional infrastructure here: the
// caller should treat a non-nil error as fatal at startup.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "docker"
	}

	c := &Client{
		binaryPath: binary,
		host:       discoverHost(cfg.HostOverride),
		log:        log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.run(ctx, nil, "version", "--format", "{{.Server.Version}}"); err != nil {
		return nil, fmt.Errorf("containerhost: no reachable docker engine: %w", err)
	}

	return c, nil
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	if env := dockerHostEnv(c.host); env != nil {
		cmd.Env = append(cmd.Environ(), env...)
	}
	return cmd
}

func (c *Client) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := c.command(ctx, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// BuildImage builds buildCtx and tags the result as tag. On failure, the
// returned error is a *BuildError carrying the last ~10 non-empty lines of
// build output so C2 can surface the real package-manager failure.
func (c *Client) BuildImage(ctx context.Context, buildCtx BuildContext, tag string) error {
	tarData, err := buildCtx.TarBytes()
	if err != nil {
		return err
	}

	cmd := c.command(ctx, "build", "-t", tag, "-")
	cmd.Stdin = bytes.NewReader(tarData)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("containerhost: build stderr pipe: %w", err)
	}

	var lines []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
	}()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("containerhost: starting build: %w", err)
	}
	<-done
	if err := cmd.Wait(); err != nil {
		return newBuildError(tag, lines, 10)
	}

	return nil
}

// ImageExists reports whether tag is already present in the local image
// store, letting C2 skip a rebuild of the shared base image on every
// startup.
func (c *Client) ImageExists(ctx context.Context, tag string) (bool, error) {
	if _, err := c.run(ctx, nil, "image", "inspect", tag); err != nil {
		return false, nil
	}
	return true, nil
}

// CreateContainer creates (but does not start) a container for image with
// env injected and lim applied.
func (c *Client) CreateContainer(ctx context.Context, image string, env map[string]string, lim *limits.ContainerLimits) (string, error) {
	args := []string{
		"create",
		"--memory", fmt.Sprintf("%d", lim.MemoryBytes),
		"--cpus", fmt.Sprintf("%.2f", float64(lim.NanoCPUs)/1e9),
	}
	if lim.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", lim.PidsLimit))
	}
	if lim.ReadOnlyRootfs {
		args = append(args, "--read-only", "--tmpfs", "/tmp")
	}
	if lim.NetworkDisabled {
		args = append(args, "--network=none")
	}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, image)

	out, err := c.run(ctx, nil, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// PutArchive streams a tar archive into a stopped container's filesystem.
// This is the only mechanism used to deliver user code; no host-path
// mounts are ever used.
func (c *Client) PutArchive(ctx context.Context, containerID, destPath string, archive TarArchive) error {
	tarData, err := archive.TarBytes()
	if err != nil {
		return err
	}

	dest := fmt.Sprintf("%s:%s", containerID, destPath)
	if _, err := c.run(ctx, tarData, "cp", "-", dest); err != nil {
		return fmt.Errorf("containerhost: put_archive: %w", err)
	}
	return nil
}

// StartAndWait starts a container and blocks until it exits or timeout
// elapses. On timeout it issues a graceful stop followed by a hard kill and
// returns ErrTimeout regardless of the process's exit state.
func (c *Client) StartAndWait(ctx context.Context, containerID string, timeout time.Duration) (exitCode int, err error) {
	if _, err := c.run(ctx, nil, "start", containerID); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, waitErr := c.run(waitCtx, nil, "wait", containerID)
	if waitCtx.Err() != nil {
		c.stopThenKill(containerID)
		return 0, ErrTimeout
	}
	if waitErr != nil {
		return 0, fmt.Errorf("containerhost: wait: %w", waitErr)
	}

	code, parseErr := parseExitCode(out)
	if parseErr != nil {
		return 0, fmt.Errorf("containerhost: parsing exit code: %w", parseErr)
	}
	return code, nil
}

func (c *Client) stopThenKill(containerID string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.run(stopCtx, nil, "stop", containerID); err != nil {
		c.log.Debug("stop of container %s failed, escalating to kill: %v", containerID, err)
	}

	killCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if _, err := c.run(killCtx, nil, "kill", containerID); err != nil {
		c.log.Debug("kill of container %s failed (it may have already exited): %v", containerID, err)
	}
}

// ReadLogs retrieves a container's standard output and standard error,
// demultiplexed into separate byte slices.
func (c *Client) ReadLogs(ctx context.Context, containerID string) (stdout, stderr []byte, err error) {
	cmd := c.command(ctx, "logs", "--details=false", containerID)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if runErr := cmd.Run(); runErr != nil {
		return outBuf.Bytes(), errBuf.Bytes(), fmt.Errorf("containerhost: read_logs: %w", runErr)
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// RemoveContainer best-effort removes a container. Failures are logged,
// never surfaced: cleanup never changes the result of an invocation.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) {
	if _, err := c.run(ctx, nil, "rm", "-f", containerID); err != nil {
		c.log.Warn("failed to remove container %s: %v", containerID, err)
	}
}

func parseExitCode(out []byte) (int, error) {
	s := strings.TrimSpace(string(out))
	var code int
	if _, err := fmt.Sscanf(s, "%d", &code); err != nil {
		return 0, fmt.Errorf("unexpected wait output %q: %w", s, err)
	}
	return code, nil
}
