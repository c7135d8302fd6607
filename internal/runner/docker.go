// Docker backend: runs engine scripts inside a container with the pair
// working directory bind-mounted. Licensed docking suites are commonly
// distributed as images, so the container is the unit of environment
// provisioning while the core still sees a synchronous exit status.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
)

const containerWorkspace = "/workspace"

// DockerConfig holds configuration for the Docker runner.
type DockerConfig struct {
	Image   string        // engine image (required)
	Timeout time.Duration // per-invocation cap, 0 = no cap
}

// Docker implements Runner using the Docker API.
type Docker struct {
	client *client.Client
	cfg    DockerConfig
}

// NewDocker creates a Docker-backed runner.
func NewDocker(cfg DockerConfig) (*Docker, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("docker runner requires an image")
	}
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Docker{client: dockerClient, cfg: cfg}, nil
}

// Run executes the script inside a fresh container and blocks until it
// exits. Container logs are written to run.log in the working directory.
func (d *Docker) Run(ctx context.Context, dir, script string) error {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	resp, err := d.client.ContainerCreate(ctx,
		&container.Config{
			Image:      d.cfg.Image,
			Cmd:        []string{"bash", script},
			WorkingDir: containerWorkspace,
			Labels: map[string]string{
				"managed-by": "rundock",
			},
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: absDir,
				Target: containerWorkspace,
			}},
			AutoRemove: false,
		},
		nil, nil, "")
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		_ = d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := d.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		return fmt.Errorf("container wait: %w", err)
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return ctx.Err()
	}

	d.saveLogs(resp.ID, absDir)

	if exitCode != 0 {
		return fmt.Errorf("%s: exit status %d", script, exitCode)
	}
	return nil
}

// saveLogs copies the container's combined output into run.log.
// Log capture is best effort, the exit code already decided the outcome.
func (d *Docker) saveLogs(containerID, dir string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logs, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return
	}
	defer logs.Close()

	logFile, err := os.Create(filepath.Join(dir, LogFile))
	if err != nil {
		return
	}
	defer logFile.Close()
	_, _ = io.Copy(logFile, logs)
}

// Ready verifies the Docker daemon is reachable.
func (d *Docker) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := d.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Close releases the Docker client.
func (d *Docker) Close() error {
	return d.client.Close()
}

// Verify both backends implement Runner
var (
	_ Runner = (*Local)(nil)
	_ Runner = (*Docker)(nil)
)
