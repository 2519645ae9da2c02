// Package docker implements the sandbox engine on the Docker API.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/sandbox"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

const (
	// killTimeout bounds the cleanup of a container whose run context ended.
	killTimeout = 30 * time.Second

	defaultStderrTail = 20
)

// Engine runs sandboxed plugin containers through the Docker daemon.
type Engine struct {
	cli         *client.Client
	stderrLines int
	logger      *logger.Logger
}

// New creates a Docker engine from the environment (DOCKER_HOST et al.).
// stderrLines is the number of stderr lines kept for failure diagnostics.
func New(stderrLines int, log *logger.Logger) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if stderrLines <= 0 {
		stderrLines = defaultStderrTail
	}
	return &Engine{cli: cli, stderrLines: stderrLines, logger: log}, nil
}

// Run creates, starts, and waits for one plugin container. The shim volume
// is mounted read-only and the shim binary overrides the image entrypoint,
// so the plugin's own entrypoint never runs unsupervised.
func (e *Engine) Run(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
	if err := e.pullIfMissing(ctx, spec.Image); err != nil {
		return nil, err
	}

	containerCfg := &container.Config{
		Image:      spec.Image,
		Entrypoint: []string{spec.Entrypoint},
		Cmd:        spec.Args,
		Env:        spec.Env,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(spec.Network),
		Binds:       []string{spec.ShimVolume + ":" + spec.ShimMount + ":ro"},
	}

	created, err := e.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer e.remove(created.ID)

	if err := e.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	result := &sandbox.RunResult{}
	waitCh, errCh := e.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		result.ExitCode = int(status.StatusCode)
	case err := <-errCh:
		if ctx.Err() == nil {
			return nil, fmt.Errorf("failed to wait for container: %w", err)
		}
		e.kill(created.ID)
		result.Killed = true
	case <-ctx.Done():
		e.kill(created.ID)
		result.Killed = true
	}

	result.StderrTail = e.stderrTail(created.ID)
	return result, nil
}

func (e *Engine) pullIfMissing(ctx context.Context, ref string) error {
	if _, _, err := e.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	}

	reader, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// The pull completes only once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// kill and remove run on a fresh context: the run context is usually
// already done when cleanup happens.
func (e *Engine) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	if err := e.cli.ContainerKill(ctx, containerID, "KILL"); err != nil {
		e.logger.Warn("failed to kill container", "container_id", containerID, "error", err)
	}
}

func (e *Engine) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	if err := e.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Warn("failed to remove container", "container_id", containerID, "error", err)
	}
}

func (e *Engine) stderrTail(containerID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	reader, err := e.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStderr: true,
		Tail:       strconv.Itoa(e.stderrLines),
	})
	if err != nil {
		e.logger.Warn("failed to read container logs", "container_id", containerID, "error", err)
		return ""
	}
	defer reader.Close()

	var stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(io.Discard, &stderr, reader); err != nil {
		return ""
	}
	return strings.TrimRight(stderr.String(), "\n")
}
