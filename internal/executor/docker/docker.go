// Package docker runs pipeline stages as one-shot containers: every stage
// launches the configured image, waits for it to exit, and treats its stdout
// as the stage artifact.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"contentjobs/internal/apperrors"
	"contentjobs/internal/pipeline"
)

// Executor runs stages in containers via the Docker daemon.
type Executor struct {
	client *client.Client
	cfg    Config
	logger *slog.Logger
}

// NewExecutor connects to the Docker daemon and verifies it is reachable.
func NewExecutor(ctx context.Context, cfg Config) (*Executor, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping docker daemon: %w", err)
	}

	return &Executor{
		client: dockerClient,
		cfg:    cfg,
		logger: slog.With("component", "docker-executor"),
	}, nil
}

// Steps returns the configured number of pipeline stages.
func (e *Executor) Steps() int {
	return e.cfg.Steps
}

// Execute runs one stage container to completion. The stage number, user and
// params reach the container through its environment; its stdout becomes the
// stage output. progress cannot observe inside the container, so it only
// brackets the run.
func (e *Executor) Execute(ctx context.Context, userID string, params json.RawMessage, stage int, progress func(float64)) (pipeline.StageResult, error) {
	if err := e.pullImageIfNeeded(ctx, e.cfg.Image); err != nil {
		return pipeline.StageResult{}, apperrors.StageExecution(stage, fmt.Errorf("failed to pull image %s: %w", e.cfg.Image, err))
	}

	containerID, err := e.createStageContainer(ctx, userID, params, stage)
	if err != nil {
		return pipeline.StageResult{}, apperrors.StageExecution(stage, err)
	}
	defer e.removeContainer(containerID)

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return pipeline.StageResult{}, apperrors.StageExecution(stage, fmt.Errorf("failed to start container: %w", err))
	}
	progress(0)

	exitCode, err := e.waitForExit(ctx, containerID)
	if err != nil {
		return pipeline.StageResult{}, apperrors.StageExecution(stage, err)
	}
	if exitCode != 0 {
		return pipeline.StageResult{}, apperrors.StageExecution(stage, fmt.Errorf("stage container exited with code %d", exitCode))
	}
	progress(100)

	output, err := e.stageOutput(ctx, containerID)
	if err != nil {
		return pipeline.StageResult{}, apperrors.StageExecution(stage, err)
	}

	return pipeline.StageResult{Output: output, QualityScore: 1}, nil
}

// Ready verifies the Docker daemon is reachable.
func (e *Executor) Ready(ctx context.Context) error {
	_, err := e.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (e *Executor) Close() error {
	return e.client.Close()
}

func (e *Executor) createStageContainer(ctx context.Context, userID string, params json.RawMessage, stage int) (string, error) {
	env := []string{
		fmt.Sprintf("STAGE=%d", stage),
		fmt.Sprintf("TOTAL_STEPS=%d", e.cfg.Steps),
		fmt.Sprintf("USER_ID=%s", userID),
	}
	if len(params) > 0 {
		env = append(env, fmt.Sprintf("PARAMS_JSON=%s", string(params)))
	}

	var cmd []string
	if e.cfg.Command != "" {
		cmd = []string{"/bin/sh", "-c", e.cfg.Command}
	}

	containerConfig := &container.Config{
		Image: e.cfg.Image,
		Cmd:   cmd,
		Env:   env,
		Tty:   true, // raw stdout, no stream multiplexing headers
		Labels: map[string]string{
			"stage.user": userID,
			"stage.num":  fmt.Sprintf("%d", stage),
			"managed-by": "jobs-service",
		},
	}

	hostConfig := &container.HostConfig{
		ExtraHosts: e.cfg.ExtraHosts,
		Resources: container.Resources{
			NanoCPUs: int64(e.cfg.CPU * 1e9),
			Memory:   e.cfg.MemoryMB * 1024 * 1024,
		},
	}

	containerName := fmt.Sprintf("genstage-%s-%d-%d", userID, stage, time.Now().UnixNano())
	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

func (e *Executor) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// stageOutput reads the container's stdout as the stage artifact.
func (e *Executor) stageOutput(ctx context.Context, containerID string) (json.RawMessage, error) {
	logs, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read stage output: %w", err)
	}
	defer logs.Close()

	output, err := io.ReadAll(logs)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage output: %w", err)
	}

	// Non-JSON stdout is wrapped so the snapshot stays valid JSON.
	if !json.Valid(output) {
		wrapped, err := json.Marshal(map[string]string{"output": string(output)})
		if err != nil {
			return nil, err
		}
		return wrapped, nil
	}
	return output, nil
}

func (e *Executor) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := e.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := e.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (e *Executor) removeContainer(containerID string) {
	// Use a fresh context: cleanup must run even after cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopTimeout := int(e.cfg.StopTimeout.Seconds())
	_ = e.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})
	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Warn("Failed to remove stage container", "container_id", containerID, "error", err)
	}
}
