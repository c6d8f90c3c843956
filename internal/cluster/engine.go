package cluster

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// ContainerSpec describes the single server container the harness runs.
type ContainerSpec struct {
	Name   string
	Image  string
	Cmd    []string
	Ports  []int
	Source string
	Target string
	Tty    bool
	Labels map[string]string
}

// Engine is the container runtime surface the harness needs.
type Engine interface {
	Ping(ctx context.Context) error
	PullImage(ctx context.Context, ref string) error
	ImageSize(ctx context.Context, ref string) (int64, error)
	ContainerLabels(ctx context.Context, nameOrID string) (map[string]string, bool, error)
	RemoveContainer(ctx context.Context, nameOrID string) error
	RunContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StopContainer(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)
	PruneNetworks(ctx context.Context) error
	Close() error
}

// DockerEngine talks to the local Docker daemon configured by the DOCKER_* env vars.
type DockerEngine struct {
	cli *client.Client
}

func NewDockerEngine() (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	return &DockerEngine{cli: cli}, nil
}

func (e *DockerEngine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

func (e *DockerEngine) PullImage(ctx context.Context, ref string) error {
	rc, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	defer rc.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	return nil
}

// ImageSize is the unpacked size of a local image in bytes.
func (e *DockerEngine) ImageSize(ctx context.Context, ref string) (int64, error) {
	info, err := e.cli.ImageInspect(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("inspect image %s: %w", ref, err)
	}
	return info.Size, nil
}

// ContainerLabels reports the labels of a container and whether it exists.
func (e *DockerEngine) ContainerLabels(ctx context.Context, nameOrID string) (map[string]string, bool, error) {
	info, err := e.cli.ContainerInspect(ctx, nameOrID)
	if errdefs.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("inspect container %s: %w", nameOrID, err)
	}
	if info.Config == nil {
		return map[string]string{}, true, nil
	}
	return info.Config.Labels, true, nil
}

// RemoveContainer force-removes a container; a missing container is not an error.
func (e *DockerEngine) RemoveContainer(ctx context.Context, nameOrID string) error {
	err := e.cli.ContainerRemove(ctx, nameOrID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", nameOrID, err)
	}
	return nil
}

func (e *DockerEngine) RunContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range spec.Ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(p))
		if err != nil {
			return "", fmt.Errorf("container port %d: %w", p, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(p)}}
	}

	hostConfig := &container.HostConfig{PortBindings: bindings}
	if spec.Source != "" {
		hostConfig.Mounts = []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.Source,
			Target: spec.Target,
		}}
	}

	created, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		Tty:          spec.Tty,
		ExposedPorts: exposed,
		Labels:       spec.Labels,
	}, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	if err := e.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return created.ID, fmt.Errorf("start container %s: %w", spec.Name, err)
	}
	return created.ID, nil
}

// StopContainer stops then removes the container.
func (e *DockerEngine) StopContainer(ctx context.Context, id string) error {
	timeout := 10
	if err := e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return e.RemoveContainer(ctx, id)
}

// ContainerLogs returns the last tail lines. The server runs with a tty so the stream is not multiplexed.
func (e *DockerEngine) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	rc, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("container logs %s: %w", id, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("container logs %s: %w", id, err)
	}
	return string(data), nil
}

func (e *DockerEngine) PruneNetworks(ctx context.Context) error {
	if _, err := e.cli.NetworksPrune(ctx, filters.NewArgs()); err != nil {
		return fmt.Errorf("prune networks: %w", err)
	}
	return nil
}

func (e *DockerEngine) Close() error {
	return e.cli.Close()
}
