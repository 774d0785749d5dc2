// Package docker resolves containers to the host pids of their init processes.
package docker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

type containerAPI interface {
	ContainerInspect(ctx context.Context, name string) (container.InspectResponse, error)
}

// Source yields the host pid of every running container in its list.
type Source struct {
	containers []string
	client     containerAPI
	logger     *slog.Logger
}

// New connects to the Docker daemon named by the environment (DOCKER_HOST etc).
func New(containers []string, logger *slog.Logger) (*Source, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Source{containers: containers, client: cli, logger: logger}, nil
}

func (s *Source) Name() string { return "docker" }

func (s *Source) PIDs(ctx context.Context) ([]int, error) {
	var pids []int
	for _, name := range s.containers {
		inspect, err := s.client.ContainerInspect(ctx, name)
		if err != nil {
			if dockerclient.IsErrNotFound(err) {
				s.logger.Debug("container not found", "container", name)
				continue
			}
			return nil, fmt.Errorf("inspect %s: %w", name, err)
		}
		if inspect.ContainerJSONBase == nil || inspect.State == nil || !inspect.State.Running || inspect.State.Pid <= 0 {
			s.logger.Debug("container not running", "container", name)
			continue
		}
		pids = append(pids, inspect.State.Pid)
	}
	return pids, nil
}
