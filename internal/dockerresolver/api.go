// Package dockerresolver builds a sniterm ResolverFunc from running
// containers' labels, keeping it in sync with the Docker daemon's event
// stream so a container coming up or going away immediately changes
// which hostnames terminate.
package dockerresolver

import (
	"context"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
)

// DockerAPI defines the Docker client operations this package uses.
// This interface enables testing without a real Docker daemon.
type DockerAPI interface {
	// Ping checks if the Docker daemon is responsive.
	Ping(ctx context.Context) (types.Ping, error)

	// ContainerList returns a list of containers matching the options.
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)

	// ContainerInspect returns detailed information about a container.
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)

	// Events returns a stream of Docker events.
	Events(ctx context.Context, options events.ListOptions) (<-chan events.Message, <-chan error)

	// Close closes the connection to the Docker daemon.
	Close() error
}
