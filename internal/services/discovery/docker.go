// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/models"
)

// DockerDiscovery handles service discovery from Docker labels
type DockerDiscovery struct {
	client *client.Client
}

// NewDockerDiscovery creates a new Docker discovery instance
func NewDockerDiscovery() (*DockerDiscovery, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &DockerDiscovery{
		client: cli,
	}, nil
}

// DiscoverServices finds services configured via Docker labels
func (d *DockerDiscovery) DiscoverServices(ctx context.Context) ([]models.ServiceSettings, error) {
	f := filters.NewArgs()
	f.Add("label", GetLabelKey(labelTypeKey))

	containers, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     false,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var services []models.ServiceSettings

	for _, c := range containers {
		service, err := parseLabels(c.Labels)
		if err != nil {
			log.Warn().Err(err).Str("container", shortID(c.ID)).Msg("Failed to parse container labels")
			continue
		}
		if service != nil {
			services = append(services, *service)
		}
	}

	return services, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Close closes the Docker client connection
func (d *DockerDiscovery) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
