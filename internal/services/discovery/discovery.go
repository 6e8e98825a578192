// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package discovery finds arr backends from container or service labels and
// imports or exports their settings as YAML or JSON files.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/arr"
)

// ServiceDiscoverer defines the interface for service discovery implementations
type ServiceDiscoverer interface {
	// DiscoverServices finds and returns service settings
	DiscoverServices(ctx context.Context) ([]models.ServiceSettings, error)
	// Close cleans up any resources used by the discoverer
	Close() error
}

// Manager handles multiple service discovery methods
type Manager struct {
	discoverers []ServiceDiscoverer
}

// NewManager creates a discovery manager over the selected platforms.
// Platforms that cannot be reached are skipped.
func NewManager(useDocker, useK8s bool) (*Manager, error) {
	var discoverers []ServiceDiscoverer

	if useDocker {
		if docker, err := NewDockerDiscovery(); err == nil {
			discoverers = append(discoverers, docker)
		} else {
			log.Debug().Err(err).Msg("Docker discovery unavailable")
		}
	}

	if useK8s {
		if k8s, err := NewKubernetesDiscovery(); err == nil {
			discoverers = append(discoverers, k8s)
		} else {
			log.Debug().Err(err).Msg("Kubernetes discovery unavailable")
		}
	}

	if len(discoverers) == 0 {
		return nil, fmt.Errorf("no service discovery methods available")
	}

	return NewManagerWith(discoverers...), nil
}

// NewManagerWith creates a manager over the given discoverers.
func NewManagerWith(discoverers ...ServiceDiscoverer) *Manager {
	return &Manager{discoverers: discoverers}
}

// DiscoverAll runs every discoverer and merges the results by kind. Only one
// backend per kind is supported, so the first one found wins.
func (m *Manager) DiscoverAll(ctx context.Context) (models.Settings, error) {
	settings := models.Settings{}

	for _, discoverer := range m.discoverers {
		services, err := discoverer.DiscoverServices(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Service discovery error")
			continue
		}
		for _, svc := range services {
			if existing, ok := settings[svc.Kind]; ok {
				log.Warn().
					Str("service", svc.Kind.String()).
					Str("kept", existing.URL).
					Str("ignored", svc.URL).
					Msg("Duplicate service discovered")
				continue
			}
			settings[svc.Kind] = svc
		}
	}

	return settings, nil
}

// Close cleans up all discoverers
func (m *Manager) Close() error {
	var lastErr error
	for _, discoverer := range m.discoverers {
		if err := discoverer.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ValidateService checks if discovered service settings are usable
func ValidateService(service models.ServiceSettings) error {
	if !service.Kind.Valid() {
		return fmt.Errorf("unsupported service type %q", service.Kind)
	}
	if service.URL == "" {
		return fmt.Errorf("URL is required")
	}
	if service.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

// parseLabels extracts service settings from docker or kubernetes labels.
// It returns nil when the service is explicitly disabled.
func parseLabels(labels map[string]string) (*models.ServiceSettings, error) {
	kind, err := models.ParseKind(labels[GetLabelKey(labelTypeKey)])
	if err != nil {
		return nil, err
	}

	rawURL := labels[GetLabelKey(labelURLKey)]
	if rawURL == "" {
		return nil, fmt.Errorf("service URL label not found")
	}

	apiKey, err := expandEnv(labels[GetLabelKey(labelAPIKeyKey)])
	if err != nil {
		return nil, err
	}

	// Check if service is explicitly disabled
	if enabled := labels[GetLabelKey(labelEnabledKey)]; enabled == "false" {
		return nil, nil
	}

	verifySSL := true
	if v := labels[GetLabelKey(labelVerifySSLKey)]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s label: %w", labelVerifySSLKey, err)
		}
		verifySSL = parsed
	}

	return &models.ServiceSettings{
		Kind:      kind,
		URL:       WithDefaultPort(kind, rawURL),
		APIKey:    apiKey,
		VerifySSL: verifySSL,
	}, nil
}

// expandEnv resolves an API key of the form ${VAR}.
func expandEnv(value string) (string, error) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value, nil
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
	resolved := os.Getenv(envVar)
	if resolved == "" {
		return "", fmt.Errorf("environment variable %s not set for API key", envVar)
	}
	return resolved, nil
}

// WithDefaultPort completes a bare host such as "radarr" into
// "http://radarr:7878". Values that carry a scheme are returned unchanged,
// since a reverse proxy may serve the backend on the scheme's port.
func WithDefaultPort(kind models.Kind, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}

	u, err := url.Parse("http://" + raw)
	if err != nil || u.Host == "" {
		return raw
	}

	if u.Port() == "" {
		if desc, ok := arr.DescriptorFor(kind); ok {
			u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(desc.DefaultPort))
		}
	}
	return strings.TrimRight(u.String(), "/")
}
