// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/autobrr/requestarr/internal/models"
)

// ConfigFile represents the structure of the external configuration file
type ConfigFile struct {
	Services map[string]ServiceConfig `json:"services" yaml:"services"`
}

// ServiceConfig represents a service configuration in the external file
type ServiceConfig struct {
	URL               string `json:"url" yaml:"url"`
	APIKey            string `json:"apikey" yaml:"apikey"`
	VerifySSL         *bool  `json:"verify_ssl,omitempty" yaml:"verify_ssl,omitempty"`
	QualityProfileID  string `json:"quality_profile_id,omitempty" yaml:"quality_profile_id,omitempty"`
	RootFolder        string `json:"root_folder,omitempty" yaml:"root_folder,omitempty"`
	MetadataProfileID string `json:"metadata_profile_id,omitempty" yaml:"metadata_profile_id,omitempty"`
}

// ImportConfig imports service settings from a YAML or JSON file
func ImportConfig(path string) (models.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ConfigFile

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}

	settings := models.Settings{}

	for name, cfg := range config.Services {
		kind, err := models.ParseKind(name)
		if err != nil {
			return nil, err
		}

		apiKey, err := expandEnv(cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}

		verifySSL := true
		if cfg.VerifySSL != nil {
			verifySSL = *cfg.VerifySSL
		}

		settings[kind] = models.ServiceSettings{
			Kind:              kind,
			URL:               WithDefaultPort(kind, cfg.URL),
			APIKey:            apiKey,
			VerifySSL:         verifySSL,
			QualityProfileID:  models.ProfileID(cfg.QualityProfileID),
			RootFolder:        cfg.RootFolder,
			MetadataProfileID: models.ProfileID(cfg.MetadataProfileID),
		}
	}

	return settings, nil
}

// ExportConfig exports service settings to a file. With maskSecrets the API
// keys are replaced by ${REQUESTARR_<KIND>_API_KEY} references.
func ExportConfig(settings models.Settings, path string, maskSecrets bool) error {
	services := make(map[string]ServiceConfig, len(settings))
	for kind, service := range settings {
		verifySSL := service.VerifySSL
		config := ServiceConfig{
			URL:               service.URL,
			VerifySSL:         &verifySSL,
			QualityProfileID:  string(service.QualityProfileID),
			RootFolder:        service.RootFolder,
			MetadataProfileID: string(service.MetadataProfileID),
		}

		if maskSecrets {
			config.APIKey = "${REQUESTARR_" + strings.ToUpper(kind.String()) + "_API_KEY}"
		} else {
			config.APIKey = service.APIKey
		}

		services[kind.String()] = config
	}

	configFile := ConfigFile{
		Services: services,
	}

	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(configFile)
		if err != nil {
			return fmt.Errorf("failed to generate YAML: %w", err)
		}
	case ".json":
		data, err = json.MarshalIndent(configFile, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to generate JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}

	// Unmasked exports hold API keys
	perm := os.FileMode(0644)
	if !maskSecrets {
		perm = 0600
	}

	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
