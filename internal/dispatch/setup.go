// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/arr"
	"github.com/autobrr/requestarr/internal/types"
)

// ErrCannotFetchProfiles means the backend accepted the credentials but its
// profile or folder lists could not be read.
var ErrCannotFetchProfiles = errors.New("cannot fetch profiles")

// SetupResult holds what a validated backend offers for selection.
type SetupResult struct {
	Version                  string             `json:"version"`
	Profiles                 []types.Profile    `json:"profiles"`
	Folders                  []types.RootFolder `json:"folders"`
	MetadataProfiles         []types.Profile    `json:"metadata_profiles,omitempty"`
	DefaultQualityProfileID  models.ProfileID   `json:"default_quality_profile_id"`
	DefaultRootFolder        string             `json:"default_root_folder"`
	DefaultMetadataProfileID models.ProfileID   `json:"default_metadata_profile_id,omitempty"`
}

// Apply copies the fetched lists into settings. Selections are set to the
// defaults only when none is stored yet.
func (r *SetupResult) Apply(settings *models.ServiceSettings) {
	settings.Profiles = r.Profiles
	settings.Folders = r.Folders
	settings.MetadataProfiles = r.MetadataProfiles

	if !settings.QualityProfileID.IsSet() {
		settings.QualityProfileID = r.DefaultQualityProfileID
	}
	if settings.RootFolder == "" {
		settings.RootFolder = r.DefaultRootFolder
	}
	if !settings.MetadataProfileID.IsSet() {
		settings.MetadataProfileID = r.DefaultMetadataProfileID
	}
}

// ValidateAndFetch checks a backend's connection and credentials, then reads
// its quality profiles, root folders and, for Lidarr, metadata profiles.
// Connection and auth failures are returned unchanged. Any later failure is
// wrapped in ErrCannotFetchProfiles.
func ValidateAndFetch(ctx context.Context, settings models.ServiceSettings, timeout time.Duration) (*SetupResult, error) {
	client, err := arr.NewClientFromSettings(settings, timeout)
	if err != nil {
		return nil, err
	}

	version, err := client.ValidateConnection(ctx)
	if err != nil {
		return nil, err
	}

	res := &SetupResult{Version: version}

	if res.Profiles, err = client.QualityProfiles(ctx); err != nil {
		return nil, fetchError(settings.Kind, err)
	}
	if res.Folders, err = client.RootFolders(ctx); err != nil {
		return nil, fetchError(settings.Kind, err)
	}
	if client.Descriptor().MetadataProfiles {
		if res.MetadataProfiles, err = client.MetadataProfiles(ctx); err != nil {
			return nil, fetchError(settings.Kind, err)
		}
		if len(res.MetadataProfiles) > 0 {
			res.DefaultMetadataProfileID = models.NewProfileID(res.MetadataProfiles[0].ID)
		}
	}

	if len(res.Profiles) > 0 {
		res.DefaultQualityProfileID = models.NewProfileID(res.Profiles[0].ID)
	}
	if len(res.Folders) > 0 {
		res.DefaultRootFolder = res.Folders[0].Path
	}

	log.Debug().
		Str("service", settings.Kind.String()).
		Str("version", version).
		Int("profiles", len(res.Profiles)).
		Int("folders", len(res.Folders)).
		Msg("Validated service")

	return res, nil
}

func fetchError(kind models.Kind, err error) error {
	if errors.Is(err, arr.ErrCannotConnect) || errors.Is(err, arr.ErrInvalidAuth) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", kind, ErrCannotFetchProfiles, err)
}
