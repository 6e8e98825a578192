// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autobrr/requestarr/internal/types"
)

// ProfileID is a quality or metadata profile id. Older settings stored it as a
// string and newer ones as a number, so both JSON forms are accepted.
type ProfileID string

// NewProfileID converts a numeric profile id.
func NewProfileID(id int) ProfileID {
	return ProfileID(strconv.Itoa(id))
}

// IsSet reports whether a profile was selected.
func (p ProfileID) IsSet() bool {
	return strings.TrimSpace(string(p)) != ""
}

// Int returns the numeric form arr APIs expect.
func (p ProfileID) Int() (int, error) {
	if !p.IsSet() {
		return 0, fmt.Errorf("profile id is not set")
	}
	id, err := strconv.Atoi(strings.TrimSpace(string(p)))
	if err != nil {
		return 0, fmt.Errorf("invalid profile id %q: %w", string(p), err)
	}
	return id, nil
}

func (p *ProfileID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ProfileID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("profile id must be a string or number: %w", err)
	}
	*p = ProfileID(n.String())
	return nil
}

// ServiceSettings is the persisted configuration of one arr backend together
// with the profile and folder lists fetched when it was validated.
type ServiceSettings struct {
	Kind              Kind               `json:"kind" yaml:"kind"`
	URL               string             `json:"url" yaml:"url"`
	APIKey            string             `json:"apiKey,omitempty" yaml:"apikey"`
	VerifySSL         bool               `json:"verifySsl" yaml:"verify_ssl"`
	QualityProfileID  ProfileID          `json:"qualityProfileId" yaml:"quality_profile_id,omitempty"`
	RootFolder        string             `json:"rootFolder" yaml:"root_folder,omitempty"`
	MetadataProfileID ProfileID          `json:"metadataProfileId,omitempty" yaml:"metadata_profile_id,omitempty"`
	Profiles          []types.Profile    `json:"profiles" yaml:"-"`
	Folders           []types.RootFolder `json:"folders" yaml:"-"`
	MetadataProfiles  []types.Profile    `json:"metadataProfiles,omitempty" yaml:"-"`
	UpdatedAt         time.Time          `json:"updatedAt" yaml:"-"`
}

// Configured reports whether the backend has enough settings to be polled.
func (s ServiceSettings) Configured() bool {
	return strings.TrimSpace(s.URL) != "" && strings.TrimSpace(s.APIKey) != ""
}

// Redacted returns a copy safe to hand to API consumers.
func (s ServiceSettings) Redacted() ServiceSettings {
	s.APIKey = ""
	return s
}

// Settings is the full configuration set, keyed by backend.
type Settings map[Kind]ServiceSettings

// Get returns the settings for a kind, or the zero value.
func (s Settings) Get(kind Kind) ServiceSettings {
	if s == nil {
		return ServiceSettings{Kind: kind}
	}
	if svc, ok := s[kind]; ok {
		return svc
	}
	return ServiceSettings{Kind: kind}
}

// AnyConfigured reports whether at least one backend has a URL.
func (s Settings) AnyConfigured() bool {
	for _, svc := range s {
		if strings.TrimSpace(svc.URL) != "" {
			return true
		}
	}
	return false
}
