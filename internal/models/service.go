// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

// Kind identifies one of the supported arr backends.
type Kind string

const (
	KindRadarr Kind = "radarr"
	KindSonarr Kind = "sonarr"
	KindLidarr Kind = "lidarr"
)

// Kinds lists every supported backend in polling and queue order.
var Kinds = []Kind{KindRadarr, KindSonarr, KindLidarr}

func (k Kind) String() string {
	return string(k)
}

// Title returns the display name of the backend, e.g. "Radarr".
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	s := string(k)
	return string(s[0]-'a'+'A') + s[1:]
}

// Valid reports whether k is a supported backend.
func (k Kind) Valid() bool {
	for _, kind := range Kinds {
		if kind == k {
			return true
		}
	}
	return false
}
