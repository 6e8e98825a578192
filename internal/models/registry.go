// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"fmt"
	"strings"
)

// ParseKind resolves a backend name case-insensitively.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "radarr":
		return KindRadarr, nil
	case "sonarr":
		return KindSonarr, nil
	case "lidarr":
		return KindLidarr, nil
	}
	return "", fmt.Errorf("unknown service type %q", name)
}

// KindFromInstance resolves a backend from an instance name like "radarr-2".
func KindFromInstance(instance string) (Kind, bool) {
	name, _, _ := strings.Cut(instance, "-")
	kind, err := ParseKind(name)
	if err != nil {
		return "", false
	}
	return kind, true
}
