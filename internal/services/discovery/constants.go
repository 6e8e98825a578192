// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package discovery

const (
	// labelPrefix is the common prefix for all requestarr service labels
	labelPrefix = "com.requestarr.service"

	// Common label suffixes
	labelTypeKey      = "type"       // Service type (radarr, sonarr or lidarr)
	labelURLKey       = "url"        // Service URL
	labelAPIKeyKey    = "apikey"     // Service API key, may be ${ENV_VAR}
	labelEnabledKey   = "enabled"    // Optional service enabled state
	labelVerifySSLKey = "verify_ssl" // Optional, defaults to true
)

// GetLabelKey returns the full label key for a given suffix
func GetLabelKey(suffix string) string {
	return labelPrefix + "." + suffix
}
