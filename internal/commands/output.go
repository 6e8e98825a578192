// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package commands

import (
	"fmt"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

// profileName renders a profile selection as "Name (id)", falling back to
// the bare id when the profile is not in the fetched list.
func profileName(id models.ProfileID, profiles []types.Profile) string {
	if !id.IsSet() {
		return "-"
	}
	n, err := id.Int()
	if err != nil {
		return string(id)
	}
	for _, p := range profiles {
		if p.ID == n {
			return fmt.Sprintf("%s (%d)", p.Name, p.ID)
		}
	}
	return string(id)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
