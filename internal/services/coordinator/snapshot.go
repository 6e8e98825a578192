// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/arr"
)

// ErrAllFailed is returned by a poll cycle when every configured backend
// failed. A cycle with at least one success is not an error.
var ErrAllFailed = errors.New("all configured services failed")

// Snapshot is the state published by one poll cycle. Only configured kinds
// appear in Counts; a nil count means the fetch failed this cycle.
type Snapshot struct {
	Counts    map[models.Kind]*int
	Errors    map[models.Kind]string
	UpdatedAt time.Time
	Success   bool
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Counts: map[models.Kind]*int{},
		Errors: map[models.Kind]string{},
	}
}

// Count returns the library count of a kind and whether it is known.
func (s *Snapshot) Count(kind models.Kind) (int, bool) {
	c, ok := s.Counts[kind]
	if !ok || c == nil {
		return 0, false
	}
	return *c, true
}

// Degraded reports whether some, but not all, backends failed.
func (s *Snapshot) Degraded() bool {
	return s.Success && len(s.Errors) > 0
}

// MarshalJSON renders counts under their descriptor keys, e.g.
// {"radarr_movies": 12, "sonarr_series": null, "errors": {...}}.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Counts)+2)
	for kind, count := range s.Counts {
		desc, ok := arr.DescriptorFor(kind)
		if !ok {
			continue
		}
		if count == nil {
			out[desc.CountKey] = nil
		} else {
			out[desc.CountKey] = *count
		}
	}

	errs := make(map[string]string, len(s.Errors))
	for kind, msg := range s.Errors {
		errs[kind.String()] = msg
	}
	out["errors"] = errs

	if !s.UpdatedAt.IsZero() {
		out["updated_at"] = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a snapshot written by MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	snap := emptySnapshot()
	for _, kind := range models.Kinds {
		desc, _ := arr.DescriptorFor(kind)
		value, ok := raw[desc.CountKey]
		if !ok {
			continue
		}
		var count *int
		if err := json.Unmarshal(value, &count); err != nil {
			return fmt.Errorf("%s: %w", desc.CountKey, err)
		}
		snap.Counts[kind] = count
	}

	if value, ok := raw["errors"]; ok {
		var errs map[string]string
		if err := json.Unmarshal(value, &errs); err != nil {
			return fmt.Errorf("errors: %w", err)
		}
		for kind, msg := range errs {
			snap.Errors[models.Kind(kind)] = msg
		}
	}

	if value, ok := raw["updated_at"]; ok {
		if err := json.Unmarshal(value, &snap.UpdatedAt); err != nil {
			return fmt.Errorf("updated_at: %w", err)
		}
	}

	snap.Success = len(snap.Counts) == 0 || len(snap.Errors) < len(snap.Counts)
	*s = *snap
	return nil
}

type outcome struct {
	kind  models.Kind
	count int
	err   error
}

// fold merges per-backend outcomes into a snapshot. Every outcome is
// visited; the cycle fails only when there is at least one outcome and all
// of them failed.
func fold(outcomes []outcome, now time.Time) (*Snapshot, error) {
	snap := emptySnapshot()
	snap.UpdatedAt = now

	var failures []string
	for _, o := range outcomes {
		if o.err != nil {
			snap.Counts[o.kind] = nil
			snap.Errors[o.kind] = o.err.Error()
			failures = append(failures, fmt.Sprintf("%s: %v", o.kind, o.err))
			continue
		}
		count := o.count
		snap.Counts[o.kind] = &count
	}

	if len(outcomes) > 0 && len(failures) == len(outcomes) {
		sort.Strings(failures)
		return snap, fmt.Errorf("%w: %s", ErrAllFailed, strings.Join(failures, "; "))
	}

	snap.Success = true
	return snap, nil
}
