// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

import "encoding/json"

// Series is a Sonarr series resource as returned by /series/lookup or /series/{id}.
type Series struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Year         *int     `json:"year,omitempty"`
	Overview     string   `json:"overview"`
	TvdbID       int      `json:"tvdbId"`
	TitleSlug    string   `json:"titleSlug"`
	RemotePoster string   `json:"remotePoster,omitempty"`
	Images       []Image  `json:"images,omitempty"`
	Seasons      []Season `json:"seasons,omitempty"`
}

// Season is a season entry of a series. Monitored is a pointer because
// requests from the UI may omit it and the default differs per operation.
// Fields the backend sends beyond the modelled ones are kept and written
// back unchanged.
type Season struct {
	SeasonNumber int               `json:"seasonNumber"`
	Monitored    *bool             `json:"monitored,omitempty"`
	Statistics   *SeasonStatistics `json:"statistics,omitempty"`

	raw map[string]json.RawMessage
}

type seasonFields Season

func (s *Season) UnmarshalJSON(data []byte) error {
	var fields seasonFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Season(fields)
	s.raw = raw
	return nil
}

func (s Season) MarshalJSON() ([]byte, error) {
	if s.raw == nil {
		return json.Marshal(seasonFields(s))
	}

	out := make(map[string]any, len(s.raw)+1)
	for k, v := range s.raw {
		out[k] = v
	}

	out["seasonNumber"] = s.SeasonNumber
	if s.Monitored != nil {
		out["monitored"] = *s.Monitored
	} else {
		delete(out, "monitored")
	}

	// statistics passes through as received so absent counts stay absent
	switch _, received := s.raw["statistics"]; {
	case s.Statistics == nil:
		delete(out, "statistics")
	case !received:
		out["statistics"] = s.Statistics
	}

	return json.Marshal(out)
}

// IsMonitored returns the monitored flag, or def when it was not supplied.
func (s Season) IsMonitored(def bool) bool {
	if s.Monitored == nil {
		return def
	}
	return *s.Monitored
}

type SeasonStatistics struct {
	EpisodeFileCount  int     `json:"episodeFileCount"`
	EpisodeCount      int     `json:"episodeCount"`
	TotalEpisodeCount int     `json:"totalEpisodeCount"`
	SizeOnDisk        int64   `json:"sizeOnDisk"`
	PercentOfEpisodes float64 `json:"percentOfEpisodes"`
}

// AddSeriesRequest is the POST /series payload.
type AddSeriesRequest struct {
	TvdbID           int              `json:"tvdbId"`
	Title            string           `json:"title"`
	TitleSlug        string           `json:"titleSlug"`
	QualityProfileID int              `json:"qualityProfileId"`
	RootFolderPath   string           `json:"rootFolderPath"`
	Monitored        bool             `json:"monitored"`
	SeasonFolder     bool             `json:"seasonFolder"`
	SeriesType       string           `json:"seriesType"`
	Seasons          []SeasonMonitor  `json:"seasons"`
	AddOptions       AddSeriesOptions `json:"addOptions"`
}

type SeasonMonitor struct {
	SeasonNumber int  `json:"seasonNumber"`
	Monitored    bool `json:"monitored"`
}

type AddSeriesOptions struct {
	SearchForMissingEpisodes bool   `json:"searchForMissingEpisodes"`
	Monitor                  string `json:"monitor"`
}

// CommandRequest triggers a backend command such as SeasonSearch.
type CommandRequest struct {
	Name         string `json:"name"`
	SeriesID     int    `json:"seriesId,omitempty"`
	SeasonNumber int    `json:"seasonNumber"`
}
