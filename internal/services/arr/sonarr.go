// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

// SeriesRequest describes a series to add to Sonarr.
type SeriesRequest struct {
	TvdbID           int
	Title            string
	TitleSlug        string
	QualityProfileID int
	RootFolderPath   string
	Seasons          []types.Season
}

// AddSeries adds a series with per-season monitoring. Seasons without an
// explicit flag are monitored. When every season is monitored the series
// monitor mode is "all", otherwise "none" so Sonarr keeps the season flags.
func (c *Client) AddSeries(ctx context.Context, req SeriesRequest) (json.RawMessage, error) {
	if err := c.require(models.KindSonarr, "add series"); err != nil {
		return nil, err
	}

	seasons := make([]types.SeasonMonitor, 0, len(req.Seasons))
	allMonitored := true
	for _, s := range req.Seasons {
		monitored := s.IsMonitored(true)
		if !monitored {
			allMonitored = false
		}
		seasons = append(seasons, types.SeasonMonitor{SeasonNumber: s.SeasonNumber, Monitored: monitored})
	}

	monitor := "none"
	if allMonitored {
		monitor = "all"
	}

	payload := types.AddSeriesRequest{
		TvdbID:           req.TvdbID,
		Title:            req.Title,
		TitleSlug:        req.TitleSlug,
		QualityProfileID: req.QualityProfileID,
		RootFolderPath:   req.RootFolderPath,
		Monitored:        true,
		SeasonFolder:     true,
		SeriesType:       "standard",
		Seasons:          seasons,
		AddOptions: types.AddSeriesOptions{
			SearchForMissingEpisodes: true,
			Monitor:                  monitor,
		},
	}
	return c.Request(ctx, http.MethodPost, "/series", nil, payload)
}

// SeriesSeasons returns the seasons of a library series. Unlike lookup
// results these carry accurate episode file statistics.
func (c *Client) SeriesSeasons(ctx context.Context, arrID int) ([]types.Season, error) {
	if err := c.require(models.KindSonarr, "series seasons"); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/series/%d", arrID)
	raw, err := c.Request(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	if isList(raw) {
		return []types.Season{}, nil
	}

	var series types.Series
	if err := c.decode(endpoint, raw, &series); err != nil {
		return nil, err
	}
	if series.Seasons == nil {
		return []types.Season{}, nil
	}
	return series.Seasons, nil
}

// MonitorSeasons marks the given seasons of a library series as monitored,
// saves the series and triggers a SeasonSearch for each season. The series
// document is edited generically so fields this client does not model are
// written back unchanged. Failed search commands are logged and ignored.
func (c *Client) MonitorSeasons(ctx context.Context, arrID int, seasonNumbers []int) (json.RawMessage, error) {
	if err := c.require(models.KindSonarr, "monitor seasons"); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/series/%d", arrID)
	raw, err := c.Request(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}

	series, err := c.decodeDocument(endpoint, raw)
	if err != nil {
		return nil, err
	}

	wanted := make(map[int]struct{}, len(seasonNumbers))
	for _, n := range seasonNumbers {
		wanted[n] = struct{}{}
	}

	if seasons, ok := series["seasons"].([]any); ok {
		for _, s := range seasons {
			season, ok := s.(map[string]any)
			if !ok {
				continue
			}
			number, ok := season["seasonNumber"].(json.Number)
			if !ok {
				continue
			}
			n, err := number.Int64()
			if err != nil {
				continue
			}
			if _, ok := wanted[int(n)]; ok {
				season["monitored"] = true
			}
		}
	}
	series["monitored"] = true

	result, err := c.Request(ctx, http.MethodPut, endpoint, nil, series)
	if err != nil {
		return nil, err
	}

	for _, n := range seasonNumbers {
		cmd := types.CommandRequest{Name: "SeasonSearch", SeriesID: arrID, SeasonNumber: n}
		if _, err := c.Request(ctx, http.MethodPost, "/command", nil, cmd); err != nil {
			log.Warn().Err(err).Int("series_id", arrID).Int("season", n).Msg("Season search command failed")
		}
	}

	return result, nil
}
