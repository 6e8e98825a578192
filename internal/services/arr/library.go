// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

// ValidateConnection checks reachability and credentials via /system/status
// and returns the backend version.
func (c *Client) ValidateConnection(ctx context.Context) (string, error) {
	var status types.SystemStatus
	if err := c.get(ctx, "/system/status", nil, &status); err != nil {
		return "", err
	}
	return status.Version, nil
}

// QualityProfiles returns the configured quality profiles.
func (c *Client) QualityProfiles(ctx context.Context) ([]types.Profile, error) {
	raw, err := c.Request(ctx, http.MethodGet, "/qualityprofile", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[types.Profile](c, "/qualityprofile", raw)
}

// RootFolders returns the configured root folders.
func (c *Client) RootFolders(ctx context.Context) ([]types.RootFolder, error) {
	raw, err := c.Request(ctx, http.MethodGet, "/rootfolder", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[types.RootFolder](c, "/rootfolder", raw)
}

// MetadataProfiles returns the metadata profiles of backends that have them.
func (c *Client) MetadataProfiles(ctx context.Context) ([]types.Profile, error) {
	if !c.desc.MetadataProfiles {
		return nil, &ErrArr{Service: c.desc.Kind.String(), Op: "metadata profiles", Err: ErrNotSupported}
	}
	raw, err := c.Request(ctx, http.MethodGet, "/metadataprofile", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[types.Profile](c, "/metadataprofile", raw)
}

// SearchMovies queries the lookup endpoint for Radarr movies. A response that
// is not a list yields no records.
func (c *Client) SearchMovies(ctx context.Context, term string) ([]types.Movie, error) {
	return searchAs[types.Movie](ctx, c, models.KindRadarr, term)
}

// SearchSeries queries the lookup endpoint for Sonarr series.
func (c *Client) SearchSeries(ctx context.Context, term string) ([]types.Series, error) {
	return searchAs[types.Series](ctx, c, models.KindSonarr, term)
}

// SearchArtists queries the lookup endpoint for Lidarr artists.
func (c *Client) SearchArtists(ctx context.Context, term string) ([]types.Artist, error) {
	return searchAs[types.Artist](ctx, c, models.KindLidarr, term)
}

func searchAs[T any](ctx context.Context, c *Client, kind models.Kind, term string) ([]T, error) {
	if err := c.require(kind, "search"); err != nil {
		return nil, err
	}
	raw, err := c.Request(ctx, http.MethodGet, c.desc.LookupEndpoint, url.Values{"term": {term}}, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[T](c, c.desc.LookupEndpoint, raw)
}

// LibraryCount returns the number of items in the library, or 0 when the
// library endpoint does not answer with a list.
func (c *Client) LibraryCount(ctx context.Context) (int, error) {
	raw, err := c.Request(ctx, http.MethodGet, c.desc.LibraryEndpoint, nil, nil)
	if err != nil {
		return 0, err
	}
	if !isList(raw) {
		return 0, nil
	}
	var items []json.RawMessage
	if err := c.decode(c.desc.LibraryEndpoint, raw, &items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// Queue returns the first page of the download queue with nested media
// objects included. An unexpected response shape yields no records.
func (c *Client) Queue(ctx context.Context) ([]types.QueueRecord, error) {
	raw, err := c.Request(ctx, http.MethodGet, "/queue", c.desc.QueueParams(QueuePageSize), nil)
	if err != nil {
		return nil, err
	}
	if isList(raw) {
		return []types.QueueRecord{}, nil
	}

	var page types.QueuePage
	if err := json.Unmarshal(raw, &page); err != nil || page.Records == nil {
		return []types.QueueRecord{}, nil
	}
	return page.Records, nil
}

func (c *Client) require(kind models.Kind, op string) error {
	if c.desc.Kind != kind {
		return &ErrArr{Service: c.desc.Kind.String(), Op: op, Err: ErrNotSupported}
	}
	return nil
}
