// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/normalize"
	"github.com/autobrr/requestarr/internal/types"
)

// ArtistRequest describes an artist to add to Lidarr.
type ArtistRequest struct {
	ForeignArtistID   string
	ArtistName        string
	QualityProfileID  int
	MetadataProfileID int
	RootFolderPath    string
}

// AddArtist adds an artist with all albums monitored.
func (c *Client) AddArtist(ctx context.Context, req ArtistRequest) (json.RawMessage, error) {
	if err := c.require(models.KindLidarr, "add artist"); err != nil {
		return nil, err
	}

	payload := artistPayload(req)
	payload.AddOptions = types.AddArtistOptions{Monitor: "all", SearchForMissingAlbums: true}
	return c.Request(ctx, http.MethodPost, "/artist", nil, payload)
}

// AddAlbum adds an artist with only one album monitored. The artist's full
// album list is fetched first so every sibling can be explicitly
// unmonitored, and the monitor mode is "none" so Lidarr keeps those flags.
func (c *Client) AddAlbum(ctx context.Context, req ArtistRequest, foreignAlbumID string) (json.RawMessage, error) {
	if err := c.require(models.KindLidarr, "add album"); err != nil {
		return nil, err
	}

	raw, err := c.Request(ctx, http.MethodGet, "/album/lookup", albumLookupParams(req.ForeignArtistID), nil)
	if err != nil {
		return nil, err
	}
	albums, err := decodeList[types.Album](c, "/album/lookup", raw)
	if err != nil {
		return nil, err
	}

	monitors := make([]types.AlbumMonitor, 0, len(albums))
	for _, a := range albums {
		fid := a.ForeignKey()
		if fid == "" {
			continue
		}
		monitors = append(monitors, types.AlbumMonitor{ForeignAlbumID: fid, Monitored: fid == foreignAlbumID})
	}

	payload := artistPayload(req)
	payload.AddOptions = types.AddArtistOptions{Monitor: "none", SearchForMissingAlbums: true}
	payload.Albums = monitors
	return c.Request(ctx, http.MethodPost, "/artist", nil, payload)
}

// ArtistAlbums lists the albums of an artist. With a library id the album
// endpoint reports real library state and an album counts as in library once
// it has downloaded tracks. Without one the lookup endpoint is used and an
// album counts as in library when it has an id.
func (c *Client) ArtistAlbums(ctx context.Context, foreignArtistID string, arrID int) ([]types.AlbumSummary, error) {
	if err := c.require(models.KindLidarr, "artist albums"); err != nil {
		return nil, err
	}

	fromLibrary := arrID > 0

	endpoint := "/album/lookup"
	params := albumLookupParams(foreignArtistID)
	if fromLibrary {
		endpoint = "/album"
		params = url.Values{"artistId": {strconv.Itoa(arrID)}}
	}

	raw, err := c.Request(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, err
	}
	albums, err := decodeList[types.Album](c, endpoint, raw)
	if err != nil {
		return nil, err
	}

	return normalize.Albums(albums, fromLibrary), nil
}

func artistPayload(req ArtistRequest) types.AddArtistRequest {
	return types.AddArtistRequest{
		ForeignArtistID:   req.ForeignArtistID,
		ArtistName:        req.ArtistName,
		QualityProfileID:  req.QualityProfileID,
		MetadataProfileID: req.MetadataProfileID,
		RootFolderPath:    req.RootFolderPath,
		Monitored:         true,
	}
}

func albumLookupParams(foreignArtistID string) url.Values {
	return url.Values{"term": {"lidarr:" + foreignArtistID}}
}
