// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

// MovieRequest describes a movie to add to Radarr.
type MovieRequest struct {
	TmdbID           int
	Title            string
	TitleSlug        string
	QualityProfileID int
	RootFolderPath   string
}

// AddMovie adds a monitored movie and starts a search for it. Radarr answers
// HTTP 400 when the movie is already in the library.
func (c *Client) AddMovie(ctx context.Context, req MovieRequest) (json.RawMessage, error) {
	if err := c.require(models.KindRadarr, "add movie"); err != nil {
		return nil, err
	}

	payload := types.AddMovieRequest{
		TmdbID:              req.TmdbID,
		Title:               req.Title,
		TitleSlug:           req.TitleSlug,
		QualityProfileID:    req.QualityProfileID,
		RootFolderPath:      req.RootFolderPath,
		Monitored:           true,
		MinimumAvailability: "released",
		AddOptions:          types.AddMovieOptions{SearchForMovie: true},
	}
	return c.Request(ctx, http.MethodPost, "/movie", nil, payload)
}
