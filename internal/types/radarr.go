// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

// Movie is a Radarr movie resource as returned by /movie/lookup.
type Movie struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Year         *int    `json:"year,omitempty"`
	Overview     string  `json:"overview"`
	TmdbID       int     `json:"tmdbId"`
	ImdbID       string  `json:"imdbId,omitempty"`
	TitleSlug    string  `json:"titleSlug"`
	HasFile      bool    `json:"hasFile"`
	RemotePoster string  `json:"remotePoster,omitempty"`
	Images       []Image `json:"images,omitempty"`
}

// AddMovieRequest is the POST /movie payload.
type AddMovieRequest struct {
	TmdbID              int             `json:"tmdbId"`
	Title               string          `json:"title"`
	TitleSlug           string          `json:"titleSlug"`
	QualityProfileID    int             `json:"qualityProfileId"`
	RootFolderPath      string          `json:"rootFolderPath"`
	Monitored           bool            `json:"monitored"`
	MinimumAvailability string          `json:"minimumAvailability"`
	AddOptions          AddMovieOptions `json:"addOptions"`
}

type AddMovieOptions struct {
	SearchForMovie bool `json:"searchForMovie"`
}
