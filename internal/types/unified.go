// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

// SearchResult holds the fields every normalized search result shares.
// InLibrary is true exactly when ArrID is set.
type SearchResult struct {
	Title          string  `json:"title"`
	Year           *int    `json:"year"`
	Overview       string  `json:"overview"`
	PosterURL      *string `json:"poster_url"`
	InLibrary      bool    `json:"in_library"`
	ArrID          *int    `json:"arr_id"`
	QualityProfile string  `json:"quality_profile"`
	RootFolder     string  `json:"root_folder"`
}

type MovieResult struct {
	SearchResult
	TmdbID    int    `json:"tmdb_id"`
	TitleSlug string `json:"title_slug"`
	HasFile   bool   `json:"has_file"`
}

type SeriesResult struct {
	SearchResult
	TvdbID    int      `json:"tvdb_id"`
	TitleSlug string   `json:"title_slug"`
	HasFile   bool     `json:"has_file"`
	Seasons   []Season `json:"seasons"`
}

type ArtistResult struct {
	SearchResult
	ForeignArtistID string `json:"foreign_artist_id"`
	MetadataProfile string `json:"metadata_profile"`
}

// QueueItem is a normalized download queue entry.
type QueueItem struct {
	Title    string  `json:"title"`
	Service  string  `json:"service"`
	MediaID  *int    `json:"media_id"`
	Progress float64 `json:"progress"`
	TimeLeft string  `json:"timeleft"`
	Status   string  `json:"status"`
	QueueID  int     `json:"queue_id"`
}

// AlbumSummary is a normalized Lidarr album with its library state.
type AlbumSummary struct {
	Title           string  `json:"title"`
	Year            *string `json:"year"`
	ForeignAlbumID  string  `json:"foreign_album_id"`
	Monitored       bool    `json:"monitored"`
	InLibrary       bool    `json:"in_library"`
	TrackFileCount  int     `json:"track_file_count"`
	TotalTrackCount int     `json:"total_track_count"`
}
