// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package normalize maps raw arr payloads onto the unified records served to
// the UI. Everything here is pure.
package normalize

import (
	"strconv"
	"strings"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

const (
	tmdbOriginal = "image.tmdb.org/t/p/original"
	posterCover  = "poster"
)

// Movie normalizes a Radarr lookup record.
func Movie(item types.Movie, settings models.ServiceSettings) types.MovieResult {
	poster := RewriteTMDBPoster(PosterURL(item.RemotePoster, "", item.Images, posterCover))

	return types.MovieResult{
		SearchResult: base(item.ID, item.Title, item.Year, item.Overview, poster, settings),
		TmdbID:       item.TmdbID,
		TitleSlug:    item.TitleSlug,
		HasFile:      item.HasFile,
	}
}

// Series normalizes a Sonarr lookup record. Sonarr's lookup statistics are
// always zero, so has_file is never trusted and the raw seasons are passed
// through until an enrichment call replaces them.
func Series(item types.Series, settings models.ServiceSettings) types.SeriesResult {
	poster := PosterURL(item.RemotePoster, "", item.Images, posterCover)

	seasons := item.Seasons
	if seasons == nil {
		seasons = []types.Season{}
	}

	return types.SeriesResult{
		SearchResult: base(item.ID, item.Title, item.Year, item.Overview, poster, settings),
		TvdbID:       item.TvdbID,
		TitleSlug:    item.TitleSlug,
		HasFile:      false,
		Seasons:      seasons,
	}
}

// Artist normalizes a Lidarr lookup record. Artists have no single release
// year.
func Artist(item types.Artist, settings models.ServiceSettings) types.ArtistResult {
	poster := PosterURL(item.RemotePoster, item.RemoteCover, item.Images, posterCover)

	return types.ArtistResult{
		SearchResult:    base(item.ID, item.ArtistName, nil, item.Overview, poster, settings),
		ForeignArtistID: item.ForeignArtistID,
		MetadataProfile: ResolveProfileName(settings.MetadataProfiles, settings.MetadataProfileID),
	}
}

func base(id int, title string, year *int, overview string, poster *string, settings models.ServiceSettings) types.SearchResult {
	result := types.SearchResult{
		Title:          title,
		Year:           year,
		Overview:       overview,
		PosterURL:      poster,
		InLibrary:      id > 0,
		QualityProfile: ResolveProfileName(settings.Profiles, settings.QualityProfileID),
		RootFolder:     settings.RootFolder,
	}
	if id > 0 {
		arrID := id
		result.ArrID = &arrID
	}
	return result
}

// PosterURL picks the poster of a record: the remote poster or cover field,
// else the remote URL of the first image with the given cover type.
func PosterURL(remotePoster, remoteCover string, images []types.Image, coverType string) *string {
	url := remotePoster
	if url == "" {
		url = remoteCover
	}
	if url == "" {
		for _, img := range images {
			if img.CoverType == coverType {
				url = img.RemoteURL
				break
			}
		}
	}
	if url == "" {
		return nil
	}
	return &url
}

// RewriteTMDBPoster swaps full-size TMDB images for the w300 rendition.
// Other hosts are returned unchanged.
func RewriteTMDBPoster(url *string) *string {
	if url == nil || !strings.Contains(*url, tmdbOriginal) {
		return url
	}
	rewritten := strings.Replace(*url, "/t/p/original/", "/t/p/w300/", 1)
	return &rewritten
}

// ResolveProfileName finds the name of the selected profile. Ids are
// compared as strings since the selection may have been stored either way.
func ResolveProfileName(profiles []types.Profile, id models.ProfileID) string {
	if len(profiles) == 0 || !id.IsSet() {
		return ""
	}
	want := strings.TrimSpace(string(id))
	for _, p := range profiles {
		if strconv.Itoa(p.ID) == want {
			return p.Name
		}
	}
	return ""
}
