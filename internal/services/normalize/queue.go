// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package normalize

import (
	"math"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

// QueueItem normalizes a queue record. The record's own title is the release
// name, so the display title and media id come from the nested media object
// with the top-level fields as fallback.
func QueueItem(item types.QueueRecord, kind models.Kind) types.QueueItem {
	var (
		title   string
		mediaID int
	)

	switch kind {
	case models.KindRadarr:
		if item.Movie != nil {
			title = item.Movie.Title
			mediaID = item.Movie.ID
		}
		if mediaID == 0 {
			mediaID = item.MovieID
		}
	case models.KindSonarr:
		mediaID = item.SeriesID
		if item.Series != nil {
			title = item.Series.Title
			if mediaID == 0 {
				mediaID = item.Series.ID
			}
		}
	default:
		mediaID = item.ArtistID
		if item.Artist != nil {
			title = item.Artist.ArtistName
			if mediaID == 0 {
				mediaID = item.Artist.ID
			}
		}
	}

	if title == "" {
		title = item.Title
	}

	result := types.QueueItem{
		Title:    title,
		Service:  kind.String(),
		Progress: Progress(item.Size, item.SizeLeft),
		TimeLeft: item.TimeLeft,
		Status:   item.Status,
		QueueID:  item.ID,
	}
	if mediaID != 0 {
		result.MediaID = &mediaID
	}
	return result
}

// Progress returns the downloaded percentage rounded to one decimal, or 0
// when the size is unknown.
func Progress(size, sizeLeft float64) float64 {
	if size <= 0 {
		return 0.0
	}
	return math.Round((1-sizeLeft/size)*1000) / 10
}

// Albums normalizes Lidarr albums, skipping entries without a MusicBrainz id.
// fromLibrary selects how library membership is derived: downloaded tracks
// for library listings, a backend id for lookup results.
func Albums(items []types.Album, fromLibrary bool) []types.AlbumSummary {
	result := make([]types.AlbumSummary, 0, len(items))
	for _, item := range items {
		fid := item.ForeignKey()
		if fid == "" {
			continue
		}

		var trackFiles, totalTracks int
		if item.Statistics != nil {
			trackFiles = item.Statistics.TrackFileCount
			totalTracks = item.Statistics.TotalTrackCount
		}

		inLibrary := item.ID > 0
		if fromLibrary {
			inLibrary = trackFiles > 0
		}

		var year *string
		if len(item.ReleaseDate) > 0 {
			y := item.ReleaseDate
			if len(y) > 4 {
				y = y[:4]
			}
			year = &y
		}

		result = append(result, types.AlbumSummary{
			Title:           item.Title,
			Year:            year,
			ForeignAlbumID:  fid,
			Monitored:       item.Monitored,
			InLibrary:       inLibrary,
			TrackFileCount:  trackFiles,
			TotalTrackCount: totalTracks,
		})
	}
	return result
}
