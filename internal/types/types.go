// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

// SystemStatus is the subset of /system/status used to validate a connection.
type SystemStatus struct {
	AppName string `json:"appName"`
	Version string `json:"version"`
}

// Profile is a quality or metadata profile.
type Profile struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// RootFolder is a configured library root.
type RootFolder struct {
	ID   int    `json:"id" yaml:"id"`
	Path string `json:"path" yaml:"path"`
}

// Image is an entry of the images array on arr media resources.
type Image struct {
	CoverType string `json:"coverType"`
	URL       string `json:"url,omitempty"`
	RemoteURL string `json:"remoteUrl,omitempty"`
}

// QueuePage is the paged /queue response shared by all arr backends.
type QueuePage struct {
	Page         int           `json:"page"`
	PageSize     int           `json:"pageSize"`
	TotalRecords int           `json:"totalRecords"`
	Records      []QueueRecord `json:"records"`
}

// QueueRecord is one active download. Only the nested object matching the
// owning backend is populated.
type QueueRecord struct {
	ID       int          `json:"id"`
	Title    string       `json:"title"`
	Status   string       `json:"status"`
	TimeLeft string       `json:"timeleft,omitempty"`
	Size     float64      `json:"size"`
	SizeLeft float64      `json:"sizeleft"`
	MovieID  int          `json:"movieId,omitempty"`
	SeriesID int          `json:"seriesId,omitempty"`
	ArtistID int          `json:"artistId,omitempty"`
	AlbumID  int          `json:"albumId,omitempty"`
	Movie    *QueueMedia  `json:"movie,omitempty"`
	Series   *QueueMedia  `json:"series,omitempty"`
	Artist   *QueueArtist `json:"artist,omitempty"`
	Album    *QueueMedia  `json:"album,omitempty"`

	TrackedDownloadStatus string `json:"trackedDownloadStatus,omitempty"`
	TrackedDownloadState  string `json:"trackedDownloadState,omitempty"`
	ErrorMessage          string `json:"errorMessage,omitempty"`
}

// QueueMedia is the nested movie, series or album of a queue record.
type QueueMedia struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// QueueArtist is the nested artist of a Lidarr queue record.
type QueueArtist struct {
	ID         int    `json:"id"`
	ArtistName string `json:"artistName"`
}
