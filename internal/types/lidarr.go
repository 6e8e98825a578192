// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

// Artist is a Lidarr artist resource as returned by /artist/lookup.
type Artist struct {
	ID              int     `json:"id"`
	ArtistName      string  `json:"artistName"`
	ForeignArtistID string  `json:"foreignArtistId"`
	Overview        string  `json:"overview"`
	RemotePoster    string  `json:"remotePoster,omitempty"`
	RemoteCover     string  `json:"remoteCover,omitempty"`
	Images          []Image `json:"images,omitempty"`
}

// Album is a Lidarr album resource from /album or /album/lookup.
type Album struct {
	ID             int              `json:"id"`
	Title          string           `json:"title"`
	ReleaseDate    string           `json:"releaseDate,omitempty"`
	ForeignAlbumID string           `json:"foreignAlbumId,omitempty"`
	ForeignID      string           `json:"foreignId,omitempty"`
	Monitored      bool             `json:"monitored"`
	Statistics     *AlbumStatistics `json:"statistics,omitempty"`
}

// ForeignKey returns the MusicBrainz id, which lookup results may carry
// under either field name.
func (a Album) ForeignKey() string {
	if a.ForeignAlbumID != "" {
		return a.ForeignAlbumID
	}
	return a.ForeignID
}

type AlbumStatistics struct {
	TrackFileCount  int `json:"trackFileCount"`
	TotalTrackCount int `json:"totalTrackCount"`
	TrackCount      int `json:"trackCount"`
}

// AddArtistRequest is the POST /artist payload. ForeignArtistID is a
// MusicBrainz UUID and must stay a string.
type AddArtistRequest struct {
	ForeignArtistID   string           `json:"foreignArtistId"`
	ArtistName        string           `json:"artistName"`
	QualityProfileID  int              `json:"qualityProfileId"`
	MetadataProfileID int              `json:"metadataProfileId"`
	RootFolderPath    string           `json:"rootFolderPath"`
	Monitored         bool             `json:"monitored"`
	AddOptions        AddArtistOptions `json:"addOptions"`
	Albums            []AlbumMonitor   `json:"albums,omitempty"`
}

type AddArtistOptions struct {
	Monitor                string `json:"monitor"`
	SearchForMissingAlbums bool   `json:"searchForMissingAlbums"`
}

type AlbumMonitor struct {
	ForeignAlbumID string `json:"foreignAlbumId"`
	Monitored      bool   `json:"monitored"`
}
