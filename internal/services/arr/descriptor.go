// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"net/url"

	"github.com/autobrr/requestarr/internal/models"
)

// Descriptor captures everything that differs between arr backends at the
// HTTP level. Adding a backend means adding a row to descriptors.
type Descriptor struct {
	Kind             models.Kind
	APIVersion       string
	AuthHeader       string
	LibraryEndpoint  string
	LookupEndpoint   string
	CountKey         string
	MetadataProfiles bool
	DefaultPort      int

	queueInclude [][2]string
}

var descriptors = map[models.Kind]Descriptor{
	models.KindRadarr: {
		Kind:            models.KindRadarr,
		APIVersion:      "v3",
		AuthHeader:      "X-Api-Key",
		LibraryEndpoint: "/movie",
		LookupEndpoint:  "/movie/lookup",
		CountKey:        "radarr_movies",
		DefaultPort:     7878,
		queueInclude:    [][2]string{{"includeMovie", "true"}},
	},
	models.KindSonarr: {
		Kind:            models.KindSonarr,
		APIVersion:      "v3",
		AuthHeader:      "X-Api-Key",
		LibraryEndpoint: "/series",
		LookupEndpoint:  "/series/lookup",
		CountKey:        "sonarr_series",
		DefaultPort:     8989,
		queueInclude:    [][2]string{{"includeSeries", "true"}},
	},
	models.KindLidarr: {
		Kind:             models.KindLidarr,
		APIVersion:       "v1",
		AuthHeader:       "X-Api-Key",
		LibraryEndpoint:  "/artist",
		LookupEndpoint:   "/artist/lookup",
		CountKey:         "lidarr_artists",
		MetadataProfiles: true,
		DefaultPort:      8686,
		queueInclude:     [][2]string{{"includeArtist", "true"}, {"includeAlbum", "true"}},
	},
}

// DescriptorFor returns the descriptor of a backend kind.
func DescriptorFor(kind models.Kind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}

// QueueParams returns the /queue query parameters, including the nested
// media objects whose titles replace the raw release names.
func (d Descriptor) QueueParams(pageSize int) url.Values {
	params := url.Values{}
	params.Set("pageSize", itoa(pageSize))
	for _, p := range d.queueInclude {
		params.Set(p[0], p[1])
	}
	return params
}
