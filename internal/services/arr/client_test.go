// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

const testAPIKey = "test-api-key"

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Body   []byte
}

type fakeArr struct {
	mu       sync.Mutex
	requests []recordedRequest
	server   *httptest.Server
}

func newFakeArr(t *testing.T, routes map[string]http.HandlerFunc) *fakeArr {
	t.Helper()

	f := &fakeArr{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: body})
		f.mu.Unlock()

		if r.Header.Get("X-Api-Key") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if h, ok := routes[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeArr) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeArr) client(t *testing.T, kind models.Kind) *Client {
	t.Helper()
	c, err := NewClient(kind, Options{URL: f.server.URL + "/", APIKey: testAPIKey, VerifySSL: true, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(models.Kind("plex"), Options{URL: "http://localhost"})
	assert.Error(t, err)

	_, err = NewClient(models.KindRadarr, Options{URL: "  "})
	assert.Error(t, err)

	c, err := NewClient(models.KindLidarr, Options{URL: " http://lidarr:8686/ "})
	require.NoError(t, err)
	assert.Equal(t, "http://lidarr:8686", c.BaseURL())
	assert.Equal(t, models.KindLidarr, c.Kind())
	assert.Equal(t, "http://lidarr:8686/api/v1/artist", c.apiURL("/artist", nil))
}

func TestRequestVersionPrefix(t *testing.T) {
	tests := []struct {
		kind models.Kind
		path string
	}{
		{models.KindRadarr, "/api/v3/system/status"},
		{models.KindSonarr, "/api/v3/system/status"},
		{models.KindLidarr, "/api/v1/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f := newFakeArr(t, map[string]http.HandlerFunc{
				"GET " + tt.path: jsonHandler(http.StatusOK, `{"appName":"x","version":"5.2.6"}`),
			})

			version, err := f.client(t, tt.kind).ValidateConnection(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "5.2.6", version)
		})
	}
}

func TestRequestEmptyBody(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"POST /api/v3/command": jsonHandler(http.StatusCreated, "  \n"),
	})

	raw, err := f.client(t, models.KindSonarr).Request(context.Background(), http.MethodPost, "/command", nil, map[string]string{"name": "RefreshMonitoredDownloads"})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestRequestFailureClasses(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		f := newFakeArr(t, nil)
		c, err := NewClient(models.KindRadarr, Options{URL: f.server.URL, APIKey: "wrong"})
		require.NoError(t, err)

		_, err = c.LibraryCount(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidAuth))
		assert.False(t, errors.Is(err, ErrServer))
		assert.Equal(t, "Authentication failed for radarr (HTTP 401)", err.Error())
	})

	t.Run("forbidden", func(t *testing.T) {
		f := newFakeArr(t, map[string]http.HandlerFunc{
			"GET /api/v3/movie": jsonHandler(http.StatusForbidden, ``),
		})

		_, err := f.client(t, models.KindRadarr).LibraryCount(context.Background())
		assert.True(t, errors.Is(err, ErrInvalidAuth))
	})

	t.Run("server error", func(t *testing.T) {
		f := newFakeArr(t, map[string]http.HandlerFunc{
			"GET /api/v3/series": jsonHandler(http.StatusInternalServerError, `{"message":"database is locked"}`),
		})

		_, err := f.client(t, models.KindSonarr).LibraryCount(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrServer))
		assert.True(t, IsClientFailure(err))
		assert.Contains(t, err.Error(), "sonarr returned HTTP 500: Internal Server Error.")
		assert.Contains(t, err.Error(), "database is locked")

		var arrErr *ErrArr
		require.True(t, errors.As(err, &arrErr))
		assert.Equal(t, http.StatusInternalServerError, arrErr.HttpCode)
	})

	t.Run("cannot connect", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		c, err := NewClient(models.KindLidarr, Options{URL: addr, APIKey: testAPIKey})
		require.NoError(t, err)

		_, err = c.LibraryCount(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCannotConnect))
		assert.Contains(t, err.Error(), "Connection error to lidarr")
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFakeArr(t, map[string]http.HandlerFunc{
			"GET /api/v3/movie": func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
		})
		c, err := NewClient(models.KindRadarr, Options{URL: f.server.URL, APIKey: testAPIKey, Timeout: 50 * time.Millisecond})
		require.NoError(t, err)

		_, err = c.LibraryCount(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCannotConnect))
		assert.Equal(t, "Request to radarr timed out", err.Error())
	})
}

func TestIsAlreadyExists(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"POST /api/v3/movie": jsonHandler(http.StatusBadRequest, `[{"propertyName":"TmdbId","errorMessage":"This movie has already been added"}]`),
		"POST /api/v3/series": jsonHandler(http.StatusBadRequest, `[{"errorMessage":"Root folder does not exist"}]`),
	})

	_, err := f.client(t, models.KindRadarr).AddMovie(context.Background(), MovieRequest{TmdbID: 27205, Title: "Inception"})
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))

	_, err = f.client(t, models.KindSonarr).AddSeries(context.Background(), SeriesRequest{TvdbID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServer))
	assert.False(t, IsAlreadyExists(err))

	assert.False(t, IsAlreadyExists(errors.New("400 has already been added")))
	assert.False(t, IsAlreadyExists(nil))
}

func TestIsTransient(t *testing.T) {
	refused := &ErrArr{Service: "radarr", Op: "GET /movie", Err: errors.New("connect: connection refused"), class: ErrCannotConnect}
	timedOut := &ErrArr{Service: "radarr", Op: "GET /movie", Err: context.DeadlineExceeded, class: ErrCannotConnect}
	auth := &ErrArr{Service: "radarr", Op: "GET /movie", HttpCode: http.StatusUnauthorized, class: ErrInvalidAuth}

	assert.True(t, IsTransient(refused))
	assert.False(t, IsTransient(timedOut))
	assert.False(t, IsTransient(auth))
	assert.False(t, IsTransient(errors.New("connection refused")))
}

func TestLibraryCount(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"list", `[{"id":1},{"id":2},{"id":3}]`, 3},
		{"empty list", `[]`, 0},
		{"object", `{"message":"unexpected"}`, 0},
		{"empty body", ``, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeArr(t, map[string]http.HandlerFunc{
				"GET /api/v1/artist": jsonHandler(http.StatusOK, tt.body),
			})

			count, err := f.client(t, models.KindLidarr).LibraryCount(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, count)
		})
	}
}

func TestQueueParams(t *testing.T) {
	radarr, _ := DescriptorFor(models.KindRadarr)
	sonarr, _ := DescriptorFor(models.KindSonarr)
	lidarr, _ := DescriptorFor(models.KindLidarr)

	assert.Equal(t, "includeMovie=true&pageSize=50", radarr.QueueParams(QueuePageSize).Encode())
	assert.Equal(t, "includeSeries=true&pageSize=50", sonarr.QueueParams(QueuePageSize).Encode())
	assert.Equal(t, "includeAlbum=true&includeArtist=true&pageSize=50", lidarr.QueueParams(QueuePageSize).Encode())
}

func TestQueue(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"GET /api/v3/queue": jsonHandler(http.StatusOK, `{
			"page": 1,
			"totalRecords": 1,
			"records": [
				{"id": 5, "title": "Dune.Part.Two.2024.2160p", "status": "downloading", "size": 1000, "sizeleft": 250,
				 "timeleft": "00:05:00", "movieId": 3, "movie": {"id": 3, "title": "Dune: Part Two"}}
			]
		}`),
	})

	c := f.client(t, models.KindRadarr)
	records, err := c.Queue(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Dune: Part Two", records[0].Movie.Title)
	assert.Equal(t, 250.0, records[0].SizeLeft)

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"true"}, reqs[0].Query["includeMovie"])
	assert.Equal(t, []string{"50"}, reqs[0].Query["pageSize"])
}

func TestQueueUnexpectedShape(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"GET /api/v3/queue": jsonHandler(http.StatusOK, `[]`),
	})

	records, err := f.client(t, models.KindSonarr).Queue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSearchPassesTerm(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"GET /api/v3/movie/lookup": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "blade runner", r.URL.Query().Get("term"))
			_, _ = io.WriteString(w, `[{"title":"Blade Runner","tmdbId":78},{"title":"Blade Runner 2049","tmdbId":335984}]`)
		},
	})

	c := f.client(t, models.KindRadarr)

	movies, err := c.SearchMovies(context.Background(), "blade runner")
	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, 335984, movies[1].TmdbID)

	_, err = c.SearchSeries(context.Background(), "blade runner")
	assert.True(t, errors.Is(err, ErrNotSupported))
}

func TestMetadataProfiles(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"GET /api/v1/metadataprofile": jsonHandler(http.StatusOK, `[{"id":1,"name":"Standard"}]`),
	})

	profiles, err := f.client(t, models.KindLidarr).MetadataProfiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Profile{{ID: 1, Name: "Standard"}}, profiles)

	_, err = f.client(t, models.KindRadarr).MetadataProfiles(context.Background())
	assert.True(t, errors.Is(err, ErrNotSupported))
}

func TestAddSeriesMonitorMode(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name        string
		seasons     []types.Season
		wantMonitor string
		wantFlags   []bool
	}{
		{"all monitored", []types.Season{{SeasonNumber: 1, Monitored: &yes}, {SeasonNumber: 2}}, "all", []bool{true, true}},
		{"partial", []types.Season{{SeasonNumber: 1, Monitored: &yes}, {SeasonNumber: 2, Monitored: &no}}, "none", []bool{true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeArr(t, map[string]http.HandlerFunc{
				"POST /api/v3/series": jsonHandler(http.StatusCreated, `{"id":10}`),
			})

			_, err := f.client(t, models.KindSonarr).AddSeries(context.Background(), SeriesRequest{
				TvdbID: 371980, Title: "Severance", TitleSlug: "severance", QualityProfileID: 4, RootFolderPath: "/tv",
				Seasons: tt.seasons,
			})
			require.NoError(t, err)

			reqs := f.recorded()
			require.Len(t, reqs, 1)

			var payload types.AddSeriesRequest
			require.NoError(t, json.Unmarshal(reqs[0].Body, &payload))
			assert.Equal(t, tt.wantMonitor, payload.AddOptions.Monitor)
			assert.True(t, payload.AddOptions.SearchForMissingEpisodes)
			assert.Equal(t, 4, payload.QualityProfileID)
			require.Len(t, payload.Seasons, len(tt.wantFlags))
			for i, want := range tt.wantFlags {
				assert.Equal(t, want, payload.Seasons[i].Monitored)
			}
		})
	}
}

func TestSeriesSeasons(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"GET /api/v3/series/7": jsonHandler(http.StatusOK, `{"id":7,"title":"Severance","seasons":[
			{"seasonNumber":1,"monitored":true,"statistics":{"episodeFileCount":9,"totalEpisodeCount":9}}
		]}`),
	})

	seasons, err := f.client(t, models.KindSonarr).SeriesSeasons(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, seasons, 1)
	assert.Equal(t, 9, seasons[0].Statistics.EpisodeFileCount)
	assert.True(t, seasons[0].IsMonitored(false))
}

func TestMonitorSeasons(t *testing.T) {
	var (
		mu       sync.Mutex
		commands []types.CommandRequest
		saved    map[string]any
		body     []byte
	)

	f := newFakeArr(t, map[string]http.HandlerFunc{
		"GET /api/v3/series/7": jsonHandler(http.StatusOK, `{"id":7,"title":"Severance","monitored":false,"tags":[2],
			"sizeOnDisk":9007199254740993,"ratings":{"value":8.7},
			"seasons":[{"seasonNumber":1,"monitored":false},{"seasonNumber":2,"monitored":false}]}`),
		"PUT /api/v3/series/7": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			var err error
			body, err = io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(body, &saved))
			_, _ = io.WriteString(w, `{"id":7}`)
		},
		"POST /api/v3/command": func(w http.ResponseWriter, r *http.Request) {
			var cmd types.CommandRequest
			_ = json.NewDecoder(r.Body).Decode(&cmd)
			mu.Lock()
			commands = append(commands, cmd)
			mu.Unlock()
			// command failures must not fail the request
			w.WriteHeader(http.StatusInternalServerError)
		},
	})

	result, err := f.client(t, models.KindSonarr).MonitorSeasons(context.Background(), 7, []int{2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7}`, string(result))

	mu.Lock()
	defer mu.Unlock()

	require.NotNil(t, saved)
	assert.Equal(t, true, saved["monitored"])
	assert.Equal(t, []any{float64(2)}, saved["tags"], "unknown fields are written back")
	assert.Contains(t, string(body), `"sizeOnDisk":9007199254740993`, "large integers are not rounded")
	assert.Contains(t, string(body), `"value":8.7`)

	seasons := saved["seasons"].([]any)
	assert.Equal(t, false, seasons[0].(map[string]any)["monitored"])
	assert.Equal(t, true, seasons[1].(map[string]any)["monitored"])

	require.Len(t, commands, 1)
	assert.Equal(t, types.CommandRequest{Name: "SeasonSearch", SeriesID: 7, SeasonNumber: 2}, commands[0])
}

func TestAddAlbum(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"GET /api/v1/album/lookup": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "lidarr:artist-mbid", r.URL.Query().Get("term"))
			_, _ = io.WriteString(w, `[
				{"title":"OK Computer","foreignAlbumId":"album-1"},
				{"title":"Kid A","foreignId":"album-2"},
				{"title":"Broken"}
			]`)
		},
		"POST /api/v1/artist": jsonHandler(http.StatusCreated, `{"id":3}`),
	})

	_, err := f.client(t, models.KindLidarr).AddAlbum(context.Background(), ArtistRequest{
		ForeignArtistID:   "artist-mbid",
		ArtistName:        "Radiohead",
		QualityProfileID:  1,
		MetadataProfileID: 2,
		RootFolderPath:    "/music",
	}, "album-2")
	require.NoError(t, err)

	reqs := f.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPost, reqs[1].Method)

	var payload types.AddArtistRequest
	require.NoError(t, json.Unmarshal(reqs[1].Body, &payload))
	assert.Equal(t, "artist-mbid", payload.ForeignArtistID)
	assert.Equal(t, 2, payload.MetadataProfileID)
	assert.Equal(t, "none", payload.AddOptions.Monitor)
	assert.True(t, payload.AddOptions.SearchForMissingAlbums)
	assert.Equal(t, []types.AlbumMonitor{
		{ForeignAlbumID: "album-1", Monitored: false},
		{ForeignAlbumID: "album-2", Monitored: true},
	}, payload.Albums)
}

func TestAddArtist(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"POST /api/v1/artist": jsonHandler(http.StatusCreated, `{"id":3}`),
	})

	_, err := f.client(t, models.KindLidarr).AddArtist(context.Background(), ArtistRequest{ForeignArtistID: "artist-mbid", ArtistName: "Radiohead"})
	require.NoError(t, err)

	reqs := f.recorded()
	require.Len(t, reqs, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &payload))
	assert.Equal(t, "artist-mbid", payload["foreignArtistId"])
	assert.Equal(t, "all", payload["addOptions"].(map[string]any)["monitor"])
	assert.NotContains(t, payload, "albums")
}

func TestArtistAlbums(t *testing.T) {
	f := newFakeArr(t, map[string]http.HandlerFunc{
		"GET /api/v1/album": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "3", r.URL.Query().Get("artistId"))
			_, _ = io.WriteString(w, `[
				{"id":11,"title":"OK Computer","foreignAlbumId":"album-1","monitored":true,"statistics":{"trackFileCount":12,"totalTrackCount":12}},
				{"id":12,"title":"Kid A","foreignAlbumId":"album-2","statistics":{"trackFileCount":0,"totalTrackCount":10}}
			]`)
		},
		"GET /api/v1/album/lookup": jsonHandler(http.StatusOK, `[
			{"id":0,"title":"OK Computer","foreignAlbumId":"album-1"},
			{"id":12,"title":"Kid A","foreignAlbumId":"album-2"}
		]`),
	})
	c := f.client(t, models.KindLidarr)

	t.Run("library", func(t *testing.T) {
		albums, err := c.ArtistAlbums(context.Background(), "artist-mbid", 3)
		require.NoError(t, err)
		require.Len(t, albums, 2)
		assert.True(t, albums[0].InLibrary)
		assert.False(t, albums[1].InLibrary)
	})

	t.Run("lookup", func(t *testing.T) {
		albums, err := c.ArtistAlbums(context.Background(), "artist-mbid", 0)
		require.NoError(t, err)
		require.Len(t, albums, 2)
		assert.False(t, albums[0].InLibrary)
		assert.True(t, albums[1].InLibrary)
	})
}
