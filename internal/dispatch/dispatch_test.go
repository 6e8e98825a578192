// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/coordinator"
	"github.com/autobrr/requestarr/internal/types"
)

const testAPIKey = "dispatch-key"

type call struct {
	Method string
	Path   string
	Body   string
}

type backend struct {
	mu     sync.Mutex
	calls  []call
	server *httptest.Server
}

func newBackend(t *testing.T, routes map[string]http.HandlerFunc) *backend {
	t.Helper()

	b := &backend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.calls = append(b.calls, call{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		b.mu.Unlock()

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
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) recorded() []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]call(nil), b.calls...)
}

func (b *backend) find(method, path string) (call, bool) {
	for _, c := range b.recorded() {
		if c.Method == method && c.Path == path {
			return c, true
		}
	}
	return call{}, false
}

func (b *backend) settings(kind models.Kind) models.ServiceSettings {
	return models.ServiceSettings{
		Kind:              kind,
		URL:               b.server.URL,
		APIKey:            testAPIKey,
		QualityProfileID:  "4",
		RootFolder:        "/media/" + kind.String(),
		MetadataProfileID: "2",
		Profiles:          []types.Profile{{ID: 4, Name: "HD-1080p"}},
		MetadataProfiles:  []types.Profile{{ID: 2, Name: "Standard"}},
	}
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newDispatcher(t *testing.T, settings models.Settings) *Dispatcher {
	t.Helper()
	c, err := coordinator.New(settings, coordinator.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	return New(c)
}

func rendered(t *testing.T, family Family, r Result) string {
	t.Helper()
	data, err := json.Marshal(Render(family, r))
	require.NoError(t, err)
	return string(data)
}

const alreadyAdded = `[{"propertyName":"TmdbId","errorMessage":"This movie has already been added"}]`

func TestSearchInvalidQuery(t *testing.T) {
	d := New(nil)

	for _, q := range []string{"", "   ", "\t\n"} {
		res := d.SearchMovies(context.Background(), q)
		assert.Equal(t, InvalidQuery{}, res)
		assert.JSONEq(t, `{"error":"invalid_query","message":"Search query cannot be empty","results":[]}`,
			rendered(t, FamilySearch, res))
	}
}

func TestSearchNotConfigured(t *testing.T) {
	res := New(nil).SearchTV(context.Background(), "dune")
	assert.Equal(t, NotConfigured{}, res)

	res = newDispatcher(t, models.Settings{}).SearchMusic(context.Background(), "dune")
	assert.Equal(t, NotConfigured{}, res)
	assert.JSONEq(t, `{"error":"not_configured","message":"Requestarr not configured","results":[]}`,
		rendered(t, FamilySearch, res))
}

func TestSearchServiceNotConfigured(t *testing.T) {
	b := newBackend(t, nil)
	d := newDispatcher(t, models.Settings{models.KindSonarr: b.settings(models.KindSonarr)})

	res := d.SearchMovies(context.Background(), "dune")
	assert.Equal(t, ServiceNotConfigured{Kind: models.KindRadarr}, res)
	assert.JSONEq(t, `{"error":"service_not_configured","message":"Radarr is not configured in Requestarr","results":[]}`,
		rendered(t, FamilySearch, res))
	assert.Empty(t, b.recorded())
}

func TestSearchMovies(t *testing.T) {
	movies := make([]map[string]any, 25)
	for i := range movies {
		movies[i] = map[string]any{"id": 0, "title": fmt.Sprintf("Movie %d", i), "tmdbId": 1000 + i}
	}
	movies[0]["id"] = 42
	movies[0]["remotePoster"] = "https://image.tmdb.org/t/p/original/x.jpg"
	body, err := json.Marshal(movies)
	require.NoError(t, err)

	b := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v3/movie/lookup": reply(http.StatusOK, string(body)),
	})
	d := newDispatcher(t, models.Settings{models.KindRadarr: b.settings(models.KindRadarr)})

	res := d.SearchMovies(context.Background(), "  movie  ")
	found, ok := res.(SearchResults)
	require.True(t, ok, "got %T", res)
	require.Len(t, found.Results, MaxSearchResults)

	first := found.Results[0].(types.MovieResult)
	assert.True(t, first.InLibrary)
	require.NotNil(t, first.ArrID)
	assert.Equal(t, 42, *first.ArrID)
	assert.Equal(t, "https://image.tmdb.org/t/p/w300/x.jpg", *first.PosterURL)
	assert.Equal(t, "HD-1080p", first.QualityProfile)
	assert.Equal(t, "/media/radarr", first.RootFolder)

	second := found.Results[1].(types.MovieResult)
	assert.False(t, second.InLibrary)
	assert.Nil(t, second.ArrID)

	calls := b.recorded()
	require.Len(t, calls, 1)
}

func TestSearchUnavailable(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v1/artist/lookup": reply(http.StatusInternalServerError, `{"message":"boom"}`),
	})
	d := newDispatcher(t, models.Settings{models.KindLidarr: b.settings(models.KindLidarr)})

	res := d.SearchMusic(context.Background(), "radiohead")
	require.IsType(t, ServiceUnavailable{}, res)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered(t, FamilySearch, res)), &out))
	assert.Equal(t, "service_unavailable", out["error"])
	assert.True(t, strings.HasPrefix(out["message"].(string), "Lidarr is unavailable: lidarr returned HTTP 500"))
	assert.Equal(t, []any{}, out["results"])
}

func TestSearchTVEnrichesLibrarySeries(t *testing.T) {
	lookup := `[
		{"id": 7, "title": "In Library", "tvdbId": 1, "seasons": [{"seasonNumber": 1}]},
		{"id": 8, "title": "Broken", "tvdbId": 2, "seasons": [{"seasonNumber": 1}]},
		{"id": 9, "title": "Empty", "tvdbId": 3, "seasons": [{"seasonNumber": 4}]},
		{"id": 0, "title": "New", "tvdbId": 4, "seasons": [{"seasonNumber": 1}]}
	]`
	library := `{"id": 7, "seasons": [{"seasonNumber": 1, "monitored": true, "statistics": {"episodeFileCount": 8, "episodeCount": 8}}]}`

	b := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v3/series/lookup": reply(http.StatusOK, lookup),
		"GET /api/v3/series/7":      reply(http.StatusOK, library),
		"GET /api/v3/series/8":      reply(http.StatusInternalServerError, "boom"),
		"GET /api/v3/series/9":      reply(http.StatusOK, `{"id": 9, "seasons": []}`),
	})
	d := newDispatcher(t, models.Settings{models.KindSonarr: b.settings(models.KindSonarr)})

	res := d.SearchTV(context.Background(), "show")
	found, ok := res.(SearchResults)
	require.True(t, ok, "got %T", res)
	require.Len(t, found.Results, 4)

	enriched := found.Results[0].(types.SeriesResult)
	require.Len(t, enriched.Seasons, 1)
	require.NotNil(t, enriched.Seasons[0].Statistics)
	assert.Equal(t, 8, enriched.Seasons[0].Statistics.EpisodeFileCount)

	broken := found.Results[1].(types.SeriesResult)
	require.Len(t, broken.Seasons, 1)
	assert.Nil(t, broken.Seasons[0].Statistics)

	empty := found.Results[2].(types.SeriesResult)
	assert.Equal(t, 4, empty.Seasons[0].SeasonNumber, "an empty library list keeps the lookup seasons")

	_, fetched := b.find(http.MethodGet, "/api/v3/series/0")
	assert.False(t, fetched)
}

func TestRequestMovie(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		wantCode string
	}{
		{name: "accepted", status: http.StatusCreated, body: `{"id": 12}`, want: `{"success":true}`},
		{
			name:   "already exists",
			status: http.StatusBadRequest,
			body:   alreadyAdded,
			want:   `{"success":false,"error_code":"already_exists","message":"This movie is already in Radarr"}`,
		},
		{name: "other validation error", status: http.StatusBadRequest, body: `[{"errorMessage":"Root folder does not exist"}]`, wantCode: CodeServiceUnavailable},
		{name: "server error", status: http.StatusInternalServerError, body: "already been added", wantCode: CodeServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t, map[string]http.HandlerFunc{
				"POST /api/v3/movie": reply(tt.status, tt.body),
			})
			d := newDispatcher(t, models.Settings{models.KindRadarr: b.settings(models.KindRadarr)})

			res := d.RequestMovie(context.Background(), MovieRequest{TmdbID: 603, Title: "The Matrix", TitleSlug: "the-matrix-603"})
			out := rendered(t, FamilyRequest, res)

			if tt.want != "" {
				assert.JSONEq(t, tt.want, out)
			} else {
				var decoded map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &decoded))
				assert.Equal(t, false, decoded["success"])
				assert.Equal(t, tt.wantCode, decoded["error_code"])
				assert.Contains(t, decoded["message"], "radarr returned HTTP")
			}

			post, ok := b.find(http.MethodPost, "/api/v3/movie")
			require.True(t, ok)
			var payload types.AddMovieRequest
			require.NoError(t, json.Unmarshal([]byte(post.Body), &payload))
			assert.Equal(t, 603, payload.TmdbID)
			assert.Equal(t, 4, payload.QualityProfileID)
			assert.Equal(t, "/media/radarr", payload.RootFolderPath)
		})
	}
}

func TestRequestMovieConnectionFailure(t *testing.T) {
	b := newBackend(t, nil)
	settings := b.settings(models.KindRadarr)
	b.server.Close()

	d := newDispatcher(t, models.Settings{models.KindRadarr: settings})
	res := d.RequestMovie(context.Background(), MovieRequest{TmdbID: 1, Title: "x", TitleSlug: "x"})

	unavailable, ok := res.(ServiceUnavailable)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, models.KindRadarr, unavailable.Kind)
	assert.Contains(t, Message(FamilyRequest, unavailable), "Connection error to radarr")
}

func TestRequestMissingProfile(t *testing.T) {
	b := newBackend(t, nil)
	radarr := b.settings(models.KindRadarr)
	radarr.QualityProfileID = ""
	lidarr := b.settings(models.KindLidarr)
	lidarr.MetadataProfileID = "abc"

	d := newDispatcher(t, models.Settings{models.KindRadarr: radarr, models.KindLidarr: lidarr})

	res := d.RequestMovie(context.Background(), MovieRequest{TmdbID: 1, Title: "x", TitleSlug: "x"})
	assert.JSONEq(t, `{"success":false,"error_code":"service_not_configured","message":"Radarr quality profile is not configured"}`,
		rendered(t, FamilyRequest, res))

	res = d.RequestArtist(context.Background(), ArtistRequest{ForeignArtistID: "mbid", Title: "x"})
	assert.JSONEq(t, `{"success":false,"error_code":"service_not_configured","message":"Lidarr metadata profile is not configured"}`,
		rendered(t, FamilyRequest, res))

	assert.Empty(t, b.recorded())
}

func TestRequestNotConfigured(t *testing.T) {
	res := newDispatcher(t, models.Settings{}).RequestSeries(context.Background(), SeriesRequest{TvdbID: 1})
	assert.JSONEq(t, `{"success":false,"error_code":"not_configured","message":"Requestarr not configured"}`,
		rendered(t, FamilyRequest, res))

	b := newBackend(t, nil)
	d := newDispatcher(t, models.Settings{models.KindRadarr: b.settings(models.KindRadarr)})
	res = d.RequestAlbum(context.Background(), ArtistRequest{ForeignArtistID: "a", ForeignAlbumID: "b", Title: "x"})
	assert.JSONEq(t, `{"success":false,"error_code":"service_not_configured","message":"Lidarr is not configured"}`,
		rendered(t, FamilyRequest, res))
}

func TestRequestSeriesAdd(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"POST /api/v3/series": reply(http.StatusCreated, `{"id": 3}`),
	})
	d := newDispatcher(t, models.Settings{models.KindSonarr: b.settings(models.KindSonarr)})

	off := false
	res := d.RequestSeries(context.Background(), SeriesRequest{
		TvdbID:    81189,
		Title:     "Breaking Bad",
		TitleSlug: "breaking-bad",
		Seasons:   []types.Season{{SeasonNumber: 1}, {SeasonNumber: 2, Monitored: &off}},
	})
	assert.Equal(t, Accepted{}, res)

	post, ok := b.find(http.MethodPost, "/api/v3/series")
	require.True(t, ok)
	var payload types.AddSeriesRequest
	require.NoError(t, json.Unmarshal([]byte(post.Body), &payload))
	assert.Equal(t, []types.SeasonMonitor{{SeasonNumber: 1, Monitored: true}, {SeasonNumber: 2, Monitored: false}}, payload.Seasons)
	assert.Equal(t, "none", payload.AddOptions.Monitor)
}

func TestRequestSeriesAlreadyExists(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"POST /api/v3/series": reply(http.StatusBadRequest, `[{"errorMessage":"This series has already been added"}]`),
	})
	d := newDispatcher(t, models.Settings{models.KindSonarr: b.settings(models.KindSonarr)})

	res := d.RequestSeries(context.Background(), SeriesRequest{TvdbID: 1, Title: "x", TitleSlug: "x"})
	assert.JSONEq(t, `{"success":false,"error_code":"already_exists","message":"This series is already in Sonarr"}`,
		rendered(t, FamilyRequest, res))
}

func TestRequestSeriesMonitorsLibrarySeasons(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v3/series/12": reply(http.StatusOK, `{"id": 12, "monitored": false, "seasons": [
			{"seasonNumber": 1, "monitored": false},
			{"seasonNumber": 2, "monitored": false},
			{"seasonNumber": 3, "monitored": false}
		]}`),
		"PUT /api/v3/series/12": reply(http.StatusAccepted, `{"id": 12}`),
		"POST /api/v3/command":  reply(http.StatusCreated, `{}`),
	})
	d := newDispatcher(t, models.Settings{models.KindSonarr: b.settings(models.KindSonarr)})

	on := true
	off := false
	res := d.RequestSeries(context.Background(), SeriesRequest{
		TvdbID:  1,
		ArrID:   12,
		Seasons: []types.Season{{SeasonNumber: 1}, {SeasonNumber: 2, Monitored: &on}, {SeasonNumber: 3, Monitored: &off}},
	})
	assert.Equal(t, Accepted{}, res)

	_, added := b.find(http.MethodPost, "/api/v3/series")
	assert.False(t, added)

	var commands []types.CommandRequest
	for _, c := range b.recorded() {
		if c.Method == http.MethodPost && c.Path == "/api/v3/command" {
			var cmd types.CommandRequest
			require.NoError(t, json.Unmarshal([]byte(c.Body), &cmd))
			commands = append(commands, cmd)
		}
	}
	assert.Equal(t, []types.CommandRequest{{Name: "SeasonSearch", SeriesID: 12, SeasonNumber: 2}}, commands)
}

func TestRequestArtistAndAlbum(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"POST /api/v1/artist":      reply(http.StatusCreated, `{"id": 5}`),
		"GET /api/v1/album/lookup": reply(http.StatusOK, `[{"title": "OK Computer", "foreignAlbumId": "ok"}, {"title": "Kid A", "foreignAlbumId": "kida"}]`),
	})
	d := newDispatcher(t, models.Settings{models.KindLidarr: b.settings(models.KindLidarr)})

	res := d.RequestArtist(context.Background(), ArtistRequest{ForeignArtistID: "radiohead", Title: "Radiohead"})
	assert.Equal(t, Accepted{}, res)

	res = d.RequestAlbum(context.Background(), ArtistRequest{ForeignArtistID: "radiohead", ForeignAlbumID: "kida", Title: "Radiohead"})
	assert.Equal(t, Accepted{}, res)

	var posts []types.AddArtistRequest
	for _, c := range b.recorded() {
		if c.Method == http.MethodPost {
			var p types.AddArtistRequest
			require.NoError(t, json.Unmarshal([]byte(c.Body), &p))
			posts = append(posts, p)
		}
	}
	require.Len(t, posts, 2)
	assert.Equal(t, 2, posts[0].MetadataProfileID)
	assert.Equal(t, "all", posts[0].AddOptions.Monitor)
	assert.Equal(t, "none", posts[1].AddOptions.Monitor)
	assert.Equal(t, []types.AlbumMonitor{
		{ForeignAlbumID: "ok", Monitored: false},
		{ForeignAlbumID: "kida", Monitored: true},
	}, posts[1].Albums)
}

func TestSeriesSeasons(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v3/series/3": reply(http.StatusOK, `{"id": 3, "seasons": [{"seasonNumber": 0}, {"seasonNumber": 1}]}`),
		"GET /api/v3/series/4": reply(http.StatusServiceUnavailable, ""),
	})
	d := newDispatcher(t, models.Settings{models.KindSonarr: b.settings(models.KindSonarr)})

	res := d.SeriesSeasons(context.Background(), 3)
	list, ok := res.(SeasonList)
	require.True(t, ok)
	assert.Len(t, list.Seasons, 2)

	res = d.SeriesSeasons(context.Background(), 4)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered(t, FamilySeasons, res)), &out))
	assert.Equal(t, []any{}, out["seasons"])
	assert.Contains(t, out["error"], "sonarr returned HTTP 503")
}

func TestArtistAlbums(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v1/album": reply(http.StatusOK, `[{"id": 1, "title": "Pablo Honey", "foreignAlbumId": "ph", "monitored": true, "statistics": {"trackFileCount": 12, "totalTrackCount": 12}}]`),
	})
	d := newDispatcher(t, models.Settings{models.KindLidarr: b.settings(models.KindLidarr)})

	res := d.ArtistAlbums(context.Background(), "radiohead", 5)
	list, ok := res.(AlbumList)
	require.True(t, ok, "got %T", res)
	require.Len(t, list.Albums, 1)
	assert.True(t, list.Albums[0].InLibrary)

	res = newDispatcher(t, models.Settings{models.KindRadarr: b.settings(models.KindRadarr)}).ArtistAlbums(context.Background(), "x", 0)
	assert.JSONEq(t, `{"albums":[],"error":"Lidarr is not configured"}`, rendered(t, FamilyAlbums, res))
}

func TestQueue(t *testing.T) {
	radarr := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v3/queue": reply(http.StatusOK, `{"page": 1, "records": [
			{"id": 1, "title": "release.name", "status": "downloading", "size": 1000, "sizeleft": 250, "timeleft": "00:10:00", "movieId": 3, "movie": {"id": 3, "title": "Heat"}}
		]}`),
	})
	sonarr := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v3/queue": reply(http.StatusInternalServerError, ""),
	})

	d := newDispatcher(t, models.Settings{
		models.KindRadarr: radarr.settings(models.KindRadarr),
		models.KindSonarr: sonarr.settings(models.KindSonarr),
	})

	res := d.Queue(context.Background(), "")
	items, ok := res.(QueueItems)
	require.True(t, ok)
	require.Len(t, items.Items, 1)
	assert.Equal(t, "Heat", items.Items[0].Title)
	assert.Equal(t, "radarr", items.Items[0].Service)
	assert.Equal(t, 75.0, items.Items[0].Progress)

	res = d.Queue(context.Background(), models.KindSonarr)
	assert.JSONEq(t, `{"items":[]}`, rendered(t, FamilyQueue, res))

	res = d.Queue(context.Background(), models.KindLidarr)
	assert.JSONEq(t, `{"items":[]}`, rendered(t, FamilyQueue, res))

	res = New(nil).Queue(context.Background(), "")
	assert.JSONEq(t, `{"items":[]}`, rendered(t, FamilyQueue, res))
}

func TestGetData(t *testing.T) {
	b := newBackend(t, map[string]http.HandlerFunc{
		"GET /api/v3/movie": reply(http.StatusOK, `[{"id":1},{"id":2}]`),
	})
	c, err := coordinator.New(models.Settings{models.KindRadarr: b.settings(models.KindRadarr)}, coordinator.Options{})
	require.NoError(t, err)
	_, err = c.Poll(context.Background())
	require.NoError(t, err)

	out := rendered(t, FamilyData, New(c).GetData())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, float64(2), decoded["radarr_movies"])
	assert.Equal(t, true, decoded["last_update_success"])
	assert.Equal(t, map[string]any{}, decoded["errors"])
}
