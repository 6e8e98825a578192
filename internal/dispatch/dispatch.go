// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dispatch implements the request commands of the websocket API on top
// of the coordinator's arr clients. Handlers never fail on backend errors:
// every failure becomes a soft error Result.
package dispatch

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/arr"
	"github.com/autobrr/requestarr/internal/services/coordinator"
	"github.com/autobrr/requestarr/internal/services/normalize"
	"github.com/autobrr/requestarr/internal/types"
)

// MaxSearchResults caps every search reply.
const MaxSearchResults = 20

// Source provides the clients and settings commands run against. It is
// implemented by *coordinator.Coordinator.
type Source interface {
	Client(kind models.Kind) (*arr.Client, bool)
	Configured() []models.Kind
	Settings() models.Settings
	Snapshot() *coordinator.Snapshot
	LastUpdateSuccess() bool
}

type Dispatcher struct {
	source Source
}

func New(source Source) *Dispatcher {
	return &Dispatcher{source: source}
}

// resolve returns the client of kind, or the soft error explaining why there
// is none.
func (d *Dispatcher) resolve(kind models.Kind) (*arr.Client, models.ServiceSettings, Result) {
	if d.source == nil || len(d.source.Configured()) == 0 {
		return nil, models.ServiceSettings{}, NotConfigured{}
	}
	client, ok := d.source.Client(kind)
	if !ok {
		return nil, models.ServiceSettings{}, ServiceNotConfigured{Kind: kind}
	}
	settings := d.source.Settings().Get(kind)
	settings.Kind = kind
	return client, settings, nil
}

// GetData returns the latest snapshot with the connectivity flag.
func (d *Dispatcher) GetData() Result {
	if d.source == nil {
		return Data{}
	}
	return Data{Snapshot: d.source.Snapshot(), LastUpdateSuccess: d.source.LastUpdateSuccess()}
}

func (d *Dispatcher) SearchMovies(ctx context.Context, query string) Result {
	return search(ctx, d, models.KindRadarr, query, (*arr.Client).SearchMovies, normalize.Movie)
}

func (d *Dispatcher) SearchMusic(ctx context.Context, query string) Result {
	return search(ctx, d, models.KindLidarr, query, (*arr.Client).SearchArtists, normalize.Artist)
}

// SearchTV searches Sonarr. Results already in the library get their
// seasons replaced by the library's, which carry real episode statistics.
// Enrichment failures keep the lookup seasons.
func (d *Dispatcher) SearchTV(ctx context.Context, query string) Result {
	res := search(ctx, d, models.KindSonarr, query, (*arr.Client).SearchSeries, normalize.Series)
	found, ok := res.(SearchResults)
	if !ok {
		return res
	}

	client, _ := d.source.Client(models.KindSonarr)
	for i, item := range found.Results {
		series := item.(types.SeriesResult)
		if series.ArrID == nil {
			continue
		}
		seasons, err := client.SeriesSeasons(ctx, *series.ArrID)
		if err != nil {
			log.Debug().Err(err).Int("arr_id", *series.ArrID).Msg("Keeping lookup seasons")
			continue
		}
		if len(seasons) > 0 {
			series.Seasons = seasons
			found.Results[i] = series
		}
	}
	return found
}

func search[T, R any](
	ctx context.Context,
	d *Dispatcher,
	kind models.Kind,
	query string,
	lookup func(*arr.Client, context.Context, string) ([]T, error),
	norm func(T, models.ServiceSettings) R,
) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return InvalidQuery{}
	}

	client, settings, soft := d.resolve(kind)
	if soft != nil {
		return soft
	}

	items, err := lookup(client, ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("service", kind.String()).Msg("Search failed")
		return ServiceUnavailable{Kind: kind, Err: err}
	}

	if len(items) > MaxSearchResults {
		items = items[:MaxSearchResults]
	}

	results := make([]any, 0, len(items))
	for _, item := range items {
		results = append(results, norm(item, settings))
	}
	return SearchResults{Results: results}
}

// MovieRequest is the request_movie command.
type MovieRequest struct {
	TmdbID    int
	Title     string
	TitleSlug string
}

func (d *Dispatcher) RequestMovie(ctx context.Context, req MovieRequest) Result {
	client, settings, soft := d.resolve(models.KindRadarr)
	if soft != nil {
		return soft
	}

	profileID, soft := requireProfile(settings, settings.QualityProfileID, "quality")
	if soft != nil {
		return soft
	}

	_, err := client.AddMovie(ctx, arr.MovieRequest{
		TmdbID:           req.TmdbID,
		Title:            req.Title,
		TitleSlug:        req.TitleSlug,
		QualityProfileID: profileID,
		RootFolderPath:   settings.RootFolder,
	})
	return addOutcome(models.KindRadarr, "Movie request failed", err)
}

// SeriesRequest is the request_series command. ArrID set means the series
// is already in the library and only the selected seasons are monitored.
type SeriesRequest struct {
	TvdbID    int
	Title     string
	TitleSlug string
	Seasons   []types.Season
	ArrID     int
}

func (d *Dispatcher) RequestSeries(ctx context.Context, req SeriesRequest) Result {
	client, settings, soft := d.resolve(models.KindSonarr)
	if soft != nil {
		return soft
	}

	if req.ArrID > 0 {
		numbers := make([]int, 0, len(req.Seasons))
		for _, s := range req.Seasons {
			if s.IsMonitored(false) {
				numbers = append(numbers, s.SeasonNumber)
			}
		}
		_, err := client.MonitorSeasons(ctx, req.ArrID, numbers)
		return addOutcome(models.KindSonarr, "Series request failed", err)
	}

	profileID, soft := requireProfile(settings, settings.QualityProfileID, "quality")
	if soft != nil {
		return soft
	}

	_, err := client.AddSeries(ctx, arr.SeriesRequest{
		TvdbID:           req.TvdbID,
		Title:            req.Title,
		TitleSlug:        req.TitleSlug,
		QualityProfileID: profileID,
		RootFolderPath:   settings.RootFolder,
		Seasons:          req.Seasons,
	})
	return addOutcome(models.KindSonarr, "Series request failed", err)
}

// ArtistRequest is the request_artist command. ForeignAlbumID is set by
// request_album.
type ArtistRequest struct {
	ForeignArtistID string
	ForeignAlbumID  string
	Title           string
}

func (d *Dispatcher) RequestArtist(ctx context.Context, req ArtistRequest) Result {
	client, payload, soft := d.artistPayload(req)
	if soft != nil {
		return soft
	}
	_, err := client.AddArtist(ctx, payload)
	return addOutcome(models.KindLidarr, "Artist request failed", err)
}

// RequestAlbum adds the artist with only the requested album monitored.
func (d *Dispatcher) RequestAlbum(ctx context.Context, req ArtistRequest) Result {
	client, payload, soft := d.artistPayload(req)
	if soft != nil {
		return soft
	}
	_, err := client.AddAlbum(ctx, payload, req.ForeignAlbumID)
	return addOutcome(models.KindLidarr, "Album request failed", err)
}

func (d *Dispatcher) artistPayload(req ArtistRequest) (*arr.Client, arr.ArtistRequest, Result) {
	client, settings, soft := d.resolve(models.KindLidarr)
	if soft != nil {
		return nil, arr.ArtistRequest{}, soft
	}

	qualityID, soft := requireProfile(settings, settings.QualityProfileID, "quality")
	if soft != nil {
		return nil, arr.ArtistRequest{}, soft
	}
	metadataID, soft := requireProfile(settings, settings.MetadataProfileID, "metadata")
	if soft != nil {
		return nil, arr.ArtistRequest{}, soft
	}

	return client, arr.ArtistRequest{
		ForeignArtistID:   req.ForeignArtistID,
		ArtistName:        req.Title,
		QualityProfileID:  qualityID,
		MetadataProfileID: metadataID,
		RootFolderPath:    settings.RootFolder,
	}, nil
}

// requireProfile converts a stored profile id. Backends reject adds without
// one, so a missing id is reported as incomplete configuration.
func requireProfile(settings models.ServiceSettings, id models.ProfileID, which string) (int, Result) {
	n, err := id.Int()
	if err != nil {
		return 0, ServiceNotConfigured{
			Kind:   settings.Kind,
			Reason: settings.Kind.Title() + " " + which + " profile is not configured",
		}
	}
	return n, nil
}

// addOutcome maps the error of an add operation.
func addOutcome(kind models.Kind, msg string, err error) Result {
	if err == nil {
		return Accepted{}
	}
	if arr.IsAlreadyExists(err) {
		return AlreadyExists{Kind: kind}
	}
	log.Warn().Err(err).Str("service", kind.String()).Msg(msg)
	return ServiceUnavailable{Kind: kind, Err: err}
}

// SeriesSeasons returns the library seasons of a series.
func (d *Dispatcher) SeriesSeasons(ctx context.Context, arrID int) Result {
	client, _, soft := d.resolve(models.KindSonarr)
	if soft != nil {
		return soft
	}

	seasons, err := client.SeriesSeasons(ctx, arrID)
	if err != nil {
		log.Warn().Err(err).Int("arr_id", arrID).Msg("get_series_seasons failed")
		return ServiceUnavailable{Kind: models.KindSonarr, Err: err}
	}
	return SeasonList{Seasons: seasons}
}

// ArtistAlbums lists the albums of an artist, from the library when arrID is
// set and from the lookup endpoint otherwise.
func (d *Dispatcher) ArtistAlbums(ctx context.Context, foreignArtistID string, arrID int) Result {
	client, _, soft := d.resolve(models.KindLidarr)
	if soft != nil {
		return soft
	}

	albums, err := client.ArtistAlbums(ctx, foreignArtistID, arrID)
	if err != nil {
		log.Warn().Err(err).Str("foreign_artist_id", foreignArtistID).Msg("get_artist_albums failed")
		return ServiceUnavailable{Kind: models.KindLidarr, Err: err}
	}
	return AlbumList{Albums: albums}
}

// Queue collects the download queue of every configured backend, or of
// filter alone when it is set. Backends that fail are skipped.
func (d *Dispatcher) Queue(ctx context.Context, filter models.Kind) Result {
	items := []types.QueueItem{}
	if d.source == nil {
		return QueueItems{Items: items}
	}

	kinds := models.Kinds
	if filter != "" {
		kinds = []models.Kind{filter}
	}

	for _, kind := range kinds {
		client, ok := d.source.Client(kind)
		if !ok {
			continue
		}
		records, err := client.Queue(ctx)
		if err != nil {
			log.Debug().Err(err).Str("service", kind.String()).Msg("Skipping queue")
			continue
		}
		for _, record := range records {
			items = append(items, normalize.QueueItem(record, kind))
		}
	}
	return QueueItems{Items: items}
}
