// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

// Command types accepted on the websocket.
const (
	TypeGetData          = "requestarr/get_data"
	TypeSearchMovies     = "requestarr/search_movies"
	TypeSearchTV         = "requestarr/search_tv"
	TypeSearchMusic      = "requestarr/search_music"
	TypeRequestMovie     = "requestarr/request_movie"
	TypeRequestSeries    = "requestarr/request_series"
	TypeRequestArtist    = "requestarr/request_artist"
	TypeRequestAlbum     = "requestarr/request_album"
	TypeGetSeriesSeasons = "requestarr/get_series_seasons"
	TypeGetArtistAlbums  = "requestarr/get_artist_albums"
	TypeGetQueue         = "requestarr/get_queue"
)

// Transport error codes. Unlike soft errors they fail the command.
const (
	ErrCodeUnknownCommand = "unknown_command"
	ErrCodeInvalidFormat  = "invalid_format"
	ErrCodeRateLimited    = "rate_limited"
)

// CommandError is a transport level failure of a command.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return e.Code + ": " + e.Message
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type (
	searchPayload struct {
		Query *string `json:"query" validate:"required"`
	}
	moviePayload struct {
		TmdbID    *int    `json:"tmdb_id" validate:"required"`
		Title     *string `json:"title" validate:"required"`
		TitleSlug *string `json:"title_slug" validate:"required"`
	}
	seriesPayload struct {
		TvdbID    *int           `json:"tvdb_id" validate:"required"`
		Title     *string        `json:"title" validate:"required"`
		TitleSlug *string        `json:"title_slug" validate:"required"`
		Seasons   []types.Season `json:"seasons" validate:"required"`
		ArrID     *int           `json:"arr_id"`
	}
	artistPayload struct {
		ForeignArtistID *string `json:"foreign_artist_id" validate:"required"`
		Title           *string `json:"title" validate:"required"`
	}
	albumPayload struct {
		ForeignArtistID *string `json:"foreign_artist_id" validate:"required"`
		ForeignAlbumID  *string `json:"foreign_album_id" validate:"required"`
		Title           *string `json:"title" validate:"required"`
	}
	seasonsPayload struct {
		ArrID *int `json:"arr_id" validate:"required"`
	}
	albumsPayload struct {
		ForeignArtistID *string `json:"foreign_artist_id" validate:"required"`
		ArrID           *int    `json:"arr_id"`
	}
	queuePayload struct {
		Service *string `json:"service"`
	}
)

type handler func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error)

type command struct {
	family Family
	run    handler
}

var commands = map[string]command{
	TypeGetData: {FamilyData, func(_ context.Context, d *Dispatcher, _ json.RawMessage) (Result, error) {
		return d.GetData(), nil
	}},
	TypeSearchMovies: {FamilySearch, searchWith((*Dispatcher).SearchMovies)},
	TypeSearchTV:     {FamilySearch, searchWith((*Dispatcher).SearchTV)},
	TypeSearchMusic:  {FamilySearch, searchWith((*Dispatcher).SearchMusic)},
	TypeRequestMovie: {FamilyRequest, func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error) {
		p, err := decode[moviePayload](raw)
		if err != nil {
			return nil, err
		}
		return d.RequestMovie(ctx, MovieRequest{TmdbID: *p.TmdbID, Title: *p.Title, TitleSlug: *p.TitleSlug}), nil
	}},
	TypeRequestSeries: {FamilyRequest, func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error) {
		p, err := decode[seriesPayload](raw)
		if err != nil {
			return nil, err
		}
		return d.RequestSeries(ctx, SeriesRequest{
			TvdbID:    *p.TvdbID,
			Title:     *p.Title,
			TitleSlug: *p.TitleSlug,
			Seasons:   p.Seasons,
			ArrID:     intOrZero(p.ArrID),
		}), nil
	}},
	TypeRequestArtist: {FamilyRequest, func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error) {
		p, err := decode[artistPayload](raw)
		if err != nil {
			return nil, err
		}
		return d.RequestArtist(ctx, ArtistRequest{ForeignArtistID: *p.ForeignArtistID, Title: *p.Title}), nil
	}},
	TypeRequestAlbum: {FamilyRequest, func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error) {
		p, err := decode[albumPayload](raw)
		if err != nil {
			return nil, err
		}
		return d.RequestAlbum(ctx, ArtistRequest{
			ForeignArtistID: *p.ForeignArtistID,
			ForeignAlbumID:  *p.ForeignAlbumID,
			Title:           *p.Title,
		}), nil
	}},
	TypeGetSeriesSeasons: {FamilySeasons, func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error) {
		p, err := decode[seasonsPayload](raw)
		if err != nil {
			return nil, err
		}
		return d.SeriesSeasons(ctx, *p.ArrID), nil
	}},
	TypeGetArtistAlbums: {FamilyAlbums, func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error) {
		p, err := decode[albumsPayload](raw)
		if err != nil {
			return nil, err
		}
		return d.ArtistAlbums(ctx, *p.ForeignArtistID, intOrZero(p.ArrID)), nil
	}},
	TypeGetQueue: {FamilyQueue, func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error) {
		p, err := decode[queuePayload](raw)
		if err != nil {
			return nil, err
		}
		var filter models.Kind
		if p.Service != nil {
			filter = models.Kind(strings.ToLower(strings.TrimSpace(*p.Service)))
		}
		return d.Queue(ctx, filter), nil
	}},
}

func searchWith(fn func(*Dispatcher, context.Context, string) Result) handler {
	return func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (Result, error) {
		p, err := decode[searchPayload](raw)
		if err != nil {
			return nil, err
		}
		return fn(d, ctx, *p.Query), nil
	}
}

// decode parses a frame and checks its required fields.
func decode[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &CommandError{Code: ErrCodeInvalidFormat, Message: err.Error()}
	}
	if err := validate.Struct(p); err != nil {
		return p, &CommandError{Code: ErrCodeInvalidFormat, Message: missingFields(err)}
	}
	return p, nil
}

func missingFields(err error) string {
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
	}
	if len(fields) == 0 {
		return err.Error()
	}
	return fmt.Sprintf("required key not provided: %s", strings.Join(fields, ", "))
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Execute runs the command cmdType with the full frame raw and returns the
// rendered reply. A *CommandError is returned for unknown commands and
// malformed frames.
func (d *Dispatcher) Execute(ctx context.Context, cmdType string, raw json.RawMessage) (any, error) {
	cmd, ok := commands[cmdType]
	if !ok {
		return nil, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("Unknown command %q", cmdType)}
	}

	res, err := cmd.run(ctx, d, raw)
	if err != nil {
		return nil, err
	}
	return Render(cmd.family, res), nil
}

// Commands lists the supported command types.
func Commands() []string {
	out := make([]string, 0, len(commands))
	for name := range commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
