// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/coordinator"
	"github.com/autobrr/requestarr/internal/types"
)

// Soft error codes. They travel inside a successful reply.
const (
	CodeInvalidQuery         = "invalid_query"
	CodeNotConfigured        = "not_configured"
	CodeServiceNotConfigured = "service_not_configured"
	CodeServiceUnavailable   = "service_unavailable"
	CodeAlreadyExists        = "already_exists"
)

// Result is what every command handler returns: one of the success variants
// or one of the soft errors.
type Result interface {
	isResult()
}

// SoftError is a Result that reports a failure to the caller without failing
// the command itself.
type SoftError interface {
	Result
	Code() string
}

type (
	SearchResults struct{ Results []any }
	Accepted      struct{}
	SeasonList    struct{ Seasons []types.Season }
	AlbumList     struct{ Albums []types.AlbumSummary }
	QueueItems    struct{ Items []types.QueueItem }
	Data          struct {
		Snapshot          *coordinator.Snapshot
		LastUpdateSuccess bool
	}
)

type (
	InvalidQuery  struct{}
	NotConfigured struct{}

	// ServiceNotConfigured names the missing backend. Reason replaces the
	// default message when the backend exists but lacks a required setting.
	ServiceNotConfigured struct {
		Kind   models.Kind
		Reason string
	}

	ServiceUnavailable struct {
		Kind models.Kind
		Err  error
	}

	AlreadyExists struct{ Kind models.Kind }
)

func (SearchResults) isResult()        {}
func (Accepted) isResult()             {}
func (SeasonList) isResult()           {}
func (AlbumList) isResult()            {}
func (QueueItems) isResult()           {}
func (Data) isResult()                 {}
func (InvalidQuery) isResult()         {}
func (NotConfigured) isResult()        {}
func (ServiceNotConfigured) isResult() {}
func (ServiceUnavailable) isResult()   {}
func (AlreadyExists) isResult()        {}

func (InvalidQuery) Code() string         { return CodeInvalidQuery }
func (NotConfigured) Code() string        { return CodeNotConfigured }
func (ServiceNotConfigured) Code() string { return CodeServiceNotConfigured }
func (ServiceUnavailable) Code() string   { return CodeServiceUnavailable }
func (AlreadyExists) Code() string        { return CodeAlreadyExists }

// Family selects how a Result is rendered on the wire. Commands of one
// family share a reply shape.
type Family int

const (
	FamilySearch Family = iota
	FamilyRequest
	FamilySeasons
	FamilyAlbums
	FamilyQueue
	FamilyData
)

// libraryNoun is what a backend stores, as used in already-exists messages.
var libraryNoun = map[models.Kind]string{
	models.KindRadarr: "movie",
	models.KindSonarr: "series",
	models.KindLidarr: "artist",
}

// Message returns the human readable text of a soft error as shown for the
// given family.
func Message(family Family, r SoftError) string {
	switch e := r.(type) {
	case InvalidQuery:
		return "Search query cannot be empty"
	case NotConfigured:
		return "Requestarr not configured"
	case ServiceNotConfigured:
		if e.Reason != "" {
			return e.Reason
		}
		if family == FamilySearch {
			return fmt.Sprintf("%s is not configured in Requestarr", e.Kind.Title())
		}
		return fmt.Sprintf("%s is not configured", e.Kind.Title())
	case ServiceUnavailable:
		if family == FamilySearch {
			return fmt.Sprintf("%s is unavailable: %v", e.Kind.Title(), e.Err)
		}
		return errorText(e.Err)
	case AlreadyExists:
		return fmt.Sprintf("This %s is already in %s", libraryNoun[e.Kind], e.Kind.Title())
	}
	return r.Code()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Render turns a Result into the reply payload of its command family.
func Render(family Family, r Result) any {
	if soft, ok := r.(SoftError); ok {
		return renderSoft(family, soft)
	}

	switch v := r.(type) {
	case SearchResults:
		return object{"results": nonNil(v.Results)}
	case Accepted:
		return object{"success": true}
	case SeasonList:
		return object{"seasons": nonNil(v.Seasons)}
	case AlbumList:
		return object{"albums": nonNil(v.Albums)}
	case QueueItems:
		return object{"items": nonNil(v.Items)}
	case Data:
		return renderData(v)
	}
	return object{}
}

func renderSoft(family Family, r SoftError) any {
	msg := Message(family, r)

	switch family {
	case FamilySearch:
		return object{"error": r.Code(), "message": msg, "results": []any{}}
	case FamilySeasons:
		return object{"seasons": []types.Season{}, "error": msg}
	case FamilyAlbums:
		return object{"albums": []types.AlbumSummary{}, "error": msg}
	case FamilyQueue:
		return object{"items": []types.QueueItem{}}
	default:
		return object{"success": false, "error_code": r.Code(), "message": msg}
	}
}

// renderData flattens the snapshot and adds the connectivity flag.
func renderData(d Data) any {
	out := object{}
	if d.Snapshot != nil {
		raw, err := json.Marshal(d.Snapshot)
		if err == nil {
			_ = json.Unmarshal(raw, &out)
		}
	}
	out["last_update_success"] = d.LastUpdateSuccess
	return out
}

// object is a JSON reply object.
type object = map[string]any

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
