// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure classes. Match them with errors.Is.
var (
	// ErrCannotConnect means the backend was never reached or did not answer
	// before the request timeout.
	ErrCannotConnect = errors.New("cannot connect")
	// ErrInvalidAuth means the backend answered 401 or 403.
	ErrInvalidAuth = errors.New("invalid auth")
	// ErrServer means the backend answered any other status >= 400.
	ErrServer = errors.New("server error")

	ErrNotSupported = errors.New("operation not supported by this service")
)

// ErrArr is the error returned by every Client operation.
type ErrArr struct {
	Service  string // Service name (e.g., "radarr", "sonarr")
	Op       string // Operation that failed
	Err      error  // Underlying error
	HttpCode int    // HTTP status code if applicable
	Reason   string // HTTP reason phrase
	Body     string // Response body of a server failure

	class error
}

func (e *ErrArr) Error() string {
	switch e.class {
	case ErrCannotConnect:
		if errors.Is(e.Err, context.DeadlineExceeded) || isTimeout(e.Err) {
			return fmt.Sprintf("Request to %s timed out", e.Service)
		}
		return fmt.Sprintf("Connection error to %s: %v", e.Service, e.Err)
	case ErrInvalidAuth:
		return fmt.Sprintf("Authentication failed for %s (HTTP %d)", e.Service, e.HttpCode)
	case ErrServer:
		return fmt.Sprintf("%s returned HTTP %d: %s. %s", e.Service, e.HttpCode, e.Reason, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Service, e.Op)
}

func (e *ErrArr) Unwrap() error {
	return e.Err
}

// Is matches the failure class sentinels.
func (e *ErrArr) Is(target error) bool {
	return e.class != nil && target == e.class
}

// IsClientFailure reports whether err is one of the three transport-level
// failure classes.
func IsClientFailure(err error) bool {
	return errors.Is(err, ErrCannotConnect) || errors.Is(err, ErrInvalidAuth) || errors.Is(err, ErrServer)
}

// IsAlreadyExists reports whether err is a server failure saying the item was
// already added. Arr backends answer a duplicate add with HTTP 400 and a
// validation message, so this relies on the upstream wording.
func IsAlreadyExists(err error) bool {
	var arrErr *ErrArr
	if !errors.As(err, &arrErr) || arrErr.class != ErrServer {
		return false
	}
	text := arrErr.Error()
	return strings.Contains(text, "400") && strings.Contains(strings.ToLower(text), "already been added")
}

type timeout interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}

// IsTransient reports whether err is a connection failure worth retrying.
// Timeouts are excluded since a retry would wait out the timeout again.
func IsTransient(err error) bool {
	if !errors.Is(err, ErrCannotConnect) {
		return false
	}
	return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) && !isTimeout(err)
}
