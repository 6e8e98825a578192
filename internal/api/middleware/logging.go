// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

// sensitiveParams are matched case-insensitively as substrings of the query
// parameter name.
var sensitiveParams = []string{
	"apikey",
	"api_key",
	"token",
	"password",
	"secret",
}

// RedactQuery masks the values of sensitive query parameters.
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return redacted
	}

	for param := range values {
		lower := strings.ToLower(param)
		for _, sensitive := range sensitiveParams {
			if strings.Contains(lower, sensitive) {
				values.Set(param, redacted)
				break
			}
		}
	}
	return values.Encode()
}

// Logger returns a gin middleware for logging HTTP requests with zerolog.
// Server errors log at error level, client errors at warn, the rest at debug
// so the websocket and SSE endpoints do not flood the output.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.Request.URL.Path
		if query := RedactQuery(c.Request.URL.RawQuery); query != "" {
			path = path + "?" + query
		}

		status := c.Writer.Status()

		var event *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			event = log.Error().Err(c.Errors.Last())
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Debug()
		}

		event.
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("HTTP Request")
	}
}
