// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/coordinator"
)

const testAPIKey = "handlers-key"

func init() {
	gin.SetMode(gin.TestMode)
}

// newArr starts a fake arr backend answering routes keyed "METHOD /path".
// Requests without the test API key get a 401.
func newArr(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCoordinator(t *testing.T, settings models.Settings) *coordinator.Coordinator {
	t.Helper()
	c, err := coordinator.New(settings, coordinator.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
