// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is satisfied by the settings database.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	source StatusSource
	events *EventsHandler
}

func NewHealthHandler(db Pinger, source StatusSource, events *EventsHandler) *HealthHandler {
	return &HealthHandler{
		db:     db,
		source: source,
		events: events,
	}
}

// CheckHealth reports whether the process can serve requests. Backend
// failures do not make it unhealthy; they show up in /api/status.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	body := gin.H{
		"status":   "ok",
		"database": "ok",
	}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			log.Error().Err(err).Msg("Database health check failed")
			body["status"] = "unhealthy"
			body["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.source != nil {
		body["coordinator"] = h.source.State()
		body["last_update_success"] = h.source.LastUpdateSuccess()
	}
	if h.events != nil {
		body["sse_clients"] = h.events.Clients()
	}

	c.JSON(status, body)
}
