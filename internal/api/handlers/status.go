// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/coordinator"
)

// StatusSource is the coordinator as seen by the status endpoints.
type StatusSource interface {
	Snapshot() *coordinator.Snapshot
	LastUpdateSuccess() bool
	State() coordinator.State
	Configured() []models.Kind
	Refresh(ctx context.Context) (*coordinator.Snapshot, error)
}

// StatusPayload is served by /api/status and pushed over SSE.
type StatusPayload struct {
	State             coordinator.State     `json:"state"`
	LastUpdateSuccess bool                  `json:"last_update_success"`
	Degraded          bool                  `json:"degraded"`
	Configured        []models.Kind         `json:"configured"`
	Data              *coordinator.Snapshot `json:"data"`
}

func newStatusPayload(source StatusSource, snap *coordinator.Snapshot) StatusPayload {
	if snap == nil {
		snap = source.Snapshot()
	}
	configured := source.Configured()
	if configured == nil {
		configured = []models.Kind{}
	}
	return StatusPayload{
		State:             source.State(),
		LastUpdateSuccess: source.LastUpdateSuccess(),
		Degraded:          snap.Degraded(),
		Configured:        configured,
		Data:              snap,
	}
}

type StatusHandler struct {
	source StatusSource
}

func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

func (h *StatusHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, newStatusPayload(h.source, nil))
}

// Refresh runs a poll cycle and returns its snapshot. A cycle where every
// backend failed still returns the snapshot, with a 502 so callers notice.
func (h *StatusHandler) Refresh(c *gin.Context) {
	snap, err := h.source.Refresh(c.Request.Context())
	if err != nil && !errors.Is(err, coordinator.ErrAllFailed) {
		log.Error().Err(err).Msg("Refresh failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	c.JSON(status, newStatusPayload(h.source, snap))
}
