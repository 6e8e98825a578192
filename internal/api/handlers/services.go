// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/dispatch"
	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/arr"
	"github.com/autobrr/requestarr/internal/services/coordinator"
)

const (
	CodeCannotConnect       = "cannot_connect"
	CodeInvalidAuth         = "invalid_auth"
	CodeCannotFetchProfiles = "cannot_fetch_profiles"
	CodeUnknown             = "unknown"
)

// SettingsStore defines the database operations needed by ServicesHandler
type SettingsStore interface {
	ListArrServices(ctx context.Context) ([]models.ServiceSettings, error)
	GetArrService(ctx context.Context, kind models.Kind) (*models.ServiceSettings, error)
	SaveArrService(ctx context.Context, svc *models.ServiceSettings) error
	DeleteArrService(ctx context.Context, kind models.Kind) (bool, error)
	LoadSettings(ctx context.Context) (models.Settings, error)
}

// Reloader applies a new settings revision to the running coordinator.
type Reloader interface {
	Reload(settings models.Settings) error
	Refresh(ctx context.Context) (*coordinator.Snapshot, error)
}

// ServiceRequest is the body of PUT /api/services/:kind. An empty API key
// keeps the stored one, since reads never return it.
type ServiceRequest struct {
	URL               string           `json:"url"`
	APIKey            string           `json:"apiKey"`
	VerifySSL         *bool            `json:"verifySsl"`
	QualityProfileID  models.ProfileID `json:"qualityProfileId"`
	RootFolder        string           `json:"rootFolder"`
	MetadataProfileID models.ProfileID `json:"metadataProfileId"`
}

type ServicesHandler struct {
	store    SettingsStore
	reloader Reloader
	timeout  time.Duration
}

func NewServicesHandler(store SettingsStore, reloader Reloader, timeout time.Duration) *ServicesHandler {
	if timeout <= 0 {
		timeout = arr.DefaultTimeout
	}
	return &ServicesHandler{
		store:    store,
		reloader: reloader,
		timeout:  timeout,
	}
}

func kindParam(c *gin.Context) (models.Kind, bool) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return kind, true
}

// validationCode maps a validate-and-fetch failure to the code shown to the
// user.
func validationCode(err error) string {
	switch {
	case errors.Is(err, arr.ErrCannotConnect):
		return CodeCannotConnect
	case errors.Is(err, arr.ErrInvalidAuth):
		return CodeInvalidAuth
	case errors.Is(err, dispatch.ErrCannotFetchProfiles):
		return CodeCannotFetchProfiles
	default:
		return CodeUnknown
	}
}

func (h *ServicesHandler) ListServices(c *gin.Context) {
	services, err := h.store.ListArrServices(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Error fetching services")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch services"})
		return
	}

	out := make(map[models.Kind]models.ServiceSettings, len(services))
	for _, svc := range services {
		out[svc.Kind] = svc.Redacted()
	}
	c.JSON(http.StatusOK, out)
}

func (h *ServicesHandler) GetService(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	svc, err := h.store.GetArrService(c.Request.Context(), kind)
	if err != nil {
		log.Error().Err(err).Str("service", kind.String()).Msg("Error fetching service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch service"})
		return
	}
	if svc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Service not found"})
		return
	}
	c.JSON(http.StatusOK, svc.Redacted())
}

// SaveService validates the backend, fetches its profiles and folders, and
// stores the result. Nothing is stored when validation fails.
func (h *ServicesHandler) SaveService(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var req ServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	existing, err := h.store.GetArrService(ctx, kind)
	if err != nil {
		log.Error().Err(err).Str("service", kind.String()).Msg("Error checking existing service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing service"})
		return
	}

	svc := models.ServiceSettings{
		Kind:              kind,
		URL:               strings.TrimRight(strings.TrimSpace(req.URL), "/"),
		APIKey:            strings.TrimSpace(req.APIKey),
		VerifySSL:         true,
		QualityProfileID:  req.QualityProfileID,
		RootFolder:        req.RootFolder,
		MetadataProfileID: req.MetadataProfileID,
	}
	if req.VerifySSL != nil {
		svc.VerifySSL = *req.VerifySSL
	}
	if svc.APIKey == "" && existing != nil {
		svc.APIKey = existing.APIKey
	}
	if svc.URL == "" || svc.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url and apiKey are required"})
		return
	}

	res, err := dispatch.ValidateAndFetch(ctx, svc, h.timeout)
	if err != nil {
		log.Warn().Err(err).Str("service", kind.String()).Msg("Service validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": validationCode(err)})
		return
	}
	res.Apply(&svc)

	if err := h.store.SaveArrService(ctx, &svc); err != nil {
		log.Error().Err(err).Str("service", kind.String()).Msg("Error saving service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save service"})
		return
	}

	h.reload(ctx)

	log.Info().Str("service", kind.String()).Str("version", res.Version).Msg("Successfully saved service")
	c.JSON(http.StatusOK, svc.Redacted())
}

// RefreshOptions re-reads the profile and folder lists of a stored backend.
// Stored selections are kept.
func (h *ServicesHandler) RefreshOptions(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	svc, err := h.store.GetArrService(ctx, kind)
	if err != nil {
		log.Error().Err(err).Str("service", kind.String()).Msg("Error fetching service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch service"})
		return
	}
	if svc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Service not found"})
		return
	}

	res, err := dispatch.ValidateAndFetch(ctx, *svc, h.timeout)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": validationCode(err)})
		return
	}
	res.Apply(svc)

	if err := h.store.SaveArrService(ctx, svc); err != nil {
		log.Error().Err(err).Str("service", kind.String()).Msg("Error saving service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save service"})
		return
	}

	h.reload(ctx)
	c.JSON(http.StatusOK, svc.Redacted())
}

func (h *ServicesHandler) DeleteService(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	deleted, err := h.store.DeleteArrService(ctx, kind)
	if err != nil {
		log.Error().Err(err).Str("service", kind.String()).Msg("Error deleting service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete service"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Service not found"})
		return
	}

	h.reload(ctx)

	log.Info().Str("service", kind.String()).Msg("Successfully deleted service")
	c.JSON(http.StatusOK, gin.H{"message": "Service deleted successfully"})
}

// reload rebuilds the coordinator clients from the store and starts a poll
// cycle in the background so the snapshot reflects the change.
func (h *ServicesHandler) reload(ctx context.Context) {
	if h.reloader == nil {
		return
	}

	settings, err := h.store.LoadSettings(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings for reload")
		return
	}
	if err := h.reloader.Reload(settings); err != nil {
		log.Error().Err(err).Msg("Failed to reload services")
		return
	}

	// Every backend request carries its own timeout, so the cycle needs no
	// extra deadline.
	go func() {
		if _, err := h.reloader.Refresh(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Refresh after settings change failed")
		}
	}()
}
