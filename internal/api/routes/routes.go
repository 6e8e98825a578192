// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autobrr/requestarr/internal/api/handlers"
	"github.com/autobrr/requestarr/internal/api/middleware"
	"github.com/autobrr/requestarr/internal/config"
	"github.com/autobrr/requestarr/internal/dispatch"
	"github.com/autobrr/requestarr/internal/services/cache"
	"github.com/autobrr/requestarr/internal/services/coordinator"
)

// Deps are the long-lived components the routes are served from.
type Deps struct {
	Config      *config.Config
	Store       handlers.SettingsStore
	DB          handlers.Pinger
	Cache       cache.Store
	Coordinator *coordinator.Coordinator
}

// SetupRoutes configures all the routes for the application. The returned
// events handler must be closed on shutdown to end open SSE streams.
func SetupRoutes(r *gin.Engine, deps Deps) *handlers.EventsHandler {
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.SetupCORS())
	r.Use(middleware.Secure(nil))

	apiRateLimiter := middleware.NewRateLimiter(deps.Cache, time.Minute, 60, "api:")           // 60 requests per minute for API
	refreshRateLimiter := middleware.NewRateLimiter(deps.Cache, time.Minute, 6, "refresh:")    // 6 manual polls per minute
	servicesRateLimiter := middleware.NewRateLimiter(deps.Cache, time.Minute, 20, "services:") // settings writes hit the backends

	dispatcher := dispatch.New(deps.Coordinator)

	statusHandler := handlers.NewStatusHandler(deps.Coordinator)
	eventsHandler := handlers.NewEventsHandler(deps.Coordinator)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Coordinator, eventsHandler)
	servicesHandler := handlers.NewServicesHandler(deps.Store, deps.Coordinator, deps.Config.RequestTimeout())
	websocketHandler := handlers.NewWebsocketHandler(dispatcher, deps.Config.Websocket)

	deps.Coordinator.Subscribe(eventsHandler.Broadcast)

	r.GET("/health", healthHandler.CheckHealth)

	api := r.Group("/api")
	{
		api.GET("/health", healthHandler.CheckHealth)

		// Long-lived connections are not rate limited per request; the
		// websocket limits commands per connection instead.
		api.GET("/events", eventsHandler.StreamStatus)
		api.GET("/websocket", websocketHandler.Serve)

		limited := api.Group("")
		limited.Use(apiRateLimiter.RateLimit())
		{
			limited.GET("/status", statusHandler.GetStatus)
			limited.POST("/refresh", refreshRateLimiter.RateLimit(), statusHandler.Refresh)
		}

		services := api.Group("/services")
		services.Use(servicesRateLimiter.RateLimit())
		{
			services.GET("", servicesHandler.ListServices)
			services.GET("/:kind", servicesHandler.GetService)
			services.PUT("/:kind", servicesHandler.SaveService)
			services.DELETE("/:kind", servicesHandler.DeleteService)
			services.POST("/:kind/refresh", servicesHandler.RefreshOptions)
		}
	}

	return eventsHandler
}
