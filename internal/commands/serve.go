// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/requestarr/internal/api/routes"
	"github.com/autobrr/requestarr/internal/buildinfo"
	"github.com/autobrr/requestarr/internal/services/cache"
	"github.com/autobrr/requestarr/internal/services/coordinator"
	"github.com/autobrr/requestarr/internal/services/publisher"
)

const shutdownTimeout = 10 * time.Second

func ServeCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the library poller",
		Example: `  requestarr serve
  requestarr serve --listen :9090`,
		Args: cobra.NoArgs,
	}

	var listenAddr string
	command.Flags().StringVar(&listenAddr, "listen", "", "address to listen on (overrides config)")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		log.Info().
			Str("version", buildinfo.Version).
			Str("commit", buildinfo.Commit).
			Str("build_date", buildinfo.Date).
			Msg("Starting requestarr")

		cfg, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if listenAddr != "" {
			cfg.Server.ListenAddr = listenAddr
		}

		store, err := cache.InitCache(cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Debug().Err(err).Msg("Cache cleanup completed")
			}
		}()

		settings, err := db.LoadSettings(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load services: %w", err)
		}

		coord, err := coordinator.New(settings, coordinator.Options{
			Interval: cfg.PollInterval(),
			Timeout:  cfg.RequestTimeout(),
			Cache:    store,
		})
		if err != nil {
			return fmt.Errorf("failed to build coordinator: %w", err)
		}

		if cfg.MQTT.Broker != "" {
			pub, err := publisher.New(cfg.MQTT, coord)
			if err != nil {
				log.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT publishing disabled")
			} else {
				defer pub.Close()
				coord.Subscribe(pub.Publish)
			}
		}

		if os.Getenv("GIN_MODE") == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}

		r := gin.New()
		if gin.Mode() == gin.DebugMode {
			err = r.SetTrustedProxies(nil)
		} else {
			err = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to set trusted proxies")
		}

		events := routes.SetupRoutes(r, routes.Deps{
			Config:      cfg,
			Store:       db,
			DB:          db,
			Cache:       store,
			Coordinator: coord,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		coord.Start(ctx)
		defer coord.Stop()

		// No write timeout: SSE streams and websockets stay open.
		srv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           r,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().
				Str("address", cfg.Server.ListenAddr).
				Str("mode", gin.Mode()).
				Str("database", db.Driver()).
				Int("services", len(coord.Configured())).
				Msg("Starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down server...")
		events.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		log.Info().Msg("Server exiting")
		return nil
	}

	return command
}
