// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/requestarr/internal/config"
	"github.com/autobrr/requestarr/internal/database"
)

const defaultConfigPath = "config.toml"

// RootCommand builds the requestarr command tree. Without a subcommand the
// server is started.
func RootCommand() *cobra.Command {
	var configPath string

	command := &cobra.Command{
		Use:   "requestarr",
		Short: "Search and request media from Radarr, Sonarr and Lidarr",
		Long: `requestarr polls Radarr, Sonarr and Lidarr for library counts and
serves search, request and queue commands over a websocket.`,
		Example: `  requestarr
  requestarr serve --config /config/config.toml
  requestarr service add radarr http://localhost:7878 <API-KEY>`,
		SilenceUsage: true,
	}

	command.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	serve := ServeCommand(&configPath)
	command.RunE = serve.RunE

	command.AddCommand(serve)
	command.AddCommand(ServiceCommand(&configPath))
	command.AddCommand(ConfigCommand(&configPath))
	command.AddCommand(StatusCommand(&configPath))
	command.AddCommand(VersionCommand())

	return command
}

// loadConfig reads the config file, or the environment when the
// environment carries the configuration. A missing file yields defaults.
func loadConfig(path string) (*config.Config, error) {
	if config.HasEnvConfig() {
		return config.LoadFromEnv()
	}

	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	log.Debug().Str("path", path).Msg("Config file not found, using defaults")
	return config.LoadFromEnv()
}

func openDatabase(configPath string) (*config.Config, *database.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, db, nil
}
