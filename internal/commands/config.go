// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autobrr/requestarr/internal/database"
	"github.com/autobrr/requestarr/internal/dispatch"
	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/discovery"
)

func ConfigCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "config",
		Short: "Import, export and discover service configuration",
		Example: `  requestarr config import services.yaml
  requestarr config export --mask-secrets
  requestarr config discover --docker`,
		SilenceUsage: true,
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Usage()
	}

	command.AddCommand(ConfigImportCommand(configPath))
	command.AddCommand(ConfigExportCommand(configPath))
	command.AddCommand(ConfigDiscoverCommand(configPath))

	return command
}

func ConfigImportCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "import <file>",
		Short: "Import services from a YAML or JSON file",
		Example: `  requestarr config import services.yaml
  requestarr config import services.json --yes`,
		Args: cobra.ExactArgs(1),
	}

	var opts importOptions
	opts.bind(command)

	command.RunE = func(cmd *cobra.Command, args []string) error {
		settings, err := discovery.ImportConfig(args[0])
		if err != nil {
			return fmt.Errorf("failed to import config: %w", err)
		}

		cfg, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		opts.timeout = cfg.RequestTimeout()
		return handleDiscoveredServices(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), db, settings, opts)
	}

	return command
}

func ConfigExportCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "export",
		Short: "Export stored services to a YAML or JSON file",
		Example: `  requestarr config export
  requestarr config export --format json --output services.json --mask-secrets`,
		Args: cobra.NoArgs,
	}

	var (
		format      = ""
		outputPath  = ""
		maskSecrets = false
	)

	command.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml or json)")
	command.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path")
	command.Flags().BoolVarP(&maskSecrets, "mask-secrets", "m", false, "Mask API keys")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		if format == "" {
			format = "yaml"
		}
		if outputPath == "" {
			outputPath = fmt.Sprintf("requestarr-services.%s", format)
		}

		switch format {
		case "yaml", "yml", "json":
			if filepath.Ext(outputPath) == "" {
				outputPath += "." + format
			}
		default:
			return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
		}

		_, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		settings, err := db.LoadSettings(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to retrieve services: %w", err)
		}

		if err := discovery.ExportConfig(settings, outputPath, maskSecrets); err != nil {
			return fmt.Errorf("failed to export config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration exported to %s\n", outputPath)
		if maskSecrets {
			fmt.Fprintln(out, "API keys have been masked. Use environment variables to provide the actual keys.")
		}
		return nil
	}

	return command
}

func ConfigDiscoverCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "discover",
		Short: "Discover services from Docker or Kubernetes labels",
		Long: `Discover services labelled with com.requestarr.service.type, .url and
.apikey on Docker containers or Kubernetes services.`,
		Example: `  requestarr config discover
  requestarr config discover --k8s --yes`,
		Args: cobra.NoArgs,
	}

	var (
		useDocker = false
		useK8s    = false
		opts      importOptions
	)

	command.Flags().BoolVarP(&useDocker, "docker", "d", false, "Use Docker discovery")
	command.Flags().BoolVarP(&useK8s, "k8s", "k", false, "Use Kubernetes discovery")
	opts.bind(command)

	command.RunE = func(cmd *cobra.Command, args []string) error {
		// If no specific platform is selected, try both
		if !useDocker && !useK8s {
			useDocker = true
			useK8s = true
		}

		manager, err := discovery.NewManager(useDocker, useK8s)
		if err != nil {
			return fmt.Errorf("failed to initialize service discovery: %w", err)
		}
		defer manager.Close()

		settings, err := manager.DiscoverAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("service discovery failed: %w", err)
		}

		cfg, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		opts.timeout = cfg.RequestTimeout()
		return handleDiscoveredServices(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), db, settings, opts)
	}

	return command
}

type importOptions struct {
	yes       bool
	overwrite bool
	timeout   time.Duration
}

func (o *importOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "Add services without asking")
	cmd.Flags().BoolVar(&o.overwrite, "overwrite", false, "Replace services that are already configured")
}

// handleDiscoveredServices shows what was found, asks for confirmation and
// stores every service. Services that fail validation are stored without
// profile lists so they can be fixed later with "service refresh".
func handleDiscoveredServices(ctx context.Context, in io.Reader, out io.Writer, db *database.DB, settings models.Settings, opts importOptions) error {
	if len(settings) == 0 {
		fmt.Fprintln(out, "No services discovered.")
		return nil
	}

	fmt.Fprintf(out, "Discovered %d services:\n\n", len(settings))
	for _, kind := range models.Kinds {
		if svc, ok := settings[kind]; ok {
			fmt.Fprintf(out, "  - %s (URL: %s)\n", kind.Title(), svc.URL)
		}
	}
	fmt.Fprintln(out)

	if !opts.yes {
		fmt.Fprint(out, "Would you like to add these services? [y/N] ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(response)) != "y" {
			fmt.Fprintln(out, "Operation cancelled.")
			return nil
		}
	}

	for _, kind := range models.Kinds {
		svc, ok := settings[kind]
		if !ok {
			continue
		}

		if err := discovery.ValidateService(svc); err != nil {
			fmt.Fprintf(out, "Skipping %s: %v\n", kind, err)
			continue
		}

		existing, err := db.GetArrService(ctx, kind)
		if err != nil {
			fmt.Fprintf(out, "Warning: Failed to check for existing %s: %v\n", kind, err)
			continue
		}
		if existing != nil && !opts.overwrite {
			fmt.Fprintf(out, "Skipping %s: already configured (use --overwrite to replace)\n", kind)
			continue
		}

		if res, err := dispatch.ValidateAndFetch(ctx, svc, opts.timeout); err != nil {
			fmt.Fprintf(out, "Warning: %s could not be validated: %v\n", kind, err)
		} else {
			res.Apply(&svc)
		}

		if err := db.SaveArrService(ctx, &svc); err != nil {
			fmt.Fprintf(out, "Warning: Failed to add %s: %v\n", kind, err)
			continue
		}
		fmt.Fprintf(out, "Added service: %s (%s)\n", kind.Title(), svc.URL)
	}

	return nil
}
