// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/autobrr/requestarr/internal/dispatch"
	"github.com/autobrr/requestarr/internal/models"
)

func ServiceCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "service",
		Short: "Manage the Radarr, Sonarr and Lidarr connections",
		Example: `  requestarr service list
  requestarr service add sonarr http://localhost:8989 <API-KEY>`,
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Usage()
	}

	command.AddCommand(ServiceListCommand(configPath))
	command.AddCommand(ServiceAddCommand(configPath))
	command.AddCommand(ServiceRemoveCommand(configPath))
	command.AddCommand(ServiceRefreshCommand(configPath))

	return command
}

func ServiceListCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured services",
		Example: `  requestarr service list
  requestarr service list --json`,
		Args: cobra.NoArgs,
	}

	var outputJSON bool
	command.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		_, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		services, err := db.ListArrServices(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to retrieve services: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			redacted := make([]models.ServiceSettings, 0, len(services))
			for _, svc := range services {
				redacted = append(redacted, svc.Redacted())
			}
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(redacted)
		}

		if len(services) == 0 {
			fmt.Fprintln(out, "No services configured.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tURL\tQUALITY PROFILE\tROOT FOLDER\tMETADATA PROFILE")
		for _, svc := range services {
			metadata := "-"
			if svc.Kind == models.KindLidarr {
				metadata = profileName(svc.MetadataProfileID, svc.MetadataProfiles)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				svc.Kind,
				svc.URL,
				profileName(svc.QualityProfileID, svc.Profiles),
				orDash(svc.RootFolder),
				metadata,
			)
		}
		return w.Flush()
	}

	return command
}

func ServiceAddCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "add <radarr|sonarr|lidarr> <url> <api-key>",
		Short: "Validate and store a service",
		Long: `Validate the connection, fetch quality profiles, root folders and
(for Lidarr) metadata profiles, and store the service. The first profile and
folder are selected unless chosen with flags.`,
		Example: `  requestarr service add radarr http://localhost:7878 <API-KEY>
  requestarr service add lidarr https://lidarr.example.com <API-KEY> --quality-profile 2`,
		Args: cobra.ExactArgs(3),
	}

	var (
		dry             bool
		noVerifySSL     bool
		qualityProfile  string
		metadataProfile string
		rootFolder      string
	)

	command.Flags().BoolVar(&dry, "dry-run", false, "Dry run, don't write changes")
	command.Flags().BoolVar(&noVerifySSL, "no-verify-ssl", false, "Skip TLS certificate verification")
	command.Flags().StringVar(&qualityProfile, "quality-profile", "", "Quality profile id")
	command.Flags().StringVar(&metadataProfile, "metadata-profile", "", "Metadata profile id (lidarr)")
	command.Flags().StringVar(&rootFolder, "root-folder", "", "Root folder path")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}

		serviceURL := strings.TrimRight(strings.TrimSpace(args[1]), "/")
		parsedURL, err := url.Parse(serviceURL)
		if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			return fmt.Errorf("invalid URL %q: expected http(s)://host[:port]", args[1])
		}

		cfg, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := models.ServiceSettings{
			Kind:              kind,
			URL:               serviceURL,
			APIKey:            args[2],
			VerifySSL:         !noVerifySSL,
			QualityProfileID:  models.ProfileID(qualityProfile),
			RootFolder:        rootFolder,
			MetadataProfileID: models.ProfileID(metadataProfile),
		}

		res, err := dispatch.ValidateAndFetch(cmd.Context(), svc, cfg.RequestTimeout())
		if err != nil {
			return fmt.Errorf("failed to validate %s: %w", kind, err)
		}
		res.Apply(&svc)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Connected to %s %s at %s\n", kind.Title(), res.Version, svc.URL)
		fmt.Fprintf(out, "  Quality profile: %s\n", profileName(svc.QualityProfileID, svc.Profiles))
		fmt.Fprintf(out, "  Root folder: %s\n", orDash(svc.RootFolder))
		if kind == models.KindLidarr {
			fmt.Fprintf(out, "  Metadata profile: %s\n", profileName(svc.MetadataProfileID, svc.MetadataProfiles))
		}

		if dry {
			fmt.Fprintln(out, "Dry run, service not saved.")
			return nil
		}

		if err := db.SaveArrService(cmd.Context(), &svc); err != nil {
			return fmt.Errorf("failed to save service: %w", err)
		}
		fmt.Fprintf(out, "Saved %s.\n", kind)
		return nil
	}

	return command
}

func ServiceRemoveCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:     "remove <radarr|sonarr|lidarr>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored service",
		Example: `  requestarr service remove sonarr`,
		Args:    cobra.ExactArgs(1),
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}

		_, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		deleted, err := db.DeleteArrService(cmd.Context(), kind)
		if err != nil {
			return fmt.Errorf("failed to remove service: %w", err)
		}
		if !deleted {
			return fmt.Errorf("%s is not configured", kind)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", kind)
		return nil
	}

	return command
}

func ServiceRefreshCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:     "refresh <radarr|sonarr|lidarr>",
		Short:   "Re-fetch profiles and folders of a stored service",
		Example: `  requestarr service refresh lidarr`,
		Args:    cobra.ExactArgs(1),
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}

		cfg, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		svc, err := db.GetArrService(cmd.Context(), kind)
		if err != nil {
			return fmt.Errorf("failed to retrieve service: %w", err)
		}
		if svc == nil {
			return fmt.Errorf("%s is not configured", kind)
		}

		res, err := dispatch.ValidateAndFetch(cmd.Context(), *svc, cfg.RequestTimeout())
		if err != nil {
			return fmt.Errorf("failed to refresh %s: %w", kind, err)
		}
		res.Apply(svc)

		if err := db.SaveArrService(cmd.Context(), svc); err != nil {
			return fmt.Errorf("failed to save service: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d quality profiles, %d root folders\n",
			kind, len(svc.Profiles), len(svc.Folders))
		return nil
	}

	return command
}
