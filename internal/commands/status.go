// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/arr"
	"github.com/autobrr/requestarr/internal/services/coordinator"
)

// StatusCommand runs a single poll cycle against the stored services and
// prints the library counts.
func StatusCommand(configPath *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "status",
		Short: "Poll every configured service once and print library counts",
		Example: `  requestarr status
  requestarr status --json`,
		Args: cobra.NoArgs,
	}

	var outputJSON bool
	command.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDatabase(*configPath)
		if err != nil {
			return err
		}
		defer db.Close()

		settings, err := db.LoadSettings(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load services: %w", err)
		}

		coord, err := coordinator.New(settings, coordinator.Options{Timeout: cfg.RequestTimeout()})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(coord.Configured()) == 0 {
			fmt.Fprintln(out, "No services configured.")
			return nil
		}

		snap, pollErr := coord.Poll(cmd.Context())
		if pollErr != nil && !errors.Is(pollErr, coordinator.ErrAllFailed) {
			return pollErr
		}

		if outputJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(snap); err != nil {
				return err
			}
			return pollErr
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tKEY\tCOUNT\tERROR")
		for _, kind := range models.Kinds {
			if _, ok := snap.Counts[kind]; !ok {
				continue
			}
			desc, _ := arr.DescriptorFor(kind)
			count := "-"
			if n, ok := snap.Count(kind); ok {
				count = fmt.Sprint(n)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind, desc.CountKey, count, orDash(snap.Errors[kind]))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		return pollErr
	}

	return command
}
