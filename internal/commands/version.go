// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobrr/requestarr/internal/buildinfo"
)

type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func VersionCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Example: `  requestarr version
  requestarr version --json`,
		Args: cobra.NoArgs,
	}

	var outputJSON bool
	command.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		current := VersionInfo{
			Version: buildinfo.Version,
			Commit:  buildinfo.Commit,
			Date:    buildinfo.Date,
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(current)
		}

		fmt.Fprintf(out, "requestarr version %s\n", current.Version)
		fmt.Fprintf(out, "Commit: %s\n", current.Commit)
		fmt.Fprintf(out, "Built: %s\n", current.Date)
		return nil
	}

	return command
}
