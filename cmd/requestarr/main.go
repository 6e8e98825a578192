// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/autobrr/requestarr/internal/commands"
	"github.com/autobrr/requestarr/internal/logger"
)

func init() {
	logger.Init()
}

func main() {
	if err := commands.RootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
