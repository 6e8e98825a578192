// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var levelColors = map[string]string{
	"trace": "\033[36m",
	"debug": "\033[33m",
	"info":  "\033[34m",
	"warn":  "\033[33m",
	"error": "\033[31m",
	"fatal": "\033[35m",
	"panic": "\033[35m",
}

// Init sets up the global zerolog logger with coloured console output.
// The level is taken from LOG_LEVEL and defaults to info.
func Init() {
	InitWithWriter(os.Stdout)
}

// InitWithWriter is Init with a custom destination, used by tests.
func InitWithWriter(out io.Writer) {
	output := zerolog.ConsoleWriter{
		Out:     out,
		NoColor: os.Getenv("NO_COLOR") != "",
		FormatLevel: func(i interface{}) string {
			level, ok := i.(string)
			if !ok {
				return "???"
			}
			color := levelColors[level]
			if color == "" {
				color = "\033[37m"
			}
			return color + strings.ToUpper(level) + "\033[0m"
		},
	}

	zerolog.SetGlobalLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
