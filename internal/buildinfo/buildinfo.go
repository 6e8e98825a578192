// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"fmt"
	"net/http"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/autobrr/requestarr/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// UserAgent identifies requestarr to the arr backends.
func UserAgent() string {
	return fmt.Sprintf("requestarr/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)
}

func AttachUserAgentHeader(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent())
}
