// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "cli-key"

var arrRoutes = map[string]string{
	"GET /api/v3/system/status":  `{"version": "5.14.0"}`,
	"GET /api/v3/qualityprofile": `[{"id": 4, "name": "HD-1080p"}, {"id": 6, "name": "Ultra-HD"}]`,
	"GET /api/v3/rootfolder":     `[{"id": 1, "path": "/media"}]`,
	"GET /api/v3/movie":          `[{"id": 1}, {"id": 2}]`,
	"GET /api/v3/series":         `[{"id": 1}]`,
}

func newArr(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := arrRoutes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig creates a config file pointing at a fresh SQLite database.
func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf("[database]\ntype = \"sqlite\"\npath = %q\n\n[poll]\ntimeout = 2\n", filepath.Join(dir, "requestarr.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func run(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := RootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configPath}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := run(t, writeConfig(t), "", "version", "--json")
	require.NoError(t, err)

	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info.Version)
}

func TestServiceCommands(t *testing.T) {
	arr := newArr(t)
	cfg := writeConfig(t)

	out, err := run(t, cfg, "", "service", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No services configured.")

	out, err = run(t, cfg, "", "service", "add", "radarr", arr.URL+"/", testAPIKey)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected to Radarr 5.14.0")
	assert.Contains(t, out, "Quality profile: HD-1080p (4)")
	assert.Contains(t, out, "Root folder: /media")

	out, err = run(t, cfg, "", "service", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "radarr")
	assert.Contains(t, out, arr.URL)
	assert.Contains(t, out, "HD-1080p (4)")

	out, err = run(t, cfg, "", "service", "list", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, testAPIKey)

	out, err = run(t, cfg, "", "status", "--json")
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.EqualValues(t, 2, snap["radarr_movies"])

	out, err = run(t, cfg, "", "service", "refresh", "radarr")
	require.NoError(t, err)
	assert.Contains(t, out, "2 quality profiles, 1 root folders")

	out, err = run(t, cfg, "", "service", "rm", "radarr")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed radarr.")

	_, err = run(t, cfg, "", "service", "remove", "radarr")
	assert.ErrorContains(t, err, "radarr is not configured")
}

func TestServiceAdd_Rejected(t *testing.T) {
	arr := newArr(t)
	cfg := writeConfig(t)

	_, err := run(t, cfg, "", "service", "add", "radarr", arr.URL, "wrong-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to validate radarr")

	_, err = run(t, cfg, "", "service", "add", "plex", arr.URL, testAPIKey)
	assert.ErrorContains(t, err, "unknown service type")

	_, err = run(t, cfg, "", "service", "add", "radarr", "not a url", testAPIKey)
	assert.ErrorContains(t, err, "invalid URL")

	out, err := run(t, cfg, "", "service", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No services configured.")
}

func TestServiceAdd_DryRun(t *testing.T) {
	arr := newArr(t)
	cfg := writeConfig(t)

	out, err := run(t, cfg, "", "service", "add", "sonarr", arr.URL, testAPIKey, "--dry-run", "--quality-profile", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "Quality profile: Ultra-HD (6)")
	assert.Contains(t, out, "Dry run, service not saved.")

	out, err = run(t, cfg, "", "service", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No services configured.")
}

func TestStatus_NoServices(t *testing.T) {
	out, err := run(t, writeConfig(t), "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No services configured.")
}

func TestConfigImport(t *testing.T) {
	arr := newArr(t)
	cfg := writeConfig(t)

	file := filepath.Join(t.TempDir(), "services.yaml")
	content := fmt.Sprintf("services:\n  sonarr:\n    url: %s\n    apikey: %s\n", arr.URL, testAPIKey)
	require.NoError(t, os.WriteFile(file, []byte(content), 0600))

	out, err := run(t, cfg, "n\n", "config", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Operation cancelled.")

	out, err = run(t, cfg, "y\n", "config", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Added service: Sonarr")

	out, err = run(t, cfg, "", "config", "import", file, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "already configured")

	out, err = run(t, cfg, "", "service", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "sonarr")
	assert.Contains(t, out, "HD-1080p (4)")
}

func TestConfigExport_MasksSecrets(t *testing.T) {
	arr := newArr(t)
	cfg := writeConfig(t)

	_, err := run(t, cfg, "", "service", "add", "radarr", arr.URL, testAPIKey)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "export.json")
	out, err := run(t, cfg, "", "config", "export", "-f", "json", "-o", target, "-m")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration exported to "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), arr.URL)
	assert.NotContains(t, string(data), testAPIKey)

	_, err = run(t, cfg, "", "config", "export", "-f", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}
