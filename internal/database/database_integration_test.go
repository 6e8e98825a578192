// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build integration
// +build integration

package database

import (
	"context"
	"os"
	"testing"

	"github.com/autobrr/requestarr/internal/config"
	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

// setupPostgresDB sets up a PostgreSQL test database
func setupPostgresDB(t *testing.T) (*DB, func()) {
	var db *DB
	var err error

	// Required environment variables for PostgreSQL connection
	requiredEnvVars := []string{
		"REQUESTARR__DB_HOST",
		"REQUESTARR__DB_PORT",
		"REQUESTARR__DB_USER",
		"REQUESTARR__DB_PASSWORD",
		"REQUESTARR__DB_NAME",
	}

	for _, env := range requiredEnvVars {
		if os.Getenv(env) == "" {
			t.Skipf("Required environment variable %s not set", env)
		}
	}

	cfg := &config.Config{}
	if err := config.LoadEnvOverrides(cfg); err != nil {
		t.Fatalf("Failed to read database environment: %v", err)
	}
	cfg.Database.Type = DriverPostgres

	cleanup := func() {
		if db != nil {
			// Clean up test data
			db.Exec("DELETE FROM arr_services")
			db.Close()
		}
	}

	db, err = InitDB(cfg.Database)
	if err != nil {
		cleanup()
		t.Fatalf("Failed to initialize PostgreSQL test database: %v", err)
	}

	return db, cleanup
}

func TestPostgresDatabaseInitialization(t *testing.T) {
	db, cleanup := setupPostgresDB(t)
	defer cleanup()

	if err := db.Ping(); err != nil {
		t.Errorf("Failed to ping PostgreSQL database: %v", err)
	}

	var exists bool
	query := "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'arr_services')"
	if err := db.QueryRow(query).Scan(&exists); err != nil {
		t.Fatalf("Failed to check schema: %v", err)
	}
	if !exists {
		t.Error("Expected arr_services table to exist")
	}
}

func TestPostgresArrServiceOperations(t *testing.T) {
	db, cleanup := setupPostgresDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := &models.ServiceSettings{
		Kind:             models.KindSonarr,
		URL:              "http://sonarr:8989",
		APIKey:           "test-api-key",
		VerifySSL:        true,
		QualityProfileID: models.NewProfileID(1),
		RootFolder:       "/tv",
		Profiles:         []types.Profile{{ID: 1, Name: "Any"}},
		Folders:          []types.RootFolder{{ID: 3, Path: "/tv"}},
	}

	if err := db.SaveArrService(ctx, svc); err != nil {
		t.Fatalf("Failed to save service: %v", err)
	}

	retrieved, err := db.GetArrService(ctx, models.KindSonarr)
	if err != nil {
		t.Fatalf("Failed to get service: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected service to exist")
	}
	if retrieved.URL != svc.URL || retrieved.APIKey != svc.APIKey {
		t.Errorf("Retrieved service mismatch: got %+v", retrieved)
	}
	if len(retrieved.Folders) != 1 || retrieved.Folders[0].Path != "/tv" {
		t.Errorf("Expected folders to round-trip, got %+v", retrieved.Folders)
	}

	svc.URL = "http://sonarr.local:8989"
	if err := db.SaveArrService(ctx, svc); err != nil {
		t.Fatalf("Failed to update service: %v", err)
	}

	retrieved, err = db.GetArrService(ctx, models.KindSonarr)
	if err != nil {
		t.Fatalf("Failed to get updated service: %v", err)
	}
	if retrieved.URL != "http://sonarr.local:8989" {
		t.Errorf("Expected updated URL, got %s", retrieved.URL)
	}

	deleted, err := db.DeleteArrService(ctx, models.KindSonarr)
	if err != nil {
		t.Fatalf("Failed to delete service: %v", err)
	}
	if !deleted {
		t.Error("Expected a row to be deleted")
	}

	retrieved, err = db.GetArrService(ctx, models.KindSonarr)
	if err != nil {
		t.Fatalf("Failed to check deleted service: %v", err)
	}
	if retrieved != nil {
		t.Error("Expected service to be deleted")
	}
}
