// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/autobrr/requestarr/internal/config"
	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	servicesTable = "arr_services"
)

var serviceColumns = []string{
	"kind", "url", "api_key", "verify_ssl",
	"quality_profile_id", "root_folder", "metadata_profile_id",
	"profiles", "folders", "metadata_profiles", "updated_at",
}

// DB represents the database connection
type DB struct {
	*sql.DB
	driver string
	path   string

	squirrel sq.StatementBuilderType
}

// InitDB opens the configured database and creates the schema.
func InitDB(cfg config.DatabaseConfig) (*DB, error) {
	var (
		database *sql.DB
		err      error
	)

	driver := cfg.Type
	if driver == "" {
		driver = DriverSQLite
	}

	maxRetries := 5
	baseDelay := time.Second

	switch driver {
	case DriverPostgres:
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, port, cfg.User, cfg.Password, cfg.Name)
		log.Debug().
			Str("host", cfg.Host).
			Int("port", port).
			Str("database", cfg.Name).
			Msg("Initializing PostgreSQL database")

		for attempt := 1; attempt <= maxRetries; attempt++ {
			database, err = sql.Open("postgres", dsn)
			if err == nil {
				if err = database.Ping(); err == nil {
					break
				}
			}

			if attempt == maxRetries {
				return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
			}

			delay := time.Duration(attempt) * baseDelay
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying database connection")
			time.Sleep(delay)
		}

	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
			return nil, err
		}

		database, err = sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("error opening database: %w", err)
		}

		// Force SQLite to create the database file by pinging it
		if err := database.Ping(); err != nil {
			return nil, fmt.Errorf("error creating database file: %w", err)
		}

		// The file holds API keys
		if err := os.Chmod(cfg.Path, 0640); err != nil {
			return nil, fmt.Errorf("error setting database file permissions: %w", err)
		}
		log.Debug().Str("path", cfg.Path).Msg("Initializing SQLite database")

	default:
		return nil, fmt.Errorf("unsupported database type %q", driver)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(25)
	database.SetConnMaxLifetime(5 * time.Minute)

	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}

	db := &DB{
		DB:       database,
		driver:   driver,
		path:     cfg.Path,
		squirrel: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}

	if err := db.initSchema(); err != nil {
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	log.Info().Str("driver", driver).Msg("Successfully connected to database")
	return db, nil
}

// Path returns the database file path (for SQLite)
func (db *DB) Path() string {
	return db.path
}

// Driver returns the database driver name.
func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) initSchema() error {
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			kind TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			api_key TEXT NOT NULL,
			verify_ssl BOOLEAN NOT NULL DEFAULT TRUE,
			quality_profile_id TEXT NOT NULL DEFAULT '',
			root_folder TEXT NOT NULL DEFAULT '',
			metadata_profile_id TEXT NOT NULL DEFAULT '',
			profiles TEXT NOT NULL DEFAULT '[]',
			folders TEXT NOT NULL DEFAULT '[]',
			metadata_profiles TEXT NOT NULL DEFAULT '[]',
			updated_at TIMESTAMP NOT NULL
		)`, servicesTable))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*models.ServiceSettings, error) {
	var (
		svc                                models.ServiceSettings
		kind, quality, metadata            string
		profiles, folders, metadataProfile string
	)

	err := row.Scan(
		&kind,
		&svc.URL,
		&svc.APIKey,
		&svc.VerifySSL,
		&quality,
		&svc.RootFolder,
		&metadata,
		&profiles,
		&folders,
		&metadataProfile,
		&svc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	svc.Kind = models.Kind(kind)
	svc.QualityProfileID = models.ProfileID(quality)
	svc.MetadataProfileID = models.ProfileID(metadata)

	if err := decodeList(profiles, &svc.Profiles); err != nil {
		return nil, errors.Wrapf(err, "%s: profiles", kind)
	}
	if err := decodeList(folders, &svc.Folders); err != nil {
		return nil, errors.Wrapf(err, "%s: folders", kind)
	}
	if err := decodeList(metadataProfile, &svc.MetadataProfiles); err != nil {
		return nil, errors.Wrapf(err, "%s: metadata profiles", kind)
	}

	return &svc, nil
}

func decodeList[T any](data string, out *[]T) error {
	if data == "" {
		*out = []T{}
		return nil
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return err
	}
	if *out == nil {
		*out = []T{}
	}
	return nil
}

func encodeList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetArrService returns the settings of one backend, or nil when it was
// never saved.
func (db *DB) GetArrService(ctx context.Context, kind models.Kind) (*models.ServiceSettings, error) {
	query, args, err := db.squirrel.
		Select(serviceColumns...).
		From(servicesTable).
		Where(sq.Eq{"kind": kind.String()}).
		ToSql()
	if err != nil {
		return nil, err
	}

	svc, err := scanService(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "error executing query")
	}
	return svc, nil
}

// ListArrServices returns every saved backend ordered by kind.
func (db *DB) ListArrServices(ctx context.Context) ([]models.ServiceSettings, error) {
	query, args, err := db.squirrel.
		Select(serviceColumns...).
		From(servicesTable).
		OrderBy("kind").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	services := []models.ServiceSettings{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

// LoadSettings returns the saved backends keyed by kind. Rows with an
// unknown kind are skipped.
func (db *DB) LoadSettings(ctx context.Context) (models.Settings, error) {
	services, err := db.ListArrServices(ctx)
	if err != nil {
		return nil, err
	}

	settings := models.Settings{}
	for _, svc := range services {
		if !svc.Kind.Valid() {
			log.Warn().Str("kind", svc.Kind.String()).Msg("Skipping stored service of unknown kind")
			continue
		}
		settings[svc.Kind] = svc
	}
	return settings, nil
}

// SaveArrService inserts or replaces the settings of a backend.
func (db *DB) SaveArrService(ctx context.Context, svc *models.ServiceSettings) error {
	if !svc.Kind.Valid() {
		return fmt.Errorf("unsupported service type %q", svc.Kind)
	}

	profiles, err := encodeList[types.Profile](svc.Profiles)
	if err != nil {
		return errors.Wrap(err, "encode profiles")
	}
	folders, err := encodeList[types.RootFolder](svc.Folders)
	if err != nil {
		return errors.Wrap(err, "encode folders")
	}
	metadataProfiles, err := encodeList[types.Profile](svc.MetadataProfiles)
	if err != nil {
		return errors.Wrap(err, "encode metadata profiles")
	}

	svc.UpdatedAt = time.Now().UTC()

	query, args, err := db.squirrel.
		Insert(servicesTable).
		Columns(serviceColumns...).
		Values(
			svc.Kind.String(),
			svc.URL,
			svc.APIKey,
			svc.VerifySSL,
			string(svc.QualityProfileID),
			svc.RootFolder,
			string(svc.MetadataProfileID),
			profiles,
			folders,
			metadataProfiles,
			svc.UpdatedAt,
		).
		Suffix(upsertSuffix()).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error executing query")
	}
	return nil
}

// upsertSuffix builds the ON CONFLICT clause shared by SQLite and Postgres.
func upsertSuffix() string {
	suffix := "ON CONFLICT (kind) DO UPDATE SET "
	for i, col := range serviceColumns[1:] {
		if i > 0 {
			suffix += ", "
		}
		suffix += col + " = excluded." + col
	}
	return suffix
}

// DeleteArrService removes a backend. It reports whether a row existed.
func (db *DB) DeleteArrService(ctx context.Context, kind models.Kind) (bool, error) {
	query, args, err := db.squirrel.
		Delete(servicesTable).
		Where(sq.Eq{"kind": kind.String()}).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "error executing query")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	log.Debug().Str("kind", kind.String()).Str("affected", strconv.FormatInt(affected, 10)).Msg("Deleted service")
	return affected > 0, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
