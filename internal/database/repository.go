// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package database persists call metadata and the upload audit log. Two
// backends are supported: an embedded SQLite file (pure Go driver, the
// default) and PostgreSQL. Schema management runs through goose migrations
// embedded per dialect.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/calldrop/calldrop/internal/config"
	"github.com/calldrop/calldrop/internal/models"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("database: not found")

// Repository is the persistence surface of the ingestion pipeline. All
// methods are safe for concurrent use.
type Repository interface {
	// SaveCall inserts the metadata row for an accepted call and fills in
	// the record's RowID. For the database storage strategy the audio blob
	// rides along in record.Storage.Blob.
	SaveCall(ctx context.Context, record *models.CallRecord) error

	// LogAttempt appends one audit row. Exactly one row exists per upload
	// attempt regardless of outcome.
	LogAttempt(ctx context.Context, entry *models.UploadLogEntry) error

	// CallByID returns the most recently ingested call carrying the given
	// derived ID, or ErrNotFound.
	CallByID(ctx context.Context, callID string) (*models.CallRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// New opens the configured backend and applies pending migrations.
func New(ctx context.Context, cfg config.DatabaseConfig) (Repository, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return newSQLite(ctx, cfg)
	case "postgres":
		return newPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func applyPool(db *sql.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func migrate(db *sql.DB, dialect goose.Dialect, dir string) error {
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("init migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
