// Package sqlite implements the score store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/okian/scoreboard/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/scoreboard/pkg/logger"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle and owns its lifecycle.
type DB struct {
	SqlDB *sql.DB
}

// New opens a SQLite database at the given path and configures it for use.
// It enables WAL mode and a busy timeout, and serialises writers on a
// single connection.
func New(ctx context.Context, dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL gives concurrent readers alongside the single writer.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{SqlDB: db}, nil
}

// Migrate applies pending schema migrations.
func (d *DB) Migrate(ctx context.Context, log logger.Logger) error {
	return migrations.Run(ctx, d.SqlDB, log)
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.SqlDB.Close()
}
