// Package postgres persists the lot tracking engine in PostgreSQL through
// database/sql and the pgx driver. Every update is a compare-and-swap on the
// row's version column.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/vsinha/forgetrace/pkg/infrastructure/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var openDB = sql.Open

const pingTimeout = 5 * time.Second

// Connect opens a pool for cfg and verifies connectivity
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	url := strings.TrimSpace(cfg.GetDatabaseURL())
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := openDB("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if n := cfg.GetMaxOpenConns(); n > 0 {
		db.SetMaxOpenConns(n)
	}
	if n := cfg.GetMaxIdleConns(); n > 0 {
		db.SetMaxIdleConns(n)
	}
	if d := cfg.GetConnMaxLifetime(); d > 0 {
		db.SetConnMaxLifetime(d)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return nil
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}
