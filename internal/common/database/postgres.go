package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"catalog-assistant/internal/common/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// Opener produces a fresh database handle. The manager pings it before use.
type Opener func(ctx context.Context) (*sql.DB, error)

// NewPostgresOpener opens the catalog store with lib/pq ("postgres") or
// pgx ("pgx") depending on cfg.Driver.
func NewPostgresOpener(cfg config.PostgresConfig) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		driver := cfg.Driver
		if driver == "" {
			driver = "postgres"
		}

		db, err := sql.Open(driver, cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", driver, err)
		}

		if cfg.MaxConnections > 0 {
			db.SetMaxOpenConns(cfg.MaxConnections)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)

		return db, nil
	}
}
