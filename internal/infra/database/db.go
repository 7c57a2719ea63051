package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// schema is applied on startup. Both tables are owned by the agent.
const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    id          BIGSERIAL PRIMARY KEY,
    cache_name  TEXT        NOT NULL,
    request_key TEXT        NOT NULL,
    url         TEXT        NOT NULL,
    status      INTEGER     NOT NULL,
    header      JSONB       NOT NULL DEFAULT '{}'::jsonb,
    body        BYTEA       NOT NULL,
    stored_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT cache_entries_name_key_unique UNIQUE (cache_name, request_key)
);

CREATE TABLE IF NOT EXISTS local_storage (
    scope TEXT NOT NULL,
    key   TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (scope, key)
);`

// NewPostgresConnection opens a PostgreSQL connection pool, pings it and
// makes sure the agent's tables exist.
func NewPostgresConnection(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.PingContext(ctx); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err = EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the agent's tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
