package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domainStorage "zvit_agent/internal/domain/storage"
)

// Storage scopes in the local_storage table.
const (
	ScopeLocal   = "local"
	ScopeCookies = "cookies"
)

// PostgresKV is a string key/value store over one scope of local_storage.
type PostgresKV struct {
	db    *sql.DB
	scope string
}

func NewPostgresKV(db *sql.DB, scope string) *PostgresKV {
	return &PostgresKV{db: db, scope: scope}
}

func (r *PostgresKV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE scope = $1 AND key = $2`, r.scope, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domainStorage.ErrNotFound
		}
		return "", fmt.Errorf("error reading %s/%s: %w", r.scope, key, err)
	}
	return value, nil
}

func (r *PostgresKV) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO local_storage (scope, key, value) VALUES ($1, $2, $3)
              ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := r.db.ExecContext(ctx, query, r.scope, key, value); err != nil {
		return fmt.Errorf("error writing %s/%s: %w", r.scope, key, err)
	}
	return nil
}

func (r *PostgresKV) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM local_storage WHERE scope = $1 AND key = $2`, r.scope, key); err != nil {
		return fmt.Errorf("error deleting %s/%s: %w", r.scope, key, err)
	}
	return nil
}
