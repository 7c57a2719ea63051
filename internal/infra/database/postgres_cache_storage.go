// internal/infra/database/postgres_cache_storage.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq" // For pq.Array

	domainStorage "zvit_agent/internal/domain/storage"
)

// PostgresCacheStorage implements domainStorage.CacheStorage on the
// cache_entries table. Insertion order is the id sequence; a replaced entry
// gets a new id.
type PostgresCacheStorage struct {
	db *sql.DB
}

func NewPostgresCacheStorage(db *sql.DB) *PostgresCacheStorage {
	return &PostgresCacheStorage{db: db}
}

func (r *PostgresCacheStorage) Put(ctx context.Context, cacheName string, e *domainStorage.Entry) error {
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("error encoding header for %s: %w", e.Key, err)
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting cache put transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_name = $1 AND request_key = $2`,
		cacheName, e.Key); err != nil {
		return fmt.Errorf("error replacing cache entry %s/%s: %w", cacheName, e.Key, err)
	}
	query := `INSERT INTO cache_entries (cache_name, request_key, url, status, header, body, stored_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, query, cacheName, e.Key, e.URL, e.Status, string(header), body, e.StoredAt); err != nil {
		return fmt.Errorf("error inserting cache entry %s/%s: %w", cacheName, e.Key, err)
	}
	return tx.Commit()
}

func scanEntry(row *sql.Row) (*domainStorage.Entry, error) {
	var (
		e      domainStorage.Entry
		header []byte
	)
	err := row.Scan(&e.Key, &e.URL, &e.Status, &header, &e.Body, &e.StoredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainStorage.ErrNotFound
		}
		return nil, fmt.Errorf("error reading cache entry: %w", err)
	}
	e.Header = http.Header{}
	if len(header) > 0 {
		if err := json.Unmarshal(header, &e.Header); err != nil {
			return nil, fmt.Errorf("corrupt header for cache entry %s: %w", e.Key, err)
		}
	}
	return &e, nil
}

func (r *PostgresCacheStorage) Match(ctx context.Context, cacheName, key string) (*domainStorage.Entry, error) {
	query := `SELECT request_key, url, status, header, body, stored_at
              FROM cache_entries WHERE cache_name = $1 AND request_key = $2`
	return scanEntry(r.db.QueryRowContext(ctx, query, cacheName, key))
}

func (r *PostgresCacheStorage) MatchAny(ctx context.Context, key string) (*domainStorage.Entry, error) {
	query := `SELECT request_key, url, status, header, body, stored_at
              FROM cache_entries WHERE request_key = $1 ORDER BY cache_name LIMIT 1`
	return scanEntry(r.db.QueryRowContext(ctx, query, key))
}

func (r *PostgresCacheStorage) Keys(ctx context.Context, cacheName string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT request_key FROM cache_entries WHERE cache_name = $1 ORDER BY id`, cacheName)
	if err != nil {
		return nil, fmt.Errorf("error listing keys of %s: %w", cacheName, err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (r *PostgresCacheStorage) Delete(ctx context.Context, cacheName, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = $1 AND request_key = $2`, cacheName, key)
	if err != nil {
		return false, fmt.Errorf("error deleting cache entry %s/%s: %w", cacheName, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking rows affected for cache delete: %w", err)
	}
	return n > 0, nil
}

// Names lists caches that hold at least one entry.
func (r *PostgresCacheStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name`)
	if err != nil {
		return nil, fmt.Errorf("error listing cache names: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (r *PostgresCacheStorage) DeleteCache(ctx context.Context, cacheName string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = $1`, cacheName)
	if err != nil {
		return false, fmt.Errorf("error deleting cache %s: %w", cacheName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking rows affected for cache drop: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresCacheStorage) EvictExcept(ctx context.Context, keep []string) ([]string, error) {
	if keep == nil {
		keep = []string{}
	}
	query := `WITH evicted AS (
                  DELETE FROM cache_entries WHERE NOT (cache_name = ANY($1)) RETURNING cache_name
              )
              SELECT DISTINCT cache_name FROM evicted ORDER BY cache_name`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(keep))
	if err != nil {
		return nil, fmt.Errorf("error evicting stale caches: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
