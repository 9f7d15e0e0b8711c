package assets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT cache_name, url, status, headers, body, stored_at FROM cache_entries`

func scanEntry(row *sql.Row) (*models.CacheEntry, error) {
	var (
		e       models.CacheEntry
		headers string
		stored  int64
	)
	err := row.Scan(&e.CacheName, &e.URL, &e.Status, &headers, &e.Body, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Header = http.Header{}
	if err := json.Unmarshal([]byte(headers), &e.Header); err != nil {
		return nil, fmt.Errorf("cache entry %s: bad headers: %w", e.URL, err)
	}
	e.StoredAt = time.UnixMilli(stored)
	return &e, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, cacheName, url string) (*models.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE cache_name = ? AND url = ?`, cacheName, url)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s[%s]: %w", cacheName, url, err)
	}
	return e, nil
}

func (r *SQLiteRepository) Match(ctx context.Context, url string) (*models.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE url = ? ORDER BY stored_at DESC LIMIT 1`, url)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to match cache entry %s: %w", url, err)
	}
	return e, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, e *models.CacheEntry) error {
	header := e.Header
	if header == nil {
		header = http.Header{}
	}
	h, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now()
	}

	query := `
		INSERT INTO cache_entries (cache_name, url, status, headers, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_name, url) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at
	`
	_, err = r.db.ExecContext(ctx, query, e.CacheName, e.URL, e.Status, string(h), body, e.StoredAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put cache entry %s[%s]: %w", e.CacheName, e.URL, err)
	}
	return nil
}

func (r *SQLiteRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *SQLiteRepository) DeleteCache(ctx context.Context, cacheName string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, cacheName); err != nil {
		return fmt.Errorf("failed to delete cache %s: %w", cacheName, err)
	}
	return nil
}
