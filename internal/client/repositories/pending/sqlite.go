package pending

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/dbx"
)

// SQLiteRepository stores pending requests in the pending_requests table.
// It accepts either *sql.DB or *sql.Tx.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, req *models.PendingRequest) (int64, error) {
	headers := req.Headers
	if headers == nil {
		headers = []models.Header{}
	}
	h, err := json.Marshal(headers)
	if err != nil {
		return 0, fmt.Errorf("failed to encode headers: %w", err)
	}

	query := `
		INSERT INTO pending_requests
			(url, method, headers, mode, credentials, cache, redirect, referrer, body, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		req.URL, req.Method, string(h), req.Mode, req.Credentials, req.Cache,
		req.Redirect, req.Referrer, req.Body, models.PendingSchemaVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pending request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id error: %w", err)
	}
	req.ID = id
	return id, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.PendingRequest, error) {
	query := `
		SELECT id, url, method, headers, mode, credentials, cache, redirect, referrer, body
		FROM pending_requests ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending requests: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingRequest
	for rows.Next() {
		var (
			item    models.PendingRequest
			headers string
		)
		if err := rows.Scan(&item.ID, &item.URL, &item.Method, &headers, &item.Mode,
			&item.Credentials, &item.Cache, &item.Redirect, &item.Referrer, &item.Body); err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		if err := json.Unmarshal([]byte(headers), &item.Headers); err != nil {
			return nil, fmt.Errorf("pending request %d: bad headers: %w", item.ID, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending requests: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending request %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_requests`); err != nil {
		return fmt.Errorf("failed to clear pending requests: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending requests: %w", err)
	}
	return n, nil
}
