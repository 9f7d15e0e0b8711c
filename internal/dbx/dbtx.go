// Package dbx holds the database plumbing the client repositories share.
//
// Every SQLite repository is built over DBTX, so the same pending.Repository
// or assets.Repository type can run against the pool or inside a
// transaction. Store bundles both bindings for callers that mix plain reads
// with multi-statement writes, such as the offline queue's replace-latest
// Enqueue and the asset cache's all-or-nothing Install.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is what a repository needs from database/sql. *sql.DB and *sql.Tx
// both satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction. It commits when fn returns nil and rolls
// back on an error or a panic; the panic is rethrown.
//
// The queue drops older requests and inserts the new one atomically:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    repo := pending.NewSQLiteRepository(tx)
//	    if err := repo.DeleteAll(ctx); err != nil {
//	        return err
//	    }
//	    _, err := repo.Insert(ctx, req)
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// Store is a repository bound to DB together with the constructor that
// binds the same repository type to a transaction.
type Store[R any] struct {
	DB   *sql.DB
	Repo R
	Bind func(DBTX) R
}

// InTx runs fn with a repository bound to a fresh transaction on DB.
func (s Store[R]) InTx(ctx context.Context, fn func(ctx context.Context, repo R) error) error {
	return WithTx(ctx, s.DB, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, s.Bind(tx))
	})
}
