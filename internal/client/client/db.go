package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/htgen/internal/client/migrations"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/assets"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/kv"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/pending"
	"github.com/dmitrijs2005/htgen/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	DB      *sql.DB
	KV      kv.Repository
	Pending pending.Repository
	Assets  assets.Repository
}

// NewRepositories binds every repository to db. The key-value store is
// wrapped with a byte quota; quotaBytes <= 0 disables it.
func NewRepositories(db *sql.DB, quotaBytes int64) *Repositories {
	return &Repositories{
		DB:      db,
		KV:      kv.NewQuotaRepository(kv.NewSQLiteRepository(db), quotaBytes),
		Pending: pending.NewSQLiteRepository(db),
		Assets:  assets.NewSQLiteRepository(db),
	}
}

// PendingTx binds the offline queue store to an open transaction.
func (r *Repositories) PendingTx(tx dbx.DBTX) pending.Repository {
	return pending.NewSQLiteRepository(tx)
}

// AssetsTx binds the asset cache store to an open transaction.
func (r *Repositories) AssetsTx(tx dbx.DBTX) assets.Repository {
	return assets.NewSQLiteRepository(tx)
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite file at path and applies all migrations.
func InitDatabase(ctx context.Context, path string) (*sql.DB, error) {
	db, err := dbx.Open(path)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}
