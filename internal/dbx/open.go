package dbx

import (
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/htgen/internal/filex"
)

// Open opens the SQLite database at path with the pragmas the client relies
// on: WAL journaling so the CLI and the origin server can share one file, a
// busy timeout instead of immediate SQLITE_BUSY, and foreign keys on.
//
// The caller must blank-import the driver:
//
//	import _ "modernc.org/sqlite"
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := filex.EnsureParentDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbx: open: %w", err)
	}

	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("dbx: %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dbx: ping: %w", err)
	}
	return db, nil
}
