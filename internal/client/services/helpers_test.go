package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/client"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/kv"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// ---- helpers ----

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE kv (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

// newHistory returns a history over an in-memory kv table with a fixed clock.
func newHistory(t *testing.T, quota int64, clock *fakeClock) (*historyService, kv.Repository) {
	t.Helper()
	repo := kv.NewQuotaRepository(kv.NewSQLiteRepository(setupDB(t)), quota)
	h := NewHistoryService(repo, logging.Discard()).(*historyService)
	if clock != nil {
		h.now = clock.Now
	}
	return h, repo
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(ms int64) *fakeClock { return &fakeClock{t: time.UnixMilli(ms)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	c.t = time.UnixMilli(ms)
	c.mu.Unlock()
}

// ---- fake client ----

// fakeClient implements client.Client for SubmissionService tests.
type fakeClient struct {
	client.Client

	mu      sync.Mutex
	Tags    []string
	Err     error
	Calls   int
	LastReq client.GenerateRequest
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeClient) Generate(ctx context.Context, req client.GenerateRequest) ([]string, error) {
	f.mu.Lock()
	f.Calls++
	f.LastReq = req
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}
	return f.Tags, f.Err
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}
