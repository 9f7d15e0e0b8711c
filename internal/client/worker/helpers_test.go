package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/htgen/internal/client/client"
	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/assets"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/pending"
	"github.com/dmitrijs2005/htgen/internal/dbx"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/stretchr/testify/require"
)

// fakeUpstream serves the manifest assets and the hashtag API.
type fakeUpstream struct {
	*httptest.Server

	// stalled handlers hang until the client gives up.
	stalled atomic.Bool

	mu       sync.Mutex
	assets   map[string]string
	apiCalls []apiCall
	hits     map[string]int
}

type apiCall struct {
	Header http.Header
	Body   []byte
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{assets: map[string]string{}, hits: map[string]int{}}
	for _, p := range Manifest {
		u.assets[p] = "v1:" + p
	}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Close)
	return u
}

func (u *fakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	if u.stalled.Load() {
		<-r.Context().Done()
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.hits[r.URL.Path]++

	if r.URL.Path == "/hashtags" {
		body, _ := io.ReadAll(r.Body)
		u.apiCalls = append(u.apiCalls, apiCall{Header: r.Header.Clone(), Body: body})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hashtags":["#replayed"]}`))
		return
	}
	body, ok := u.assets[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = io.WriteString(w, body)
}

func (u *fakeUpstream) setAsset(path, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.assets[path] = body
}

func (u *fakeUpstream) removeAsset(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.assets, path)
}

func (u *fakeUpstream) calls() []apiCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]apiCall(nil), u.apiCalls...)
}

func (u *fakeUpstream) hitCount(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

func (u *fakeUpstream) origin(t *testing.T) *url.URL {
	t.Helper()
	o, err := url.Parse(u.URL)
	require.NoError(t, err)
	return o
}

// switchTransport fails every request while down is set.
type switchTransport struct {
	down atomic.Bool
	next http.RoundTripper
}

var errLinkDown = errors.New("link down")

func (s *switchTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if s.down.Load() {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, errLinkDown
	}
	return s.next.RoundTrip(r)
}

type onlineFlag struct{ v atomic.Bool }

func (o *onlineFlag) IsOnline() bool { return o.v.Load() }

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tempDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "htgen.db")
}

type harness struct {
	up     *fakeUpstream
	net    *switchTransport
	online *onlineFlag
	db     *sql.DB
	w      *Worker
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	return newHarnessWith(t, policy, nil)
}

// newHarnessWith lets tune adjust the worker options before New.
func newHarnessWith(t *testing.T, policy Policy, tune func(o *Options)) *harness {
	t.Helper()
	up := newFakeUpstream(t)
	st := &switchTransport{next: http.DefaultTransport}
	db := openDB(t, tempDBPath(t))

	opts := Options{
		Origin:       up.origin(t),
		DB:           db,
		Network:      st,
		CacheVersion: "1",
		QueuePolicy:  policy,
		Log:          logging.Discard(),
	}
	if tune != nil {
		tune(&opts)
	}
	w := New(opts)
	online := &onlineFlag{}
	online.v.Store(true)
	w.SetOnlineChecker(online)
	t.Cleanup(func() { _ = w.Close() })
	return &harness{up: up, net: st, online: online, db: db, w: w}
}

func (h *harness) goOffline() {
	h.net.down.Store(true)
	h.online.v.Store(false)
}

func (h *harness) goOnline() {
	h.net.down.Store(false)
	h.online.v.Store(true)
}

// countingAssets counts cache writes.
type countingAssets struct {
	assets.Repository
	puts atomic.Int32
}

func (c *countingAssets) Put(ctx context.Context, e *models.CacheEntry) error {
	c.puts.Add(1)
	return c.Repository.Put(ctx, e)
}

// countingPending counts queue writes made inside a transaction and reads
// made outside one.
type countingPending struct {
	pending.Repository
	inserts *atomic.Int32
	lists   *atomic.Int32
}

func (c countingPending) Insert(ctx context.Context, p *models.PendingRequest) (int64, error) {
	c.inserts.Add(1)
	return c.Repository.Insert(ctx, p)
}

func (c countingPending) List(ctx context.Context) ([]*models.PendingRequest, error) {
	c.lists.Add(1)
	return c.Repository.List(ctx)
}

func pendingStore(db *sql.DB) dbx.Store[pending.Repository] {
	return dbx.Store[pending.Repository]{
		DB:   db,
		Repo: pending.NewSQLiteRepository(db),
		Bind: func(tx dbx.DBTX) pending.Repository { return pending.NewSQLiteRepository(tx) },
	}
}
