// Package worker intercepts every request the client makes, the way a
// service worker sits between a page and the network.
//
// A Worker is an http.RoundTripper. Same-origin static assets are served
// stale-while-revalidate from an SQLite-backed cache. API calls go straight
// to the network; when that fails while offline the request is queued and a
// synthetic response is returned. Queued requests are replayed on a sync
// event. Cross-origin and other requests pass through untouched.
package worker

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/repositories/assets"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/pending"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/dbx"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/dmitrijs2005/htgen/internal/netx"
)

// OnlineChecker reports the last known connectivity state.
type OnlineChecker interface {
	IsOnline() bool
}

// DefaultRequestTimeout bounds each upstream call the worker makes on its
// own: install fetches, cache misses, background revalidations and queue
// replays.
const DefaultRequestTimeout = 30 * time.Second

type Options struct {
	// Origin is the upstream the app shell and API are served from.
	Origin *url.URL
	// DB is where multi-statement writes open their transactions.
	DB *sql.DB

	// Pending and Assets default to SQLite repositories over DB. PendingTx
	// and AssetsTx bind the same stores to an open transaction.
	Pending   pending.Repository
	Assets    assets.Repository
	PendingTx func(dbx.DBTX) pending.Repository
	AssetsTx  func(dbx.DBTX) assets.Repository

	Network        http.RoundTripper
	RequestTimeout time.Duration
	CacheVersion   string
	QueuePolicy    Policy
	Log            logging.Logger
}

func (o *Options) setDefaults() {
	if o.Network == nil {
		o.Network = http.DefaultTransport
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.PendingTx == nil {
		o.PendingTx = func(db dbx.DBTX) pending.Repository { return pending.NewSQLiteRepository(db) }
	}
	if o.AssetsTx == nil {
		o.AssetsTx = func(db dbx.DBTX) assets.Repository { return assets.NewSQLiteRepository(db) }
	}
	if o.Pending == nil {
		o.Pending = o.PendingTx(o.DB)
	}
	if o.Assets == nil {
		o.Assets = o.AssetsTx(o.DB)
	}
}

type Worker struct {
	origin     *url.URL
	network    http.RoundTripper
	dispatcher *Dispatcher
	assets     *AssetCache
	queue      *Queue
	log        logging.Logger

	mu     sync.RWMutex
	online OnlineChecker
}

func New(opts Options) *Worker {
	opts.setDefaults()
	network := upstream{next: opts.Network}

	w := &Worker{
		origin:     opts.Origin,
		network:    network,
		dispatcher: NewDispatcher(),
		assets: NewAssetCache(opts.Origin, opts.CacheVersion, dbx.Store[assets.Repository]{
			DB: opts.DB, Repo: opts.Assets, Bind: opts.AssetsTx,
		}, network, opts.RequestTimeout, opts.Log),
		queue: NewQueue(dbx.Store[pending.Repository]{
			DB: opts.DB, Repo: opts.Pending, Bind: opts.PendingTx,
		}, network, opts.QueuePolicy, opts.RequestTimeout, opts.Log),
		log: opts.Log,
	}

	w.dispatcher.Handle(EventInstall, func(ctx context.Context, _ *Event) error {
		return w.assets.Install(ctx)
	})
	w.dispatcher.Handle(EventActivate, func(ctx context.Context, _ *Event) error {
		return w.assets.Activate(ctx)
	})
	w.dispatcher.Handle(EventFetch, w.handleFetch)
	w.dispatcher.Handle(EventSync, w.handleSync)
	return w
}

func (w *Worker) Assets() *AssetCache { return w.assets }
func (w *Worker) Queue() *Queue       { return w.queue }

// SetOnlineChecker installs the connectivity source. Without one, a failed
// API call is treated as offline.
func (w *Worker) SetOnlineChecker(o OnlineChecker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.online = o
}

func (w *Worker) isOnline() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online != nil && w.online.IsOnline()
}

// Start installs and then activates the worker.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Dispatch(ctx, &Event{Type: EventInstall}); err != nil {
		return err
	}
	return w.Dispatch(ctx, &Event{Type: EventActivate})
}

func (w *Worker) Dispatch(ctx context.Context, e *Event) error {
	return w.dispatcher.Dispatch(ctx, e)
}

// Sync dispatches the queue-draining sync event.
func (w *Worker) Sync(ctx context.Context) error {
	return w.Dispatch(ctx, &Event{Type: EventSync, Tag: SyncTag})
}

// Close waits for background revalidations. Each is bounded by the
// request timeout, so Close returns even when the upstream stalls.
func (w *Worker) Close() error {
	w.assets.Wait()
	return nil
}

func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	e := &Event{Type: EventFetch, Request: req}
	if err := w.Dispatch(req.Context(), e); err != nil {
		return nil, err
	}
	if resp := e.Response(); resp != nil {
		return resp, nil
	}
	return w.network.RoundTrip(req)
}

func isAPI(u *url.URL) bool {
	return strings.Contains(u.Path, common.APIPath)
}

func (w *Worker) handleFetch(ctx context.Context, e *Event) error {
	req := e.Request
	if !netx.SameOrigin(req.URL, w.origin) {
		return nil
	}

	if isAPI(req.URL) {
		resp, err := w.fetchAPI(ctx, req)
		if err != nil {
			return err
		}
		e.RespondWith(resp)
		return nil
	}

	if req.Method != http.MethodGet {
		return nil
	}
	resp, err := w.assets.Fetch(ctx, req)
	if err != nil {
		return err
	}
	e.RespondWith(resp)
	return nil
}

// fetchAPI sends an API call. If the network fails while offline the call
// is queued and answered with a synthetic queued response.
func (w *Worker) fetchAPI(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	if _, err := netx.BufferBody(out); err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	resp, err := w.network.RoundTrip(out)
	if err == nil {
		return resp, nil
	}
	if w.isOnline() {
		return nil, fmt.Errorf("%w: %w", common.ErrNetwork, err)
	}

	replay, gerr := out.GetBody()
	if gerr == nil {
		out.Body = replay
	}
	if _, qerr := w.queue.Enqueue(ctx, out); qerr != nil {
		w.log.Error(ctx, "could not queue offline request", "url", out.URL.String(), "error", qerr)
		return nil, fmt.Errorf("%w: %w", common.ErrNetwork, err)
	}
	return queuedResponse(req), nil
}

func queuedResponse(req *http.Request) *http.Response {
	body, _ := json.Marshal(map[string]string{"error": common.OfflineQueuedMessage})
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set(common.QueuedHeaderName, "1")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func (w *Worker) handleSync(ctx context.Context, e *Event) error {
	if e.Tag != SyncTag {
		return nil
	}
	replayed, remaining, err := w.queue.Drain(ctx)
	if err != nil {
		return err
	}
	if replayed > 0 || remaining > 0 {
		w.log.Info(ctx, "pending requests processed", "replayed", replayed, "remaining", remaining)
	}
	return nil
}

// upstream drops pseudo headers before a request leaves the process.
type upstream struct {
	next http.RoundTripper
}

func (u upstream) RoundTrip(req *http.Request) (*http.Response, error) {
	strip := false
	for name := range req.Header {
		if strings.HasPrefix(name, PseudoHeaderPrefix) {
			strip = true
			break
		}
	}
	if !strip {
		return u.next.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	for name := range out.Header {
		if strings.HasPrefix(name, PseudoHeaderPrefix) {
			out.Header.Del(name)
		}
	}
	return u.next.RoundTrip(out)
}
