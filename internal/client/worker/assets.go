package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/assets"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/dbx"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/dmitrijs2005/htgen/internal/netx"
	"golang.org/x/sync/errgroup"
)

// Manifest lists the assets fetched on install so the app shell works
// offline.
var Manifest = []string{
	"/",
	"/static/css/style.css",
	"/static/js/localstorage.js",
	"/static/icons/icon-144x144.png",
	"/static/icons/icon-192x192.png",
	"/static/icons/icon-512x512.png",
}

// CacheStatusHeaderName is set to "HIT" on responses served from the cache.
const CacheStatusHeaderName = "X-Htgen-Cache-Status"

func CacheName(version string) string {
	return "htgen-v" + version
}

// AssetCache serves same-origin static assets stale-while-revalidate.
type AssetCache struct {
	origin    *url.URL
	cacheName string
	store     dbx.Store[assets.Repository]
	repo      assets.Repository
	network   http.RoundTripper
	timeout   time.Duration
	log       logging.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// NewAssetCache builds a cache named after version. timeout bounds every
// upstream call the cache makes; a non-positive value means no bound.
func NewAssetCache(origin *url.URL, version string, store dbx.Store[assets.Repository],
	network http.RoundTripper, timeout time.Duration, log logging.Logger) *AssetCache {
	return &AssetCache{
		origin:    origin,
		cacheName: CacheName(version),
		store:     store,
		repo:      store.Repo,
		network:   network,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}
}

func (c *AssetCache) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *AssetCache) Name() string { return c.cacheName }

func (c *AssetCache) key(path string) string {
	return c.origin.ResolveReference(&url.URL{Path: path}).String()
}

func cacheKey(u *url.URL) string {
	k := *u
	k.Fragment = ""
	return k.String()
}

// cacheable reports whether resp may be stored: a 200 answer to a
// same-origin request.
func (c *AssetCache) cacheable(req *http.Request, resp *http.Response) bool {
	return resp.StatusCode == http.StatusOK && netx.SameOrigin(req.URL, c.origin)
}

// Install fetches every manifest asset concurrently and stores them in one
// transaction. Any failure leaves the cache untouched.
func (c *AssetCache) Install(ctx context.Context) error {
	entries := make([]*models.CacheEntry, len(Manifest))

	fetchCtx, cancel := c.bounded(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(fetchCtx)
	for i, path := range Manifest {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, c.key(path), nil)
			if err != nil {
				return err
			}
			resp, err := c.network.RoundTrip(req)
			if err != nil {
				return fmt.Errorf("precache %s: %w", path, err)
			}
			body, err := netx.ReadAndClose(resp)
			if err != nil {
				return fmt.Errorf("precache %s: %w", path, err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("precache %s: status %d", path, resp.StatusCode)
			}
			entries[i] = &models.CacheEntry{
				CacheName: c.cacheName,
				URL:       cacheKey(req.URL),
				Status:    resp.StatusCode,
				Header:    resp.Header.Clone(),
				Body:      body,
				StoredAt:  c.now(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	err := c.store.InTx(ctx, func(ctx context.Context, repo assets.Repository) error {
		for _, e := range entries {
			if err := repo.Put(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	c.log.Info(ctx, "pre-cached offline assets", "cache", c.cacheName, "count", len(entries))
	return nil
}

// Activate deletes every cache other than the current one.
func (c *AssetCache) Activate(ctx context.Context) error {
	names, err := c.repo.Keys(ctx)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	for _, name := range names {
		if name == c.cacheName {
			continue
		}
		if err := c.repo.DeleteCache(ctx, name); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
		c.log.Info(ctx, "removed old cache", "cache", name)
	}
	return nil
}

// Fetch answers a same-origin GET. A cached copy is returned at once and
// refreshed in the background; otherwise the network is awaited.
func (c *AssetCache) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	key := cacheKey(req.URL)

	cached, err := c.repo.Get(ctx, c.cacheName, key)
	if err != nil {
		c.log.Warn(ctx, "cache lookup failed", "url", key, "error", err)
	}
	if cached != nil {
		c.revalidate(ctx, req, cached)
		return entryResponse(cached, req), nil
	}

	fetchCtx, cancel := c.bounded(ctx)
	resp, err := c.network.RoundTrip(req.WithContext(fetchCtx))
	if err != nil {
		cancel()
		if netx.IsNavigation(req) {
			if shell, _ := c.repo.Get(ctx, c.cacheName, c.key("/")); shell != nil {
				c.log.Debug(ctx, "serving cached shell for navigation", "url", key)
				return entryResponse(shell, req), nil
			}
		}
		return nil, fmt.Errorf("%w: %s: %w", common.ErrNoResponse, key, err)
	}

	if !c.cacheable(req, resp) {
		resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}

	body, err := netx.ReadAndClose(resp)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrNoResponse, key, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	err = c.repo.Put(ctx, &models.CacheEntry{
		CacheName: c.cacheName,
		URL:       key,
		Status:    resp.StatusCode,
		Header:    resp.Header.Clone(),
		Body:      body,
		StoredAt:  c.now(),
	})
	if err != nil {
		c.log.Warn(ctx, "cache write failed", "url", key, "error", err)
	}
	return resp, nil
}

// revalidate refreshes cached in the background. The entry is rewritten only
// when the fresh body differs. The refresh outlives ctx but not the request
// timeout.
func (c *AssetCache) revalidate(ctx context.Context, req *http.Request, cached *models.CacheEntry) {
	bg, cancel := c.bounded(context.WithoutCancel(ctx))
	fresh := req.Clone(bg)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		resp, err := c.network.RoundTrip(fresh)
		if err != nil {
			c.log.Debug(bg, "revalidation skipped, network unavailable", "url", cached.URL)
			return
		}
		body, err := netx.ReadAndClose(resp)
		if err != nil || !c.cacheable(fresh, resp) {
			return
		}
		if bytes.Equal(body, cached.Body) {
			return
		}

		err = c.repo.Put(bg, &models.CacheEntry{
			CacheName: c.cacheName,
			URL:       cached.URL,
			Status:    resp.StatusCode,
			Header:    resp.Header.Clone(),
			Body:      body,
			StoredAt:  c.now(),
		})
		if err != nil {
			c.log.Warn(bg, "cache refresh failed", "url", cached.URL, "error", err)
			return
		}
		c.log.Debug(bg, "cache entry refreshed", "url", cached.URL, "bytes", len(body))
	}()
}

// Wait blocks until background revalidations finish.
func (c *AssetCache) Wait() {
	c.wg.Wait()
}

// cancelOnClose releases a request context once the caller is done with
// the streamed body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func entryResponse(e *models.CacheEntry, req *http.Request) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(CacheStatusHeaderName, "HIT")
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
