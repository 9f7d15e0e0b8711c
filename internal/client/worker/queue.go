package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/pending"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/dbx"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/dmitrijs2005/htgen/internal/netx"
)

// Policy decides what happens to older queued requests on Enqueue.
type Policy string

const (
	// PolicyReplaceLatest keeps only the most recent request.
	PolicyReplaceLatest Policy = "replace-latest"
	// PolicyAppendAll keeps every request and replays them in order.
	PolicyAppendAll Policy = "append-all"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyReplaceLatest, "":
		return PolicyReplaceLatest, nil
	case PolicyAppendAll:
		return PolicyAppendAll, nil
	}
	return "", fmt.Errorf("unknown queue policy %q", s)
}

// Request attributes that have no HTTP header of their own travel in these
// pseudo headers. They never reach the upstream.
const (
	PseudoHeaderPrefix    = "X-Htgen-"
	CredentialsHeaderName = "X-Htgen-Credentials"
	CacheModeHeaderName   = "X-Htgen-Cache"
	RedirectHeaderName    = "X-Htgen-Redirect"
)

const (
	defaultMode        = "cors"
	defaultCredentials = "same-origin"
	defaultCache       = "default"
	defaultRedirect    = "follow"
	defaultReferrer    = "about:client"
)

// ReplayFunc observes a successful replay. body is the upstream reply.
type ReplayFunc func(ctx context.Context, req *models.PendingRequest, status int, body []byte)

// Queue stores requests that failed while offline and replays them later.
type Queue struct {
	store   dbx.Store[pending.Repository]
	network http.RoundTripper
	policy  Policy
	timeout time.Duration
	log     logging.Logger

	drainMu  sync.Mutex
	onReplay ReplayFunc
}

// NewQueue builds a queue over store. timeout bounds each replay; a
// non-positive value means no bound.
func NewQueue(store dbx.Store[pending.Repository], network http.RoundTripper, policy Policy,
	timeout time.Duration, log logging.Logger) *Queue {
	if policy == "" {
		policy = PolicyReplaceLatest
	}
	return &Queue{store: store, network: network, policy: policy, timeout: timeout, log: log}
}

// OnReplay registers f to be called after each successful replay.
func (q *Queue) OnReplay(f ReplayFunc) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()
	q.onReplay = f
}

func headerValue(h http.Header, name, def string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	return def
}

// Serialize captures req for storage. The body, if any, is read and
// replaced with a replayable copy. GET never stores a body.
func Serialize(req *http.Request) (*models.PendingRequest, error) {
	p := &models.PendingRequest{
		URL:         req.URL.String(),
		Method:      req.Method,
		Mode:        headerValue(req.Header, netx.ModeHeaderName, defaultMode),
		Credentials: headerValue(req.Header, CredentialsHeaderName, defaultCredentials),
		Cache:       headerValue(req.Header, CacheModeHeaderName, defaultCache),
		Redirect:    headerValue(req.Header, RedirectHeaderName, defaultRedirect),
		Referrer:    headerValue(req.Header, "Referer", defaultReferrer),
	}

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		if strings.HasPrefix(name, PseudoHeaderPrefix) || name == "Referer" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range req.Header[name] {
			p.Headers = append(p.Headers, models.Header{Name: name, Value: v})
		}
	}

	if req.Method != http.MethodGet {
		body, err := netx.BufferBody(req)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if body == nil {
			body = []byte{}
		}
		p.Body = body
	}
	return p, nil
}

// Deserialize rebuilds a request from its stored form.
func Deserialize(ctx context.Context, p *models.PendingRequest) (*http.Request, error) {
	var body io.Reader
	if p.Method != http.MethodGet && p.Body != nil {
		body = bytes.NewReader(p.Body)
	}
	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, body)
	if err != nil {
		return nil, fmt.Errorf("rebuild pending request %d: %w", p.ID, err)
	}
	for _, h := range p.Headers {
		req.Header.Add(h.Name, h.Value)
	}
	req.Header.Set(netx.ModeHeaderName, p.Mode)
	req.Header.Set(CredentialsHeaderName, p.Credentials)
	req.Header.Set(CacheModeHeaderName, p.Cache)
	req.Header.Set(RedirectHeaderName, p.Redirect)
	if p.Referrer != "" && p.Referrer != defaultReferrer {
		req.Header.Set("Referer", p.Referrer)
	}
	return req, nil
}

// Enqueue stores req according to the queue policy and returns its id.
func (q *Queue) Enqueue(ctx context.Context, req *http.Request) (int64, error) {
	p, err := Serialize(req)
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.store.InTx(ctx, func(ctx context.Context, repo pending.Repository) error {
		if q.policy == PolicyReplaceLatest {
			if err := repo.DeleteAll(ctx); err != nil {
				return err
			}
		}
		n, err := repo.Insert(ctx, p)
		if err != nil {
			return err
		}
		id = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	q.log.Info(ctx, "request queued for replay", "id", id, "method", p.Method, "url", p.URL, "policy", q.policy)
	return id, nil
}

// Len returns the number of queued requests.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.Repo.Count(ctx)
}

// Drain replays every queued request in insertion order. A request is
// removed once the upstream answered it, whatever the status. Transport
// failures are logged and leave the request queued for the next drain.
func (q *Queue) Drain(ctx context.Context) (replayed, remaining int, err error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	repo := q.store.Repo
	items, err := repo.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("drain: %w", err)
	}

	for _, p := range items {
		if err := ctx.Err(); err != nil {
			return replayed, len(items) - replayed, err
		}

		status, body, err := q.replay(ctx, p)
		if err != nil {
			q.log.Warn(ctx, "replay failed, request kept", "id", p.ID, "url", p.URL,
				"error", fmt.Errorf("%w: %w", common.ErrReplay, err))
			remaining++
			continue
		}

		if err := repo.Delete(ctx, p.ID); err != nil {
			return replayed, len(items) - replayed, fmt.Errorf("drain: %w", err)
		}
		replayed++
		q.log.Info(ctx, "queued request replayed", "id", p.ID, "status", status)

		if q.onReplay != nil {
			q.onReplay(ctx, p, status, body)
		}
	}
	return replayed, remaining, nil
}

func (q *Queue) replay(ctx context.Context, p *models.PendingRequest) (int, []byte, error) {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	req, err := Deserialize(ctx, p)
	if err != nil {
		return 0, nil, err
	}
	resp, err := q.network.RoundTrip(req)
	if err != nil {
		return 0, nil, err
	}
	body, err := netx.ReadAndClose(resp)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
