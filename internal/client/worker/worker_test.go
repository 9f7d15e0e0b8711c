package worker

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/repositories/pending"
	"github.com/dmitrijs2005/htgen/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stallTimeout = 100 * time.Millisecond

func withTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.RequestTimeout = d }
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}
	o.setDefaults()
	assert.Equal(t, DefaultRequestTimeout, o.RequestTimeout)
	assert.Equal(t, http.DefaultTransport, o.Network)
	assert.NotNil(t, o.Pending)
	assert.NotNil(t, o.Assets)
	assert.NotNil(t, o.PendingTx)
	assert.NotNil(t, o.AssetsTx)
}

func TestClose_ReturnsWhenRevalidationStalls(t *testing.T) {
	h := newHarnessWith(t, PolicyReplaceLatest, withTimeout(stallTimeout))
	require.NoError(t, h.w.Start(context.Background()))
	h.up.stalled.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.up.URL+"/static/css/style.css", nil)
	require.NoError(t, err)
	resp, err := h.w.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "HIT", resp.Header.Get(CacheStatusHeaderName))
	assert.Equal(t, "v1:/static/css/style.css", readBody(t, resp))

	done := make(chan struct{})
	go func() {
		_ = h.w.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a stalled revalidation")
	}
}

func TestFetch_MissBoundedByRequestTimeout(t *testing.T) {
	h := newHarnessWith(t, PolicyReplaceLatest, withTimeout(stallTimeout))
	h.up.stalled.Store(true)

	start := time.Now()
	_, err := get(t, h, "/static/extra.js", false)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDrain_StalledReplayKeepsRequest(t *testing.T) {
	h := newHarnessWith(t, PolicyReplaceLatest, withTimeout(stallTimeout))
	h.goOffline()
	_, err := postAPI(t, h, "stuck")
	require.NoError(t, err)

	h.goOnline()
	h.up.stalled.Store(true)

	type result struct{ replayed, remaining int }
	got := make(chan result, 1)
	go func() {
		replayed, remaining, err := h.w.Queue().Drain(context.Background())
		assert.NoError(t, err)
		got <- result{replayed, remaining}
	}()

	select {
	case r := <-got:
		assert.Zero(t, r.replayed)
		assert.Equal(t, 1, r.remaining)
	case <-time.After(2 * time.Second):
		t.Fatal("Drain blocked on a stalled replay")
	}

	h.up.stalled.Store(false)
	replayed, remaining, err := h.w.Queue().Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)
	assert.Zero(t, remaining)
}

func TestNew_UsesInjectedQueueRepositories(t *testing.T) {
	var inserts, lists, bound atomic.Int32
	h := newHarnessWith(t, PolicyReplaceLatest, func(o *Options) {
		o.Pending = countingPending{Repository: pending.NewSQLiteRepository(o.DB), inserts: &inserts, lists: &lists}
		o.PendingTx = func(tx dbx.DBTX) pending.Repository {
			bound.Add(1)
			return countingPending{Repository: pending.NewSQLiteRepository(tx), inserts: &inserts, lists: &lists}
		}
	})
	h.goOffline()

	_, err := postAPI(t, h, "queued")
	require.NoError(t, err)
	assert.Equal(t, int32(1), bound.Load())
	assert.Equal(t, int32(1), inserts.Load())

	h.goOnline()
	require.NoError(t, h.w.Sync(context.Background()))
	assert.Equal(t, int32(1), lists.Load())
	require.Len(t, h.up.calls(), 1)
}
