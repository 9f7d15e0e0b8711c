package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/client/reconciler"
	"github.com/dmitrijs2005/htgen/internal/client/services"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmission struct {
	services.SubmissionService
	res   *services.SubmissionResult
	err   error
	last    services.Submission
	state   services.SubmissionState
	outcome services.SubmissionState
}

func (f *fakeSubmission) Submit(ctx context.Context, sub services.Submission) (*services.SubmissionResult, error) {
	f.last = sub
	return f.res, f.err
}

func (f *fakeSubmission) State() services.SubmissionState { return f.state }
func (f *fakeSubmission) Last() services.SubmissionState  { return f.outcome }

// memHistory is a tiny in-memory history, newest first.
type memHistory struct {
	services.HistoryService
	mu      sync.Mutex
	entries []models.HistoryEntry
	next    int64
	listErr error
}

func (m *memHistory) List(ctx context.Context) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]models.HistoryEntry(nil), m.entries...), nil
}

func (m *memHistory) Remove(ctx context.Context, ts int64) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.entries[:0]
	for _, e := range m.entries {
		if e.Timestamp != ts {
			out = append(out, e)
		}
	}
	m.entries = out
	return append([]models.HistoryEntry(nil), out...), nil
}

func (m *memHistory) Restore(ctx context.Context, e models.HistoryEntry) (*models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	e.Timestamp = m.next
	m.entries = append([]models.HistoryEntry{e}, m.entries...)
	return &e, nil
}

type fakeConn struct {
	status reconciler.Status
	checks int
	after  reconciler.Status
}

func (f *fakeConn) Check(ctx context.Context) reconciler.Status {
	f.checks++
	if f.after != reconciler.StatusUnknown {
		f.status = f.after
	}
	return f.status
}

func (f *fakeConn) Status() reconciler.Status { return f.status }

type fakeQueue struct {
	pending int
	syncs   int
	err     error
}

func (f *fakeQueue) Sync(ctx context.Context) error {
	f.syncs++
	if f.err == nil {
		f.pending = 0
	}
	return f.err
}

func (f *fakeQueue) Pending(ctx context.Context) (int, error) { return f.pending, nil }

type testApp struct {
	*App
	out  *bytes.Buffer
	sub  *fakeSubmission
	hist *memHistory
	conn *fakeConn
	q    *fakeQueue
}

func newTestApp() *testApp {
	ta := &testApp{
		out:  &bytes.Buffer{},
		sub:  &fakeSubmission{state: services.StateIdle, outcome: services.StateIdle},
		hist: &memHistory{next: 100},
		conn: &fakeConn{status: reconciler.StatusOnline},
		q:    &fakeQueue{},
	}
	ta.App = &App{
		log:        logging.Discard(),
		out:        ta.out,
		submission: ta.sub,
		history:    ta.hist,
		conn:       ta.conn,
		queue:      ta.q,
	}
	return ta
}

func writeImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestGenerate_PrintsHashtags(t *testing.T) {
	a := newTestApp()
	a.sub.res = &services.SubmissionResult{State: services.StateSuccess, Hashtags: []string{"#cat", "#cute"}}

	path := writeImage(t, "cat.png", []byte("PNG"))
	require.NoError(t, a.Generate(context.Background(), path, "de", "pets"))

	assert.Equal(t, "#cat #cute\n", a.out.String())
	assert.Equal(t, path, a.sub.last.FileName)
	assert.Equal(t, []byte("PNG"), a.sub.last.Content)
	assert.Equal(t, int64(3), a.sub.last.Size)
	assert.Equal(t, "de", a.sub.last.Language)
	assert.Equal(t, "pets", a.sub.last.Topic)
	assert.Zero(t, a.conn.checks, "known state needs no check")
}

func TestGenerate_ChecksUnknownState(t *testing.T) {
	a := newTestApp()
	a.conn.status = reconciler.StatusUnknown
	a.conn.after = reconciler.StatusOffline
	a.sub.res = &services.SubmissionResult{State: services.StateQueuedOffline, Message: common.OfflineQueuedMessage}

	path := writeImage(t, "cat.png", []byte("PNG"))
	require.NoError(t, a.Generate(context.Background(), path, "", ""))

	assert.Equal(t, 1, a.conn.checks)
	assert.Equal(t, common.OfflineQueuedMessage+"\n", a.out.String())
}

func TestGenerate_CacheHitIsMarked(t *testing.T) {
	a := newTestApp()
	a.sub.res = &services.SubmissionResult{State: services.StateCacheHit, Hashtags: []string{"#a"}}

	require.NoError(t, a.Generate(context.Background(), writeImage(t, "a.jpg", []byte("J")), "en", ""))
	assert.Equal(t, "#a\n(from history)\n", a.out.String())
}

func TestGenerate_Errors(t *testing.T) {
	a := newTestApp()

	err := a.Generate(context.Background(), filepath.Join(t.TempDir(), "missing.png"), "en", "")
	require.ErrorIs(t, err, common.ErrValidation)

	a.sub.err = common.ErrBusy
	err = a.Generate(context.Background(), writeImage(t, "a.png", []byte("P")), "en", "")
	require.ErrorIs(t, err, common.ErrBusy)
	assert.Empty(t, a.out.String())
}

func TestHistory_Output(t *testing.T) {
	a := newTestApp()
	require.NoError(t, a.History(context.Background()))
	assert.Equal(t, "History is empty.\n", a.out.String())

	a.out.Reset()
	a.hist.entries = []models.HistoryEntry{
		{Timestamp: 2, Hashtags: []string{"#b1", "#b2"}, Language: "de", Topic: models.OptionalTopic("pets")},
		{Timestamp: 1, Hashtags: []string{"#a"}, Language: "en"},
	}
	require.NoError(t, a.History(context.Background()))

	out := a.out.String()
	assert.Contains(t, out, "TIMESTAMP")
	assert.Contains(t, out, "#b1 #b2")
	assert.Contains(t, out, "pets")
	assert.Less(t, bytes.Index(a.out.Bytes(), []byte("#b1")), bytes.Index(a.out.Bytes(), []byte("#a")))

	a.hist.listErr = common.ErrUnsupportedSchema
	require.ErrorIs(t, a.History(context.Background()), common.ErrUnsupportedSchema)
}

func TestDeleteAndUndo(t *testing.T) {
	a := newTestApp()
	a.hist.entries = []models.HistoryEntry{
		{Timestamp: 2, Hashtags: []string{"#b"}, Language: "en"},
		{Timestamp: 1, Hashtags: []string{"#a"}, Language: "en"},
	}
	ctx := context.Background()

	require.ErrorIs(t, a.Delete(ctx, 42), common.ErrorNotFound)

	require.NoError(t, a.Delete(ctx, 1))
	require.NoError(t, a.Delete(ctx, 2))
	assert.Empty(t, a.hist.entries)

	require.NoError(t, a.Undo(ctx))
	require.Len(t, a.hist.entries, 1)
	assert.Equal(t, []string{"#b"}, a.hist.entries[0].Hashtags, "undo restores the last deletion first")
	assert.Equal(t, int64(101), a.hist.entries[0].Timestamp)

	require.NoError(t, a.Undo(ctx))
	require.Len(t, a.hist.entries, 2)
	assert.Equal(t, []string{"#a"}, a.hist.entries[0].Hashtags)

	require.EqualError(t, a.Undo(ctx), "nothing to undo")
}

func TestDrain(t *testing.T) {
	ctx := context.Background()

	t.Run("offline keeps queue", func(t *testing.T) {
		a := newTestApp()
		a.conn.after = reconciler.StatusOffline
		a.q.pending = 2

		require.NoError(t, a.Drain(ctx))
		assert.Zero(t, a.q.syncs)
		assert.Equal(t, "Offline: 2 pending request(s) kept.\n", a.out.String())
	})

	t.Run("online replays", func(t *testing.T) {
		a := newTestApp()
		a.q.pending = 2

		require.NoError(t, a.Drain(ctx))
		assert.Equal(t, 1, a.q.syncs)
		assert.Equal(t, "Pending requests processed, 0 remaining.\n", a.out.String())
	})

	t.Run("sync error", func(t *testing.T) {
		a := newTestApp()
		a.q.err = errors.New("db locked")
		require.EqualError(t, a.Drain(ctx), "db locked")
	})
}

func TestStatus(t *testing.T) {
	a := newTestApp()
	a.conn.status = reconciler.StatusOffline
	a.sub.outcome = services.StateQueuedOffline
	a.q.pending = 1

	require.NoError(t, a.Status(context.Background()))
	assert.Equal(t, "connection: offline\nsubmission: IDLE\nlast: QUEUED_OFFLINE\npending: 1\n", a.out.String())
	assert.Equal(t, "(offline)", a.getStatus())

	st := a.serverStatus(context.Background())
	assert.False(t, st.Online)
	assert.Equal(t, "IDLE", st.State)
	assert.Equal(t, "QUEUED_OFFLINE", st.Last)
	assert.Equal(t, 1, st.Pending)
}
