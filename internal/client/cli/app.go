package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/client"
	"github.com/dmitrijs2005/htgen/internal/client/config"
	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/client/notify"
	"github.com/dmitrijs2005/htgen/internal/client/reconciler"
	"github.com/dmitrijs2005/htgen/internal/client/services"
	"github.com/dmitrijs2005/htgen/internal/client/worker"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/filex"
	"github.com/dmitrijs2005/htgen/internal/logging"
)

// connectivity is the part of the reconciler the commands need.
type connectivity interface {
	Check(ctx context.Context) reconciler.Status
	Status() reconciler.Status
}

// drainer replays queued requests and reports how many remain.
type drainer interface {
	Sync(ctx context.Context) error
	Pending(ctx context.Context) (int, error)
}

type App struct {
	config      *config.Config
	log         logging.Logger
	out         io.Writer
	reader      *bufio.Reader
	db          *sql.DB
	worker      *worker.Worker
	api         *client.HTTPClient
	broadcaster *notify.Broadcaster
	reconciler  *reconciler.Reconciler

	history    services.HistoryService
	submission services.SubmissionService
	conn       connectivity
	queue      drainer

	// removed holds entries deleted in this session, most recent last, for
	// undo.
	undoMu  sync.Mutex
	removed []models.HistoryEntry
}

// workerQueue adapts the worker to drainer.
type workerQueue struct {
	w *worker.Worker
}

func (q workerQueue) Sync(ctx context.Context) error { return q.w.Sync(ctx) }
func (q workerQueue) Pending(ctx context.Context) (int, error) {
	return q.w.Queue().Len(ctx)
}

// NewApp opens the local database and wires the worker, the API client, the
// services and the connectivity reconciler together.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger, out io.Writer) (*App, error) {
	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	origin, err := url.Parse(c.ServerBaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	policy, err := worker.ParsePolicy(c.QueuePolicy)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	repos := client.NewRepositories(db, c.HistoryQuotaBytes)

	w := worker.New(worker.Options{
		Origin:         origin,
		DB:             db,
		Pending:        repos.Pending,
		Assets:         repos.Assets,
		PendingTx:      repos.PendingTx,
		AssetsTx:       repos.AssetsTx,
		RequestTimeout: c.RequestTimeout,
		CacheVersion:   c.CacheVersion,
		QueuePolicy:    policy,
		Log:            log.With("module", "worker"),
	})

	api, err := client.NewHTTPClient(c.ServerBaseURL, w, c.RequestTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	history := services.NewHistoryService(repos.KV, log.With("module", "history"))
	recorder := services.NewReplayRecorder(history, log.With("module", "replay"))
	w.Queue().OnReplay(recorder.Record)

	b := notify.NewBroadcaster(notify.DefaultBuffer)
	rec := reconciler.New(api, w, b, c.OnlineCheckInterval, log.With("module", "reconciler"))
	w.SetOnlineChecker(rec)

	sub := services.NewSubmissionService(api, history, log.With("module", "submission"), c.DefaultLanguage)

	return &App{
		config:      c,
		log:         log,
		out:         out,
		reader:      bufio.NewReader(os.Stdin),
		db:          db,
		worker:      w,
		api:         api,
		broadcaster: b,
		reconciler:  rec,
		history:     history,
		submission:  sub,
		conn:        rec,
		queue:       workerQueue{w: w},
	}, nil
}

// Close waits for background cache writes and releases the database.
func (a *App) Close() error {
	var errs []error
	if a.api != nil {
		errs = append(errs, a.api.Close())
	}
	if a.worker != nil {
		errs = append(errs, a.worker.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// ensureChecked runs one connectivity check when the state is still unknown,
// so a failed upload is queued only when the upstream is really gone.
func (a *App) ensureChecked(ctx context.Context) {
	if a.conn.Status() == reconciler.StatusUnknown {
		a.conn.Check(ctx)
	}
}

// Generate submits the image at path and prints the resulting hashtags.
func (a *App) Generate(ctx context.Context, path, language, topic string) error {
	content, size, err := filex.ReadUpTo(path, services.MaxImageBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	a.ensureChecked(ctx)

	res, err := a.submission.Submit(ctx, services.Submission{
		FileName: path,
		Content:  content,
		Size:     size,
		Language: language,
		Topic:    topic,
	})
	if err != nil {
		return err
	}

	switch res.State {
	case services.StateQueuedOffline:
		a.printf("%s\n", res.Message)
	case services.StateCacheHit:
		a.printf("%s\n(from history)\n", strings.Join(res.Hashtags, " "))
	default:
		a.printf("%s\n", strings.Join(res.Hashtags, " "))
	}
	return nil
}

// History prints stored entries, newest first.
func (a *App) History(ctx context.Context) error {
	entries, err := a.history.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.printf("History is empty.\n")
		return nil
	}
	return writeHistory(a.out, entries)
}

// Delete removes the entry with timestamp ts and remembers it for Undo.
func (a *App) Delete(ctx context.Context, ts int64) error {
	entries, err := a.history.List(ctx)
	if err != nil {
		return err
	}
	var victim *models.HistoryEntry
	for i := range entries {
		if entries[i].Timestamp == ts {
			victim = &entries[i]
			break
		}
	}
	if victim == nil {
		return fmt.Errorf("history entry %d: %w", ts, common.ErrorNotFound)
	}

	if _, err := a.history.Remove(ctx, ts); err != nil {
		return err
	}

	a.undoMu.Lock()
	a.removed = append(a.removed, *victim)
	a.undoMu.Unlock()

	a.printf("Deleted entry %d.\n", ts)
	return nil
}

// Undo restores the most recently deleted entry under a fresh timestamp.
func (a *App) Undo(ctx context.Context) error {
	a.undoMu.Lock()
	if len(a.removed) == 0 {
		a.undoMu.Unlock()
		return errors.New("nothing to undo")
	}
	entry := a.removed[len(a.removed)-1]
	a.removed = a.removed[:len(a.removed)-1]
	a.undoMu.Unlock()

	restored, err := a.history.Restore(ctx, entry)
	if err != nil {
		a.undoMu.Lock()
		a.removed = append(a.removed, entry)
		a.undoMu.Unlock()
		return err
	}
	if restored == nil {
		return fmt.Errorf("restore entry %d: %w", entry.Timestamp, common.ErrQuotaExceeded)
	}
	a.printf("Restored entry as %d.\n", restored.Timestamp)
	return nil
}

// Drain replays queued requests when the upstream is reachable.
func (a *App) Drain(ctx context.Context) error {
	if st := a.conn.Check(ctx); st != reconciler.StatusOnline {
		n, err := a.queue.Pending(ctx)
		if err != nil {
			return err
		}
		a.printf("Offline: %d pending request(s) kept.\n", n)
		return nil
	}

	if err := a.queue.Sync(ctx); err != nil {
		return err
	}
	n, err := a.queue.Pending(ctx)
	if err != nil {
		return err
	}
	a.printf("Pending requests processed, %d remaining.\n", n)
	return nil
}

// Status prints connectivity, the current and last submission states and
// the queue length.
func (a *App) Status(ctx context.Context) error {
	n, err := a.queue.Pending(ctx)
	if err != nil {
		return err
	}
	a.printf("connection: %s\nsubmission: %s\nlast: %s\npending: %d\n",
		a.conn.Status(), a.submission.State(), a.submission.Last(), n)
	return nil
}

// getStatus is the short REPL prompt label.
func (a *App) getStatus() string {
	if a.conn == nil {
		return ""
	}
	return fmt.Sprintf("(%s)", a.conn.Status())
}

// watch keeps the connectivity state current for long-lived sessions and
// prints broadcast notifications.
func (a *App) watch(ctx context.Context) {
	notes, cancel := a.broadcaster.Subscribe()
	defer cancel()

	go a.reconciler.Watch(ctx)

	for {
		select {
		case n := <-notes:
			a.printf("\n%s\n", n.Payload.Message)
		case <-ctx.Done():
			return
		}
	}
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}
