package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/htgen/internal/client/notify"
	"github.com/dmitrijs2005/htgen/internal/client/reconciler"
	"github.com/dmitrijs2005/htgen/internal/client/server"
	"golang.org/x/sync/errgroup"
)

// Serve runs the local origin server next to the connectivity watcher until
// the process is interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a.log.Info(ctx, "Starting htgen...")

	if err := a.worker.Start(ctx); err != nil {
		a.log.Warn(ctx, "asset pre-cache failed, keeping the previous cache", "error", err)
	}

	srv := server.New(server.Options{
		Addr:          a.config.ListenAddr,
		Upstream:      a.api.BaseURL(),
		Assets:        a.worker,
		Submission:    a.submission,
		History:       a.history,
		Notifications: notify.NewHub(a.broadcaster, a.log.With("module", "notify")),
		Status:        a.serverStatus,
		Log:           a.log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.reconciler.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

func (a *App) serverStatus(ctx context.Context) server.Status {
	st := server.Status{
		Online: a.conn.Status() == reconciler.StatusOnline,
		State:  string(a.submission.State()),
		Last:   string(a.submission.Last()),
	}
	if n, err := a.queue.Pending(ctx); err == nil {
		st.Pending = n
	}
	return st
}

// Run starts the interactive loop on in. The connectivity watcher runs for
// the lifetime of the loop.
func (a *App) Run(ctx context.Context, in io.Reader) {
	if stdinIsTerminal() {
		a.printf("htgen (type 'help' for commands)\n")
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.watch(wctx)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(in))
}
