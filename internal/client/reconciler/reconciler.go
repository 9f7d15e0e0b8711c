// Package reconciler watches upstream reachability and reacts to online and
// offline transitions: pending requests are drained when the connection
// returns and every UI surface is told about the new state.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/logging"
)

const (
	OnlineMessage  = "You are back online. Pending requests were processed."
	OfflineMessage = "You are offline. Generation is disabled until the connection is restored."
)

// DefaultCheckTimeout bounds a single reachability check.
const DefaultCheckTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Syncer drains the pending-request queue.
type Syncer interface {
	Sync(ctx context.Context) error
}

type Publisher interface {
	Publish(n models.Notification) int
}

type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	}
	return "unknown"
}

type Reconciler struct {
	pinger       Pinger
	syncer       Syncer
	pub          Publisher
	log          logging.Logger
	interval     time.Duration
	checkTimeout time.Duration

	// mu serializes transitions so a drain never overlaps another one.
	mu     sync.Mutex
	status Status

	statusMu sync.RWMutex
}

func New(p Pinger, s Syncer, pub Publisher, interval time.Duration, log logging.Logger) *Reconciler {
	return &Reconciler{
		pinger:       p,
		syncer:       s,
		pub:          pub,
		log:          log,
		interval:     interval,
		checkTimeout: DefaultCheckTimeout,
	}
}

func (r *Reconciler) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

func (r *Reconciler) setStatus(s Status) {
	r.statusMu.Lock()
	r.status = s
	r.statusMu.Unlock()
}

// IsOnline reports the last observed state. Unknown counts as offline.
func (r *Reconciler) IsOnline() bool {
	return r.Status() == StatusOnline
}

// Check pings the upstream once and applies any resulting transition.
func (r *Reconciler) Check(ctx context.Context) Status {
	pctx, cancel := context.WithTimeout(ctx, r.checkTimeout)
	err := r.pinger.Ping(pctx)
	cancel()

	if err != nil {
		r.log.Debug(ctx, "upstream check failed", "error", err)
		r.HandleOffline(ctx)
	} else {
		r.HandleOnline(ctx)
	}
	return r.Status()
}

// Watch checks immediately and then every interval until ctx is done.
func (r *Reconciler) Watch(ctx context.Context) {
	r.Check(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// HandleOnline reacts to the online event. It is a no-op when already
// online.
func (r *Reconciler) HandleOnline(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status() == StatusOnline {
		return
	}
	r.setStatus(StatusOnline)
	r.log.Info(ctx, "switched to online mode")
	r.drainAndAnnounce(ctx)
}

// HandleOffline reacts to the offline event. It is a no-op when already
// offline.
func (r *Reconciler) HandleOffline(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status() == StatusOffline {
		return
	}
	r.setStatus(StatusOffline)
	r.log.Info(ctx, "switched to offline mode")
	r.pub.Publish(models.NewOfflineStateNotification(true, OfflineMessage))
}

// ConnectionChanged handles a change of network type. While online it
// drains the queue again; the new link may reach what the old one did not.
func (r *Reconciler) ConnectionChanged(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status() != StatusOnline {
		return
	}
	r.log.Info(ctx, "connection changed")
	r.drainAndAnnounce(ctx)
}

func (r *Reconciler) drainAndAnnounce(ctx context.Context) {
	if err := r.syncer.Sync(ctx); err != nil {
		r.log.Warn(ctx, "processing pending requests failed", "error", err)
	}
	r.pub.Publish(models.NewOfflineStateNotification(false, OnlineMessage))
}
