// Package connectivity polls the remote store and reports reachability
// changes to the sync engine.
package connectivity

import (
	"context"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
)

const (
	DefaultInterval = 3 * time.Second
	PingTimeout     = 3 * time.Second
)

// Sink receives reachability.
type Sink interface {
	SetOnline(ctx context.Context, online bool)
}

type Watcher struct {
	remote   remote.Store
	sink     Sink
	log      logging.Logger
	interval time.Duration
	timeout  time.Duration
	// OnReconnect runs after the remote comes back.
	onReconnect func(ctx context.Context)

	online bool
}

type Option func(*Watcher)

func WithTimeout(d time.Duration) Option {
	return func(w *Watcher) { w.timeout = d }
}

// WithReconnect registers fn to run on every offline to online transition.
func WithReconnect(fn func(ctx context.Context)) Option {
	return func(w *Watcher) { w.onReconnect = fn }
}

func New(r remote.Store, sink Sink, interval time.Duration, log logging.Logger, opts ...Option) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w := &Watcher{
		remote:   r,
		sink:     sink,
		log:      log.With("module", "connectivity"),
		interval: interval,
		timeout:  PingTimeout,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Check pings the remote once and reports the result.
func (w *Watcher) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := remote.Ping(pctx, w.remote)
	cancel()

	online := err == nil
	if err != nil && ctx.Err() == nil {
		w.log.Debug(ctx, "remote ping failed", "error", err)
	}

	was := w.online
	w.online = online
	w.sink.SetOnline(ctx, online)

	if online && !was && w.onReconnect != nil {
		w.onReconnect(ctx)
	}
	return online
}

// Run checks immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	if w.remote == nil {
		return
	}

	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
