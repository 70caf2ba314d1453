// Package syncer drains the pending-operation queue against the remote
// store and tracks the connection state shown to operators.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/queue"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

var (
	ErrLocalOnly      = errors.New("no remote store configured")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrOffline        = errors.New("remote store offline")
)

type Config struct {
	// Interval between periodic drain checks.
	Interval time.Duration
	// MinGap is the minimum time between two periodic attempts.
	MinGap     time.Duration
	BatchSize  int
	BatchPause time.Duration
	// MaxRetries drops an operation once its retry count reaches it.
	MaxRetries int
	AutoSync   bool
	// FlushTimeout bounds the best-effort send on shutdown.
	FlushTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   10 * time.Second,
		MinGap:     5 * time.Second,
		BatchSize:  5,
		BatchPause: 100 * time.Millisecond,
		MaxRetries:   5,
		AutoSync:     true,
		FlushTimeout: 5 * time.Second,
	}
}

type Engine struct {
	remote remote.Store
	queue  *queue.Queue
	log    logging.Logger
	cfg    Config
	now    func() time.Time

	mu             sync.Mutex
	online         bool
	syncing        bool
	autoSync       bool
	lastAttempt    time.Time
	authRequired   bool
	degradedReason string
	lastErr        string
	subs           map[int]func(Status)
	nextSub        int
	// inFlight holds the keys of records being sent directly. At most one
	// write per record is on the wire at any time.
	inFlight map[string]struct{}
	// sends counts direct sends; ForceSyncAll waits for them.
	sends sync.WaitGroup

	// enqueueMu orders the queue-or-skip decision of concurrent Submits.
	enqueueMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine. A nil remote puts the engine in local-only mode.
func New(r remote.Store, q *queue.Queue, cfg Config, log logging.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	e := &Engine{
		remote:   r,
		queue:    q,
		log:      log.With("module", "syncer"),
		cfg:      cfg,
		now:      time.Now,
		autoSync: cfg.AutoSync,
		subs:     make(map[int]func(Status)),
		inFlight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Status returns the current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	s := e.statusLocked()
	e.mu.Unlock()
	return s
}

func (e *Engine) statusLocked() Status {
	s := Status{
		Online:           e.online,
		RemoteConfigured: e.remote != nil,
		QueueSize:        e.queue.Size(),
		Syncing:          e.syncing,
		AutoSync:         e.autoSync,
		LastAttempt:      e.lastAttempt,
		AuthRequired:     e.authRequired,
		DegradedReason:   e.degradedReason,
		LastError:        e.lastErr,
	}
	if s.DegradedReason == "" && e.queue.Degraded() {
		s.DegradedReason = queue.ErrDegraded.Error()
	}
	s.Degraded = s.DegradedReason != ""
	s.Phase = phaseOf(s)
	return s
}

// Subscribe registers fn for status changes. fn runs on the goroutine that
// caused the change and must not block.
func (e *Engine) Subscribe(fn func(Status)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	s := e.statusLocked()
	subs := make([]func(Status), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

func (e *Engine) SetAutoSync(v bool) {
	e.mu.Lock()
	e.autoSync = v
	e.mu.Unlock()
	e.notify()
}

// MarkDegraded records that local persistence is running from memory.
func (e *Engine) MarkDegraded(reason string) {
	e.mu.Lock()
	changed := e.degradedReason != reason
	e.degradedReason = reason
	e.mu.Unlock()
	if changed {
		e.notify()
	}
}

// SetOnline records reachability. Coming online triggers a drain.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	changed := e.online != online
	e.online = online
	e.mu.Unlock()

	if !changed {
		return
	}
	e.log.Info(ctx, "connectivity changed", "online", online)
	e.notify()

	if online && e.queue.Size() > 0 {
		e.trigger(ctx, "online")
	}
}

// OnVisible is called when the process resumes after being suspended.
func (e *Engine) OnVisible(ctx context.Context) {
	e.mu.Lock()
	online := e.online
	e.mu.Unlock()

	if online && e.queue.Size() > 0 {
		e.trigger(ctx, "visible")
	}
}

func (e *Engine) trigger(ctx context.Context, reason string) {
	res, err := e.SyncPendingOperations(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline), errors.Is(err, ErrLocalOnly):
	case err != nil:
		e.log.Warn(ctx, "drain failed", "reason", reason, "error", err)
	default:
		e.log.Debug(ctx, "drain finished", "reason", reason,
			"succeeded", res.Succeeded, "failed", res.Failed, "deferred", res.AuthDeferred)
	}
}

// Submit decides between sending rec now and queueing it. The record is
// sent directly only when the remote is reachable and authenticated, no
// drain is running, nothing is queued for the same record and no other
// write of it is on the wire; anything else goes to the queue. Local-only
// engines ignore submissions.
func (e *Engine) Submit(ctx context.Context, kind models.OperationKind, rec models.Record) error {
	if e.remote == nil {
		return nil
	}

	if !e.reserve(rec) {
		return e.enqueue(ctx, kind, rec, false)
	}
	defer e.release(rec)

	if e.remote.IsAuthenticated(ctx) {
		err := e.remote.Save(ctx, rec)
		if err == nil {
			e.mu.Lock()
			e.authRequired = false
			e.mu.Unlock()
			e.notify()
			return nil
		}
		e.log.Warn(ctx, "direct save failed, queueing", "key", rec.Key(), "error", err)
		e.mu.Lock()
		e.lastErr = err.Error()
		if remote.IsAuthError(err) {
			e.authRequired = true
		}
		e.mu.Unlock()
	}

	// Still reserved here, so no newer write can be sent before this one
	// is queued.
	return e.enqueue(ctx, kind, rec, true)
}

// reserve claims the direct-send slot of rec's key.
func (e *Engine) reserve(rec models.Record) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.online || e.syncing || e.queue.Has(rec.Table, rec.ID) {
		return false
	}
	key := rec.Key()
	if _, busy := e.inFlight[key]; busy {
		return false
	}
	e.inFlight[key] = struct{}{}
	e.sends.Add(1)
	return true
}

func (e *Engine) release(rec models.Record) {
	e.mu.Lock()
	delete(e.inFlight, rec.Key())
	e.mu.Unlock()
	e.sends.Done()
}

func (e *Engine) isInFlight(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inFlight[key]
	return ok
}

// enqueue queues rec. A failed direct send is not queued when a write
// submitted while it was in flight is already waiting: that write is newer
// and carries the full record.
func (e *Engine) enqueue(ctx context.Context, kind models.OperationKind, rec models.Record, fallback bool) error {
	e.enqueueMu.Lock()
	defer e.enqueueMu.Unlock()

	if fallback && e.queue.Has(rec.Table, rec.ID) {
		e.log.Debug(ctx, "newer write already queued, dropping failed send", "key", rec.Key())
		return nil
	}

	_, err := e.queue.Enqueue(ctx, kind, rec)
	e.notify()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", rec.Key(), err)
	}
	return nil
}

// HasPending reports whether a write for (table, id) waits in the queue.
func (e *Engine) HasPending(table models.Table, id string) bool {
	return e.queue.Has(table, id)
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeAuth
	outcomeFailed
	// the drain was cancelled; the operation is neither charged nor removed
	outcomeCancelled
)

// SyncPendingOperations drains the queue once: operations are sent in
// batches of Config.BatchSize, concurrently within a batch, with a short
// pause between batches. Successes leave the queue, auth failures stay
// without spending a retry and other failures bump the retry count. The
// queue is persisted once per pass.
func (e *Engine) SyncPendingOperations(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	if e.remote == nil {
		return res, ErrLocalOnly
	}

	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return res, ErrSyncInProgress
	}
	if !e.online {
		e.mu.Unlock()
		return res, ErrOffline
	}
	e.syncing = true
	e.lastAttempt = e.now()
	e.mu.Unlock()
	e.notify()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
		e.notify()
	}()

	ops := e.pendingNotInFlight(ctx)
	if len(ops) == 0 {
		return res, nil
	}

	if !e.remote.IsAuthenticated(ctx) {
		res.AuthDeferred = len(ops)
		e.mu.Lock()
		e.authRequired = true
		e.mu.Unlock()
		e.log.Info(ctx, "not authenticated, pending operations kept", "count", len(ops))
		return res, nil
	}

	var (
		succeeded, failed []string
		lastErr           error
	)
	for start := 0; start < len(ops); start += e.cfg.BatchSize {
		if start > 0 {
			if err := sleep(ctx, e.cfg.BatchPause); err != nil {
				break
			}
		}
		end := min(start+e.cfg.BatchSize, len(ops))
		batch := ops[start:end]

		outcomes := make([]outcome, len(batch))
		errs := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, op := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := e.remote.Save(ctx, op.Record)
				errs[i] = err
				switch {
				case err == nil:
					outcomes[i] = outcomeOK
				case ctx.Err() != nil:
					outcomes[i] = outcomeCancelled
				case remote.IsAuthError(err):
					outcomes[i] = outcomeAuth
				default:
					outcomes[i] = outcomeFailed
				}
			}()
		}
		wg.Wait()

		for i, op := range batch {
			res.Attempted++
			switch outcomes[i] {
			case outcomeOK:
				res.Succeeded++
				succeeded = append(succeeded, op.ID)
			case outcomeAuth:
				res.AuthDeferred++
				lastErr = errs[i]
			case outcomeFailed:
				res.Failed++
				failed = append(failed, op.ID)
				lastErr = errs[i]
				e.log.Warn(ctx, "pending operation failed", "op", op.ID, "retry", op.RetryCount+1, "error", errs[i])
			case outcomeCancelled:
				res.Attempted--
			}
		}
	}

	dropped, err := e.queue.Commit(ctx, succeeded, failed, e.cfg.MaxRetries)
	res.Dropped = len(dropped)
	for _, op := range dropped {
		e.log.Error(ctx, "pending operation dropped after max retries",
			"op", op.ID, "kind", op.Kind, "key", op.RecordKey(), "retries", op.RetryCount)
	}

	e.mu.Lock()
	e.authRequired = res.AuthDeferred > 0
	if lastErr != nil {
		e.lastErr = lastErr.Error()
	} else {
		e.lastErr = ""
	}
	e.mu.Unlock()

	if err != nil {
		if errors.Is(err, queue.ErrDegraded) {
			e.MarkDegraded(queue.ErrDegraded.Error())
			return res, nil
		}
		return res, err
	}
	return res, ctx.Err()
}

// pendingNotInFlight snapshots the queue without the operations whose
// record is being sent directly; they wait for the next pass so the older
// direct write cannot land after them.
func (e *Engine) pendingNotInFlight(ctx context.Context) []models.PendingOperation {
	all := e.queue.Snapshot()
	ops := all[:0:0]
	for _, op := range all {
		if e.isInFlight(op.RecordKey()) {
			e.log.Debug(ctx, "record in flight, operation deferred", "op", op.ID)
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

// ForceSyncAll pushes a whole dataset, bypassing the queue. On success the
// queue is cleared since every record it holds was part of snap.
func (e *Engine) ForceSyncAll(ctx context.Context, snap models.Snapshot) error {
	if e.remote == nil {
		return ErrLocalOnly
	}

	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return ErrSyncInProgress
	}
	if !e.online {
		e.mu.Unlock()
		return ErrOffline
	}
	e.syncing = true
	e.lastAttempt = e.now()
	e.mu.Unlock()
	e.notify()

	// syncing blocks new direct sends; wait for the ones already out.
	e.sends.Wait()

	err := e.pushAll(ctx, snap)

	e.mu.Lock()
	e.syncing = false
	if err != nil {
		e.lastErr = err.Error()
		e.authRequired = remote.IsAuthError(err)
	} else {
		e.lastErr = ""
		e.authRequired = false
	}
	e.mu.Unlock()

	if err == nil {
		if cerr := e.queue.Clear(ctx); cerr != nil && !errors.Is(cerr, queue.ErrDegraded) {
			e.log.Warn(ctx, "failed to clear pending operations", "error", cerr)
		}
		e.log.Info(ctx, "force sync completed", "records", snap.Len())
	} else {
		e.log.Error(ctx, "force sync failed", "error", err)
	}
	e.notify()

	if err != nil {
		return fmt.Errorf("force sync: %w", err)
	}
	return nil
}

func (e *Engine) pushAll(ctx context.Context, snap models.Snapshot) error {
	if bs, ok := e.remote.(remote.BulkSaver); ok {
		return bs.SaveAll(ctx, snap)
	}
	for _, t := range models.AllTables {
		for _, r := range snap[t] {
			if err := e.remote.Save(ctx, r); err != nil {
				return fmt.Errorf("save %s: %w", r.Key(), err)
			}
		}
	}
	return nil
}

// Flush sends every queued operation once, concurrently, without waiting
// for confirmation to change the queue. It is meant for shutdown: the
// queue is left as is and drained again on the next start. The whole send
// is bounded by Config.FlushTimeout.
func (e *Engine) Flush(ctx context.Context) {
	if e.remote == nil {
		return
	}
	e.mu.Lock()
	online := e.online
	e.mu.Unlock()
	if !online {
		return
	}

	ops := e.queue.Snapshot()
	if len(ops) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.FlushTimeout)
	defer cancel()

	e.log.Info(ctx, "flushing pending operations", "count", len(ops))
	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.remote.Save(ctx, op.Record); err != nil {
				e.log.Debug(ctx, "flush save failed", "op", op.ID, "error", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn(ctx, "flush gave up waiting for the remote store", "error", ctx.Err())
	}
}

// Start runs the periodic drain loop until ctx is cancelled or Stop is
// called.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.due() {
					e.trigger(ctx, "tick")
				}
			}
		}
	}()
}

// due reports whether a periodic drain should run now.
func (e *Engine) due() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote != nil &&
		e.online &&
		e.autoSync &&
		!e.syncing &&
		e.queue.Size() > 0 &&
		e.now().Sub(e.lastAttempt) >= e.cfg.MinGap
}

// Stop ends the periodic loop and drops all subscriptions.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.subs = make(map[int]func(Status))
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
