// Package queue holds writes that have not yet been acknowledged by the
// remote store. The queue is owned by the sync engine; every mutation is
// persisted as a whole so a restart resumes where the previous session
// stopped.
package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

const (
	// Retention is the maximum age of an operation restored by Load.
	Retention = 24 * time.Hour
	// TrimAge is the age beyond which operations are dropped when a save
	// fails and the queue has to shrink.
	TrimAge = time.Hour
)

// ErrDegraded reports that the queue could not be persisted and now lives
// in memory only.
var ErrDegraded = errors.New("pending queue degraded to memory-only")

// Persister stores and restores the whole queue.
type Persister interface {
	Save(ctx context.Context, ops []models.PendingOperation) error
	Load(ctx context.Context) ([]models.PendingOperation, error)
}

type Queue struct {
	persister Persister
	log       logging.Logger
	now       func() time.Time

	mu       sync.Mutex
	ops      []models.PendingOperation
	degraded bool
}

type Option func(*Queue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func New(p Persister, log logging.Logger, opts ...Option) *Queue {
	q := &Queue{
		persister: p,
		log:       log.With("module", "queue"),
		now:       time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Load replaces the in-memory queue with the persisted one, dropping
// operations older than Retention. A read failure leaves an empty queue.
func (q *Queue) Load(ctx context.Context) error {
	ops, err := q.persister.Load(ctx)
	if err != nil {
		q.mu.Lock()
		q.ops = nil
		q.mu.Unlock()
		return fmt.Errorf("failed to load pending operations: %w", err)
	}

	cutoff := q.now().Add(-Retention)
	kept := ops[:0]
	for _, op := range ops {
		if op.EnqueuedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, op)
	}
	if dropped := len(ops) - len(kept); dropped > 0 {
		q.log.Warn(ctx, "dropped expired pending operations", "count", dropped)
	}

	q.mu.Lock()
	q.ops = kept
	q.mu.Unlock()
	return nil
}

// Enqueue supersedes any queued operation for the same record and appends
// a fresh one with a zero retry count. The operation stays queued even when
// the returned error wraps ErrDegraded.
func (q *Queue) Enqueue(ctx context.Context, kind models.OperationKind, rec models.Record) (models.PendingOperation, error) {
	op := models.NewPendingOperation(kind, rec, q.now())

	q.mu.Lock()
	defer q.mu.Unlock()

	key := op.RecordKey()
	q.ops = slices.DeleteFunc(q.ops, func(o models.PendingOperation) bool {
		return o.RecordKey() == key
	})
	q.ops = append(q.ops, op)

	return op, q.persistLocked(ctx)
}

// DequeueSucceeded removes the operations with the given ids.
func (q *Queue) DequeueSucceeded(ctx context.Context, ids []string) error {
	_, err := q.Commit(ctx, ids, nil, 0)
	return err
}

// Commit applies the outcome of one drain pass and persists once:
// succeeded ids are removed, failed ids get their retry count bumped and
// are dropped once it reaches maxRetries. Dropped operations are returned.
func (q *Queue) Commit(ctx context.Context, succeeded, failed []string, maxRetries int) ([]models.PendingOperation, error) {
	if len(succeeded) == 0 && len(failed) == 0 {
		return nil, nil
	}

	done := make(map[string]struct{}, len(succeeded))
	for _, id := range succeeded {
		done[id] = struct{}{}
	}
	bumped := make(map[string]struct{}, len(failed))
	for _, id := range failed {
		bumped[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var dropped []models.PendingOperation
	kept := q.ops[:0]
	for _, op := range q.ops {
		if _, ok := done[op.ID]; ok {
			continue
		}
		if _, ok := bumped[op.ID]; ok {
			op.RetryCount++
			if maxRetries > 0 && op.RetryCount >= maxRetries {
				dropped = append(dropped, op)
				continue
			}
		}
		kept = append(kept, op)
	}
	q.ops = kept

	return dropped, q.persistLocked(ctx)
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil
	return q.persistLocked(ctx)
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Snapshot returns a copy of the queued operations in enqueue order.
func (q *Queue) Snapshot() []models.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.PendingOperation, len(q.ops))
	for i, op := range q.ops {
		op.Record = op.Record.Clone()
		out[i] = op
	}
	return out
}

// Has reports whether an operation for (table, id) is queued.
func (q *Queue) Has(table models.Table, id string) bool {
	key := models.RecordKey(table, id)
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.ContainsFunc(q.ops, func(o models.PendingOperation) bool {
		return o.RecordKey() == key
	})
}

// Degraded reports whether the queue stopped persisting.
func (q *Queue) Degraded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.degraded
}

// persistLocked saves the queue. On failure it trims operations older than
// TrimAge and retries once; a second failure switches the queue to memory
// only for the rest of the session.
func (q *Queue) persistLocked(ctx context.Context) error {
	if q.degraded {
		return ErrDegraded
	}

	err := q.persister.Save(ctx, q.ops)
	if err == nil {
		return nil
	}

	cutoff := q.now().Add(-TrimAge)
	before := len(q.ops)
	q.ops = slices.DeleteFunc(q.ops, func(o models.PendingOperation) bool {
		return o.EnqueuedAt.Before(cutoff)
	})
	q.log.Warn(ctx, "failed to persist pending operations, trimming",
		"error", err, "trimmed", before-len(q.ops))

	if err = q.persister.Save(ctx, q.ops); err == nil {
		return nil
	}

	q.degraded = true
	q.log.Error(ctx, "pending operations kept in memory only", "error", err, "size", len(q.ops))
	return fmt.Errorf("%w: %v", ErrDegraded, err)
}
