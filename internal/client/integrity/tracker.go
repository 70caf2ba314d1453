// Package integrity detects local records whose stored fields no longer
// match the checksum recorded when they were written, and repairs them
// from the remote store.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/checksum"
	"github.com/dmitrijs2005/shiftsync/internal/client/conflict"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the check every five minutes.
const DefaultSchedule = "@every 5m"

type LocalStore interface {
	Get(ctx context.Context, table models.Table, id string) (*models.Record, error)
	Put(ctx context.Context, rec models.Record) error
}

// Submitter hands a repaired record to the sync engine.
type Submitter interface {
	Submit(ctx context.Context, kind models.OperationKind, rec models.Record) error
}

// Report summarizes one RunIntegrityCheck pass.
type Report struct {
	Checked    int `json:"checked"`
	Mismatched int `json:"mismatched"`
	Healed     int `json:"healed"`
	// Deferred mismatches are retried on the next pass.
	Deferred  int `json:"deferred"`
	Forgotten int `json:"forgotten"`
}

type Tracker struct {
	local  LocalStore
	remote remote.Store
	submit Submitter
	log    logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	checks map[string]models.IntegrityCheck

	cronMu sync.Mutex
	cron   *cron.Cron
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New builds a tracker. rem may be nil, in which case mismatches are only
// reported.
func New(local LocalStore, rem remote.Store, submit Submitter, log logging.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		local:  local,
		remote: rem,
		submit: submit,
		log:    log.With("module", "integrity"),
		now:    time.Now,
		checks: make(map[string]models.IntegrityCheck),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) ComputeChecksum(rec models.Record) string {
	return checksum.Of(rec)
}

// RecordChecksum remembers the expected checksum of (table, id).
func (t *Tracker) RecordChecksum(table models.Table, id, sum string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checks[models.RecordKey(table, id)] = models.IntegrityCheck{
		Table:     table,
		RecordID:  id,
		Checksum:  sum,
		CheckedAt: t.now(),
	}
}

func (t *Tracker) Forget(table models.Table, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.checks, models.RecordKey(table, id))
}

// Tracked returns the number of records under watch.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.checks)
}

func (t *Tracker) expected(key string) (models.IntegrityCheck, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.checks[key]
	return c, ok
}

// RunIntegrityCheck recomputes the checksum of every tracked record. A
// mismatch is repaired by resolving the local copy against the remote one;
// the result is stored, re-tracked and submitted as a new write.
func (t *Tracker) RunIntegrityCheck(ctx context.Context) Report {
	t.mu.Lock()
	pending := make([]models.IntegrityCheck, 0, len(t.checks))
	for _, c := range t.checks {
		pending = append(pending, c)
	}
	t.mu.Unlock()

	var rep Report
	for _, c := range pending {
		if ctx.Err() != nil {
			break
		}
		rep.Checked++

		local, err := t.local.Get(ctx, c.Table, c.RecordID)
		corrupt := errors.Is(err, records.ErrCorruptPayload)
		switch {
		case errors.Is(err, common.ErrNotFound):
			t.Forget(c.Table, c.RecordID)
			rep.Forgotten++
			continue
		case err != nil && !corrupt:
			t.log.Warn(ctx, "failed to read tracked record", "table", c.Table, "id", c.RecordID, "error", err)
			rep.Deferred++
			continue
		}

		if !corrupt && checksum.Of(*local) == c.Checksum {
			continue
		}
		rep.Mismatched++
		t.log.Warn(ctx, "checksum mismatch", "table", c.Table, "id", c.RecordID, "corrupt", corrupt)

		if err := t.heal(ctx, c, local, corrupt); err != nil {
			t.log.Warn(ctx, "integrity repair deferred", "table", c.Table, "id", c.RecordID, "error", err)
			rep.Deferred++
			continue
		}
		rep.Healed++
	}

	if rep.Mismatched > 0 || rep.Forgotten > 0 {
		t.log.Info(ctx, "integrity check finished",
			"checked", rep.Checked, "mismatched", rep.Mismatched, "healed", rep.Healed, "deferred", rep.Deferred)
	}
	return rep
}

func (t *Tracker) heal(ctx context.Context, c models.IntegrityCheck, local *models.Record, corrupt bool) error {
	if t.remote == nil {
		return errors.New("no remote store to repair from")
	}

	canonical, err := remote.Load(ctx, t.remote, c.Table, c.RecordID)
	if err != nil {
		return fmt.Errorf("load canonical copy: %w", err)
	}

	var resolved models.Record
	if corrupt {
		// nothing trustworthy on this side, take the remote fields
		resolved = canonical.Clone()
		resolved.Version = max(local.Version, canonical.Version) + 1
		resolved.LastModified = t.now()
		resolved.Checksum = checksum.Of(resolved)
	} else {
		resolved = conflict.Resolve(*local, *canonical, t.now())
	}

	// a user write that landed while the remote copy was loading wins; the
	// next pass judges the new record
	current, err := t.local.Get(ctx, c.Table, c.RecordID)
	if err != nil && !errors.Is(err, records.ErrCorruptPayload) {
		return fmt.Errorf("re-read local copy: %w", err)
	}
	if moved(local, current) {
		return errLocalMoved
	}

	// the key stays tracked if the store falls back to memory
	if err := t.local.Put(ctx, resolved); err != nil {
		t.log.Warn(ctx, "failed to persist repaired record", "key", resolved.Key(), "error", err)
	}
	t.RecordChecksum(resolved.Table, resolved.ID, resolved.Checksum)

	if t.submit != nil {
		kind := models.OperationUpdate
		if resolved.IsDeleted() {
			kind = models.OperationDelete
		}
		if err := t.submit.Submit(ctx, kind, resolved); err != nil {
			t.log.Warn(ctx, "failed to submit repaired record", "key", resolved.Key(), "error", err)
		}
	}
	return nil
}

var errLocalMoved = errors.New("local record changed during repair")

func moved(before, after *models.Record) bool {
	if before == nil || after == nil {
		return before != after
	}
	return before.Version != after.Version ||
		before.Checksum != after.Checksum ||
		!before.LastModified.Equal(after.LastModified) ||
		before.IsDeleted() != after.IsDeleted()
}

// Start schedules RunIntegrityCheck with a cron spec such as "@every 5m".
func (t *Tracker) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { t.RunIntegrityCheck(ctx) }); err != nil {
		return fmt.Errorf("invalid integrity schedule %q: %w", spec, err)
	}

	t.cronMu.Lock()
	t.cron = c
	t.cronMu.Unlock()

	c.Start()
	return nil
}

// Stop cancels the schedule and waits for a running check to finish.
func (t *Tracker) Stop() {
	t.cronMu.Lock()
	c := t.cron
	t.cron = nil
	t.cronMu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
