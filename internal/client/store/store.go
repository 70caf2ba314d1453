// Package store is the device-local record store. It wraps the SQLite
// repository with a self-heal step and an in-memory fallback so that a
// broken table never loses the write in progress.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/shiftsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// ErrDegraded is returned by Put once a table runs from memory only.
var ErrDegraded = errors.New("local store degraded to memory-only")

type LocalStore struct {
	repo records.Repository
	log  logging.Logger

	mu       sync.RWMutex
	overlay  map[models.Table]map[string]models.Record
	degraded map[models.Table]bool
}

func New(repo records.Repository, log logging.Logger) *LocalStore {
	return &LocalStore{
		repo:     repo,
		log:      log.With("module", "store"),
		overlay:  make(map[models.Table]map[string]models.Record),
		degraded: make(map[models.Table]bool),
	}
}

// Put upserts rec by id. Tombstones are stored like any other record.
//
// When the write fails the table is cleared and the write retried once.
// If the retry fails too, the table is kept in memory for the rest of the
// session and the returned error wraps ErrDegraded.
func (s *LocalStore) Put(ctx context.Context, rec models.Record) error {
	if !rec.Table.Valid() {
		return fmt.Errorf("put %q: %w", rec.Table, common.ErrUnknownTable)
	}
	rec = rec.Clone()

	if s.isDegraded(rec.Table) {
		s.keep(rec)
		return fmt.Errorf("put %s: %w", rec.Key(), ErrDegraded)
	}

	err := s.repo.Upsert(ctx, rec)
	if err == nil {
		return nil
	}

	s.log.Warn(ctx, "local write failed, clearing table", "table", rec.Table, "id", rec.ID, "error", err)
	if cerr := s.repo.Clear(ctx, rec.Table); cerr != nil {
		s.log.Warn(ctx, "failed to clear table", "table", rec.Table, "error", cerr)
	}

	if err = s.repo.Upsert(ctx, rec); err == nil {
		s.log.Info(ctx, "local table self-healed", "table", rec.Table)
		return nil
	}

	s.log.Error(ctx, "local table degraded to memory", "table", rec.Table, "error", err)
	s.mu.Lock()
	s.degraded[rec.Table] = true
	s.mu.Unlock()
	s.keep(rec)

	return fmt.Errorf("put %s: %w: %v", rec.Key(), ErrDegraded, err)
}

// GetAll returns the live (non-deleted) records of table ordered by id.
func (s *LocalStore) GetAll(ctx context.Context, table models.Table) ([]models.Record, error) {
	all, err := s.GetAllIncludingDeleted(ctx, table)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, r := range all {
		if !r.IsDeleted() {
			live = append(live, r)
		}
	}
	return live, nil
}

// GetAllIncludingDeleted returns every record of table, tombstones
// included, ordered by id.
func (s *LocalStore) GetAllIncludingDeleted(ctx context.Context, table models.Table) ([]models.Record, error) {
	persisted, err := s.repo.GetAll(ctx, table)
	if err != nil {
		if !s.isDegraded(table) {
			return nil, err
		}
		persisted = nil
	}

	s.mu.RLock()
	overlay := s.overlay[table]
	byID := make(map[string]models.Record, len(persisted)+len(overlay))
	for _, r := range persisted {
		byID[r.ID] = r
	}
	for id, r := range overlay {
		byID[id] = r.Clone()
	}
	s.mu.RUnlock()

	out := make([]models.Record, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the stored record, tombstone included, or common.ErrNotFound.
// A row whose payload cannot be decoded is returned with an error wrapping
// records.ErrCorruptPayload.
func (s *LocalStore) Get(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	s.mu.RLock()
	if r, ok := s.overlay[table][id]; ok {
		s.mu.RUnlock()
		c := r.Clone()
		return &c, nil
	}
	s.mu.RUnlock()

	rec, err := s.repo.GetByID(ctx, table, id)
	if err != nil && s.isDegraded(table) && !errors.Is(err, records.ErrCorruptPayload) {
		return nil, fmt.Errorf("%s: %w", models.RecordKey(table, id), common.ErrNotFound)
	}
	return rec, err
}

// Snapshot reads every table. Tombstones are included when withDeleted is set.
func (s *LocalStore) Snapshot(ctx context.Context, withDeleted bool) (models.Snapshot, error) {
	snap := make(models.Snapshot, len(models.AllTables))
	for _, t := range models.AllTables {
		var (
			recs []models.Record
			err  error
		)
		if withDeleted {
			recs, err = s.GetAllIncludingDeleted(ctx, t)
		} else {
			recs, err = s.GetAll(ctx, t)
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", t, err)
		}
		snap[t] = recs
	}
	return snap, nil
}

// DegradedTables lists the tables currently served from memory.
func (s *LocalStore) DegradedTables() []models.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Table
	for _, t := range models.AllTables {
		if s.degraded[t] {
			out = append(out, t)
		}
	}
	return out
}

func (s *LocalStore) isDegraded(t models.Table) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded[t]
}

func (s *LocalStore) keep(rec models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay[rec.Table] == nil {
		s.overlay[rec.Table] = make(map[string]models.Record)
	}
	s.overlay[rec.Table][rec.ID] = rec
}
