// Package remotetest provides a scriptable in-memory remote store for tests.
package remotetest

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// Store implements remote.Store, remote.BulkSaver, remote.RecordLoader and
// remote.Pinger. The zero value is not usable; call New.
type Store struct {
	mu            sync.Mutex
	data          map[string]models.Record
	authenticated bool
	saveHook      func(models.Record) error
	loadHook      func(table models.Table, id string)
	bulkErr       error
	loadErr       error
	pingErr       error
	saves         []models.Record
	bulkSaves     int
	loads         []string
}

var (
	_ remote.Store        = (*Store)(nil)
	_ remote.BulkSaver    = (*Store)(nil)
	_ remote.RecordLoader = (*Store)(nil)
	_ remote.Pinger       = (*Store)(nil)
)

func New() *Store {
	return &Store{data: make(map[string]models.Record), authenticated: true}
}

// Seed stores records as if another device had written them.
func (s *Store) Seed(recs ...models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.data[r.Key()] = r.Clone()
	}
}

func (s *Store) SetAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = v
}

// OnSave installs a hook run before every Save. A non-nil error fails the
// save without storing. The hook runs without the store lock held so it may
// block.
func (s *Store) OnSave(hook func(models.Record) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveHook = hook
}

// OnLoad installs a hook run before every single-record Load, without the
// store lock held.
func (s *Store) OnLoad(hook func(table models.Table, id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadHook = hook
}

// FailSaves makes every Save return err; nil restores normal behaviour.
func (s *Store) FailSaves(err error) {
	if err == nil {
		s.OnSave(nil)
		return
	}
	s.OnSave(func(models.Record) error { return err })
}

func (s *Store) FailSaveAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkErr = err
}

func (s *Store) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

func (s *Store) FailPing(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *Store) Save(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	hook := s.saveHook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(rec); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.Key()] = rec.Clone()
	s.saves = append(s.saves, rec.Clone())
	return nil
}

func (s *Store) SaveAll(_ context.Context, snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bulkErr != nil {
		return s.bulkErr
	}
	s.bulkSaves++
	for _, recs := range snap {
		for _, r := range recs {
			s.data[r.Key()] = r.Clone()
		}
	}
	return nil
}

func (s *Store) LoadAll(_ context.Context, table models.Table) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []models.Record
	for _, r := range s.data {
		if r.Table == table && !r.IsDeleted() {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Load(_ context.Context, table models.Table, id string) (*models.Record, error) {
	s.mu.Lock()
	hook := s.loadHook
	s.mu.Unlock()
	if hook != nil {
		hook(table, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.RecordKey(table, id)
	s.loads = append(s.loads, key)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	r, ok := s.data[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (s *Store) IsAuthenticated(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

// Get returns the stored record.
func (s *Store) Get(table models.Table, id string) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[models.RecordKey(table, id)]
	return r.Clone(), ok
}

// Saves returns every successful Save in call order.
func (s *Store) Saves() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Record(nil), s.saves...)
}

// SaveCount counts successful saves of one record.
func (s *Store) SaveCount(table models.Table, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.saves {
		if r.Table == table && r.ID == id {
			n++
		}
	}
	return n
}

func (s *Store) BulkSaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkSaves
}

// Loads returns the table:id keys requested through Load.
func (s *Store) Loads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loads...)
}
