// Package services contains the application services of the sync client.
// Mutations run through an explicit middleware pipeline; reads go straight
// to the local store.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/checksum"
	"github.com/dmitrijs2005/shiftsync/internal/client/merge"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// RecordService is the dashboard-facing API.
//
// Create, Update and Delete return the stamped record. They fail only on
// invalid input; local degradation and sync trouble are reported through
// the engine status.
type RecordService interface {
	Create(ctx context.Context, table models.Table, id string, fields models.Fields) (models.Record, error)
	Update(ctx context.Context, table models.Table, id string, patch models.Fields) (models.Record, error)
	Delete(ctx context.Context, table models.Table, id string) (models.Record, error)
	Get(ctx context.Context, table models.Table, id string) (models.Record, error)
	List(ctx context.Context, table models.Table) ([]models.Record, error)
	// Reload merges the remote dataset into the local store and returns the
	// live records. Without a reachable remote it returns local data along
	// with the error.
	Reload(ctx context.Context) (models.Snapshot, error)
	ForceSyncAll(ctx context.Context) error
}

// LocalStore is the part of store.LocalStore the service needs.
type LocalStore interface {
	Getter
	Putter
	GetAll(ctx context.Context, table models.Table) ([]models.Record, error)
	Snapshot(ctx context.Context, withDeleted bool) (models.Snapshot, error)
}

// Engine is the part of syncer.Engine the service needs.
type Engine interface {
	Submitter
	DegradedMarker
	ForceSyncAll(ctx context.Context, snap models.Snapshot) error
	HasPending(table models.Table, id string) bool
}

type Deps struct {
	Local    LocalStore
	Remote   remote.Store
	Engine   Engine
	Tracker  ChecksumRecorder
	DeviceID string
	Log      logging.Logger
	Now      func() time.Time
}

type recordService struct {
	local   LocalStore
	remote  remote.Store
	engine  Engine
	tracker ChecksumRecorder
	log     logging.Logger
	run     Handler
}

func NewRecordService(d Deps) RecordService {
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Log.With("module", "services")

	return &recordService{
		local:   d.Local,
		remote:  d.Remote,
		engine:  d.Engine,
		tracker: d.Tracker,
		log:     log,
		run: Chain(terminal,
			Logging(log),
			Stamp(d.Local, d.DeviceID, d.Now),
			Persist(d.Local, d.Engine, log),
			Track(d.Tracker),
			Submit(d.Engine, log),
		),
	}
}

func (s *recordService) exec(ctx context.Context, m *Mutation) (models.Record, error) {
	if err := s.run(ctx, m); err != nil {
		return models.Record{}, err
	}
	return m.Record.Clone(), nil
}

func (s *recordService) Create(ctx context.Context, table models.Table, id string, fields models.Fields) (models.Record, error) {
	return s.exec(ctx, &Mutation{Kind: models.OperationCreate, Table: table, ID: id, Fields: fields})
}

func (s *recordService) Update(ctx context.Context, table models.Table, id string, patch models.Fields) (models.Record, error) {
	return s.exec(ctx, &Mutation{Kind: models.OperationUpdate, Table: table, ID: id, Fields: patch})
}

func (s *recordService) Delete(ctx context.Context, table models.Table, id string) (models.Record, error) {
	return s.exec(ctx, &Mutation{Kind: models.OperationDelete, Table: table, ID: id})
}

func (s *recordService) Get(ctx context.Context, table models.Table, id string) (models.Record, error) {
	rec, err := s.local.Get(ctx, table, id)
	if err != nil {
		return models.Record{}, err
	}
	if rec.IsDeleted() {
		return models.Record{}, fmt.Errorf("%s: %w", rec.Key(), common.ErrNotFound)
	}
	return *rec, nil
}

func (s *recordService) List(ctx context.Context, table models.Table) ([]models.Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownTable, table)
	}
	return s.local.GetAll(ctx, table)
}

func (s *recordService) Reload(ctx context.Context) (models.Snapshot, error) {
	if s.remote == nil {
		return s.local.Snapshot(ctx, false)
	}

	remoteSnap, err := remote.LoadSnapshot(ctx, s.remote)
	if err != nil {
		live, lerr := s.local.Snapshot(ctx, false)
		if lerr != nil {
			return nil, lerr
		}
		return live, fmt.Errorf("load remote snapshot: %w", err)
	}

	localSnap, err := s.local.Snapshot(ctx, true)
	if err != nil {
		return nil, err
	}

	merged := merge.All(remoteSnap, localSnap)
	live := make(models.Snapshot, len(merged))
	updated := 0
	for t, recs := range merged {
		current := make(map[string]models.Record, len(localSnap[t]))
		for _, r := range localSnap[t] {
			current[r.ID] = r
		}

		for _, r := range recs {
			// the stored checksum is always computed locally, whatever the
			// remote carried
			r.Checksum = checksum.Of(r)
			if prev, ok := current[r.ID]; !ok || changed(prev, r) {
				if err := s.local.Put(ctx, r); err != nil {
					s.log.Warn(ctx, "failed to store merged record", "key", r.Key(), "error", err)
				}
				if s.tracker != nil {
					s.tracker.RecordChecksum(r.Table, r.ID, r.Checksum)
				}
				// a queued local write lost to a newer remote one must not
				// be replayed over it
				if ok && s.engine.HasPending(r.Table, r.ID) {
					kind := models.OperationUpdate
					if r.IsDeleted() {
						kind = models.OperationDelete
					}
					if err := s.engine.Submit(ctx, kind, r); err != nil {
						s.log.Warn(ctx, "failed to supersede pending write", "key", r.Key(), "error", err)
					}
				}
				updated++
			}
			if !r.IsDeleted() {
				live[t] = append(live[t], r)
			}
		}
	}

	s.log.Info(ctx, "reload finished", "records", live.Len(), "updated", updated)
	return live, nil
}

func changed(a, b models.Record) bool {
	return a.Version != b.Version ||
		!a.LastModified.Equal(b.LastModified) ||
		a.Checksum != b.Checksum ||
		a.IsDeleted() != b.IsDeleted()
}

func (s *recordService) ForceSyncAll(ctx context.Context) error {
	snap, err := s.local.Snapshot(ctx, true)
	if err != nil {
		return err
	}
	return s.engine.ForceSyncAll(ctx, snap)
}
