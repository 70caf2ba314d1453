package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/checksum"
	"github.com/dmitrijs2005/shiftsync/internal/client/store"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/google/uuid"
)

// Mutation is one named command travelling through the pipeline.
type Mutation struct {
	Kind  models.OperationKind
	Table models.Table
	ID    string
	// Fields is the full field set for a create and a patch for an update;
	// a nil value in a patch removes the field.
	Fields models.Fields

	// Record is the stamped result, set by Stamp.
	Record models.Record
	// Degraded is set when the local store fell back to memory.
	Degraded bool
}

// Handler executes a mutation.
type Handler func(ctx context.Context, m *Mutation) error

// Middleware wraps a Handler with one pipeline stage.
type Middleware func(next Handler) Handler

// Chain applies mws so that the first one runs first.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func terminal(context.Context, *Mutation) error { return nil }

// Logging records every mutation at debug level.
func Logging(log logging.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) error {
			err := next(ctx, m)
			if err != nil {
				log.Warn(ctx, "mutation rejected", "kind", m.Kind, "table", m.Table, "id", m.ID, "error", err)
				return err
			}
			log.Debug(ctx, "mutation applied", "kind", m.Kind, "key", m.Record.Key(),
				"version", m.Record.Version, "degraded", m.Degraded)
			return nil
		}
	}
}

// Getter reads the current local version of a record.
type Getter interface {
	Get(ctx context.Context, table models.Table, id string) (*models.Record, error)
}

// Stamp builds the new record version: version+1, timestamp, device id,
// checksum, and the tombstone for deletes.
func Stamp(local Getter, deviceID string, now func() time.Time) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) error {
			if !m.Table.Valid() {
				return fmt.Errorf("%w: %q", common.ErrUnknownTable, m.Table)
			}
			if m.Kind == models.OperationCreate && m.ID == "" {
				m.ID = uuid.NewString()
			}
			if m.ID == "" {
				return ErrMissingID
			}

			prev, err := local.Get(ctx, m.Table, m.ID)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				// a corrupt row still carries usable metadata
				if prev == nil {
					return fmt.Errorf("read %s: %w", models.RecordKey(m.Table, m.ID), err)
				}
			}
			exists := prev != nil && !prev.IsDeleted()

			rec := models.Record{ID: m.ID, Table: m.Table}
			if prev != nil {
				rec = prev.Clone()
			}

			ts := now()
			switch m.Kind {
			case models.OperationCreate:
				if exists {
					return fmt.Errorf("%s: %w", rec.Key(), ErrAlreadyExists)
				}
				rec.Fields = maps.Clone(m.Fields)
				if rec.Fields == nil {
					rec.Fields = models.Fields{}
				}
				rec.DeletedAt = nil
			case models.OperationUpdate:
				if !exists {
					return fmt.Errorf("%s: %w", rec.Key(), common.ErrNotFound)
				}
				if rec.Fields == nil {
					rec.Fields = models.Fields{}
				}
				for k, v := range m.Fields {
					if v == nil {
						delete(rec.Fields, k)
						continue
					}
					rec.Fields[k] = v
				}
			case models.OperationDelete:
				if !exists {
					return fmt.Errorf("%s: %w", rec.Key(), common.ErrNotFound)
				}
				rec.DeletedAt = &ts
			default:
				return fmt.Errorf("unknown mutation kind %q", m.Kind)
			}

			rec.Version++
			rec.LastModified = ts
			rec.DeviceID = deviceID
			rec.Checksum = checksum.Of(rec)
			m.Record = rec

			return next(ctx, m)
		}
	}
}

// Putter writes to the local store.
type Putter interface {
	Put(ctx context.Context, rec models.Record) error
}

// DegradedMarker receives local persistence degradation.
type DegradedMarker interface {
	MarkDegraded(reason string)
}

// Persist writes the stamped record locally. A failed or degraded write is
// reported to the engine status but does not fail the mutation.
func Persist(local Putter, marker DegradedMarker, log logging.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) error {
			if err := local.Put(ctx, m.Record); err != nil {
				m.Degraded = true
				reason := err.Error()
				if errors.Is(err, store.ErrDegraded) {
					reason = fmt.Sprintf("%s table kept in memory", m.Record.Table)
				}
				log.Error(ctx, "local write failed", "key", m.Record.Key(), "error", err)
				if marker != nil {
					marker.MarkDegraded(reason)
				}
			}
			return next(ctx, m)
		}
	}
}

// ChecksumRecorder remembers expected checksums.
type ChecksumRecorder interface {
	RecordChecksum(table models.Table, id, sum string)
}

func Track(tracker ChecksumRecorder) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) error {
			if tracker != nil {
				tracker.RecordChecksum(m.Record.Table, m.Record.ID, m.Record.Checksum)
			}
			return next(ctx, m)
		}
	}
}

// Submitter hands records to the sync engine.
type Submitter interface {
	Submit(ctx context.Context, kind models.OperationKind, rec models.Record) error
}

// Submit passes the record to the sync engine. Sync problems surface
// through the engine status, never through the mutation.
func Submit(engine Submitter, log logging.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) error {
			if err := engine.Submit(ctx, m.Kind, m.Record); err != nil {
				log.Warn(ctx, "submit failed", "key", m.Record.Key(), "error", err)
			}
			return next(ctx, m)
		}
	}
}
