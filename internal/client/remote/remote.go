// Package remote defines the contract between the sync engine and the
// remote store. Backends live in sub-packages.
package remote

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

var (
	// ErrUnauthorized means the remote rejected the caller's session.
	// Operations failing with it stay queued without spending a retry.
	ErrUnauthorized = errors.New("remote: not authorized")
	// ErrUnavailable means the remote could not be reached.
	ErrUnavailable = errors.New("remote: unavailable")
)

// Store is the minimal remote store. Save must be an idempotent upsert.
type Store interface {
	Save(ctx context.Context, rec models.Record) error
	// LoadAll returns the non-deleted records of table.
	LoadAll(ctx context.Context, table models.Table) ([]models.Record, error)
	IsAuthenticated(ctx context.Context) bool
}

// BulkSaver pushes a whole dataset in one coordinated call.
type BulkSaver interface {
	SaveAll(ctx context.Context, snap models.Snapshot) error
}

// RecordLoader fetches a single record, tombstones included.
// A missing record yields common.ErrNotFound.
type RecordLoader interface {
	Load(ctx context.Context, table models.Table, id string) (*models.Record, error)
}

// Pinger reports reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

var authMarkers = []string{
	"row-level security",
	"jwt",
	"unauthorized",
	"unauthenticated",
	"not authenticated",
	"permission denied",
}

// IsAuthError reports whether err means the session must be renewed
// before the operation can succeed.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, common.ErrRowLevelSecurity) ||
		errors.Is(err, common.ErrInvalidToken) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Load fetches one record through RecordLoader when the store supports it,
// falling back to a LoadAll scan. The fallback cannot see tombstones.
func Load(ctx context.Context, s Store, table models.Table, id string) (*models.Record, error) {
	if rl, ok := s.(RecordLoader); ok {
		return rl.Load(ctx, table, id)
	}
	all, err := s.LoadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			r := all[i].Clone()
			return &r, nil
		}
	}
	return nil, common.ErrNotFound
}

// Ping checks s when it implements Pinger; other stores count as reachable.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// LoadSnapshot reads every table.
func LoadSnapshot(ctx context.Context, s Store) (models.Snapshot, error) {
	snap := make(models.Snapshot, len(models.AllTables))
	for _, t := range models.AllTables {
		recs, err := s.LoadAll(ctx, t)
		if err != nil {
			return nil, err
		}
		snap[t] = recs
	}
	return snap, nil
}
