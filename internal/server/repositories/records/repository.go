// Package records stores synced records on the server, one row per
// (table, id), owned by the user that first wrote it.
package records

import (
	"context"

	"github.com/dmitrijs2005/shiftsync/internal/models"
)

type Repository interface {
	// Upsert writes rec for userID. A row owned by another user is left
	// untouched and common.ErrRowLevelSecurity is returned. A write older
	// than the stored version is ignored so a late delivery cannot roll a
	// record back.
	Upsert(ctx context.Context, userID string, rec models.Record) error
	// Get returns the record, tombstones included, or common.ErrNotFound.
	Get(ctx context.Context, userID string, table models.Table, id string) (*models.Record, error)
	// ListLive returns the non-deleted records of table ordered by id.
	ListLive(ctx context.Context, userID string, table models.Table) ([]models.Record, error)
}
