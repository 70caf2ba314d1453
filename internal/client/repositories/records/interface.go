// Package records persists replicated records in per-entity SQLite tables.
package records

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// ErrCorruptPayload marks a row whose stored field payload cannot be decoded.
var ErrCorruptPayload = errors.New("corrupt record payload")

type Repository interface {
	Upsert(ctx context.Context, rec models.Record) error
	// GetAll returns every row of the table, tombstones included. Rows with
	// an undecodable payload come back with nil Fields.
	GetAll(ctx context.Context, table models.Table) ([]models.Record, error)
	// GetByID returns common.ErrNotFound for a missing row. For a corrupt
	// row it returns the record metadata together with ErrCorruptPayload.
	GetByID(ctx context.Context, table models.Table, id string) (*models.Record, error)
	Clear(ctx context.Context, table models.Table) error
}
