package records

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/shiftsync/internal/dbx"
)

// Store hands out repositories bound to the pool or to a transaction.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Records() Repository {
	return NewPostgresRepository(s.db)
}

// InTx runs fn with a repository bound to one transaction, committed when
// fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewPostgresRepository(tx))
	})
}
