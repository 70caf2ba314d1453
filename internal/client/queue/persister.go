package queue

import (
	"context"

	"github.com/dmitrijs2005/shiftsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// MetadataPersister stores the queue as one JSON document under
// metadata.KeyPendingOperations.
type MetadataPersister struct {
	repo metadata.Repository
}

func NewMetadataPersister(repo metadata.Repository) *MetadataPersister {
	return &MetadataPersister{repo: repo}
}

func (p *MetadataPersister) Save(ctx context.Context, ops []models.PendingOperation) error {
	if ops == nil {
		ops = []models.PendingOperation{}
	}
	return metadata.SetJSON(ctx, p.repo, metadata.KeyPendingOperations, ops)
}

func (p *MetadataPersister) Load(ctx context.Context) ([]models.PendingOperation, error) {
	var ops []models.PendingOperation
	if _, err := metadata.GetJSON(ctx, p.repo, metadata.KeyPendingOperations, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// MemoryPersister keeps the queue in memory. Used when no local database
// is available and in tests.
type MemoryPersister struct {
	ops []models.PendingOperation
}

func (p *MemoryPersister) Save(_ context.Context, ops []models.PendingOperation) error {
	p.ops = append(p.ops[:0:0], ops...)
	return nil
}

func (p *MemoryPersister) Load(context.Context) ([]models.PendingOperation, error) {
	return append([]models.PendingOperation(nil), p.ops...), nil
}
