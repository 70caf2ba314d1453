// Package metadata stores small key/value facts about the local replica:
// the device id and the pending-operation queue.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyDeviceID          = "device_id"
	KeyPendingOperations = "pending_operations"
)

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
