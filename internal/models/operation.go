package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the mutation a pending operation carries.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// PendingOperation is a write not yet acknowledged by the remote store.
type PendingOperation struct {
	ID         string        `json:"id"`
	Kind       OperationKind `json:"kind"`
	Table      Table         `json:"table"`
	Record     Record        `json:"record"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
	RetryCount int           `json:"retryCount"`
}

// NewPendingOperation derives the operation id from table, record id and
// enqueue time. A random suffix keeps ids unique when two enqueues of the
// same record read the same clock value.
func NewPendingOperation(kind OperationKind, rec Record, at time.Time) PendingOperation {
	return PendingOperation{
		ID:         fmt.Sprintf("%s:%s:%d:%s", rec.Table, rec.ID, at.UnixNano(), uuid.NewString()[:8]),
		Kind:       kind,
		Table:      rec.Table,
		Record:     rec.Clone(),
		EnqueuedAt: at,
	}
}

// RecordKey identifies the target record, used for supersede checks.
func (o PendingOperation) RecordKey() string { return RecordKey(o.Table, o.Record.ID) }

// IntegrityCheck is the expected fingerprint of a record at write time.
type IntegrityCheck struct {
	Table     Table
	RecordID  string
	Checksum  string
	CheckedAt time.Time
}
