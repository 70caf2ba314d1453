package models

import (
	"maps"
	"time"
)

// Fields holds the domain payload of a record. Values must be
// JSON-compatible (string, float64, bool, nil, []any, map[string]any).
type Fields map[string]any

// Record is one synced entity plus its synchronization metadata.
type Record struct {
	ID     string `json:"id"`
	Table  Table  `json:"table"`
	Fields Fields `json:"fields"`

	// Version increments on every local mutation.
	Version int64 `json:"version"`
	// LastModified is the time of the last local mutation.
	LastModified time.Time `json:"lastModified"`
	// DeviceID identifies the device that produced this version.
	DeviceID string `json:"deviceId"`
	// Checksum fingerprints Fields only.
	Checksum string `json:"checksum"`
	// DeletedAt marks a tombstone. Tombstones are kept so the deletion can
	// propagate, and are never returned by display reads.
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (r Record) IsDeleted() bool { return r.DeletedAt != nil }

// Key returns "table:id", the identity used by the queue and the
// integrity tracker.
func (r Record) Key() string { return RecordKey(r.Table, r.ID) }

func RecordKey(t Table, id string) string { return string(t) + ":" + id }

// Clone returns a copy whose field map and tombstone can be changed without
// touching r. Field values themselves are shared.
func (r Record) Clone() Record {
	c := r
	if r.Fields != nil {
		c.Fields = maps.Clone(r.Fields)
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return c
}

// Snapshot is a full dataset keyed by table.
type Snapshot map[Table][]Record

// Len counts records across all tables.
func (s Snapshot) Len() int {
	n := 0
	for _, recs := range s {
		n += len(recs)
	}
	return n
}
