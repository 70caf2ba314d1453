// Package conflict picks or merges two versions of the same record.
//
// The policy is last-write-wins by LastModified. When both sides carry the
// same timestamp the fields are merged shallowly, preferring the more
// complete value. This is best-effort: with three or more concurrent
// writers there is no convergence guarantee.
package conflict

import (
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/checksum"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// Resolve returns the version of a record to keep. It is pure: neither
// input is modified and the result depends only on the arguments.
//
// The result is a new write: its Version is max(local, remote)+1 and its
// LastModified is now, so it has to be propagated again.
func Resolve(local, remote models.Record, now time.Time) models.Record {
	var out models.Record

	switch {
	case local.LastModified.After(remote.LastModified):
		out = local.Clone()
	case remote.LastModified.After(local.LastModified):
		out = remote.Clone()
	default:
		out = mergeFields(local, remote)
	}

	out.Version = max(local.Version, remote.Version) + 1
	out.LastModified = now
	out.Checksum = checksum.Of(out)
	return out
}

// mergeFields starts from remote and takes every truthy local field that is
// missing or falsy remotely, or that is a longer string.
func mergeFields(local, remote models.Record) models.Record {
	out := remote.Clone()
	if out.Fields == nil {
		out.Fields = models.Fields{}
	}

	for k, lv := range local.Fields {
		if !truthy(lv) {
			continue
		}
		rv, ok := out.Fields[k]
		if !ok || !truthy(rv) || longerString(lv, rv) {
			out.Fields[k] = lv
		}
	}

	out.DeletedAt = earliest(local.DeletedAt, remote.DeletedAt)
	return out
}

func longerString(a, b any) bool {
	as, ok := a.(string)
	if !ok {
		return false
	}
	bs, ok := b.(string)
	if !ok {
		return false
	}
	return len(as) > len(bs)
}

// truthy mirrors the loose notion of "has a value" used by the dashboard:
// nil, "", false and zero numbers are empty, everything else counts.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	default:
		return true
	}
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		t := *b
		return &t
	case b == nil || a.Before(*b):
		t := *a
		return &t
	default:
		t := *b
		return &t
	}
}
