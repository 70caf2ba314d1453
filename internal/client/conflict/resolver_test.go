package conflict

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/checksum"
	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0  = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	now = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
)

func rec(id string, ts time.Time, version int64, fields models.Fields) models.Record {
	r := models.Record{ID: id, Table: models.TableTasks, Fields: fields, Version: version, LastModified: ts, DeviceID: "dev"}
	r.Checksum = checksum.Of(r)
	return r
}

func TestResolve_NewerLocalWins(t *testing.T) {
	local := rec("t1", t0.Add(time.Minute), 3, models.Fields{"description": "local"})
	remote := rec("t1", t0, 7, models.Fields{"description": "remote, longer text"})

	got := Resolve(local, remote, now)

	assert.Equal(t, "local", got.Fields["description"])
	assert.Equal(t, int64(8), got.Version)
	assert.Equal(t, now, got.LastModified)
}

func TestResolve_NewerRemoteWins(t *testing.T) {
	local := rec("t1", t0, 2, models.Fields{"description": "local long long long"})
	remote := rec("t1", t0.Add(time.Second), 1, models.Fields{"description": "r"})

	got := Resolve(local, remote, now)

	assert.Equal(t, "r", got.Fields["description"])
	assert.Equal(t, int64(3), got.Version)
}

func TestResolve_EqualTimestamps_PrefersMoreCompleteData(t *testing.T) {
	local := rec("t1", t0, 1, models.Fields{
		"description": "short",
		"assignee":    "w-12",
		"priority":    float64(2),
		"done":        false,
	})
	remote := rec("t1", t0, 1, models.Fields{
		"description": "much longer description",
		"assignee":    "",
		"priority":    float64(5),
		"done":        true,
	})

	got := Resolve(local, remote, now)

	want := models.Fields{
		"description": "much longer description", // remote longer
		"assignee":    "w-12",                    // remote empty
		"priority":    float64(5),                // non-string, remote present
		"done":        true,                      // local falsy
	}
	assert.Empty(t, cmp.Diff(want, got.Fields))
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, checksum.Compute(want), got.Checksum)
}

func TestResolve_EqualTimestamps_LocalOnlyFieldsKept(t *testing.T) {
	local := rec("t1", t0, 4, models.Fields{"description": "longer local text", "note": "only here"})
	remote := rec("t1", t0, 6, models.Fields{"description": "remote"})

	got := Resolve(local, remote, now)

	assert.Equal(t, "longer local text", got.Fields["description"])
	assert.Equal(t, "only here", got.Fields["note"])
	assert.Equal(t, int64(7), got.Version)
}

func TestResolve_EqualTimestamps_EmptyCollectionsCount(t *testing.T) {
	local := rec("t1", t0, 1, models.Fields{"tags": []any{}, "meta": map[string]any{}, "qty": float64(0)})
	remote := rec("t1", t0, 1, models.Fields{"tags": nil, "meta": false, "qty": float64(4)})

	got := Resolve(local, remote, now)

	// empty list and map are truthy, zero is not
	want := models.Fields{"tags": []any{}, "meta": map[string]any{}, "qty": float64(4)}
	assert.Empty(t, cmp.Diff(want, got.Fields))
}

func TestResolve_BothZeroTimestampsMerge(t *testing.T) {
	local := rec("t1", time.Time{}, 0, models.Fields{"a": "x"})
	remote := rec("t1", time.Time{}, 0, models.Fields{"b": "y"})

	got := Resolve(local, remote, now)

	assert.Equal(t, models.Fields{"a": "x", "b": "y"}, got.Fields)
	assert.Equal(t, int64(1), got.Version)
}

func TestResolve_SelfIsIdempotent(t *testing.T) {
	a := rec("t1", t0, 5, models.Fields{"description": "same", "qty": float64(3)})

	got := Resolve(a, a, now)

	assert.Empty(t, cmp.Diff(a.Fields, got.Fields))
	assert.Equal(t, a.Version+1, got.Version)
	assert.Equal(t, a.Checksum, got.Checksum)
	assert.Equal(t, a.ID, got.ID)
}

func TestResolve_DoesNotMutateInputs(t *testing.T) {
	local := rec("t1", t0, 1, models.Fields{"description": "a much longer value"})
	remote := rec("t1", t0, 1, models.Fields{"description": "short"})

	_ = Resolve(local, remote, now)

	assert.Equal(t, "short", remote.Fields["description"])
	assert.Equal(t, int64(1), remote.Version)
}

func TestResolve_EqualTimestamps_TombstoneSurvives(t *testing.T) {
	del := t0.Add(-time.Hour)
	local := rec("t1", t0, 2, models.Fields{"description": "x"})
	local.DeletedAt = &del
	remote := rec("t1", t0, 2, models.Fields{"description": "x"})

	got := Resolve(local, remote, now)

	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, del, *got.DeletedAt)
}
