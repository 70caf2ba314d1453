package checksum

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_OrderIndependent(t *testing.T) {
	var a, b models.Fields
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x","qty":3,"meta":{"b":1,"a":2}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"meta":{"a":2,"b":1},"qty":3,"title":"x"}`), &b))

	assert.Equal(t, Compute(a), Compute(b))
}

func TestCompute_SensitiveToValues(t *testing.T) {
	base := models.Fields{"title": "x"}
	assert.NotEqual(t, Compute(base), Compute(models.Fields{"title": "y"}))
	assert.NotEqual(t, Compute(base), Compute(models.Fields{"title": "x", "extra": nil}))
	// "a=b" split differently must not collide
	assert.NotEqual(t, Compute(models.Fields{"a": "b=c"}), Compute(models.Fields{"a=b": "c"}))
}

func TestOf_IgnoresMetadata(t *testing.T) {
	r1 := models.Record{ID: "t1", Table: models.TableTasks, Fields: models.Fields{"title": "x"}, Version: 1, DeviceID: "d1"}
	r2 := r1.Clone()
	r2.Version = 9
	r2.DeviceID = "d2"
	r2.LastModified = time.Now()

	assert.Equal(t, Of(r1), Of(r2))
	assert.Len(t, Of(r1), 64)
}

func TestCompute_EmptyIsStable(t *testing.T) {
	assert.Equal(t, Compute(nil), Compute(models.Fields{}))
}
