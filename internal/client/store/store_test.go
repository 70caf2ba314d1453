package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRepo wraps a real repository and fails the first failUpserts writes.
type flakyRepo struct {
	records.Repository
	failUpserts int
	failReads   bool
	clears      int
}

func (f *flakyRepo) Upsert(ctx context.Context, rec models.Record) error {
	if f.failUpserts != 0 {
		if f.failUpserts > 0 {
			f.failUpserts--
		}
		return errors.New("disk I/O error")
	}
	return f.Repository.Upsert(ctx, rec)
}

func (f *flakyRepo) GetAll(ctx context.Context, t models.Table) ([]models.Record, error) {
	if f.failReads {
		return nil, errors.New("disk I/O error")
	}
	return f.Repository.GetAll(ctx, t)
}

func (f *flakyRepo) Clear(ctx context.Context, t models.Table) error {
	f.clears++
	return f.Repository.Clear(ctx, t)
}

func openRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := InitDatabase(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

func rec(id string, fields models.Fields) models.Record {
	return models.Record{
		ID:           id,
		Table:        models.TableTasks,
		Fields:       fields,
		Version:      1,
		LastModified: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestPut_ReplacesByID(t *testing.T) {
	repos := openRepos(t)
	s := New(repos.Records, logging.NopLogger{})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, rec("t1", models.Fields{"description": "a"})))
	require.NoError(t, s.Put(ctx, rec("t1", models.Fields{"description": "b"})))

	all, err := s.GetAll(ctx, models.TableTasks)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].Fields["description"])
}

func TestPut_CallerCannotAliasStoredState(t *testing.T) {
	repos := openRepos(t)
	repo := &flakyRepo{Repository: repos.Records, failUpserts: -1}
	s := New(repo, logging.NopLogger{})
	ctx := context.Background()

	r := rec("t1", models.Fields{"description": "a"})
	require.ErrorIs(t, s.Put(ctx, r), ErrDegraded)
	r.Fields["description"] = "mutated"

	got, err := s.Get(ctx, models.TableTasks, "t1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Fields["description"])
}

func TestGetAll_HidesTombstones(t *testing.T) {
	repos := openRepos(t)
	s := New(repos.Records, logging.NopLogger{})
	ctx := context.Background()

	gone := rec("t2", models.Fields{"description": "x"})
	now := time.Now().UTC()
	gone.DeletedAt = &now

	require.NoError(t, s.Put(ctx, rec("t1", models.Fields{"description": "a"})))
	require.NoError(t, s.Put(ctx, gone))

	live, err := s.GetAll(ctx, models.TableTasks)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "t1", live[0].ID)

	all, err := s.GetAllIncludingDeleted(ctx, models.TableTasks)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := s.Get(ctx, models.TableTasks, "t2")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
}

func TestPut_SelfHealsByClearingTable(t *testing.T) {
	repos := openRepos(t)
	repo := &flakyRepo{Repository: repos.Records}
	s := New(repo, logging.NopLogger{})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, rec("old", models.Fields{"description": "old"})))

	repo.failUpserts = 1
	require.NoError(t, s.Put(ctx, rec("new", models.Fields{"description": "new"})))
	assert.Equal(t, 1, repo.clears)
	assert.Empty(t, s.DegradedTables())

	all, err := s.GetAll(ctx, models.TableTasks)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].ID)
}

func TestPut_DegradesToMemory(t *testing.T) {
	repos := openRepos(t)
	repo := &flakyRepo{Repository: repos.Records}
	s := New(repo, logging.NopLogger{})
	ctx := context.Background()

	repo.failUpserts = -1
	err := s.Put(ctx, rec("t1", models.Fields{"description": "kept"}))
	require.ErrorIs(t, err, ErrDegraded)
	assert.Equal(t, []models.Table{models.TableTasks}, s.DegradedTables())

	// subsequent writes skip the database entirely
	err = s.Put(ctx, rec("t2", models.Fields{"description": "also kept"}))
	require.ErrorIs(t, err, ErrDegraded)
	assert.Equal(t, 1, repo.clears)

	repo.failReads = true
	all, err := s.GetAll(ctx, models.TableTasks)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "kept", all[0].Fields["description"])

	// other tables keep using the database
	w := models.Record{ID: "w1", Table: models.TableWorkers, Fields: models.Fields{"name": "Ana"}}
	repo.failUpserts = 0
	require.NoError(t, s.Put(ctx, w))
}

func TestGet_NotFound(t *testing.T) {
	repos := openRepos(t)
	s := New(repos.Records, logging.NopLogger{})

	_, err := s.Get(context.Background(), models.TableTasks, "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSnapshot(t *testing.T) {
	repos := openRepos(t)
	s := New(repos.Records, logging.NopLogger{})
	ctx := context.Background()

	gone := rec("t2", models.Fields{})
	now := time.Now().UTC()
	gone.DeletedAt = &now
	require.NoError(t, s.Put(ctx, rec("t1", models.Fields{"description": "a"})))
	require.NoError(t, s.Put(ctx, gone))
	require.NoError(t, s.Put(ctx, models.Record{ID: "s1", Table: models.TableShifts, Fields: models.Fields{"name": "A"}}))

	live, err := s.Snapshot(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, live.Len())
	assert.Len(t, live, len(models.AllTables))

	full, err := s.Snapshot(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, full.Len())
}

func TestDeviceID_IsStable(t *testing.T) {
	repos := openRepos(t)
	ctx := context.Background()

	first, err := DeviceID(ctx, repos.Metadata)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := DeviceID(ctx, repos.Metadata)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInitDatabase_CreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "local.db")

	repos, err := InitDatabase(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	require.NoError(t, repos.Records.Upsert(context.Background(), rec("p1", models.Fields{"a": "b"})))
	assert.FileExists(t, path)
}
