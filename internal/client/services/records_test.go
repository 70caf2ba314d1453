package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/checksum"
	"github.com/dmitrijs2005/shiftsync/internal/client/integrity"
	"github.com/dmitrijs2005/shiftsync/internal/client/queue"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote/remotetest"
	"github.com/dmitrijs2005/shiftsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/shiftsync/internal/client/store"
	"github.com/dmitrijs2005/shiftsync/internal/client/syncer"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type device struct {
	svc     RecordService
	local   *store.LocalStore
	queue   *queue.Queue
	engine  *syncer.Engine
	tracker *integrity.Tracker
	clock   *time.Time
}

func newDevice(t *testing.T, id string, rem remote.Store, wrap func(records.Repository) records.Repository) *device {
	t.Helper()
	repos, err := store.InitDatabase(context.Background(), filepath.Join(t.TempDir(), id+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	repo := repos.Records
	if wrap != nil {
		repo = wrap(repo)
	}

	clock := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	local := store.New(repo, logging.NopLogger{})
	q := queue.New(queue.NewMetadataPersister(repos.Metadata), logging.NopLogger{})
	cfg := syncer.DefaultConfig()
	cfg.BatchPause = 0
	engine := syncer.New(rem, q, cfg, logging.NopLogger{})
	t.Cleanup(engine.Stop)
	tracker := integrity.New(local, rem, engine, logging.NopLogger{})

	svc := NewRecordService(Deps{
		Local:    local,
		Remote:   rem,
		Engine:   engine,
		Tracker:  tracker,
		DeviceID: id,
		Log:      logging.NopLogger{},
		Now:      now,
	})
	return &device{svc: svc, local: local, queue: q, engine: engine, tracker: tracker, clock: &clock}
}

func (d *device) tick(dt time.Duration) { *d.clock = d.clock.Add(dt) }

func TestCreate_StampsAndQueuesWhileOffline(t *testing.T) {
	d := newDevice(t, "dev-a", remotetest.New(), nil)
	ctx := context.Background()

	rec, err := d.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "check valves"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, "dev-a", rec.DeviceID)
	assert.True(t, d.clock.Equal(rec.LastModified))
	assert.Equal(t, checksum.Of(rec), rec.Checksum)
	assert.Equal(t, 1, d.tracker.Tracked())

	ops := d.queue.Snapshot()
	require.Len(t, ops, 1)
	assert.Equal(t, models.OperationCreate, ops[0].Kind)
	assert.Equal(t, syncer.PhaseOffline, d.engine.Status().Phase)
}

func TestCreate_GeneratesID(t *testing.T) {
	d := newDevice(t, "dev-a", nil, nil)
	rec, err := d.svc.Create(context.Background(), models.TableWorkers, "", models.Fields{"name": "Ana"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
}

func TestUpdate_AppliesPatch(t *testing.T) {
	d := newDevice(t, "dev-a", nil, nil)
	ctx := context.Background()

	_, err := d.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "a", "assignee": "w-1"})
	require.NoError(t, err)
	d.tick(time.Minute)

	rec, err := d.svc.Update(ctx, models.TableTasks, "t1", models.Fields{"description": "b", "assignee": nil, "done": true})
	require.NoError(t, err)
	assert.Equal(t, models.Fields{"description": "b", "done": true}, rec.Fields)
	assert.Equal(t, int64(2), rec.Version)

	got, err := d.svc.Get(ctx, models.TableTasks, "t1")
	require.NoError(t, err)
	assert.Equal(t, rec.Checksum, got.Checksum)
}

func TestDelete_LeavesTombstone(t *testing.T) {
	d := newDevice(t, "dev-a", remotetest.New(), nil)
	ctx := context.Background()

	_, err := d.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "a"})
	require.NoError(t, err)
	_, err = d.svc.Create(ctx, models.TableTasks, "t2", models.Fields{"description": "b"})
	require.NoError(t, err)

	rec, err := d.svc.Delete(ctx, models.TableTasks, "t1")
	require.NoError(t, err)
	assert.True(t, rec.IsDeleted())
	assert.Equal(t, int64(2), rec.Version)

	list, err := d.svc.List(ctx, models.TableTasks)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t2", list[0].ID)

	_, err = d.svc.Get(ctx, models.TableTasks, "t1")
	require.ErrorIs(t, err, common.ErrNotFound)

	stored, err := d.local.Get(ctx, models.TableTasks, "t1")
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())

	ops := d.queue.Snapshot()
	require.Len(t, ops, 2)
	assert.Equal(t, models.OperationDelete, ops[1].Kind)

	_, err = d.svc.Delete(ctx, models.TableTasks, "t1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreate_AfterDeleteResurrects(t *testing.T) {
	d := newDevice(t, "dev-a", nil, nil)
	ctx := context.Background()

	_, err := d.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "a"})
	require.NoError(t, err)
	d.tick(time.Second)
	_, err = d.svc.Delete(ctx, models.TableTasks, "t1")
	require.NoError(t, err)
	d.tick(time.Second)

	rec, err := d.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "again"})
	require.NoError(t, err)
	assert.False(t, rec.IsDeleted())
	assert.Equal(t, int64(3), rec.Version)
}

func TestMutations_RejectInvalidInput(t *testing.T) {
	d := newDevice(t, "dev-a", nil, nil)
	ctx := context.Background()

	_, err := d.svc.Create(ctx, models.TableTasks, "t1", nil)
	require.NoError(t, err)

	_, err = d.svc.Create(ctx, models.TableTasks, "t1", nil)
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = d.svc.Update(ctx, models.TableTasks, "missing", models.Fields{"a": 1})
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = d.svc.Update(ctx, models.TableTasks, "", models.Fields{"a": 1})
	require.ErrorIs(t, err, ErrMissingID)

	_, err = d.svc.Create(ctx, models.Table("invoices"), "x", nil)
	require.ErrorIs(t, err, common.ErrUnknownTable)

	_, err = d.svc.List(ctx, models.Table("invoices"))
	require.ErrorIs(t, err, common.ErrUnknownTable)
}

type brokenRepo struct{ records.Repository }

func (brokenRepo) Upsert(context.Context, models.Record) error { return errors.New("database disk image is malformed") }

func TestCreate_SucceedsWhenStoreDegrades(t *testing.T) {
	d := newDevice(t, "dev-a", nil, func(r records.Repository) records.Repository { return brokenRepo{r} })
	ctx := context.Background()

	rec, err := d.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "kept"})
	require.NoError(t, err)
	assert.Equal(t, "t1", rec.ID)

	st := d.engine.Status()
	assert.True(t, st.Degraded)
	assert.Contains(t, st.DegradedReason, "tasks")

	list, err := d.svc.List(ctx, models.TableTasks)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestReload_MergesAndPersists(t *testing.T) {
	rem := remotetest.New()
	d := newDevice(t, "dev-a", rem, nil)
	ctx := context.Background()

	remoteRec := models.Record{
		ID: "w1", Table: models.TableWorkers, Fields: models.Fields{"name": "Ana"},
		Version: 3, LastModified: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), DeviceID: "dev-b",
	}
	remoteRec.Checksum = checksum.Of(remoteRec)
	rem.Seed(remoteRec)

	_, err := d.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "local only"})
	require.NoError(t, err)

	live, err := d.svc.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, live.Len())
	require.Len(t, live[models.TableWorkers], 1)

	stored, err := d.local.Get(ctx, models.TableWorkers, "w1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.Fields["name"])
	assert.Equal(t, 2, d.tracker.Tracked())
}

func TestReload_ChecksumIsComputedLocally(t *testing.T) {
	rem := remotetest.New()
	d := newDevice(t, "dev-a", rem, nil)
	ctx := context.Background()

	// another client left the checksum empty
	rem.Seed(models.Record{
		ID: "s1", Table: models.TableShifts, Fields: models.Fields{"name": "night"},
		Version: 1, LastModified: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), DeviceID: "dev-b",
	})

	_, err := d.svc.Reload(ctx)
	require.NoError(t, err)

	stored, err := d.local.Get(ctx, models.TableShifts, "s1")
	require.NoError(t, err)
	assert.Equal(t, checksum.Of(*stored), stored.Checksum)

	rep := d.tracker.RunIntegrityCheck(ctx)
	assert.Equal(t, 1, rep.Checked)
	assert.Zero(t, rep.Mismatched)
	assert.Zero(t, rem.SaveCount(models.TableShifts, "s1"))
}

func TestReload_RemoteDownReturnsLocal(t *testing.T) {
	rem := remotetest.New()
	d := newDevice(t, "dev-a", rem, nil)
	ctx := context.Background()

	_, err := d.svc.Create(ctx, models.TableTasks, "t1", nil)
	require.NoError(t, err)
	rem.FailLoads(remote.ErrUnavailable)

	live, err := d.svc.Reload(ctx)
	require.ErrorIs(t, err, remote.ErrUnavailable)
	assert.Equal(t, 1, live.Len())
}

func TestReload_NewerRemoteSupersedesQueuedWrite(t *testing.T) {
	rem := remotetest.New()
	d := newDevice(t, "dev-a", rem, nil)
	ctx := context.Background()

	_, err := d.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "stale"})
	require.NoError(t, err)

	newer := models.Record{
		ID: "t1", Table: models.TableTasks, Fields: models.Fields{"description": "from tablet"},
		Version: 4, LastModified: d.clock.Add(time.Hour), DeviceID: "dev-b",
	}
	newer.Checksum = checksum.Of(newer)
	rem.Seed(newer)

	_, err = d.svc.Reload(ctx)
	require.NoError(t, err)

	ops := d.queue.Snapshot()
	require.Len(t, ops, 1)
	assert.Equal(t, "from tablet", ops[0].Record.Fields["description"])
}

func TestForceSyncAll_IncludesTombstones(t *testing.T) {
	rem := remotetest.New()
	d := newDevice(t, "dev-a", rem, nil)
	ctx := context.Background()

	_, err := d.svc.Create(ctx, models.TableTasks, "t1", nil)
	require.NoError(t, err)
	_, err = d.svc.Create(ctx, models.TableTasks, "t2", nil)
	require.NoError(t, err)
	_, err = d.svc.Delete(ctx, models.TableTasks, "t2")
	require.NoError(t, err)

	d.engine.SetOnline(ctx, false)
	require.ErrorIs(t, d.svc.ForceSyncAll(ctx), syncer.ErrOffline)

	rem.FailSaves(errors.New("hold the queue"))
	d.engine.SetOnline(ctx, true)
	rem.FailSaves(nil)

	require.NoError(t, d.svc.ForceSyncAll(ctx))
	assert.Zero(t, d.queue.Size())
	gone, ok := rem.Get(models.TableTasks, "t2")
	require.True(t, ok)
	assert.True(t, gone.IsDeleted())
}

func TestTwoDevices_ConvergeThroughRemote(t *testing.T) {
	rem := remotetest.New()
	a := newDevice(t, "dev-a", rem, nil)
	b := newDevice(t, "dev-b", rem, nil)
	ctx := context.Background()
	a.engine.SetOnline(ctx, true)
	b.engine.SetOnline(ctx, true)

	_, err := a.svc.Create(ctx, models.TableTasks, "t1", models.Fields{"description": "replace belt"})
	require.NoError(t, err)

	_, err = b.svc.Reload(ctx)
	require.NoError(t, err)
	b.tick(time.Minute)
	_, err = b.svc.Update(ctx, models.TableTasks, "t1", models.Fields{"done": true})
	require.NoError(t, err)

	_, err = a.svc.Reload(ctx)
	require.NoError(t, err)
	got, err := a.svc.Get(ctx, models.TableTasks, "t1")
	require.NoError(t, err)
	assert.Equal(t, true, got.Fields["done"])
	assert.Equal(t, "dev-b", got.DeviceID)
	assert.Equal(t, int64(2), got.Version)
}

func TestChain_Order(t *testing.T) {
	var trace []string
	stage := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, m *Mutation) error {
				trace = append(trace, name)
				return next(ctx, m)
			}
		}
	}
	h := Chain(terminal, stage("stamp"), stage("persist"), stage("track"), stage("submit"))
	require.NoError(t, h(context.Background(), &Mutation{}))
	assert.Equal(t, []string{"stamp", "persist", "track", "submit"}, trace)
}
