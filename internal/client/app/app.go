// Package app builds every client service once and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/shiftsync/internal/client/config"
	"github.com/dmitrijs2005/shiftsync/internal/client/connectivity"
	"github.com/dmitrijs2005/shiftsync/internal/client/integrity"
	"github.com/dmitrijs2005/shiftsync/internal/client/queue"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote/grpcstore"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote/s3store"
	"github.com/dmitrijs2005/shiftsync/internal/client/services"
	"github.com/dmitrijs2005/shiftsync/internal/client/statusws"
	"github.com/dmitrijs2005/shiftsync/internal/client/store"
	"github.com/dmitrijs2005/shiftsync/internal/client/syncer"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
)

type App struct {
	cfg *config.Config
	log logging.Logger

	repos   *store.Repositories
	local   *store.LocalStore
	remote  remote.Store
	queue   *queue.Queue
	engine  *syncer.Engine
	tracker *integrity.Tracker
	records services.RecordService
	watcher *connectivity.Watcher
	status  *statusws.Server

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	addr     net.Addr
	closed   bool
	override bool
}

type Option func(*App)

// WithRemote replaces the remote built from the configuration.
func WithRemote(r remote.Store) Option {
	return func(a *App) {
		a.remote = r
		a.override = true
	}
}

// New opens the local database, loads the persisted queue and wires the
// services. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, log logging.Logger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, log: log.With("module", "app")}
	for _, o := range opts {
		o(a)
	}

	if !a.override {
		r, err := buildRemote(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.remote = r
	}

	repos, err := store.InitDatabase(ctx, cfg.DBPath)
	if err != nil {
		a.closeRemote()
		return nil, err
	}
	a.repos = repos

	deviceID, err := store.DeviceID(ctx, repos.Metadata)
	if err != nil {
		a.closeRemote()
		_ = repos.Close()
		return nil, fmt.Errorf("failed to read device id: %w", err)
	}

	a.local = store.New(repos.Records, log)

	a.queue = queue.New(queue.NewMetadataPersister(repos.Metadata), log)
	if err := a.queue.Load(ctx); err != nil {
		a.log.Warn(ctx, "starting with an empty queue", "error", err)
	}

	a.engine = syncer.New(a.remote, a.queue, syncer.Config{
		Interval:   cfg.SyncInterval,
		MinGap:     cfg.SyncMinGap,
		BatchSize:  cfg.BatchSize,
		BatchPause: cfg.BatchPause,
		MaxRetries: cfg.MaxRetries,
		AutoSync:   cfg.AutoSync,
	}, log)

	a.tracker = integrity.New(a.local, a.remote, a.engine, log)

	a.records = services.NewRecordService(services.Deps{
		Local:    a.local,
		Remote:   a.remote,
		Engine:   a.engine,
		Tracker:  a.tracker,
		DeviceID: deviceID,
		Log:      log,
	})

	a.watcher = connectivity.New(a.remote, a.engine, cfg.OnlineCheckInterval, log,
		connectivity.WithReconnect(a.reload))

	a.status = statusws.New(a.engine, a.records, a.tracker, log)

	a.log.Info(ctx, "client ready", "device", deviceID, "remote", cfg.Remote, "queued", a.queue.Size())
	return a, nil
}

func buildRemote(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	switch cfg.Remote {
	case config.RemoteGRPC:
		s, err := grpcstore.New(cfg.ServerEndpointAddr, cfg.AccessToken)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.RemoteS3:
		s, err := s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Prefix:          cfg.S3Prefix,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

func (a *App) Records() services.RecordService { return a.records }
func (a *App) Engine() *syncer.Engine          { return a.engine }
func (a *App) Tracker() *integrity.Tracker     { return a.tracker }

// StatusAddr is the bound status API address, nil before Start.
func (a *App) StatusAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *App) reload(ctx context.Context) {
	if _, err := a.records.Reload(ctx); err != nil {
		a.log.Warn(ctx, "reload after reconnect failed", "error", err)
	}
}

// Start tracks the checksums of what is already stored, then starts the
// engine loop, the integrity schedule, the connectivity watcher and the
// status API.
func (a *App) Start(ctx context.Context) error {
	if err := a.trackExisting(ctx); err != nil {
		a.log.Warn(ctx, "could not track stored records", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	a.engine.Start(runCtx)
	if err := a.tracker.Start(runCtx, a.cfg.IntegritySchedule); err != nil {
		cancel()
		a.engine.Stop()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watcher.Run(runCtx)
	}()

	addr, err := a.status.Start(a.cfg.StatusAddr)
	if err != nil {
		cancel()
		a.wg.Wait()
		a.tracker.Stop()
		a.engine.Stop()
		return err
	}

	a.mu.Lock()
	a.cancel = cancel
	a.addr = addr
	a.mu.Unlock()
	return nil
}

func (a *App) trackExisting(ctx context.Context) error {
	snap, err := a.local.Snapshot(ctx, true)
	if err != nil {
		return err
	}
	for _, recs := range snap {
		for _, r := range recs {
			if r.Checksum != "" {
				a.tracker.RecordChecksum(r.Table, r.ID, r.Checksum)
			}
		}
	}
	return nil
}

// OnVisible is called when the process is resumed.
func (a *App) OnVisible(ctx context.Context) {
	a.engine.OnVisible(ctx)
}

// Run starts the app and blocks until ctx is done or SIGINT/SIGTERM
// arrives. SIGCONT counts as the dashboard becoming visible again.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCONT)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return a.Close(context.WithoutCancel(ctx))
		case sig := <-sigs:
			if sig == syscall.SIGCONT {
				a.log.Info(ctx, "resumed")
				a.OnVisible(ctx)
				continue
			}
			a.log.Info(ctx, "shutting down", "signal", sig.String())
			return a.Close(context.WithoutCancel(ctx))
		}
	}
}

// Close flushes queued operations, stops every background task and closes
// the remote and the database. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel := a.cancel
	a.mu.Unlock()

	a.engine.Flush(ctx)

	var errs []error
	if err := a.status.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("status server: %w", err))
	}
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	a.tracker.Stop()
	a.engine.Stop()

	if err := a.closeRemote(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}
	if err := a.repos.Close(); err != nil {
		errs = append(errs, fmt.Errorf("local database: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeRemote() error {
	if c, ok := a.remote.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
