// Package server wires the remote store: PostgreSQL records behind the
// shiftsync.v1.RemoteStore gRPC service.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/server/auth"
	"github.com/dmitrijs2005/shiftsync/internal/server/config"
	"github.com/dmitrijs2005/shiftsync/internal/server/migrations"
	"github.com/dmitrijs2005/shiftsync/internal/server/repositories/records"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/shiftsync/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *gs.GRPCServer
}

// NewApp opens the database and applies migrations.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, logging.ParseLevel(c.LogLevel))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	srv := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, records.NewStore(db), c.SecretKey)
	return &App{config: c, logger: logger, db: db, server: srv}, nil
}

// IssueToken signs a device token for userID with the configured secret
// and lifetime.
func IssueToken(c *config.Config, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	return auth.GenerateToken(userID, []byte(c.SecretKey), c.AccessTokenValidityDuration)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a termination signal or ctx cancellation, then closes
// the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	err := app.server.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "grpc server stopped", "error", err)
	}

	if cerr := app.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
