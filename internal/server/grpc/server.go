// Package grpc serves the shiftsync.v1.RemoteStore service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/rpc"
	"github.com/dmitrijs2005/shiftsync/internal/server/repositories/records"
	"google.golang.org/grpc"
)

// RecordStore gives handlers a repository, or one bound to a transaction.
type RecordStore interface {
	Records() records.Repository
	InTx(ctx context.Context, fn func(ctx context.Context, repo records.Repository) error) error
}

type GRPCServer struct {
	address   string
	store     RecordStore
	logger    logging.Logger
	jwtSecret []byte
}

var _ rpc.RemoteStoreServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, store RecordStore, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		store:     store,
		jwtSecret: []byte(secretKey),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterRemoteStoreServer(srv, s)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
