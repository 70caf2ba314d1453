// Package grpcstore is the remote store backed by the shiftsync gRPC server.
package grpcstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/dmitrijs2005/shiftsync/internal/rpc"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const DefaultTimeout = 10 * time.Second

var (
	_ remote.Store        = (*Store)(nil)
	_ remote.BulkSaver    = (*Store)(nil)
	_ remote.RecordLoader = (*Store)(nil)
	_ remote.Pinger       = (*Store)(nil)
)

type Store struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *rpc.RemoteStoreClient
	timeout     time.Duration
	dialOpts    []grpc.DialOption
	now         func() time.Time

	mu          sync.RWMutex
	accessToken string
}

type Option func(*Store)

// WithTimeout bounds every call that has no earlier deadline.
func WithTimeout(d time.Duration) Option { return func(s *Store) { s.timeout = d } }

// WithDialOptions appends dial options, e.g. a bufconn dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(s *Store) { s.dialOpts = append(s.dialOpts, opts...) }
}

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New creates the client. The connection is established lazily by gRPC.
func New(endpointURL, accessToken string, opts ...Option) (*Store, error) {
	s := &Store{
		endpointURL: endpointURL,
		accessToken: accessToken,
		timeout:     DefaultTimeout,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, s.dialOpts...)

	conn, err := grpc.NewClient(endpointURL, dial...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", endpointURL, err)
	}
	s.conn = conn
	s.client = rpc.NewRemoteStoreClient(conn)
	return s, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *Store) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if token := s.token(); token != "" {
		ctx = withAccessToken(ctx, token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (s *Store) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// SetToken replaces the access token used by later calls.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

// IsAuthenticated reports whether a token is held and not yet expired.
// The signature is the server's business; only the expiry is read here.
func (s *Store) IsAuthenticated(context.Context) bool {
	token := s.token()
	if token == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return s.now().Before(claims.ExpiresAt.Time)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Ping(ctx, &emptypb.Empty{}); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec models.Record) error {
	in, err := rpc.RecordToStruct(rec)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Save(ctx, in); err != nil {
		return mapError(err)
	}
	return nil
}

// SaveAll sends the snapshot in one call, tables in a fixed order.
func (s *Store) SaveAll(ctx context.Context, snap models.Snapshot) error {
	recs := make([]models.Record, 0, snap.Len())
	for _, t := range models.AllTables {
		recs = append(recs, snap[t]...)
	}
	in, err := rpc.RecordsToList(recs)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.SaveAll(ctx, in); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.Load(ctx, rpc.KeyStruct(table, id))
	if err != nil {
		return nil, mapError(err)
	}
	rec, err := rpc.RecordFromStruct(out)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) LoadAll(ctx context.Context, table models.Table) ([]models.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.LoadAll(ctx, wrapperspb.String(string(table)))
	if err != nil {
		return nil, mapError(err)
	}
	return rpc.RecordsFromList(out)
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// mapError turns gRPC status codes into the remote package sentinels. The
// server message is kept so IsAuthError can still see row-level security
// violations.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", remote.ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", remote.ErrUnavailable, st.Message())
	case codes.NotFound:
		return common.ErrNotFound
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
