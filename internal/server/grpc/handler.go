package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/dmitrijs2005/shiftsync/internal/rpc"
	"github.com/dmitrijs2005/shiftsync/internal/server/repositories/records"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(true), nil
}

func (s *GRPCServer) Save(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := decodeRecord(in)
	if err != nil {
		return nil, err
	}

	if err := s.store.Records().Upsert(ctx, userID, rec); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

// SaveAll writes the whole list in one transaction.
func (s *GRPCServer) SaveAll(ctx context.Context, in *structpb.ListValue) (*emptypb.Empty, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	recs, err := rpc.RecordsFromList(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	for _, r := range recs {
		if err := validate(r); err != nil {
			return nil, err
		}
	}

	err = s.store.InTx(ctx, func(ctx context.Context, repo records.Repository) error {
		for _, r := range recs {
			if err := repo.Upsert(ctx, userID, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "bulk save", "user", userID, "records", len(recs))
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Load(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	table, id, err := rpc.KeyFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := s.store.Records().Get(ctx, userID, table, id)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out, err := rpc.RecordToStruct(*rec)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *GRPCServer) LoadAll(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	table, err := models.ParseTable(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	recs, err := s.store.Records().ListLive(ctx, userID, table)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out, err := rpc.RecordsToList(recs)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func decodeRecord(in *structpb.Struct) (models.Record, error) {
	rec, err := rpc.RecordFromStruct(in)
	if err != nil {
		return rec, status.Error(codes.InvalidArgument, err.Error())
	}
	return rec, validate(rec)
}

func validate(rec models.Record) error {
	if _, err := models.ParseTable(string(rec.Table)); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if rec.ID == "" {
		return status.Error(codes.InvalidArgument, "missing record id")
	}
	return nil
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrRowLevelSecurity):
		return status.Error(codes.PermissionDenied, common.ErrRowLevelSecurity.Error())
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		s.logger.Error(ctx, "store error", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
