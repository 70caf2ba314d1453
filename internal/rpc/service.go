// Package rpc defines the shiftsync.v1.RemoteStore gRPC service. Messages
// are protobuf well-known types, so no generated code is needed: records
// travel as google.protobuf.Struct with the same field names as their JSON
// form.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "shiftsync.v1.RemoteStore"

	MethodPing    = "/" + ServiceName + "/Ping"
	MethodSave    = "/" + ServiceName + "/Save"
	MethodSaveAll = "/" + ServiceName + "/SaveAll"
	MethodLoad    = "/" + ServiceName + "/Load"
	MethodLoadAll = "/" + ServiceName + "/LoadAll"
)

// RemoteStoreServer is implemented by the remote store server.
type RemoteStoreServer interface {
	Ping(ctx context.Context, in *emptypb.Empty) (*wrapperspb.BoolValue, error)
	// Save upserts one record.
	Save(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	// SaveAll upserts a list of records atomically.
	SaveAll(ctx context.Context, in *structpb.ListValue) (*emptypb.Empty, error)
	// Load takes {"table", "id"} and returns the record, tombstones included.
	Load(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	// LoadAll returns the live records of a table.
	LoadAll(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error)
}

func unary[Req proto.Message](method string, newReq func() Req,
	call func(srv RemoteStoreServer, ctx context.Context, in Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RemoteStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RemoteStoreServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RemoteStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler: unary(MethodPing, func() *emptypb.Empty { return new(emptypb.Empty) },
				func(s RemoteStoreServer, ctx context.Context, in *emptypb.Empty) (any, error) { return s.Ping(ctx, in) }),
		},
		{
			MethodName: "Save",
			Handler: unary(MethodSave, func() *structpb.Struct { return new(structpb.Struct) },
				func(s RemoteStoreServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Save(ctx, in) }),
		},
		{
			MethodName: "SaveAll",
			Handler: unary(MethodSaveAll, func() *structpb.ListValue { return new(structpb.ListValue) },
				func(s RemoteStoreServer, ctx context.Context, in *structpb.ListValue) (any, error) {
					return s.SaveAll(ctx, in)
				}),
		},
		{
			MethodName: "Load",
			Handler: unary(MethodLoad, func() *structpb.Struct { return new(structpb.Struct) },
				func(s RemoteStoreServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Load(ctx, in) }),
		},
		{
			MethodName: "LoadAll",
			Handler: unary(MethodLoadAll, func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
				func(s RemoteStoreServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
					return s.LoadAll(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shiftsync/v1/remote_store.proto",
}

func RegisterRemoteStoreServer(s grpc.ServiceRegistrar, srv RemoteStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// RemoteStoreClient is the client side of the service.
type RemoteStoreClient struct {
	cc grpc.ClientConnInterface
}

func NewRemoteStoreClient(cc grpc.ClientConnInterface) *RemoteStoreClient {
	return &RemoteStoreClient{cc: cc}
}

func (c *RemoteStoreClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodPing, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteStoreClient) Save(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MethodSave, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteStoreClient) SaveAll(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, MethodSaveAll, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteStoreClient) Load(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodLoad, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteStoreClient) LoadAll(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, MethodLoadAll, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
