// Package hasherv1 describes the drillx.v1.Hasher gRPC service. Messages are
// protobuf well-known types, so the service needs no generated code.
package hasherv1

import (
	"context"
	"encoding/binary"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"drillx/pkg/hashing/core"
)

const (
	ServiceName = "drillx.v1.Hasher"

	ComputeBatchFullMethodName = "/" + ServiceName + "/ComputeBatch"
	InfoFullMethodName         = "/" + ServiceName + "/Info"
)

// batchHeaderSize is the int32 batch size prefix of a ComputeBatch request
const batchHeaderSize = 4

// EncodeBatchRequest frames a batch as batch_size (int32 LE) ‖ challenge ‖ nonces
func EncodeBatchRequest(challenge, nonces []byte, batchSize int32) *wrapperspb.BytesValue {
	buf := make([]byte, batchHeaderSize, batchHeaderSize+len(challenge)+len(nonces))
	binary.LittleEndian.PutUint32(buf, uint32(batchSize))
	buf = append(buf, challenge...)
	buf = append(buf, nonces...)
	return wrapperspb.Bytes(buf)
}

// DecodeBatchRequest splits a ComputeBatch request. The challenge and nonce
// lengths are not checked here; the orchestrator owns that validation.
func DecodeBatchRequest(req *wrapperspb.BytesValue) (challenge, nonces []byte, batchSize int32, err error) {
	data := req.GetValue()
	if len(data) < batchHeaderSize+core.ChallengeSize {
		return nil, nil, 0, fmt.Errorf("request is %d bytes, need at least %d", len(data), batchHeaderSize+core.ChallengeSize)
	}
	batchSize = int32(binary.LittleEndian.Uint32(data))
	challenge = data[batchHeaderSize : batchHeaderSize+core.ChallengeSize]
	nonces = data[batchHeaderSize+core.ChallengeSize:]
	return challenge, nonces, batchSize, nil
}

// HasherClient is the client API for the Hasher service
type HasherClient interface {
	ComputeBatch(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Info(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type hasherClient struct {
	cc grpc.ClientConnInterface
}

func NewHasherClient(cc grpc.ClientConnInterface) HasherClient {
	return &hasherClient{cc}
}

func (c *hasherClient) ComputeBatch(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, ComputeBatchFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *hasherClient) Info(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InfoFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// HasherServer is the server API for the Hasher service
type HasherServer interface {
	ComputeBatch(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Info(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedHasherServer can be embedded to have forward compatible implementations
type UnimplementedHasherServer struct{}

func (UnimplementedHasherServer) ComputeBatch(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ComputeBatch not implemented")
}

func (UnimplementedHasherServer) Info(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Info not implemented")
}

func RegisterHasherServer(s grpc.ServiceRegistrar, srv HasherServer) {
	s.RegisterService(&Hasher_ServiceDesc, srv)
}

func _Hasher_ComputeBatch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HasherServer).ComputeBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ComputeBatchFullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HasherServer).ComputeBatch(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Hasher_Info_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HasherServer).Info(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: InfoFullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HasherServer).Info(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Hasher_ServiceDesc is the grpc.ServiceDesc for the Hasher service
var Hasher_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HasherServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ComputeBatch",
			Handler:    _Hasher_ComputeBatch_Handler,
		},
		{
			MethodName: "Info",
			Handler:    _Hasher_Info_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hasher/v1/hasher.proto",
}
