package rpcpb

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ChordClient calls the chord.Chord service.
type ChordClient struct {
	cc grpc.ClientConnInterface
}

// NewChordClient wraps a connection.
func NewChordClient(cc grpc.ClientConnInterface) *ChordClient {
	return &ChordClient{cc: cc}
}

// FindSuccessor asks the node for the successor of an identifier.
func (c *ChordClient) FindSuccessor(ctx context.Context, in FindSuccessorRequest, opts ...grpc.CallOption) (Node, error) {
	out := dynamicpb.NewMessage(chordNodeDesc)
	if err := c.cc.Invoke(ctx, FindSuccessorMethod, in.encode(), out, opts...); err != nil {
		return Node{}, err
	}
	return decodeNode(out)
}

// SetKey stores a value under its identifier.
func (c *ChordClient) SetKey(ctx context.Context, in ChordSetKeyRequest, opts ...grpc.CallOption) error {
	out := dynamicpb.NewMessage(chordSetKeyResponseDesc)
	return c.cc.Invoke(ctx, ChordSetKeyMethod, in.encode(), out, opts...)
}

// Lookup reads the value stored under an identifier.
func (c *ChordClient) Lookup(ctx context.Context, in LookupRequest, opts ...grpc.CallOption) (LookupResponse, error) {
	out := dynamicpb.NewMessage(lookupResponseDesc)
	if err := c.cc.Invoke(ctx, LookupMethod, in.encode(), out, opts...); err != nil {
		return LookupResponse{}, err
	}
	return decodeLookupResponse(out)
}

// DHTClient calls the dht.DHT service.
type DHTClient struct {
	cc grpc.ClientConnInterface
}

// NewDHTClient wraps a connection.
func NewDHTClient(cc grpc.ClientConnInterface) *DHTClient {
	return &DHTClient{cc: cc}
}

// SetKey stores a value, or returns a forward pointer.
func (c *DHTClient) SetKey(ctx context.Context, in SetKeyRequest, opts ...grpc.CallOption) (SetKeyResponse, error) {
	out := dynamicpb.NewMessage(setKeyResponseDesc)
	if err := c.cc.Invoke(ctx, SetKeyMethod, in.encode(), out, opts...); err != nil {
		return SetKeyResponse{}, err
	}
	return decodeSetKeyResponse(out)
}

// GetKey reads a value, or returns a forward pointer.
func (c *DHTClient) GetKey(ctx context.Context, in GetKeyRequest, opts ...grpc.CallOption) (GetKeyResponse, error) {
	out := dynamicpb.NewMessage(getKeyResponseDesc)
	if err := c.cc.Invoke(ctx, GetKeyMethod, in.encode(), out, opts...); err != nil {
		return GetKeyResponse{}, err
	}
	return decodeGetKeyResponse(out)
}

// ChordServer is the server API for chord.Chord.
type ChordServer interface {
	FindSuccessor(context.Context, FindSuccessorRequest) (Node, error)
	SetKey(context.Context, ChordSetKeyRequest) error
	Lookup(context.Context, LookupRequest) (LookupResponse, error)
}

// DHTServer is the server API for dht.DHT.
type DHTServer interface {
	SetKey(context.Context, SetKeyRequest) (SetKeyResponse, error)
	GetKey(context.Context, GetKeyRequest) (GetKeyResponse, error)
}

// RegisterChordServer registers srv on s.
func RegisterChordServer(s grpc.ServiceRegistrar, srv ChordServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ChordService,
		HandlerType: (*ChordServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "FindSuccessor",
				Handler: unary(FindSuccessorMethod, findSuccessorRequestDesc, decodeFindSuccessorRequest,
					func(srv any, ctx context.Context, in FindSuccessorRequest) (*dynamicpb.Message, error) {
						out, err := srv.(ChordServer).FindSuccessor(ctx, in)
						if err != nil {
							return nil, err
						}
						return out.encode(), nil
					}),
			},
			{
				MethodName: "SetKey",
				Handler: unary(ChordSetKeyMethod, chordSetKeyRequestDesc, decodeChordSetKeyRequest,
					func(srv any, ctx context.Context, in ChordSetKeyRequest) (*dynamicpb.Message, error) {
						if err := srv.(ChordServer).SetKey(ctx, in); err != nil {
							return nil, err
						}
						return dynamicpb.NewMessage(chordSetKeyResponseDesc), nil
					}),
			},
			{
				MethodName: "Lookup",
				Handler: unary(LookupMethod, lookupRequestDesc, decodeLookupRequest,
					func(srv any, ctx context.Context, in LookupRequest) (*dynamicpb.Message, error) {
						out, err := srv.(ChordServer).Lookup(ctx, in)
						if err != nil {
							return nil, err
						}
						return out.encode(), nil
					}),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "chord.proto",
	}, srv)
}

// RegisterDHTServer registers srv on s.
func RegisterDHTServer(s grpc.ServiceRegistrar, srv DHTServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: DHTService,
		HandlerType: (*DHTServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "SetKey",
				Handler: unary(SetKeyMethod, setKeyRequestDesc, decodeSetKeyRequest,
					func(srv any, ctx context.Context, in SetKeyRequest) (*dynamicpb.Message, error) {
						out, err := srv.(DHTServer).SetKey(ctx, in)
						if err != nil {
							return nil, err
						}
						return out.encode(), nil
					}),
			},
			{
				MethodName: "GetKey",
				Handler: unary(GetKeyMethod, getKeyRequestDesc, decodeGetKeyRequest,
					func(srv any, ctx context.Context, in GetKeyRequest) (*dynamicpb.Message, error) {
						out, err := srv.(DHTServer).GetKey(ctx, in)
						if err != nil {
							return nil, err
						}
						return out.encode(), nil
					}),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "dht.proto",
	}, srv)
}

// unary adapts a typed handler to grpc.MethodHandler, decoding the request
// as a dynamic message of reqDesc.
func unary[Req any](
	fullMethod string,
	reqDesc protoreflect.MessageDescriptor,
	decode func(protoreflect.ProtoMessage) (Req, error),
	call func(srv any, ctx context.Context, in Req) (*dynamicpb.Message, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := dynamicpb.NewMessage(reqDesc)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			pm, ok := req.(protoreflect.ProtoMessage)
			if !ok {
				return nil, status.Error(codes.Internal, fmt.Sprintf("unexpected request type %T", req))
			}
			typed, err := decode(pm)
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			return call(srv, ctx, typed)
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, in, info, handler)
	}
}
