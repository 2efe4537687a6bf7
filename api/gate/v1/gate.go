// Package gatev1 defines the chaingate.v1.Gate decision service. Requests
// and responses are google.protobuf.Struct messages so the service needs
// no generated message types.
package gatev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "chaingate.v1.Gate"

const (
	Gate_CheckPath_FullMethodName     = "/chaingate.v1.Gate/CheckPath"
	Gate_CheckClass_FullMethodName    = "/chaingate.v1.Gate/CheckClass"
	Gate_Status_FullMethodName        = "/chaingate.v1.Gate/Status"
	Gate_SetKillSwitch_FullMethodName = "/chaingate.v1.Gate/SetKillSwitch"
)

// GateClient is the client API for the Gate service.
type GateClient interface {
	CheckPath(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CheckClass(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Status(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetKillSwitch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type gateClient struct {
	cc grpc.ClientConnInterface
}

func NewGateClient(cc grpc.ClientConnInterface) GateClient {
	return &gateClient{cc}
}

func (c *gateClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gateClient) CheckPath(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, Gate_CheckPath_FullMethodName, in, opts)
}

func (c *gateClient) CheckClass(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, Gate_CheckClass_FullMethodName, in, opts)
}

func (c *gateClient) Status(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, Gate_Status_FullMethodName, in, opts)
}

func (c *gateClient) SetKillSwitch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, Gate_SetKillSwitch_FullMethodName, in, opts)
}

// GateServer is the server API for the Gate service.
type GateServer interface {
	CheckPath(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckClass(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetKillSwitch(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedGateServer can be embedded to have forward compatible
// implementations.
type UnimplementedGateServer struct{}

func (UnimplementedGateServer) CheckPath(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckPath not implemented")
}

func (UnimplementedGateServer) CheckClass(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckClass not implemented")
}

func (UnimplementedGateServer) Status(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}

func (UnimplementedGateServer) SetKillSwitch(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SetKillSwitch not implemented")
}

func RegisterGateServer(s grpc.ServiceRegistrar, srv GateServer) {
	s.RegisterService(&Gate_ServiceDesc, srv)
}

func unaryHandler(method string, call func(GateServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GateServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GateServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Gate_ServiceDesc is the grpc.ServiceDesc for the Gate service.
var Gate_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckPath", Handler: unaryHandler(Gate_CheckPath_FullMethodName, GateServer.CheckPath)},
		{MethodName: "CheckClass", Handler: unaryHandler(Gate_CheckClass_FullMethodName, GateServer.CheckClass)},
		{MethodName: "Status", Handler: unaryHandler(Gate_Status_FullMethodName, GateServer.Status)},
		{MethodName: "SetKillSwitch", Handler: unaryHandler(Gate_SetKillSwitch_FullMethodName, GateServer.SetKillSwitch)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chaingate/v1/gate.proto",
}
