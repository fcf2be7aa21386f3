// Package rpc exposes a registry over gRPC.
//
// Messages are google.protobuf.Struct values carrying the JSON shapes of the
// model package, so the service needs no generated code. Entry ids travel as
// JSON numbers and are exact up to 2^53.
//
// The caller's principal is taken from the x-oeuvre-principal request header.
// The service trusts it: deploy behind a proxy that authenticates callers and
// sets the header.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName     = "oeuvre.registry.v1.Registry"
	PrincipalHeader = "x-oeuvre-principal"
)

// RegistryServer is the server API of the registry service.
type RegistryServer interface {
	Mint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OwnerOf(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateMetadata(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetRenderer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedRegistryServer can be embedded to have forward compatible implementations.
type UnimplementedRegistryServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedRegistryServer) Mint(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("Mint")
}
func (UnimplementedRegistryServer) Get(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("Get")
}
func (UnimplementedRegistryServer) List(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("List")
}
func (UnimplementedRegistryServer) OwnerOf(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("OwnerOf")
}
func (UnimplementedRegistryServer) UpdateMetadata(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("UpdateMetadata")
}
func (UnimplementedRegistryServer) SetRenderer(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("SetRenderer")
}
func (UnimplementedRegistryServer) Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("Transfer")
}
func (UnimplementedRegistryServer) Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("Resolve")
}
func (UnimplementedRegistryServer) History(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented("History")
}

// RegisterRegistryServer registers the registry service on a gRPC server.
func RegisterRegistryServer(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&Registry_ServiceDesc, srv)
}

type method func(RegistryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(name string, call method) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RegistryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(RegistryServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, h)
		},
	}
}

// Registry_ServiceDesc is the grpc.ServiceDesc for the registry service.
var Registry_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("Mint", RegistryServer.Mint),
		handler("Get", RegistryServer.Get),
		handler("List", RegistryServer.List),
		handler("OwnerOf", RegistryServer.OwnerOf),
		handler("UpdateMetadata", RegistryServer.UpdateMetadata),
		handler("SetRenderer", RegistryServer.SetRenderer),
		handler("Transfer", RegistryServer.Transfer),
		handler("Resolve", RegistryServer.Resolve),
		handler("History", RegistryServer.History),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "registry.proto",
}

// RegistryClient is the client API of the registry service.
type RegistryClient interface {
	Mint(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	OwnerOf(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	UpdateMetadata(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetRenderer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Transfer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type registryClient struct {
	cc grpc.ClientConnInterface
}

func NewRegistryClient(cc grpc.ClientConnInterface) RegistryClient {
	return &registryClient{cc: cc}
}

func (c *registryClient) invoke(ctx context.Context, name string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+name, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *registryClient) Mint(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Mint", in, opts)
}
func (c *registryClient) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Get", in, opts)
}
func (c *registryClient) List(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "List", in, opts)
}
func (c *registryClient) OwnerOf(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "OwnerOf", in, opts)
}
func (c *registryClient) UpdateMetadata(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "UpdateMetadata", in, opts)
}
func (c *registryClient) SetRenderer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SetRenderer", in, opts)
}
func (c *registryClient) Transfer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Transfer", in, opts)
}
func (c *registryClient) Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Resolve", in, opts)
}
func (c *registryClient) History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "History", in, opts)
}
