package handlers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "warehouse.v1.Warehouse"

// Method names of the Warehouse service
const (
	MethodUpsertEntity    = "UpsertEntity"
	MethodGetEntity       = "GetEntity"
	MethodDeleteEntity    = "DeleteEntity"
	MethodUpsertAccount   = "UpsertAccount"
	MethodGetAccount      = "GetAccount"
	MethodDeleteAccount   = "DeleteAccount"
	MethodCreateProject   = "CreateProject"
	MethodGetProject      = "GetProject"
	MethodUpdateProject   = "UpdateProject"
	MethodDeleteProject   = "DeleteProject"
	MethodListProjects    = "ListProjects"
	MethodSetAttribute    = "SetAttribute"
	MethodGetAttribute    = "GetAttribute"
	MethodListAttributes  = "ListAttributes"
	MethodDeleteAttribute = "DeleteAttribute"
)

// writeMethods need the writer role
var writeMethods = map[string]bool{
	MethodUpsertEntity:    true,
	MethodDeleteEntity:    true,
	MethodUpsertAccount:   true,
	MethodDeleteAccount:   true,
	MethodCreateProject:   true,
	MethodUpdateProject:   true,
	MethodDeleteProject:   true,
	MethodSetAttribute:    true,
	MethodDeleteAttribute: true,
}

// FullMethod returns the gRPC path of a Warehouse method
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// WarehouseServer is the server API for the Warehouse service.
// Every method exchanges google.protobuf.Struct messages.
type WarehouseServer interface {
	UpsertEntity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEntity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteEntity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpsertAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateProject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateProject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteProject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListProjects(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetAttribute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAttribute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAttributes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAttribute(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv WarehouseServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WarehouseServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(WarehouseServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// WarehouseServiceDesc is the grpc.ServiceDesc for the Warehouse service
var WarehouseServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WarehouseServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc(MethodUpsertEntity, WarehouseServer.UpsertEntity),
		methodDesc(MethodGetEntity, WarehouseServer.GetEntity),
		methodDesc(MethodDeleteEntity, WarehouseServer.DeleteEntity),
		methodDesc(MethodUpsertAccount, WarehouseServer.UpsertAccount),
		methodDesc(MethodGetAccount, WarehouseServer.GetAccount),
		methodDesc(MethodDeleteAccount, WarehouseServer.DeleteAccount),
		methodDesc(MethodCreateProject, WarehouseServer.CreateProject),
		methodDesc(MethodGetProject, WarehouseServer.GetProject),
		methodDesc(MethodUpdateProject, WarehouseServer.UpdateProject),
		methodDesc(MethodDeleteProject, WarehouseServer.DeleteProject),
		methodDesc(MethodListProjects, WarehouseServer.ListProjects),
		methodDesc(MethodSetAttribute, WarehouseServer.SetAttribute),
		methodDesc(MethodGetAttribute, WarehouseServer.GetAttribute),
		methodDesc(MethodListAttributes, WarehouseServer.ListAttributes),
		methodDesc(MethodDeleteAttribute, WarehouseServer.DeleteAttribute),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "warehouse/v1/warehouse.proto",
}

// RegisterWarehouseServer registers srv with s
func RegisterWarehouseServer(s grpc.ServiceRegistrar, srv WarehouseServer) {
	s.RegisterService(&WarehouseServiceDesc, srv)
}

// WarehouseClient calls Warehouse methods by name
type WarehouseClient struct {
	cc grpc.ClientConnInterface
}

// NewWarehouseClient creates a client over cc
func NewWarehouseClient(cc grpc.ClientConnInterface) *WarehouseClient {
	return &WarehouseClient{cc: cc}
}

// Call invokes method with req
func (c *WarehouseClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
