package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * gRPC service definition for policyrouter.v1.PolicyRouter.
 *
 *   service PolicyRouter {
 *     rpc Evaluate(google.protobuf.Struct) returns (google.protobuf.Struct);
 *     rpc ListPolicies(google.protobuf.Empty) returns (google.protobuf.Struct);
 *   }
 *
 * Requests and responses are well-known types, so the descriptor, handlers
 * and client below are written by hand in the shape protoc-gen-go-grpc emits
 * rather than generated.
 */

// Full method names.
const (
	ServiceName          = "policyrouter.v1.PolicyRouter"
	EvaluateMethod       = "/" + ServiceName + "/Evaluate"
	ListPoliciesMethod   = "/" + ServiceName + "/ListPolicies"
	EvaluationIDMetadata = "x-evaluation-id"
)

// PolicyRouterServer is the server API for the PolicyRouter service.
type PolicyRouterServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPolicies(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc is the grpc.ServiceDesc for the PolicyRouter service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyRouterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "ListPolicies", Handler: listPoliciesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "policyrouter/v1/router.proto",
}

// RegisterPolicyRouterServer registers srv on s.
func RegisterPolicyRouterServer(s grpc.ServiceRegistrar, srv PolicyRouterServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func evaluateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PolicyRouterServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PolicyRouterServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listPoliciesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PolicyRouterServer).ListPolicies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListPoliciesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PolicyRouterServer).ListPolicies(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// PolicyRouterClient is the client API for the PolicyRouter service.
type PolicyRouterClient interface {
	Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListPolicies(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type policyRouterClient struct {
	cc grpc.ClientConnInterface
}

// NewPolicyRouterClient creates a client over cc.
func NewPolicyRouterClient(cc grpc.ClientConnInterface) PolicyRouterClient {
	return &policyRouterClient{cc: cc}
}

func (c *policyRouterClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EvaluateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *policyRouterClient) ListPolicies(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListPoliciesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
