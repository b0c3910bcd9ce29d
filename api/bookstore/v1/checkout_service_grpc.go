package bookstorev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "bookstore.v1.CheckoutService"

const (
	CheckoutService_Checkout_FullMethodName           = "/bookstore.v1.CheckoutService/Checkout"
	CheckoutService_GetOrder_FullMethodName           = "/bookstore.v1.CheckoutService/GetOrder"
	CheckoutService_ListCustomerOrders_FullMethodName = "/bookstore.v1.CheckoutService/ListCustomerOrders"
	CheckoutService_TransitionOrder_FullMethodName    = "/bookstore.v1.CheckoutService/TransitionOrder"
	CheckoutService_DeleteOrder_FullMethodName        = "/bookstore.v1.CheckoutService/DeleteOrder"
	CheckoutService_ListAuditLog_FullMethodName       = "/bookstore.v1.CheckoutService/ListAuditLog"
)

// CheckoutServiceClient — клиентский API сервиса оформления.
type CheckoutServiceClient interface {
	Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListCustomerOrders(ctx context.Context, in *ListCustomerOrdersRequest, opts ...grpc.CallOption) (*ListCustomerOrdersResponse, error)
	TransitionOrder(ctx context.Context, in *TransitionOrderRequest, opts ...grpc.CallOption) (*TransitionOrderResponse, error)
	DeleteOrder(ctx context.Context, in *DeleteOrderRequest, opts ...grpc.CallOption) (*DeleteOrderResponse, error)
	ListAuditLog(ctx context.Context, in *ListAuditLogRequest, opts ...grpc.CallOption) (*ListAuditLogResponse, error)
}

type checkoutServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCheckoutServiceClient создаёт клиента; все вызовы идут с JSON content-subtype.
func NewCheckoutServiceClient(cc grpc.ClientConnInterface) CheckoutServiceClient {
	return &checkoutServiceClient{cc: cc}
}

func (c *checkoutServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, callOpts...)
}

func (c *checkoutServiceClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutResponse, error) {
	out := new(CheckoutResponse)
	if err := c.invoke(ctx, CheckoutService_Checkout_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *checkoutServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.invoke(ctx, CheckoutService_GetOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *checkoutServiceClient) ListCustomerOrders(ctx context.Context, in *ListCustomerOrdersRequest, opts ...grpc.CallOption) (*ListCustomerOrdersResponse, error) {
	out := new(ListCustomerOrdersResponse)
	if err := c.invoke(ctx, CheckoutService_ListCustomerOrders_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *checkoutServiceClient) TransitionOrder(ctx context.Context, in *TransitionOrderRequest, opts ...grpc.CallOption) (*TransitionOrderResponse, error) {
	out := new(TransitionOrderResponse)
	if err := c.invoke(ctx, CheckoutService_TransitionOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *checkoutServiceClient) DeleteOrder(ctx context.Context, in *DeleteOrderRequest, opts ...grpc.CallOption) (*DeleteOrderResponse, error) {
	out := new(DeleteOrderResponse)
	if err := c.invoke(ctx, CheckoutService_DeleteOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *checkoutServiceClient) ListAuditLog(ctx context.Context, in *ListAuditLogRequest, opts ...grpc.CallOption) (*ListAuditLogResponse, error) {
	out := new(ListAuditLogResponse)
	if err := c.invoke(ctx, CheckoutService_ListAuditLog_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckoutServiceServer — серверная сторона сервиса.
// Реализации должны встраивать UnimplementedCheckoutServiceServer.
type CheckoutServiceServer interface {
	Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListCustomerOrders(context.Context, *ListCustomerOrdersRequest) (*ListCustomerOrdersResponse, error)
	TransitionOrder(context.Context, *TransitionOrderRequest) (*TransitionOrderResponse, error)
	DeleteOrder(context.Context, *DeleteOrderRequest) (*DeleteOrderResponse, error)
	ListAuditLog(context.Context, *ListAuditLogRequest) (*ListAuditLogResponse, error)
	mustEmbedUnimplementedCheckoutServiceServer()
}

// UnimplementedCheckoutServiceServer отвечает Unimplemented на все методы.
type UnimplementedCheckoutServiceServer struct{}

func (UnimplementedCheckoutServiceServer) Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Checkout not implemented")
}

func (UnimplementedCheckoutServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedCheckoutServiceServer) ListCustomerOrders(context.Context, *ListCustomerOrdersRequest) (*ListCustomerOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListCustomerOrders not implemented")
}

func (UnimplementedCheckoutServiceServer) TransitionOrder(context.Context, *TransitionOrderRequest) (*TransitionOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method TransitionOrder not implemented")
}

func (UnimplementedCheckoutServiceServer) DeleteOrder(context.Context, *DeleteOrderRequest) (*DeleteOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteOrder not implemented")
}

func (UnimplementedCheckoutServiceServer) ListAuditLog(context.Context, *ListAuditLogRequest) (*ListAuditLogResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAuditLog not implemented")
}

func (UnimplementedCheckoutServiceServer) mustEmbedUnimplementedCheckoutServiceServer() {}

// RegisterCheckoutServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterCheckoutServiceServer(s grpc.ServiceRegistrar, srv CheckoutServiceServer) {
	s.RegisterService(&CheckoutService_ServiceDesc, srv)
}

func _CheckoutService_Checkout_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckoutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).Checkout(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_Checkout_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServiceServer).Checkout(ctx, req.(*CheckoutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CheckoutService_GetOrder_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_GetOrder_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServiceServer).GetOrder(ctx, req.(*GetOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CheckoutService_ListCustomerOrders_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListCustomerOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).ListCustomerOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_ListCustomerOrders_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServiceServer).ListCustomerOrders(ctx, req.(*ListCustomerOrdersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CheckoutService_TransitionOrder_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TransitionOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).TransitionOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_TransitionOrder_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServiceServer).TransitionOrder(ctx, req.(*TransitionOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CheckoutService_DeleteOrder_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).DeleteOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_DeleteOrder_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServiceServer).DeleteOrder(ctx, req.(*DeleteOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CheckoutService_ListAuditLog_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListAuditLogRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).ListAuditLog(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_ListAuditLog_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServiceServer).ListAuditLog(ctx, req.(*ListAuditLogRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// CheckoutService_ServiceDesc — описание сервиса для grpc.ServiceRegistrar.
var CheckoutService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CheckoutServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkout", Handler: _CheckoutService_Checkout_Handler},
		{MethodName: "GetOrder", Handler: _CheckoutService_GetOrder_Handler},
		{MethodName: "ListCustomerOrders", Handler: _CheckoutService_ListCustomerOrders_Handler},
		{MethodName: "TransitionOrder", Handler: _CheckoutService_TransitionOrder_Handler},
		{MethodName: "DeleteOrder", Handler: _CheckoutService_DeleteOrder_Handler},
		{MethodName: "ListAuditLog", Handler: _CheckoutService_ListAuditLog_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}
