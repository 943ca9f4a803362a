package gaggle

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// serviceName is the gRPC service path every RPC in this package is
// registered and invoked under: "/gaggle.Gaggle/<Method>".
const serviceName = "gaggle.Gaggle"

// Server is implemented by the gaggle manager to handle worker RPCs.
type Server interface {
	Hello(ctx context.Context, req *HelloRequest) (*HelloResponse, error)
	PushMetrics(ctx context.Context, req *MetricsPushRequest) (*PushAck, error)
	Stop(ctx context.Context, req *StopRequest) (*StopAck, error)
}

func helloHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(HelloRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Hello(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Hello"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Hello(ctx, req.(*HelloRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func pushMetricsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(MetricsPushRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).PushMetrics(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/PushMetrics"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).PushMetrics(ctx, req.(*MetricsPushRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func stopHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(StopRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Stop(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Stop"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Stop(ctx, req.(*StopRequest))
	}
	return interceptor(ctx, req, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Hello", Handler: helloHandler},
		{MethodName: "PushMetrics", Handler: pushMetricsHandler},
		{MethodName: "Stop", Handler: stopHandler},
	},
}

// RegisterServer registers a manager's Server implementation on a
// gRPC server.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

// Client wraps a gRPC connection with gaggle's three RPCs, always
// invoked with the gob content-subtype so they never touch grpc's
// built-in protobuf codec.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	err := c.conn.Invoke(ctx, fmt.Sprintf("/%s/%s", serviceName, method), req, reply, grpc.CallContentSubtype(codecName))
	if err != nil {
		return fmt.Errorf("gaggle: %s: %w", method, err)
	}
	return nil
}

func (c *Client) Hello(ctx context.Context, req *HelloRequest) (*HelloResponse, error) {
	resp := new(HelloResponse)
	if err := c.invoke(ctx, "Hello", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) PushMetrics(ctx context.Context, req *MetricsPushRequest) (*PushAck, error) {
	resp := new(PushAck)
	if err := c.invoke(ctx, "PushMetrics", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Stop(ctx context.Context, req *StopRequest) (*StopAck, error) {
	resp := new(StopAck)
	if err := c.invoke(ctx, "Stop", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Dial connects to a manager at addr over plaintext gRPC. Production
// deployments needing transport security supply their own
// grpc.WithTransportCredentials via DialOptions instead.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	dialOpts = append(dialOpts, opts...)
	return grpc.NewClient(addr, dialOpts...)
}
