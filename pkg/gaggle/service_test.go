package gaggle

import (
	"context"
	"net"
	"testing"

	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// dialedManager spins up a real gRPC server backed by an in-memory
// listener and returns a Client connected to it, exercising the full
// gob-codec wire path rather than calling Manager methods directly.
func dialedManager(t *testing.T, m *Manager) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterServer(srv, m)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn)
}

func TestClientServerHelloOverGRPC(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 20, HatchRate: 4}})
	client := dialedManager(t, m)

	resp, err := client.Hello(context.Background(), &HelloRequest{WorkerID: "w1", Capacity: 50})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 20, resp.Config.Users)
}

func TestClientServerPushMetricsOverGRPC(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 20, HatchRate: 4}})
	client := dialedManager(t, m)

	_, err := client.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	require.NoError(t, err)

	agg := metrics.NewAggregator()
	agg.Send(metrics.RawRequest{UserID: "u1", Name: "GET /", Success: true, StatusCode: 200, ElapsedMS: 1})

	ack, err := client.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w1", Snapshot: agg.Snapshot()})
	require.NoError(t, err)
	assert.False(t, ack.StopRequested)

	assert.Equal(t, int64(1), m.Snapshot().Aggregate.NumRequests)
}

func TestClientServerStopOverGRPC(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 20, HatchRate: 4}})
	client := dialedManager(t, m)

	_, err := client.Stop(context.Background(), &StopRequest{Reason: "done"})
	require.NoError(t, err)

	_, err = client.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	require.NoError(t, err)
	ack, err := client.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w1", Snapshot: metrics.NewAggregator().Snapshot()})
	require.NoError(t, err)
	assert.True(t, ack.StopRequested)
}
