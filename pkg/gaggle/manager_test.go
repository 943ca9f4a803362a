package gaggle

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(cfg ManagerConfig) *Manager {
	return NewManager(cfg, metrics.NewAggregator())
}

func TestHelloAcceptsAndDividesShare(t *testing.T) {
	m := newTestManager(ManagerConfig{
		Run: RunConfig{Users: 100, HatchRate: 10},
	})

	resp, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 100, resp.Config.Users)
	assert.Equal(t, 10.0, resp.Config.HatchRate)

	resp2, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w2"})
	require.NoError(t, err)
	assert.True(t, resp2.Accepted)
	assert.Equal(t, 50, resp2.Config.Users)
	assert.Equal(t, 5.0, resp2.Config.HatchRate)

	assert.Equal(t, 2, m.WorkerCount())
}

func TestHelloDividesThrottleAcrossWorkers(t *testing.T) {
	m := newTestManager(ManagerConfig{
		Run: RunConfig{Users: 20, HatchRate: 4, ThrottleRequest: 100},
	})

	resp1, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, resp1.Config.ThrottleRequest)

	resp2, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w2"})
	require.NoError(t, err)
	assert.Equal(t, 50.0, resp2.Config.ThrottleRequest)
}

func TestHelloLeavesUnlimitedThrottleUnlimited(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 10, HatchRate: 1}})
	resp, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Config.ThrottleRequest)
}

func TestHelloDividesShareWithoutDroppingRemainder(t *testing.T) {
	m := newTestManager(ManagerConfig{
		ExpectWorkers: 3,
		Run:           RunConfig{Users: 10, HatchRate: 1},
	})

	var shares []int
	for _, id := range []string{"w1", "w2", "w3"} {
		resp, err := m.Hello(context.Background(), &HelloRequest{WorkerID: id})
		require.NoError(t, err)
		shares = append(shares, resp.Config.Users)
	}

	total := 0
	for _, s := range shares {
		total += s
		assert.LessOrEqual(t, s, 4)
		assert.GreaterOrEqual(t, s, 3)
	}
	assert.Equal(t, 10, total)
}

func TestPartitionShareConservesTotalAndBoundsSpread(t *testing.T) {
	for _, tc := range []struct{ total, n int }{
		{10, 3}, {10, 7}, {1, 5}, {0, 4}, {100, 1},
	} {
		sum := 0
		min, max := -1, -1
		for rank := 0; rank < tc.n; rank++ {
			s := partitionShare(tc.total, tc.n, rank)
			sum += s
			if min == -1 || s < min {
				min = s
			}
			if max == -1 || s > max {
				max = s
			}
		}
		assert.Equal(t, tc.total, sum, "total=%d n=%d", tc.total, tc.n)
		assert.LessOrEqual(t, max-min, 1, "total=%d n=%d", tc.total, tc.n)
	}
}

func TestHelloRejectsConfigHashMismatch(t *testing.T) {
	m := newTestManager(ManagerConfig{ConfigHash: "abc123", Run: RunConfig{Users: 10, HatchRate: 1}})

	resp, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w1", ConfigHash: "different"})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Contains(t, resp.Reason, "hash")
	assert.Equal(t, 0, m.WorkerCount())
}

func TestHelloAllowsMismatchWhenNoHashCheck(t *testing.T) {
	m := newTestManager(ManagerConfig{ConfigHash: "abc123", NoHashCheck: true, Run: RunConfig{Users: 10, HatchRate: 1}})

	resp, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w1", ConfigHash: "different"})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
}

func TestPushMetricsReplacesRatherThanAccumulates(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 10, HatchRate: 1}})
	_, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	require.NoError(t, err)

	agg := metrics.NewAggregator()
	agg.Record(metrics.RawRequest{UserID: "u1", Name: "GET /", Success: true, StatusCode: 200, ResponseTime: time.Millisecond, ElapsedMS: 1})
	snap1 := agg.Snapshot()

	_, err = m.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w1", Snapshot: snap1})
	require.NoError(t, err)
	combined := m.Snapshot()
	assert.Equal(t, int64(1), combined.Aggregate.NumRequests)

	agg.Record(metrics.RawRequest{UserID: "u1", Name: "GET /", Success: true, StatusCode: 200, ResponseTime: time.Millisecond, ElapsedMS: 2})
	snap2 := agg.Snapshot()
	_, err = m.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w1", Snapshot: snap2})
	require.NoError(t, err)

	combined = m.Snapshot()
	assert.Equal(t, int64(2), combined.Aggregate.NumRequests, "second cumulative push must replace, not add to, the first")
}

func TestPushMetricsCombinesAcrossWorkers(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 10, HatchRate: 1}})
	_, _ = m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	_, _ = m.Hello(context.Background(), &HelloRequest{WorkerID: "w2"})

	agg1 := metrics.NewAggregator()
	agg1.Record(metrics.RawRequest{UserID: "u1", Name: "GET /", Success: true, StatusCode: 200, ResponseTime: time.Millisecond, ElapsedMS: 1})
	agg2 := metrics.NewAggregator()
	agg2.Record(metrics.RawRequest{UserID: "u2", Name: "GET /", Success: false, StatusCode: 500, ResponseTime: time.Millisecond, ElapsedMS: 1})
	agg2.Record(metrics.RawRequest{UserID: "u2", Name: "GET /", Success: true, StatusCode: 200, ResponseTime: time.Millisecond, ElapsedMS: 2})

	_, _ = m.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w1", Snapshot: agg1.Snapshot()})
	_, _ = m.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w2", Snapshot: agg2.Snapshot()})

	combined := m.Snapshot()
	assert.Equal(t, int64(3), combined.Aggregate.NumRequests)
	assert.Equal(t, int64(1), combined.Aggregate.NumFailures)
}

func TestStopRequestFlagsFuturePushAcks(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 10, HatchRate: 1}})
	_, _ = m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})

	ack, err := m.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w1", Snapshot: metrics.NewAggregator().Snapshot()})
	require.NoError(t, err)
	assert.False(t, ack.StopRequested)

	_, err = m.Stop(context.Background(), &StopRequest{Reason: "operator requested"})
	require.NoError(t, err)

	ack, err = m.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w1", Snapshot: metrics.NewAggregator().Snapshot()})
	require.NoError(t, err)
	assert.True(t, ack.StopRequested)
}

func TestAllWorkersReady(t *testing.T) {
	m := newTestManager(ManagerConfig{ExpectWorkers: 2, Run: RunConfig{Users: 10, HatchRate: 1}})
	assert.False(t, m.AllWorkersReady())

	_, _ = m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	assert.False(t, m.AllWorkersReady())

	_, _ = m.Hello(context.Background(), &HelloRequest{WorkerID: "w2"})
	assert.True(t, m.AllWorkersReady())
}

func TestAllWorkersReadyWithNoExpectation(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 10, HatchRate: 1}})
	assert.True(t, m.AllWorkersReady())
}

func TestCheckWorkerHealthMarksStaleWorkerUnhealthyAfterRetries(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 10, HatchRate: 1}})
	_, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	require.NoError(t, err)

	m.mu.Lock()
	m.workers["w1"].lastPush = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := 0; i < workerHealthConfig.Retries; i++ {
		assert.Equal(t, 0, m.UnhealthyWorkerCount(), "should stay healthy until Retries consecutive misses")
		m.checkWorkerHealth()
	}
	assert.Equal(t, 1, m.UnhealthyWorkerCount())
}

func TestCheckWorkerHealthRecoversOnFreshPush(t *testing.T) {
	m := newTestManager(ManagerConfig{Run: RunConfig{Users: 10, HatchRate: 1}})
	_, err := m.Hello(context.Background(), &HelloRequest{WorkerID: "w1"})
	require.NoError(t, err)

	m.mu.Lock()
	m.workers["w1"].lastPush = time.Now().Add(-time.Hour)
	m.mu.Unlock()
	for i := 0; i < workerHealthConfig.Retries; i++ {
		m.checkWorkerHealth()
	}
	require.Equal(t, 1, m.UnhealthyWorkerCount())

	_, err = m.PushMetrics(context.Background(), &MetricsPushRequest{WorkerID: "w1", Snapshot: metrics.Snapshot{ByName: map[string]*metrics.MetricsBucket{}}})
	require.NoError(t, err)
	assert.Equal(t, 0, m.UnhealthyWorkerCount())
}
