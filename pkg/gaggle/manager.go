package gaggle

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuemby/gaggle/pkg/health"
	"github.com/cuemby/gaggle/pkg/log"
	"github.com/cuemby/gaggle/pkg/metrics"
	"google.golang.org/grpc"
)

// workerHealthConfig governs how many consecutive missed pushes a
// worker tolerates before the manager marks it unhealthy. A worker
// pushes every 5s (pkg/gaggle's pushInterval); a check fails once 20s
// pass without a push, and three consecutive failed checks 5s apart
// are needed, so a worker is marked unhealthy about 30s (roughly six
// missed pushes) after its last push -- long enough to ride out a
// slow GC pause without flapping.
var workerHealthConfig = health.Config{
	Interval: 5 * time.Second,
	Timeout:  20 * time.Second,
	Retries:  3,
}

// ManagerConfig is the gaggle-wide run configuration an operator
// supplies to `gaggle manager`.
type ManagerConfig struct {
	BindHost      string
	BindPort      int
	ExpectWorkers int
	NoHashCheck   bool
	ConfigHash    string
	Run           RunConfig
}

// workerState tracks one connected worker. last holds that worker's
// most recent snapshot, which is cumulative for its own lifetime (a
// worker only resets its local aggregator after its final push), so
// the manager replaces rather than adds on every push.
type workerState struct {
	id       string
	capacity int
	lastPush time.Time
	last     metrics.Snapshot
	health   *health.Status
}

// Manager is the gaggle coordinator: it accepts worker connections,
// divides the operator's requested user count and hatch rate evenly
// across them, combines every connected worker's latest metrics
// snapshot into a gaggle-wide view on demand, and relays stop
// requests.
type Manager struct {
	cfg   ManagerConfig
	agg   *metrics.Aggregator
	grpcS *grpc.Server

	mu      sync.Mutex
	workers map[string]*workerState
	stopped bool
}

// NewManager builds a Manager. agg is a scratch Aggregator the manager
// rebuilds from scratch on every Snapshot call; it must not be written
// to by any other goroutine.
func NewManager(cfg ManagerConfig, agg *metrics.Aggregator) *Manager {
	return &Manager{
		cfg:     cfg,
		agg:     agg,
		workers: make(map[string]*workerState),
	}
}

// Serve starts the gRPC listener and blocks until ctx is canceled.
func (m *Manager) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.BindHost, m.cfg.BindPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gaggle manager: listen %s: %w", addr, err)
	}

	m.grpcS = grpc.NewServer()
	RegisterServer(m.grpcS, m)

	logger := log.WithComponent("gaggle-manager")
	logger.Info().Str("addr", addr).Int("expect_workers", m.cfg.ExpectWorkers).Msg("listening for workers")

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.grpcS.Serve(lis)
	}()

	go m.reapStaleWorkers(ctx)

	select {
	case <-ctx.Done():
		m.grpcS.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// reapStaleWorkers polls connected workers at workerHealthConfig's
// Interval and folds a synthetic Result into each one's health.Status:
// a worker that hasn't pushed within Timeout counts as a failed check,
// same as a missed HTTP or TCP probe would for health.Status.Update.
// Workers that flap across the Retries threshold stay connected, and
// their last pushed snapshot still counts in Snapshot's merge; the
// count of unhealthy workers is exposed via UnhealthyWorkerCount.
func (m *Manager) reapStaleWorkers(ctx context.Context) {
	ticker := time.NewTicker(workerHealthConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkWorkerHealth()
		}
	}
}

func (m *Manager) checkWorkerHealth() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	unhealthy := 0
	for _, w := range m.workers {
		result := health.Result{Healthy: now.Sub(w.lastPush) < workerHealthConfig.Timeout, CheckedAt: now}
		w.health.Update(result, workerHealthConfig)
		if !w.health.Healthy {
			unhealthy++
		}
	}
	metrics.WorkersUnhealthy.Set(float64(unhealthy))
}

// Hello implements Server.
func (m *Manager) Hello(ctx context.Context, req *HelloRequest) (*HelloResponse, error) {
	logger := log.WithWorkerID(req.WorkerID)

	if !m.cfg.NoHashCheck && m.cfg.ConfigHash != "" && req.ConfigHash != m.cfg.ConfigHash {
		logger.Warn().Str("worker_hash", req.ConfigHash).Str("manager_hash", m.cfg.ConfigHash).
			Msg("rejecting worker: config hash mismatch")
		return &HelloResponse{Accepted: false, Reason: "config hash mismatch"}, nil
	}

	m.mu.Lock()
	m.workers[req.WorkerID] = &workerState{
		id:       req.WorkerID,
		capacity: req.Capacity,
		lastPush: time.Now(),
		health:   health.NewStatus(),
	}
	stopped := m.stopped
	n := len(m.workers)
	m.mu.Unlock()

	logger.Info().Int("workers_connected", n).Msg("worker joined gaggle")
	metrics.WorkersConnected.Set(float64(n))

	divisor := n
	if m.cfg.ExpectWorkers > divisor {
		divisor = m.cfg.ExpectWorkers
	}
	share := m.shareFor(n-1, divisor)
	return &HelloResponse{
		Accepted:    true,
		Config:      share,
		ExpectStart: !stopped,
	}, nil
}

// shareFor divides the gaggle-wide user count, hatch rate, and
// aggregate throttle rate across n workers (Hello passes
// ExpectWorkers, or the number joined so far when that is larger or
// ExpectWorkers is 0), handing this worker (0-based join rank) its
// share. Users is partitioned with
// partitionShare so the n shares differ by at most 1 and always sum
// back to the configured total (e.g. Users=10, n=3 -> 4/3/3, not
// 3/3/3). HatchRate and ThrottleRequest are continuous rates rather
// than discrete counts, so plain division doesn't lose anything the
// way truncating integer division does; a ThrottleRequest of 0 stays
// 0 (unlimited) regardless of n.
func (m *Manager) shareFor(rank, n int) RunConfig {
	if n <= 0 {
		n = 1
	}
	cfg := m.cfg.Run
	cfg.Users = partitionShare(cfg.Users, n, rank)
	cfg.HatchRate = cfg.HatchRate / float64(n)
	cfg.ThrottleRequest = cfg.ThrottleRequest / float64(n)
	return cfg
}

// partitionShare splits total into n shares differing by at most 1
// and summing exactly back to total: the first total%n shares (by
// 0-based rank) get one extra unit.
func partitionShare(total, n, rank int) int {
	share := total / n
	if rank < total%n {
		share++
	}
	return share
}

// PushMetrics implements Server. Each push carries a worker's full
// cumulative snapshot, so the manager replaces its stored copy rather
// than adding to a running total -- repeated periodic pushes from the
// same worker must not be double-counted.
func (m *Manager) PushMetrics(ctx context.Context, req *MetricsPushRequest) (*PushAck, error) {
	m.mu.Lock()
	if w, ok := m.workers[req.WorkerID]; ok {
		now := time.Now()
		w.lastPush = now
		w.last = req.Snapshot
		w.health.Update(health.Result{Healthy: true, CheckedAt: now}, workerHealthConfig)
	}
	stop := m.stopped
	m.mu.Unlock()

	return &PushAck{StopRequested: stop}, nil
}

// Snapshot recomputes the gaggle-wide metrics view by combining every
// connected worker's latest reported snapshot. Safe to call
// concurrently with PushMetrics.
func (m *Manager) Snapshot() metrics.Snapshot {
	m.mu.Lock()
	snaps := make([]metrics.Snapshot, 0, len(m.workers))
	for _, w := range m.workers {
		if w.last.ByName != nil {
			snaps = append(snaps, w.last)
		}
	}
	m.mu.Unlock()

	m.agg.Reset()
	for _, s := range snaps {
		m.agg.Merge(s)
	}
	return m.agg.Snapshot()
}

// Stop implements Server: an operator-facing call (or one relayed
// from the control plane) that flags every future PushMetrics
// response with StopRequested.
func (m *Manager) Stop(ctx context.Context, req *StopRequest) (*StopAck, error) {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	log.WithComponent("gaggle-manager").Info().Str("reason", req.Reason).Msg("stop requested")
	return &StopAck{}, nil
}

// RequestStop marks the gaggle as stopping; connected workers learn of
// it on their next metrics push.
func (m *Manager) RequestStop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

// WorkerCount returns the number of currently connected workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// UnhealthyWorkerCount returns the number of connected workers that
// have missed workerHealthConfig.Retries consecutive pushes.
func (m *Manager) UnhealthyWorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.workers {
		if !w.health.Healthy {
			n++
		}
	}
	return n
}

// AllWorkersReady reports whether at least ExpectWorkers have joined.
func (m *Manager) AllWorkersReady() bool {
	if m.cfg.ExpectWorkers <= 0 {
		return true
	}
	return m.WorkerCount() >= m.cfg.ExpectWorkers
}
