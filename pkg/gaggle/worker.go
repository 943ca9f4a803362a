package gaggle

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/gaggle/pkg/log"
	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/cuemby/gaggle/pkg/scheduler"
	"github.com/cuemby/gaggle/pkg/taskset"
	"github.com/cuemby/gaggle/pkg/throttle"
	"github.com/cuemby/gaggle/pkg/user"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

const pushInterval = 5 * time.Second

// WorkerConfig configures one worker's connection to a manager.
type WorkerConfig struct {
	ManagerHost string
	ManagerPort int
	Capacity    int
	ConfigHash  string
	TaskSets    []taskset.TaskSet
}

// Worker dials a gaggle manager, receives its share of the run
// configuration, runs a local scheduler for that share, and streams
// its local metrics upward every pushInterval until told to stop.
type Worker struct {
	cfg    WorkerConfig
	id     string
	conn   *grpc.ClientConn
	client *Client
	agg    *metrics.Aggregator
}

// NewWorker builds a Worker. Dial is deferred to Run so construction
// never fails on network state.
func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		cfg: cfg,
		id:  uuid.NewString(),
		agg: metrics.NewAggregator(),
	}
}

// Run connects to the manager, runs the assigned share of the load
// test locally, and pushes metrics upward until ctx is canceled or the
// manager requests a stop.
func (w *Worker) Run(ctx context.Context, dialOpts ...grpc.DialOption) error {
	logger := log.WithWorkerID(w.id)

	addr := fmt.Sprintf("%s:%d", w.cfg.ManagerHost, w.cfg.ManagerPort)
	conn, err := Dial(ctx, addr, dialOpts...)
	if err != nil {
		return fmt.Errorf("gaggle worker: dial %s: %w", addr, err)
	}
	w.conn = conn
	defer conn.Close()
	w.client = NewClient(conn)

	hello, err := w.client.Hello(ctx, &HelloRequest{
		WorkerID:   w.id,
		Capacity:   w.cfg.Capacity,
		ConfigHash: w.cfg.ConfigHash,
	})
	if err != nil {
		return fmt.Errorf("gaggle worker: hello: %w", err)
	}
	if !hello.Accepted {
		return fmt.Errorf("gaggle worker: manager rejected join: %s", hello.Reason)
	}
	logger.Info().Str("manager", addr).Int("users", hello.Config.Users).
		Float64("hatch_rate", hello.Config.HatchRate).Msg("joined gaggle")
	metrics.RegisterComponent("gaggle-link", true, "connected to "+addr)
	defer metrics.UpdateComponent("gaggle-link", false, "disconnected")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if hello.Config.RunTime > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, hello.Config.RunTime)
		defer timeoutCancel()
	}

	users := hello.Config.Users
	if w.cfg.Capacity > 0 && users > w.cfg.Capacity {
		users = w.cfg.Capacity
	}
	sched := scheduler.New(scheduler.Config{
		Host:         hello.Config.Host,
		Users:        users,
		HatchRate:    hello.Config.HatchRate,
		Throttle:     throttle.New(hello.Config.ThrottleRequest),
		Sink:         user.Sink(w.agg),
		TaskSets:     w.cfg.TaskSets,
		StatusOK:     hello.Config.StatusOK,
		StickyFollow: hello.Config.StickyFollow,
	})

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(runCtx)
	}()

	w.pushLoop(ctx, runCtx, cancel, logger)
	<-schedDone

	w.pushOnce(ctx, true)
	return nil
}

// pushLoop sends periodic metrics pushes to the manager and cancels
// the local run if the manager's ack carries StopRequested.
func (w *Worker) pushLoop(ctx, runCtx context.Context, cancelRun context.CancelFunc, logger zerolog.Logger) {
	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.pushOnce(ctx, false) {
				logger.Info().Msg("manager requested stop")
				cancelRun()
				return
			}
		}
	}
}

// pushOnce sends one metrics push; returns true if the manager
// requested a stop.
func (w *Worker) pushOnce(ctx context.Context, final bool) bool {
	ack, err := w.client.PushMetrics(ctx, &MetricsPushRequest{
		WorkerID: w.id,
		Snapshot: w.agg.Snapshot(),
		Final:    final,
	})
	if err != nil {
		log.WithWorkerID(w.id).Warn().Err(err).Msg("metrics push failed")
		metrics.UpdateComponent("gaggle-link", false, "push failed: "+err.Error())
		return false
	}
	metrics.UpdateComponent("gaggle-link", true, "connected")
	if final {
		w.agg.Reset()
	}
	return ack.StopRequested
}
