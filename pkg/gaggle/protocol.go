package gaggle

import (
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
)

// RunConfig is everything a manager pushes to a worker once the
// gaggle's operator-supplied configuration is known: the worker's
// share of the total user count and hatch rate, plus the run
// parameters every worker applies locally. ResetStats is carried to
// the worker, but Worker.Run does not act on it: a worker never clears
// its aggregator when hatching completes. There is no only-summary
// field.
type RunConfig struct {
	Host            string
	Users           int
	HatchRate       float64
	RunTime         time.Duration
	StatusOK        []int // accepted status codes, empty means any code below 400 is success
	StickyFollow    bool
	ResetStats      bool
	ThrottleRequest float64 // max requests/sec per worker, 0 means unlimited
}

// HelloRequest is sent once by a worker when it first connects to a
// manager.
type HelloRequest struct {
	WorkerID   string
	Capacity   int // max users this worker is willing to run
	ConfigHash string
}

// HelloResponse is the manager's reply to HelloRequest.
type HelloResponse struct {
	Accepted    bool
	Reason      string
	Config      RunConfig
	ExpectStart bool
}

// MetricsPushRequest is sent periodically (and once more at run end)
// by a worker, carrying its local aggregator snapshot.
type MetricsPushRequest struct {
	WorkerID string
	Snapshot metrics.Snapshot
	Final    bool
}

// PushAck is the manager's reply to a metrics push. It doubles as the
// control channel back to the worker: StopRequested tells the worker
// to begin its shutdown sequence (on_stop hooks, final push, exit),
// the same way the teacher's worker heartbeat response carries
// scheduling instructions back from the manager.
type PushAck struct {
	StopRequested bool
}

// StopRequest is the argument of the Stop RPC, which the manager
// serves: a client calling Stop marks the gaggle as stopped. The
// manager never sends it to workers; they learn of a stop only
// through PushAck.StopRequested on their next scheduled push.
type StopRequest struct {
	Reason string
}

// StopAck acknowledges a StopRequest.
type StopAck struct{}
