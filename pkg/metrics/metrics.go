// Package metrics implements the metrics aggregation pipeline:
// ingestion of per-request RawRequest events, per-name and aggregate
// bucket tables, bounded-memory percentile histograms, periodic
// snapshotting, and Prometheus exposition.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaggle_requests_total",
			Help: "Total number of requests by name and outcome",
		},
		[]string{"name", "outcome"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gaggle_request_duration_seconds",
			Help:    "Request duration in seconds by name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	UsersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaggle_users_active",
			Help: "Number of currently running virtual users",
		},
	)

	RecordsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gaggle_records_dropped_total",
			Help: "Total number of raw request records dropped due to a full ingestion channel",
		},
	)

	WorkersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaggle_workers_connected",
			Help: "Number of workers currently connected to the manager",
		},
	)

	WorkersUnhealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaggle_workers_unhealthy",
			Help: "Number of connected workers that have missed consecutive metrics pushes",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(UsersActive)
	prometheus.MustRegister(RecordsDroppedTotal)
	prometheus.MustRegister(WorkersConnected)
	prometheus.MustRegister(WorkersUnhealthy)
}

var droppedRecords int64

// IncDropped records one RawRequest dropped because an ingestion
// channel (e.g. pkg/statslog's Writer) was full. Backpressure must
// never slow down load generation, so producers drop and count rather
// than block.
func IncDropped() {
	atomic.AddInt64(&droppedRecords, 1)
	RecordsDroppedTotal.Inc()
}

// DroppedRecords returns the total count of dropped records for
// inclusion in the final summary, per spec.md's backpressure
// requirement.
func DroppedRecords() int64 {
	return atomic.LoadInt64(&droppedRecords)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// RawRequest is one completed (or updated) HTTP call reported by a
// user's execution context. Field names and JSON tags follow the
// stats log's on-disk schema exactly.
type RawRequest struct {
	UserID     string        `json:"user"`
	Name       string        `json:"name"`
	Method     string        `json:"method"`
	URL        string        `json:"url"`
	FinalURL   string        `json:"final_url"`
	Redirected bool          `json:"redirected"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code"`
	// ResponseTime is this request's own duration.
	ResponseTime time.Duration `json:"response_time"`
	// ElapsedMS is the millisecond timestamp of the ORIGINAL record
	// this event corresponds to. For new records it is the time elapsed
	// since this user's Context was created, taken when the record is
	// reported; for update records
	// it is copied from the original so (UserID, ElapsedMS, Name)
	// identifies the record being corrected.
	ElapsedMS int64     `json:"elapsed"`
	Update    bool      `json:"update"`
	Timestamp time.Time `json:"-"`
}

// MetricsBucket accumulates statistics for one request name.
type MetricsBucket struct {
	Name           string
	NumRequests    int64
	NumFailures    int64
	TotalResponse  time.Duration
	MinResponse    time.Duration
	MaxResponse    time.Duration
	StatusCodes    map[int]int64
	Hist           *Histogram
}

func newBucket(name string) *MetricsBucket {
	return &MetricsBucket{
		Name:        name,
		StatusCodes: make(map[int]int64),
		Hist:        NewHistogram(),
	}
}

func (b *MetricsBucket) record(req RawRequest) {
	b.NumRequests++
	if !req.Success {
		b.NumFailures++
	}
	b.TotalResponse += req.ResponseTime
	if b.NumRequests == 1 || req.ResponseTime < b.MinResponse {
		b.MinResponse = req.ResponseTime
	}
	if req.ResponseTime > b.MaxResponse {
		b.MaxResponse = req.ResponseTime
	}
	b.StatusCodes[req.StatusCode]++
	b.Hist.Add(req.ResponseTime)
}

// Mean returns the average response time across all recorded requests.
func (b *MetricsBucket) Mean() time.Duration {
	if b.NumRequests == 0 {
		return 0
	}
	return b.TotalResponse / time.Duration(b.NumRequests)
}

// FailureRatio returns the fraction of requests that failed, in [0,1].
func (b *MetricsBucket) FailureRatio() float64 {
	if b.NumRequests == 0 {
		return 0
	}
	return float64(b.NumFailures) / float64(b.NumRequests)
}

// Percentile returns the response time at or below which p fraction of
// requests fell (0 <= p <= 1).
func (b *MetricsBucket) Percentile(p float64) time.Duration {
	return b.Hist.Percentile(p)
}

// RequestsPerSecond returns the observed throughput for this name
// given the wall-clock duration the run has been active.
func (b *MetricsBucket) RequestsPerSecond(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(b.NumRequests) / elapsed.Seconds()
}

// Snapshot is an immutable copy of the aggregator's state at one point
// in time, safe to hand to the dashboard, stats log, or final summary
// renderer without holding the aggregator's lock.
type Snapshot struct {
	Taken     time.Time
	Elapsed   time.Duration
	Aggregate MetricsBucket
	ByName    map[string]*MetricsBucket
}

// Aggregator is the single-consumer metrics pipeline: it owns the
// per-name and aggregate tables and reconciles "update" records
// against a bounded window of recently seen requests.
type Aggregator struct {
	mu        sync.Mutex
	byName    map[string]*MetricsBucket
	aggregate *MetricsBucket
	started   time.Time

	// recent indexes the last N RawRequests by (UserID, ElapsedMS,
	// Name) so a later "update" record can find and correct the
	// original without double-counting it in the aggregate.
	recent    map[updateKey]*recentEntry
	recentLRU []updateKey
}

type updateKey struct {
	userID    string
	elapsedMS int64
	name      string
}

type recentEntry struct {
	bucket  *MetricsBucket
	success bool
	status  int
}

const recentWindow = 4096

// NewAggregator constructs an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byName:    make(map[string]*MetricsBucket),
		aggregate: newBucket("Aggregated"),
		started:   time.Now(),
		recent:    make(map[updateKey]*recentEntry),
	}
}

// Send implements pkg/user.Sink, letting an Aggregator be used
// directly as a user's event sink in standalone (non-gaggle) mode.
func (a *Aggregator) Send(req RawRequest) {
	a.Record(req)
}

// Record ingests one RawRequest, either adding a new sample or
// correcting a previously recorded one.
func (a *Aggregator) Record(req RawRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := updateKey{userID: req.UserID, elapsedMS: req.ElapsedMS, name: req.Name}

	if req.Update {
		if entry, ok := a.recent[key]; ok {
			if entry.success != req.Success {
				if entry.success {
					entry.bucket.NumFailures++
					a.aggregate.NumFailures++
				} else {
					entry.bucket.NumFailures--
					a.aggregate.NumFailures--
				}
				entry.success = req.Success
			}
			if entry.status != req.StatusCode {
				entry.bucket.StatusCodes[entry.status]--
				entry.bucket.StatusCodes[req.StatusCode]++
				a.aggregate.StatusCodes[entry.status]--
				a.aggregate.StatusCodes[req.StatusCode]++
				entry.status = req.StatusCode
			}
			return
		}
		// No matching original record found; fall through and treat
		// it as a new sample, per the spec's stated fallback.
	}

	bucket, ok := a.byName[req.Name]
	if !ok {
		bucket = newBucket(req.Name)
		a.byName[req.Name] = bucket
	}
	bucket.record(req)
	a.aggregate.record(req)

	a.recent[key] = &recentEntry{bucket: bucket, success: req.Success, status: req.StatusCode}
	a.recentLRU = append(a.recentLRU, key)
	if len(a.recentLRU) > recentWindow {
		evict := a.recentLRU[0]
		a.recentLRU = a.recentLRU[1:]
		delete(a.recent, evict)
	}

	label := "success"
	if !req.Success {
		label = "failure"
	}
	RequestsTotal.WithLabelValues(req.Name, label).Inc()
	RequestDuration.WithLabelValues(req.Name).Observe(req.ResponseTime.Seconds())
}

// Reset clears the in-memory aggregate and per-name tables. It never
// touches open stats-log or debug-log files: those are durable records
// of everything that happened, independent of the live summary.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byName = make(map[string]*MetricsBucket)
	a.aggregate = newBucket("Aggregated")
	a.started = time.Now()
	a.recent = make(map[updateKey]*recentEntry)
	a.recentLRU = nil
}

// Snapshot returns a deep-enough copy of the current state for
// rendering or transmission.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	byName := make(map[string]*MetricsBucket, len(a.byName))
	for name, b := range a.byName {
		byName[name] = cloneBucket(b)
	}

	return Snapshot{
		Taken:     time.Now(),
		Elapsed:   time.Since(a.started),
		Aggregate: *cloneBucket(a.aggregate),
		ByName:    byName,
	}
}

func cloneBucket(b *MetricsBucket) *MetricsBucket {
	clone := &MetricsBucket{
		Name:          b.Name,
		NumRequests:   b.NumRequests,
		NumFailures:   b.NumFailures,
		TotalResponse: b.TotalResponse,
		MinResponse:   b.MinResponse,
		MaxResponse:   b.MaxResponse,
		StatusCodes:   make(map[int]int64, len(b.StatusCodes)),
		Hist:          b.Hist.Clone(),
	}
	for k, v := range b.StatusCodes {
		clone.StatusCodes[k] = v
	}
	return clone
}

// Merge folds another aggregator's snapshot into this one, used by
// the gaggle manager to combine per-worker metrics pushes into a
// gaggle-wide view. Each push's snapshot is cumulative for its worker,
// so callers must call Reset on the source aggregator (as the worker
// does after its final push) rather than merging the same snapshot
// twice.
func (a *Aggregator) Merge(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, b := range snap.ByName {
		dst, ok := a.byName[name]
		if !ok {
			dst = newBucket(name)
			a.byName[name] = dst
		}
		mergeInto(dst, b)
	}
	mergeInto(a.aggregate, &snap.Aggregate)
}

func mergeInto(dst, src *MetricsBucket) {
	if src.NumRequests == 0 {
		return
	}
	if dst.NumRequests == 0 || src.MinResponse < dst.MinResponse {
		dst.MinResponse = src.MinResponse
	}
	if src.MaxResponse > dst.MaxResponse {
		dst.MaxResponse = src.MaxResponse
	}
	dst.NumRequests += src.NumRequests
	dst.NumFailures += src.NumFailures
	dst.TotalResponse += src.TotalResponse
	for code, n := range src.StatusCodes {
		dst.StatusCodes[code] += n
	}
	dst.Hist.MergeFrom(src.Hist)
}
