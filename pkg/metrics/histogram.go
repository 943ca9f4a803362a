package metrics

import (
	"bytes"
	"encoding/gob"
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram is a bounded-memory latency histogram backed by an
// HdrHistogram. Rather than retaining every observed sample (which
// would make memory proportional to request count, violating the
// aggregator's constant-memory contract) it buckets samples so that
// percentile error is bounded to a fixed number of significant
// decimal digits regardless of the sample's magnitude — unlike
// fixed-width buckets, whose relative error grows without bound at
// the low end of each bucket, HdrHistogram keeps the same ~0.1%
// relative error from a 1ms response up to histMaxMS.
//
// The hist field is unexported because hdrhistogram.Histogram's own
// fields are unexported; GobEncode/GobDecode round-trip it through
// the library's Export/Import snapshot instead, so a Histogram still
// serializes cleanly when a worker pushes its Snapshot to a gaggle
// manager (see pkg/gaggle/codec.go).
type Histogram struct {
	hist  *hdrhistogram.Histogram
	total int64
}

const (
	histMinMS   = 1
	histMaxMS   = int64(time.Hour / time.Millisecond)
	histSigFigs = 3
)

// NewHistogram builds an empty Histogram tracking whole-millisecond
// response times from 1ms to one hour at 3 significant figures, which
// keeps percentile error under 0.1% across that whole range.
func NewHistogram() *Histogram {
	return &Histogram{hist: hdrhistogram.New(histMinMS, histMaxMS, histSigFigs)}
}

// Add records one observation, clamping to the histogram's tracked
// range so an outlier can't be silently dropped by RecordValue.
func (h *Histogram) Add(d time.Duration) {
	ms := d.Milliseconds()
	if ms < histMinMS {
		ms = histMinMS
	}
	if ms > histMaxMS {
		ms = histMaxMS
	}
	_ = h.hist.RecordValue(ms)
	h.total++
}

// Total returns the number of observations recorded.
func (h *Histogram) Total() int64 {
	return h.total
}

// Percentile returns an estimate of the response time at or below
// which p fraction of observations fall (0 <= p <= 1).
func (h *Histogram) Percentile(p float64) time.Duration {
	if h.total == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return time.Duration(h.hist.ValueAtQuantile(p*100)) * time.Millisecond
}

// CalcPercentiles returns estimates for a set of standard percentiles,
// keyed by each requested percentile (a map, so it carries no order).
func (h *Histogram) CalcPercentiles(ps []float64) map[float64]time.Duration {
	sorted := append([]float64(nil), ps...)
	sort.Float64s(sorted)
	out := make(map[float64]time.Duration, len(sorted))
	for _, p := range sorted {
		out[p] = h.Percentile(p)
	}
	return out
}

// Clone returns an independent copy.
func (h *Histogram) Clone() *Histogram {
	return &Histogram{hist: hdrhistogram.Import(h.hist.Export()), total: h.total}
}

// MergeFrom folds another histogram's counts into this one.
func (h *Histogram) MergeFrom(other *Histogram) {
	if other == nil {
		return
	}
	h.hist.Merge(other.hist)
	h.total += other.total
}

// Transfer moves this histogram's counts into dst and resets this
// histogram to empty, used when rotating a bucket out for a fresh
// reporting interval without allocating a new backing histogram.
func (h *Histogram) Transfer(dst *Histogram) {
	dst.MergeFrom(h)
	h.hist.Reset()
	h.total = 0
}

// gobHistogram is the wire representation of a Histogram: the
// library's own exported snapshot plus the observation count Add
// tracks independently of it.
type gobHistogram struct {
	Snapshot *hdrhistogram.Snapshot
	Total    int64
}

// GobEncode implements gob.GobEncoder so Histogram round-trips
// through encoding/gob despite hdrhistogram.Histogram's fields being
// unexported.
func (h *Histogram) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobHistogram{Snapshot: h.hist.Export(), Total: h.total}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (h *Histogram) GobDecode(data []byte) error {
	var wire gobHistogram
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return err
	}
	h.hist = hdrhistogram.Import(wire.Snapshot)
	h.total = wire.Total
	return nil
}
