package dashboard

import (
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
)

// bucketView is the JSON-friendly rendering of a metrics.MetricsBucket:
// durations as milliseconds and percentiles precomputed, since the
// histogram itself isn't meant for client consumption.
type bucketView struct {
	Name            string  `json:"name"`
	NumRequests     int64   `json:"num_requests"`
	NumFailures     int64   `json:"num_failures"`
	FailureRatio    float64 `json:"failure_ratio"`
	MeanMS          float64 `json:"mean_ms"`
	MinMS           float64 `json:"min_ms"`
	MaxMS           float64 `json:"max_ms"`
	P50MS           float64 `json:"p50_ms"`
	P95MS           float64 `json:"p95_ms"`
	P99MS           float64 `json:"p99_ms"`
	RequestsPerSec  float64 `json:"requests_per_sec"`
}

type snapshotView struct {
	TakenUnix int64                  `json:"taken_unix"`
	ElapsedS  float64                `json:"elapsed_s"`
	Aggregate bucketView             `json:"aggregate"`
	ByName    map[string]bucketView  `json:"by_name"`
}

func renderBucket(b *metrics.MetricsBucket, elapsed time.Duration) bucketView {
	return bucketView{
		Name:           b.Name,
		NumRequests:    b.NumRequests,
		NumFailures:    b.NumFailures,
		FailureRatio:   b.FailureRatio(),
		MeanMS:         msOf(b.Mean()),
		MinMS:          msOf(b.MinResponse),
		MaxMS:          msOf(b.MaxResponse),
		P50MS:          msOf(b.Percentile(0.50)),
		P95MS:          msOf(b.Percentile(0.95)),
		P99MS:          msOf(b.Percentile(0.99)),
		RequestsPerSec: b.RequestsPerSecond(elapsed),
	}
}

func renderSnapshot(snap metrics.Snapshot) snapshotView {
	byName := make(map[string]bucketView, len(snap.ByName))
	for name, b := range snap.ByName {
		byName[name] = renderBucket(b, snap.Elapsed)
	}
	return snapshotView{
		TakenUnix: snap.Taken.Unix(),
		ElapsedS:  snap.Elapsed.Seconds(),
		Aggregate: renderBucket(&snap.Aggregate, snap.Elapsed),
		ByName:    byName,
	}
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
