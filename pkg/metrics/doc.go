/*
Package metrics implements gaggle's metrics aggregation pipeline.

Each virtual user hands its RawRequest events straight to
Aggregator.Record (via Send), which applies them synchronously under
the Aggregator's mutex; there is no ingestion channel, so the
aggregator itself never drops a record. The Aggregator maintains a
MetricsBucket per request name plus one aggregate bucket, and produces
a Snapshot on demand (cmd/gaggle takes one every 15 seconds for the
live running summary, and once more at run completion for the final
report).

# Prometheus exposition

	gaggle_requests_total{name, outcome}
	gaggle_request_duration_seconds{name}
	gaggle_users_active
	gaggle_records_dropped_total
	gaggle_workers_connected
	gaggle_workers_unhealthy

# Percentiles

MetricsBucket keeps memory bounded regardless of request count by
folding response times into a Histogram backed by HdrHistogram
(github.com/HdrHistogram/hdrhistogram-go) rather than retaining every
sample, bounding percentile error to a fixed number of significant
figures instead of letting it grow with the sample's magnitude.

# Health

/health, /ready and /live handlers report the health of registered
components; see health.go. They are served only by pkg/dashboard's
router, which `gaggle run --web-host` starts; the manager and worker
commands do not serve them.
*/
package metrics
