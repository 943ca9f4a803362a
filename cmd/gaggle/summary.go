package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
)

// printSummary renders one snapshot in the teacher's plain-text table
// style, used for both the 15-second live report and the final
// shutdown summary.
func printSummary(snap metrics.Snapshot, dropped int64) {
	fmt.Printf("\n%-30s %10s %10s %8s %8s %8s %8s %10s\n",
		"NAME", "REQUESTS", "FAILURES", "MEAN", "MIN", "MAX", "P95", "REQ/S")
	printBucketRow(&snap.Aggregate, snap.Elapsed)

	names := make([]string, 0, len(snap.ByName))
	for name := range snap.ByName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		printBucketRow(snap.ByName[name], snap.Elapsed)
	}

	if dropped > 0 {
		fmt.Printf("dropped_records=%d\n", dropped)
	}
}

func printBucketRow(b *metrics.MetricsBucket, elapsed time.Duration) {
	fmt.Printf("%-30s %10d %10d %8s %8s %8s %8s %10.2f\n",
		b.Name,
		b.NumRequests,
		b.NumFailures,
		b.Mean().Round(time.Millisecond),
		b.MinResponse.Round(time.Millisecond),
		b.MaxResponse.Round(time.Millisecond),
		b.Percentile(0.95).Round(time.Millisecond),
		b.RequestsPerSecond(elapsed),
	)
}
