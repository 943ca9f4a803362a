package main

import "github.com/cuemby/gaggle/pkg/metrics"

// fanoutSink reports every RawRequest to multiple sinks: the
// aggregator always, plus the stats log writer when --stats-log-file
// was opened for this run (debug records reach the debug log writer
// through scheduler.Config.DebugSink, not through this fan-out).
// Callers must only pass genuinely
// non-nil sinks; a typed nil wrapped in the interface would panic on
// Send.
type fanoutSink struct {
	sinks []interface{ Send(metrics.RawRequest) }
}

func newFanoutSink(sinks ...interface{ Send(metrics.RawRequest) }) *fanoutSink {
	return &fanoutSink{sinks: sinks}
}

func (f *fanoutSink) Send(r metrics.RawRequest) {
	for _, s := range f.sinks {
		s.Send(r)
	}
}
