package statslog

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/cuemby/gaggle/pkg/metrics"
	"gopkg.in/yaml.v3"
)

// DebugWriter streams DebugRecords to an underlying io.Writer in json
// or raw (yaml) format. It is Writer's debug-log counterpart: same
// one-goroutine-owns-the-file-handle shape, but consuming
// metrics.DebugRecord instead of metrics.RawRequest, per spec.md
// §4.E/§6. csv is not a valid debug-log format -- a DebugRecord's
// optional fields don't fit a fixed column schema the way RawRequest
// does, so ParseFormat's csv case is rejected by callers before
// reaching here (see cmd/gaggle's --debug-log-format validation).
type DebugWriter struct {
	format Format
	buf    *bufio.Writer

	mu   sync.Mutex
	in   chan metrics.DebugRecord
	done chan struct{}
}

// NewDebug builds a DebugWriter that streams to dst in the given
// format. Call Start to begin consuming, and Close to flush and stop.
func NewDebug(dst io.Writer, format Format) *DebugWriter {
	return &DebugWriter{
		format: format,
		buf:    bufio.NewWriter(dst),
		in:     make(chan metrics.DebugRecord, 1024),
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (w *DebugWriter) Start() {
	go w.run()
}

// SendDebug implements pkg/user.DebugSink.
func (w *DebugWriter) SendDebug(r metrics.DebugRecord) {
	select {
	case w.in <- r:
	default:
		// Drop rather than block the reporting task; debug-log
		// pressure should never slow down load generation.
		metrics.IncDropped()
	}
}

func (w *DebugWriter) run() {
	defer close(w.done)
	for r := range w.in {
		w.mu.Lock()
		_ = w.writeOne(r)
		w.mu.Unlock()
	}
}

func (w *DebugWriter) writeOne(r metrics.DebugRecord) error {
	switch w.format {
	case FormatRaw:
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := w.buf.Write(data); err != nil {
			return err
		}
		if _, err := w.buf.WriteString("---\n"); err != nil {
			return err
		}
		return w.buf.Flush()

	default: // FormatJSON
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := w.buf.Write(data); err != nil {
			return err
		}
		if _, err := w.buf.WriteString("\n"); err != nil {
			return err
		}
		return w.buf.Flush()
	}
}

// Close stops accepting new records, drains what's pending, flushes,
// and waits for the consumer goroutine to exit.
func (w *DebugWriter) Close() error {
	close(w.in)
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}
