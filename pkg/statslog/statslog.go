// Package statslog implements the debug/stats log writer: a
// background consumer that streams every RawRequest (stats log) or
// every raw debug record to a file in JSON, CSV, or "raw" (yaml)
// format, flushed on shutdown.
package statslog

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/cuemby/gaggle/pkg/metrics"
	"gopkg.in/yaml.v3"
)

// Format is a stats/debug log output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatRaw  Format = "raw"
)

var csvHeader = []string{"elapsed", "method", "name", "url", "final_url", "redirected", "response_time", "status_code", "success", "update", "user"}

// Writer streams RawRequest records to an underlying io.Writer in one
// of the supported formats. It owns its own goroutine and buffered
// writer, following the convention of every background file-writer in
// the corpus: one goroutine owns the file handle, and everyone else
// talks to it over a channel.
type Writer struct {
	format Format
	buf    *bufio.Writer
	csvw   *csv.Writer

	mu          sync.Mutex
	wroteHeader bool
	in          chan metrics.RawRequest
	done        chan struct{}
}

// New builds a Writer that streams to dst in the given format. Call
// Start to begin consuming, and Close to flush and stop.
func New(dst io.Writer, format Format) *Writer {
	w := &Writer{
		format: format,
		buf:    bufio.NewWriter(dst),
		in:     make(chan metrics.RawRequest, 1024),
		done:   make(chan struct{}),
	}
	if format == FormatCSV {
		w.csvw = csv.NewWriter(w.buf)
	}
	return w
}

// Start launches the consumer goroutine.
func (w *Writer) Start() {
	go w.run()
}

// Send implements pkg/user.Sink, letting a Writer sit transparently in
// the fan-out path alongside the metrics aggregator.
func (w *Writer) Send(r metrics.RawRequest) {
	select {
	case w.in <- r:
	default:
		// Drop rather than block the reporting user; stats-log
		// pressure should never slow down load generation.
		metrics.IncDropped()
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for r := range w.in {
		w.mu.Lock()
		_ = w.writeOne(r)
		w.mu.Unlock()
	}
}

func (w *Writer) writeOne(r metrics.RawRequest) error {
	switch w.format {
	case FormatCSV:
		if !w.wroteHeader {
			if err := w.csvw.Write(csvHeader); err != nil {
				return err
			}
			w.wroteHeader = true
		}
		record := []string{
			strconv.FormatInt(r.ElapsedMS, 10),
			r.Method,
			r.Name,
			r.URL,
			r.FinalURL,
			strconv.FormatBool(r.Redirected),
			strconv.FormatInt(r.ResponseTime.Milliseconds(), 10),
			strconv.Itoa(r.StatusCode),
			strconv.FormatBool(r.Success),
			strconv.FormatBool(r.Update),
			r.UserID,
		}
		if err := w.csvw.Write(record); err != nil {
			return err
		}
		w.csvw.Flush()
		return w.csvw.Error()

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
func (w *Writer) Close() error {
	close(w.in)
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.csvw != nil {
		w.csvw.Flush()
		if err := w.csvw.Error(); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

// ParseFormat validates a --stats-log-format/--debug-log-format flag
// value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV, FormatRaw:
		return Format(s), nil
	default:
		return "", fmt.Errorf("invalid log format %q: must be json, csv, or raw", s)
	}
}
