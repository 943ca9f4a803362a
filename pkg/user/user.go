// Package user implements the per-user HTTP execution context: one
// cookie-jar-backed http.Client per virtual user, throttled and
// instrumented so every call it makes is reported to the metrics
// aggregation pipeline.
package user

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/cuemby/gaggle/pkg/throttle"
	"github.com/google/uuid"
)

// Sink receives RawRequest events. pkg/metrics.Aggregator and
// pkg/statslog.Writer both implement it.
type Sink interface {
	Send(metrics.RawRequest)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(metrics.RawRequest)

func (f SinkFunc) Send(r metrics.RawRequest) { f(r) }

// DebugSink receives DebugRecord events posted by LogDebug.
// pkg/statslog.DebugWriter implements it.
type DebugSink interface {
	SendDebug(metrics.DebugRecord)
}

// Context is the per-user execution context passed to every Task.Fn.
// It owns the user's HTTP client (and its cookie jar, so session
// cookies persist across a user's whole run) and mediates every
// request through the shared Throttle before reporting the result to
// Sink.
type Context struct {
	UserID       string
	Host         string
	client       *http.Client
	throttle     *throttle.Throttle
	sink         Sink
	debugSink    DebugSink
	start        time.Time
	statusOK     map[int]bool
	stickyFollow bool
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithStatusOK restricts which status codes count as success. When
// unset, the default is any code below 400.
func WithStatusOK(codes []int) Option {
	return func(c *Context) {
		if len(codes) == 0 {
			return
		}
		c.statusOK = make(map[int]bool, len(codes))
		for _, code := range codes {
			c.statusOK[code] = true
		}
	}
}

// WithStickyFollow makes the user's Host stick to wherever a redirect
// lands, so subsequent requests skip the redirect hop.
func WithStickyFollow() Option {
	return func(c *Context) { c.stickyFollow = true }
}

// WithDebugSink routes LogDebug calls to sink. Without it, LogDebug is
// a no-op, matching spec.md §4.A's "ignored if no debug file
// configured".
func WithDebugSink(sink DebugSink) Option {
	return func(c *Context) { c.debugSink = sink }
}

// NewContext builds a Context for one virtual user.
func NewContext(host string, th *throttle.Throttle, sink Sink, opts ...Option) *Context {
	jar, _ := cookiejar.New(nil)
	c := &Context{
		UserID: uuid.NewString(),
		Host:   host,
		client: &http.Client{
			Jar:     jar,
			Timeout: 60 * time.Second,
		},
		throttle: th,
		sink:     sink,
		start:    time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) isSuccess(statusCode int) bool {
	if c.statusOK != nil {
		return c.statusOK[statusCode]
	}
	return statusCode > 0 && statusCode < 400
}

// Get issues a GET request named name against path (relative to Host)
// and reports the outcome to the sink.
func (c *Context) Get(ctx context.Context, name, path string) (*http.Response, error) {
	return c.Do(ctx, name, http.MethodGet, path, nil)
}

// Post issues a POST request named name against path with the given
// body and reports the outcome to the sink.
func (c *Context) Post(ctx context.Context, name, path string, body io.Reader) (*http.Response, error) {
	return c.Do(ctx, name, http.MethodPost, path, body)
}

// Do issues an arbitrary request named name and reports the outcome to
// the sink. name defaults to "method path" when empty. When
// --sticky-follow is enabled, a redirected request's final URL becomes
// Host for every subsequent request this user makes.
func (c *Context) Do(ctx context.Context, name, method, path string, body io.Reader) (*http.Response, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("%s %s", method, path)
	}

	reqURL := c.Host + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		c.report(name, method, reqURL, reqURL, false, false, 0, 0)
		return nil, err
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(started)

	if err != nil {
		c.report(name, method, reqURL, reqURL, false, false, 0, elapsed)
		return nil, err
	}

	finalURL := reqURL
	redirected := false
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
		redirected = finalURL != reqURL
	}
	if redirected && c.stickyFollow {
		c.Host = resp.Request.URL.Scheme + "://" + resp.Request.URL.Host
	}

	success := c.isSuccess(resp.StatusCode)
	c.report(name, method, reqURL, finalURL, redirected, success, resp.StatusCode, elapsed)
	return resp, nil
}

// LogDebug posts a DebugRecord to the debug channel, per spec.md §4.A.
// request/headers/body are all optional; pass nil/nil/"" for whichever
// don't apply. A no-op when no --debug-log-file was configured.
func (c *Context) LogDebug(tag string, request *metrics.RawRequest, headers map[string]string, body string) {
	if c.debugSink == nil {
		return
	}
	c.debugSink.SendDebug(metrics.DebugRecord{
		Tag:     tag,
		Request: request,
		Headers: headers,
		Body:    body,
	})
}

// ReportFailure records a synthetic failed request for a task that
// errored or panicked without making a request of its own, so the
// failure still surfaces in the metrics pipeline and final summary
// rather than only in the log. reason is folded into name so it shows
// up per-bucket (e.g. "checkout: panic").
func (c *Context) ReportFailure(name, reason string) {
	if reason != "" {
		name = fmt.Sprintf("%s: %s", name, reason)
	}
	c.sink.Send(metrics.RawRequest{
		UserID:    c.UserID,
		Name:      name,
		Success:   false,
		ElapsedMS: time.Since(c.start).Milliseconds(),
		Timestamp: time.Now(),
	})
}

// ReportUpdate lets task code correct a previously reported request's
// success classification after further inspecting its body, matching
// the (UserID, elapsedMS, name) reconciliation key the aggregator
// expects.
func (c *Context) ReportUpdate(name string, elapsedMS int64, success bool, statusCode int) {
	c.sink.Send(metrics.RawRequest{
		UserID:     c.UserID,
		Name:       name,
		Success:    success,
		StatusCode: statusCode,
		ElapsedMS:  elapsedMS,
		Update:     true,
		Timestamp:  time.Now(),
	})
}

func (c *Context) report(name, method, url, finalURL string, redirected, success bool, status int, elapsed time.Duration) {
	c.sink.Send(metrics.RawRequest{
		UserID:       c.UserID,
		Name:         name,
		Method:       method,
		URL:          url,
		FinalURL:     finalURL,
		Redirected:   redirected,
		Success:      success,
		StatusCode:   status,
		ResponseTime: elapsed,
		ElapsedMS:    time.Since(c.start).Milliseconds(),
		Timestamp:    time.Now(),
	})
}
