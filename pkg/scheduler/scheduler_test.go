package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/cuemby/gaggle/pkg/taskset"
	"github.com/cuemby/gaggle/pkg/throttle"
	"github.com/cuemby/gaggle/pkg/user"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestSchedulerHatchesUpToTarget(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	agg := metrics.NewAggregator()
	set := taskset.TaskSet{
		Weight: 1,
		Tasks: []taskset.Task{
			{Name: "home", Weight: 1, Fn: func(c any) error {
				ctx := c.(*user.Context)
				resp, err := ctx.Get(context.Background(), "home", "/")
				if err != nil {
					return err
				}
				resp.Body.Close()
				return nil
			}},
		},
	}

	s := New(Config{
		Host:      server.URL,
		Users:     3,
		HatchRate: 50,
		Throttle:  throttle.New(0),
		Sink:      agg,
		TaskSets:  []taskset.TaskSet{set},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, 3, s.Hatched())
}

func TestSchedulerZeroUsersWaitsForStop(t *testing.T) {
	agg := metrics.NewAggregator()
	set := taskset.TaskSet{Weight: 1, Tasks: []taskset.Task{{Name: "noop", Weight: 1, Fn: func(any) error { return nil }}}}

	s := New(Config{
		Host:      "http://example.invalid",
		Users:     0,
		HatchRate: 1,
		Throttle:  throttle.New(0),
		Sink:      agg,
		TaskSets:  []taskset.TaskSet{set},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, 0, s.Hatched())
}
