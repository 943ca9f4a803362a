// Package scheduler implements the user scheduler: it hatches virtual
// users at a configured rate up to a target count, assigning each one
// a TaskSet drawn from a weighted roulette, and stops them all when
// told to.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/gaggle/pkg/log"
	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/cuemby/gaggle/pkg/runner"
	"github.com/cuemby/gaggle/pkg/taskset"
	"github.com/cuemby/gaggle/pkg/throttle"
	"github.com/cuemby/gaggle/pkg/user"
)

// Config configures one scheduler run.
type Config struct {
	Host         string
	Users        int
	HatchRate    float64 // users per second
	Throttle     *throttle.Throttle
	Sink         user.Sink
	DebugSink    user.DebugSink // optional; nil makes LogDebug a no-op
	TaskSets     []taskset.TaskSet
	StatusOK     []int // --status-codes; empty means "any code below 400"
	StickyFollow bool  // --sticky-follow
}

// Scheduler hatches users at Config.HatchRate up to Config.Users,
// tracking each one's cancel function so it can stop them all on
// command.
type Scheduler struct {
	cfg      Config
	roulette *taskset.Roulette

	mu      sync.Mutex
	stopFns []context.CancelFunc
	wg      sync.WaitGroup

	hatched int
}

// New builds a Scheduler for the given config. Panics if cfg.TaskSets
// is empty; callers validate the TaskSet list before construction.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		roulette: taskset.NewRoulette(cfg.TaskSets),
	}
}

// Run hatches users every 1/HatchRate seconds until Users have been
// started, then blocks until ctx is canceled, at which point every
// running user is told to stop and Run waits for them to finish their
// on_stop hooks before returning.
func (s *Scheduler) Run(ctx context.Context) {
	logger := log.WithComponent("scheduler")
	metrics.RegisterComponent("scheduler", true, "running")
	defer metrics.UpdateComponent("scheduler", false, "stopped")

	if s.cfg.Users <= 0 {
		logger.Info().Msg("no users configured, nothing to hatch")
		<-ctx.Done()
		return
	}

	interval := time.Second
	if s.cfg.HatchRate > 0 {
		interval = time.Duration(float64(time.Second) / s.cfg.HatchRate)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.hatchOne(ctx)
	logger.Info().Int("users", s.hatched).Msg("hatched user")

	for s.hatched < s.cfg.Users {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case <-ticker.C:
			s.hatchOne(ctx)
			logger.Info().Int("users", s.hatched).Int("target", s.cfg.Users).Msg("hatched user")
		}
	}

	<-ctx.Done()
	s.stopAll()
}

func (s *Scheduler) hatchOne(parent context.Context) {
	userCtx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.stopFns = append(s.stopFns, cancel)
	s.hatched++
	s.mu.Unlock()

	set := s.roulette.Pick()
	var opts []user.Option
	if len(s.cfg.StatusOK) > 0 {
		opts = append(opts, user.WithStatusOK(s.cfg.StatusOK))
	}
	if s.cfg.StickyFollow {
		opts = append(opts, user.WithStickyFollow())
	}
	if s.cfg.DebugSink != nil {
		opts = append(opts, user.WithDebugSink(s.cfg.DebugSink))
	}
	uc := user.NewContext(s.cfg.Host, s.cfg.Throttle, s.cfg.Sink, opts...)
	r := runner.New(uc, set)

	metrics.UsersActive.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.UsersActive.Dec()
		r.Run(userCtx)
	}()
}

// stopAll cancels every hatched user's context and waits for their
// goroutines to finish running on_stop hooks.
func (s *Scheduler) stopAll() {
	s.mu.Lock()
	fns := s.stopFns
	s.mu.Unlock()

	for _, cancel := range fns {
		cancel()
	}
	s.wg.Wait()
}

// Hatched returns the number of users hatched so far.
func (s *Scheduler) Hatched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hatched
}
