// Package runner drives a single virtual user: it runs the user's
// TaskSet's on_start hooks, loops over the weighted+sequenced task
// schedule with think-time between tasks, and runs on_stop hooks when
// told to stop.
package runner

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cuemby/gaggle/pkg/log"
	"github.com/cuemby/gaggle/pkg/taskset"
	"github.com/cuemby/gaggle/pkg/user"
)

// Runner drives one GooseUser's goroutine.
type Runner struct {
	UserCtx *user.Context
	Set     taskset.TaskSet
}

// New builds a Runner for one user running the given TaskSet.
func New(userCtx *user.Context, set taskset.TaskSet) *Runner {
	return &Runner{UserCtx: userCtx, Set: set}
}

// Run executes on_start hooks, loops the task schedule until ctx is
// canceled, then executes on_stop hooks. It never returns an error:
// individual task failures are reported through the user's sink and
// logged, not propagated, so one user's error never stops the others.
func (r *Runner) Run(ctx context.Context) {
	for _, t := range r.Set.OnStartTasks() {
		r.runTask(t)
	}

	sched := taskset.NewSchedule(r.Set)
	for {
		select {
		case <-ctx.Done():
			for _, t := range r.Set.OnStopTasks() {
				r.runTask(t)
			}
			return
		default:
		}

		task, ok := sched.Next()
		if !ok {
			// TaskSet has only on_start/on_stop hooks; nothing to
			// loop, so idle until stopped.
			<-ctx.Done()
			for _, t := range r.Set.OnStopTasks() {
				r.runTask(t)
			}
			return
		}

		r.runTask(task)
		r.think(ctx)
	}
}

// runTask executes a task body, recovering a panic at this boundary so
// one user's broken task can never take down the rest of the gaggle.
// Both a returned error and a recovered panic are converted to
// fail(reason) per spec: logged, recorded as a failure event, and the
// user proceeds to its next scheduled task.
func (r *Runner) runTask(t taskset.Task) {
	if t.Fn == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.WithUserID(r.UserCtx.UserID).Error().
				Str("task", t.Name).
				Interface("panic", rec).
				Msg("task panicked")
			r.UserCtx.ReportFailure(t.Name, "panic")
		}
	}()

	if err := t.Fn(r.UserCtx); err != nil {
		log.WithUserID(r.UserCtx.UserID).Warn().
			Str("task", t.Name).
			Err(err).
			Msg("task returned error")
		r.UserCtx.ReportFailure(t.Name, err.Error())
	}
}

// think sleeps a random duration within the TaskSet's wait window,
// returning early if ctx is canceled.
func (r *Runner) think(ctx context.Context) {
	minMS, maxMS := r.Set.WaitMin, r.Set.WaitMax
	if minMS <= 0 && maxMS <= 0 {
		return
	}
	if maxMS < minMS {
		maxMS = minMS
	}
	d := minMS
	if maxMS > minMS {
		d = minMS + rand.Int64N(maxMS-minMS)
	}

	select {
	case <-time.After(time.Duration(d) * time.Millisecond):
	case <-ctx.Done():
	}
}
