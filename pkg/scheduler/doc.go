/*
Package scheduler implements gaggle's user scheduler.

Given a target user count and a hatch rate, Scheduler spawns one
runner goroutine per tick until the target is reached, then waits for
the run's stop signal before canceling every user's context and
waiting for their on_stop hooks to finish.

	sched := scheduler.New(scheduler.Config{
		Host:      "http://target.example",
		Users:     50,
		HatchRate: 5,
		Throttle:  throttle.New(0),
		Sink:      aggregator,
		TaskSets:  []taskset.TaskSet{browsing},
	})
	sched.Run(ctx)
*/
package scheduler
