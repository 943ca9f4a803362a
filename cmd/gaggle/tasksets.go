package main

import (
	"context"
	"fmt"

	"github.com/cuemby/gaggle/pkg/taskset"
	"github.com/cuemby/gaggle/pkg/user"
)

// defaultTaskSets is the builtin load profile used when no custom
// TaskSet is wired in: one GET against the configured host's root
// path, so `gaggle run --host ...` works without any Go code of the
// operator's own.
func defaultTaskSets() []taskset.TaskSet {
	return []taskset.TaskSet{
		{
			Name:    "index",
			Weight:  1,
			WaitMin: 500,
			WaitMax: 1500,
			Tasks: []taskset.Task{
				{
					Name:   "GET /",
					Weight: 1,
					Fn: func(ctx any) error {
						uc, ok := ctx.(*user.Context)
						if !ok {
							return fmt.Errorf("tasksets: unexpected context type %T", ctx)
						}
						resp, err := uc.Get(context.Background(), "GET /", "/")
						if err != nil {
							return err
						}
						defer resp.Body.Close()
						if resp.StatusCode >= 400 {
							uc.LogDebug("index:unexpected-status", nil,
								map[string]string{"content-type": resp.Header.Get("Content-Type")},
								fmt.Sprintf("status=%d", resp.StatusCode))
						}
						return nil
					},
				},
			},
		},
	}
}

// listTaskSets prints the names, weights, and task counts of the
// TaskSets a run would use, for --list.
func listTaskSets(sets []taskset.TaskSet) {
	for _, s := range sets {
		fmt.Printf("%s\tweight=%d\ttasks=%d\twait=[%d,%d]ms\n", s.Name, s.Weight, len(s.Tasks), s.WaitMin, s.WaitMax)
		for _, t := range s.Tasks {
			flags := ""
			if t.OnStart {
				flags += " on_start"
			}
			if t.OnStop {
				flags += " on_stop"
			}
			fmt.Printf("  - %s weight=%d seq=%d%s\n", t.Name, t.Weight, t.Sequence, flags)
		}
	}
}
