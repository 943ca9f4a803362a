// Package taskset models the schedule a virtual user runs: weighted,
// optionally sequenced tasks grouped into named TaskSets, and a
// weighted roulette for picking a TaskSet per hatched user.
package taskset

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// Func is the body of a single task. It receives the calling user's
// execution context (defined by pkg/user) as an opaque interface so
// this package has no dependency on pkg/user.
type Func func(ctx any) error

// Task is one unit of work a user can run within a TaskSet.
type Task struct {
	Name string
	// Weight controls how often this task is picked relative to its
	// unsequenced siblings. Must be >= 1.
	Weight int
	// Sequence, when non-zero, forces this task to run in ascending
	// sequence order ahead of any unsequenced task in the same pass.
	// Tasks sharing a sequence number run in registration order.
	Sequence int
	OnStart  bool
	OnStop   bool
	Fn       Func
}

// TaskSet is a named collection of tasks plus the think-time window
// between them.
type TaskSet struct {
	Name    string
	Tasks   []Task
	Host    string
	WaitMin int64 // milliseconds
	WaitMax int64 // milliseconds
	// Weight controls how often this TaskSet is picked by Roulette
	// relative to its siblings. Must be >= 1.
	Weight int
}

// Validate checks the invariants a TaskSet must hold before it can be
// scheduled: at least one task, and every weight strictly positive.
func (s TaskSet) Validate() error {
	if len(s.Tasks) == 0 {
		return fmt.Errorf("taskset %q: has no tasks", s.Name)
	}
	if s.Weight < 1 {
		return fmt.Errorf("taskset %q: weight must be >= 1, got %d", s.Name, s.Weight)
	}
	for _, t := range s.Tasks {
		if t.Weight < 1 {
			return fmt.Errorf("taskset %q: task %q weight must be >= 1, got %d", s.Name, t.Name, t.Weight)
		}
	}
	return nil
}

// OnStartTasks returns the tasks flagged to run once when a user
// starts, in registration order.
func (s TaskSet) OnStartTasks() []Task {
	var out []Task
	for _, t := range s.Tasks {
		if t.OnStart {
			out = append(out, t)
		}
	}
	return out
}

// OnStopTasks returns the tasks flagged to run once when a user stops,
// in registration order.
func (s TaskSet) OnStopTasks() []Task {
	var out []Task
	for _, t := range s.Tasks {
		if t.OnStop {
			out = append(out, t)
		}
	}
	return out
}

// runnable returns the tasks a user loops over during steady state:
// everything except the on_start/on_stop hooks.
func (s TaskSet) runnable() []Task {
	var out []Task
	for _, t := range s.Tasks {
		if !t.OnStart && !t.OnStop {
			out = append(out, t)
		}
	}
	return out
}

// BuildWeightedOrder returns one pass over tasks' indices (into the
// slice passed in) honoring both weight and sequence: tasks sharing a
// sequence number are expanded in registration order, weight times
// each; sequenced groups run in ascending sequence order; unsequenced
// tasks (Sequence == 0) are expanded weight times each and shuffled,
// then appended after every sequenced group.
func BuildWeightedOrder(tasks []Task) []int {
	type group struct {
		seq     int
		indices []int
	}
	groups := map[int]*group{}
	var seqKeys []int
	var unsequenced []int

	for i, t := range tasks {
		if t.Sequence > 0 {
			g, ok := groups[t.Sequence]
			if !ok {
				g = &group{seq: t.Sequence}
				groups[t.Sequence] = g
				seqKeys = append(seqKeys, t.Sequence)
			}
			for n := 0; n < t.Weight; n++ {
				g.indices = append(g.indices, i)
			}
		} else {
			for n := 0; n < t.Weight; n++ {
				unsequenced = append(unsequenced, i)
			}
		}
	}

	sort.Ints(seqKeys)

	var order []int
	for _, k := range seqKeys {
		order = append(order, groups[k].indices...)
	}

	rand.Shuffle(len(unsequenced), func(i, j int) {
		unsequenced[i], unsequenced[j] = unsequenced[j], unsequenced[i]
	})
	order = append(order, unsequenced...)

	return order
}

// Schedule iterates a TaskSet's runnable tasks in weighted+sequenced
// order, re-shuffling the unsequenced portion each time it loops.
type Schedule struct {
	set     TaskSet
	runners []Task
	order   []int
	pos     int
}

// NewSchedule builds a Schedule for one user running the given
// TaskSet.
func NewSchedule(set TaskSet) *Schedule {
	runners := set.runnable()
	return &Schedule{
		set:     set,
		runners: runners,
		order:   BuildWeightedOrder(runners),
	}
}

// Next returns the next task to run, rebuilding the weighted order
// (and reshuffling its unsequenced portion) whenever a pass completes.
func (s *Schedule) Next() (Task, bool) {
	if len(s.runners) == 0 {
		return Task{}, false
	}
	if s.pos >= len(s.order) {
		s.order = BuildWeightedOrder(s.runners)
		s.pos = 0
	}
	t := s.runners[s.order[s.pos]]
	s.pos++
	return t, true
}

// Roulette performs weighted random selection among TaskSets.
type Roulette struct {
	sets  []TaskSet
	total int
}

// NewRoulette builds a Roulette over the given TaskSets. Panics if
// sets is empty; callers validate configuration before constructing
// the scheduler.
func NewRoulette(sets []TaskSet) *Roulette {
	if len(sets) == 0 {
		panic("taskset: NewRoulette requires at least one TaskSet")
	}
	total := 0
	for _, s := range sets {
		total += s.Weight
	}
	return &Roulette{sets: sets, total: total}
}

// Pick returns one TaskSet, chosen with probability proportional to
// its Weight.
func (r *Roulette) Pick() TaskSet {
	if len(r.sets) == 1 {
		return r.sets[0]
	}
	n := rand.IntN(r.total)
	for _, s := range r.sets {
		if n < s.Weight {
			return s
		}
		n -= s.Weight
	}
	return r.sets[len(r.sets)-1]
}
