package taskset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyAndBadWeights(t *testing.T) {
	err := TaskSet{Name: "empty", Weight: 1}.Validate()
	require.Error(t, err)

	err = TaskSet{Name: "zero-weight", Weight: 0, Tasks: []Task{{Name: "a", Weight: 1}}}.Validate()
	require.Error(t, err)

	err = TaskSet{Name: "ok", Weight: 1, Tasks: []Task{{Name: "a", Weight: 1}}}.Validate()
	require.NoError(t, err)
}

func TestOnStartOnStopPartition(t *testing.T) {
	set := TaskSet{Tasks: []Task{
		{Name: "start", OnStart: true, Weight: 1},
		{Name: "body", Weight: 1},
		{Name: "stop", OnStop: true, Weight: 1},
	}}

	assert.Len(t, set.OnStartTasks(), 1)
	assert.Len(t, set.OnStopTasks(), 1)
	assert.Len(t, set.runnable(), 1)
	assert.Equal(t, "body", set.runnable()[0].Name)
}

func TestBuildWeightedOrderSequencePrecedesUnsequenced(t *testing.T) {
	tasks := []Task{
		{Name: "unseq-a", Weight: 1},
		{Name: "seq-2", Weight: 1, Sequence: 2},
		{Name: "seq-1", Weight: 1, Sequence: 1},
	}
	order := BuildWeightedOrder(tasks)
	require.Len(t, order, 3)

	// sequence 1 must precede sequence 2, both precede the unsequenced tail
	posSeq1 := indexOf(order, 2)
	posSeq2 := indexOf(order, 1)
	posUnseq := indexOf(order, 0)
	assert.Less(t, posSeq1, posSeq2)
	assert.Less(t, posSeq2, posUnseq)
}

func TestBuildWeightedOrderRespectsWeight(t *testing.T) {
	tasks := []Task{
		{Name: "heavy", Weight: 3},
		{Name: "light", Weight: 1},
	}
	order := BuildWeightedOrder(tasks)
	require.Len(t, order, 4)

	counts := map[int]int{}
	for _, idx := range order {
		counts[idx]++
	}
	assert.Equal(t, 3, counts[0])
	assert.Equal(t, 1, counts[1])
}

func TestScheduleLoopsAndReshuffles(t *testing.T) {
	set := TaskSet{Tasks: []Task{
		{Name: "a", Weight: 1},
		{Name: "b", Weight: 1},
	}}
	sched := NewSchedule(set)

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		task, ok := sched.Next()
		require.True(t, ok)
		seen[task.Name] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestScheduleEmptyReturnsFalse(t *testing.T) {
	sched := NewSchedule(TaskSet{})
	_, ok := sched.Next()
	assert.False(t, ok)
}

func TestRouletteSingleSetAlwaysPicked(t *testing.T) {
	r := NewRoulette([]TaskSet{{Name: "only", Weight: 5}})
	for i := 0; i < 10; i++ {
		assert.Equal(t, "only", r.Pick().Name)
	}
}

func TestRouletteRespectsWeightDistribution(t *testing.T) {
	r := NewRoulette([]TaskSet{
		{Name: "heavy", Weight: 99},
		{Name: "light", Weight: 1},
	})
	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		counts[r.Pick().Name]++
	}
	assert.Greater(t, counts["heavy"], counts["light"])
}

func indexOf(order []int, val int) int {
	for i, v := range order {
		if v == val {
			return i
		}
	}
	return -1
}
