package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/nimbusmetrics"
)

type fixedTask struct {
	completed      bool
	maxParallelism int
	runs           int
}

func (t *fixedTask) Execute()          { t.runs++ }
func (t *fixedTask) Completed() bool   { return t.completed }
func (t *fixedTask) MaxParallelism() int {
	if t.maxParallelism == 0 {
		return 1
	}
	return t.maxParallelism
}

func TestMultithreadedReportsMaxParallelismAboveOne(t *testing.T) {
	assert.False(t, Multithreaded(&fixedTask{maxParallelism: 1}))
	assert.True(t, Multithreaded(&fixedTask{maxParallelism: 2}))
}

func TestFuncTaskCompletesAfterFirstExecute(t *testing.T) {
	ran := false
	task := NewFuncTask(func() { ran = true })
	assert.False(t, task.Completed())
	task.Execute()
	assert.True(t, ran)
	assert.True(t, task.Completed())
	assert.Equal(t, 1, task.MaxParallelism())
}

// TestAwaitTaskSkipsAlreadyCompletedEntries exercises awaitTask directly
// (without starting worker goroutines) to verify it walks past a completed
// task at the head of the queue instead of handing it to the caller.
func TestAwaitTaskSkipsAlreadyCompletedEntries(t *testing.T) {
	s := New(zerolog.Nop(), nimbusmetrics.NewRegistry())
	s.running = true
	done := &fixedTask{completed: true}
	live := &fixedTask{completed: false}
	s.queue = []Task{done, live}

	got := s.awaitTask()
	require.Same(t, live, got)
	assert.Equal(t, 0, s.QueueDepth())
}

// TestAwaitTaskReQueuesMultithreadedTaskAtFront verifies the popped
// multithreaded task reappears at index 0, ahead of whatever was already
// queued behind it.
func TestAwaitTaskReQueuesMultithreadedTaskAtFront(t *testing.T) {
	s := New(zerolog.Nop(), nimbusmetrics.NewRegistry())
	s.running = true
	multi := &fixedTask{maxParallelism: 2}
	other := &fixedTask{}
	s.queue = []Task{multi, other}

	got := s.awaitTask()
	require.Same(t, multi, got)
	require.Equal(t, 1, s.QueueDepth())
	assert.Same(t, other, s.queue[0])
}

// TestAwaitTaskReturnsNilWhenStoppedAndEmpty verifies a stopped, empty
// scheduler returns nil immediately instead of blocking.
func TestAwaitTaskReturnsNilWhenStoppedAndEmpty(t *testing.T) {
	s := New(zerolog.Nop(), nimbusmetrics.NewRegistry())
	s.running = false
	assert.Nil(t, s.awaitTask())
}

func TestQueueDepthReflectsPendingTasks(t *testing.T) {
	s := New(zerolog.Nop(), nimbusmetrics.NewRegistry())
	assert.Equal(t, 0, s.QueueDepth())
	s.queue = []Task{&fixedTask{}, &fixedTask{}}
	assert.Equal(t, 2, s.QueueDepth())
}

func TestDrainClearsQueue(t *testing.T) {
	s := New(zerolog.Nop(), nimbusmetrics.NewRegistry())
	s.queue = []Task{&fixedTask{}, &fixedTask{}}
	s.Drain()
	assert.Equal(t, 0, s.QueueDepth())
}

// TestStartTwiceIsNoOp verifies calling Start while already running does not
// spin up a second wave of workers (which would double-execute tasks).
func TestStartTwiceIsNoOp(t *testing.T) {
	s := New(zerolog.Nop(), nimbusmetrics.NewRegistry())
	s.Start(2)
	defer s.Stop()
	s.Start(3)
	assert.True(t, s.running)
}
