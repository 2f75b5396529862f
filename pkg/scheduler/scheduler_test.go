package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/nimbusmetrics"
)

// countingTask runs exactly one slice per Execute and reports Completed once
// it has been executed the requested number of times.
type countingTask struct {
	mu    sync.Mutex
	runs  int
	want  int
	order *[]int
	id    int
}

func (t *countingTask) Execute() {
	t.mu.Lock()
	t.runs++
	t.mu.Unlock()
	if t.order != nil {
		*t.order = append(*t.order, t.id)
	}
}
func (t *countingTask) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs >= t.want
}
func (t *countingTask) MaxParallelism() int { return 1 }

func newSchedulerForTest() *Scheduler {
	return New(zerolog.Nop(), nimbusmetrics.NewRegistry())
}

// TestSchedulerRunsScheduledTasksToCompletion verifies a single-parallelism
// task scheduled on a running pool eventually executes.
func TestSchedulerRunsScheduledTasksToCompletion(t *testing.T) {
	s := newSchedulerForTest()
	s.Start(2)
	defer s.Stop()

	var done int32
	s.Schedule(NewFuncTask(func() { atomic.AddInt32(&done, 1) }))
	s.Schedule(NewFuncTask(func() { atomic.AddInt32(&done, 1) }))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 2 }, time.Second, time.Millisecond)
}

// TestSchedulerReQueuesMultithreadedTaskAtFront verifies a task whose
// MaxParallelism is greater than 1 gets re-queued at the front after each
// slice instead of being dropped, and keeps running until Completed.
func TestSchedulerReQueuesMultithreadedTaskAtFront(t *testing.T) {
	s := newSchedulerForTest()
	s.Start(1)
	defer s.Stop()

	task := &multiTask{want: 3}
	s.Schedule(task)

	require.Eventually(t, func() bool {
		task.mu.Lock()
		defer task.mu.Unlock()
		return task.runs == 3
	}, time.Second, time.Millisecond)
}

type multiTask struct {
	mu   sync.Mutex
	runs int
	want int
}

func (t *multiTask) Execute() {
	t.mu.Lock()
	t.runs++
	t.mu.Unlock()
}
func (t *multiTask) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs >= t.want
}
func (t *multiTask) MaxParallelism() int { return 4 }

// TestSchedulerStopDrainsIdleWorkers verifies Stop returns promptly even
// with idle workers parked on the condition variable and an empty queue.
func TestSchedulerStopDrainsIdleWorkers(t *testing.T) {
	s := newSchedulerForTest()
	s.Start(4)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return; idle workers never woke")
	}
}

// TestSchedulerCompletedTaskDroppedBeforeExecute verifies a task that
// already reports Completed() never runs again if it resurfaces in the
// queue (the re-queue check happens on pop, not on enqueue).
func TestSchedulerCompletedTaskDroppedBeforeExecute(t *testing.T) {
	s := newSchedulerForTest()
	alreadyDone := &countingTask{runs: 1, want: 1}
	assert.True(t, alreadyDone.Completed())

	s.Start(1)
	defer s.Stop()
	s.Schedule(alreadyDone)

	time.Sleep(20 * time.Millisecond)
	alreadyDone.mu.Lock()
	defer alreadyDone.mu.Unlock()
	assert.Equal(t, 1, alreadyDone.runs, "a pre-completed task must not execute again")
}

// TestSchedulerFIFOOrderingForSingleWorker verifies that with exactly one
// worker, single-parallelism tasks run in the order they were scheduled.
func TestSchedulerFIFOOrderingForSingleWorker(t *testing.T) {
	s := newSchedulerForTest()
	s.Start(1)
	defer s.Stop()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Schedule(NewFuncTask(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
