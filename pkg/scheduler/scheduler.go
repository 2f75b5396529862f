// Package scheduler implements the fixed-size worker pool of §4.12: a FIFO
// task queue drained by a pool of goroutines, the sole concurrency primitive
// driving both ingest flushes and query execution.
package scheduler

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/nimbusdb/nimbusdb/pkg/nimbusmetrics"
)

// Task is one unit of schedulable work. Execute runs one slice of the task;
// Completed reports whether the task has no more work left. MaxParallelism
// bounds how many workers may hold the task concurrently: 1 for ingestion
// tasks (which must run to completion on a single worker), >1 for query
// sub-tasks that a worker re-queues after each slice so another idle worker
// can pick up the next slice.
type Task interface {
	Execute()
	Completed() bool
	MaxParallelism() int
}

// Multithreaded reports whether t may be held by more than one worker at a
// time, i.e. whether a worker must re-queue it after running one slice
// instead of treating a single Execute as the whole task.
func Multithreaded(t Task) bool { return t.MaxParallelism() > 1 }

// FuncTask adapts a plain function into a single-shot, single-threaded Task,
// for work items that don't need the re-queue-at-front protocol (the disk
// read scheduler's ServiceReads is dispatched as one of these).
type FuncTask struct {
	fn   func()
	done bool
}

// NewFuncTask wraps fn as a Task that completes after its first Execute.
func NewFuncTask(fn func()) *FuncTask { return &FuncTask{fn: fn} }

func (t *FuncTask) Execute() {
	t.fn()
	t.done = true
}
func (t *FuncTask) Completed() bool     { return t.done }
func (t *FuncTask) MaxParallelism() int { return 1 }

// Scheduler is the worker pool of §4.12. Workers block on idleQueue when the
// task queue is empty; Schedule appends a task and wakes one waiter; Stop
// wakes every waiter and clears running so each worker loop exits.
type Scheduler struct {
	logger  zerolog.Logger
	metrics *nimbusmetrics.Registry

	mu        sync.Mutex
	idleQueue *sync.Cond
	queue     []Task
	running   bool

	wg sync.WaitGroup
}

// New builds a stopped scheduler; call Start to spin up workers.
func New(logger zerolog.Logger, metrics *nimbusmetrics.Registry) *Scheduler {
	s := &Scheduler{logger: logger, metrics: metrics}
	s.idleQueue = sync.NewCond(&s.mu)
	return s
}

// Start launches n worker goroutines, each looping on awaitTask until Stop
// is called. Calling Start on an already-running scheduler is a no-op.
func (s *Scheduler) Start(n int) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if n < 1 {
		n = 1
	}
	for id := 0; id < n; id++ {
		s.wg.Add(1)
		go s.workerLoop(id)
	}
}

// Stop wakes every idle worker and stops the pool from handing out further
// tasks, then blocks until every worker goroutine has returned. Queued tasks
// that never got a turn are dropped, matching the condition-variable
// shutdown idiom pkg/diskcache.ServiceReads/GetOrLoad use for their own
// load-condition wait/notify pairing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.idleQueue.Broadcast()
	s.wg.Wait()
}

// Schedule appends task to the back of the queue and wakes one idle worker.
func (s *Scheduler) Schedule(task Task) {
	s.mu.Lock()
	s.queue = append(s.queue, task)
	depth := len(s.queue)
	s.mu.Unlock()
	s.idleQueue.Signal()

	if s.metrics != nil {
		s.metrics.TasksScheduledTotal.Inc()
		s.metrics.TaskQueueDepth.Set(float64(depth))
	}
}

func (s *Scheduler) workerLoop(id int) {
	defer s.wg.Done()
	log := s.logger.With().Int("worker", id).Logger()
	for {
		task := s.awaitTask()
		if task == nil {
			return
		}
		timer := nimbusmetrics.NewTimer()
		task.Execute()
		if s.metrics != nil {
			timer.ObserveDuration(s.metrics.TaskExecDuration)
		}
		if task.Completed() {
			if s.metrics != nil {
				s.metrics.TasksCompletedTotal.Inc()
			}
		} else {
			log.Debug().Msg("task yielded, re-queued at front")
		}
	}
}

// awaitTask pops the next runnable task, parking on idleQueue while the
// queue is empty and the pool is still running. It drops already-completed
// entries it finds at the head, and re-queues a multithreaded, not-yet-
// complete task at the front so the next idle worker picks up where this
// one left off (§4.12's re-queue-at-front semantics).
func (s *Scheduler) awaitTask() Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		for len(s.queue) == 0 || !s.running {
			if !s.running {
				return nil
			}
			s.idleQueue.Wait()
		}
		task := s.queue[0]
		s.queue = s.queue[1:]

		if task.Completed() {
			continue
		}
		if Multithreaded(task) {
			s.queue = append([]Task{task}, s.queue...)
		}
		if len(s.queue) > 0 {
			s.idleQueue.Signal()
		}
		if s.metrics != nil {
			s.metrics.TaskQueueDepth.Set(float64(len(s.queue)))
		}
		return task
	}
}

// QueueDepth reports the number of tasks currently waiting (not counting one
// that may be mid-Execute on a worker).
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Drain removes every pending task without running it, for use during
// shutdown once Stop has already returned.
func (s *Scheduler) Drain() {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
}
