/*
Package scheduler provides the fixed-size worker pool that drives every
unit of concurrent work inside nimbusdb: ingest-buffer flushes, partition
compactions, and query sub-tasks all funnel through the same FIFO queue.

# Architecture

The scheduler owns one FIFO of Task values and a pool of worker goroutines
parked on a condition variable:

	┌────────────────────────────────────────────────────────────┐
	│                      Scheduler                              │
	│                                                              │
	│   Schedule(task) ──▶ [ task, task, task, ... ] ──▶ worker0   │
	│                         ▲        │                 worker1   │
	│                         │        ▼                 workerN   │
	│                     re-queue   pop front                     │
	└────────────────────────────────────────────────────────────┘

A worker pops the task at the head of the queue. If the task reports
MaxParallelism() > 1 and is not yet Completed(), the worker re-queues it at
the front before running its slice, so another idle worker can immediately
pick up the next slice of the same task. Single-parallelism tasks (ingest
flushes) run to completion on the worker that popped them and are never
re-queued.

# Task contract

	type Task interface {
	    Execute()
	    Completed() bool
	    MaxParallelism() int
	}

Execute runs one slice of work; for a MaxParallelism()==1 task this is the
entire task. Completed reports whether the task has nothing left to do - a
worker checks this both before handing the task to Execute (to drop stale
entries) and after (to decide whether to re-queue a multithreaded task).

FuncTask adapts a plain closure into a single-shot, single-parallelism task
for the common case of "run this once":

	sched.Schedule(scheduler.NewFuncTask(func() {
	    engine.Flush(table)
	}))

# Usage

	metrics := nimbusmetrics.NewRegistry()
	sched := scheduler.New(logs.Component("scheduler"), metrics)
	sched.Start(runtime.NumCPU())
	defer sched.Stop()

	sched.Schedule(scheduler.NewFuncTask(func() { engine.Flush(table) }))

# Shutdown

Stop flips the running flag and broadcasts on the condition variable so
every parked worker wakes, observes running == false, and returns. Stop
blocks until all worker goroutines have exited. Anything still sitting in
the queue at that point is discarded; callers that need every scheduled
task to finish first should wait on their own completion signal (a
WaitGroup or channel closed from within the task) before calling Stop.

# Why a single shared pool

The original split schedulers for ingest and query work fought each other
over CPU. Routing both through one task queue, with `max_parallelism`
telling the pool how many workers a given task may occupy at once, lets a
single worker count bound total concurrency while still letting a
multi-threaded query sub-task claim several workers at a time via the
re-queue-at-front protocol.

# See Also

  - pkg/diskcache - the per-column load scheduler a Task often calls into
  - pkg/query - compiles the per-partition sub-tasks this pool runs
  - pkg/nimbusdb - the facade that owns the scheduler and calls Schedule
*/
package scheduler
