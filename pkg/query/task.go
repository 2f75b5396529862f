package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbusmetrics"
)

// errKind extracts a metric label from err: its nimbuserr.Kind if it carries
// one, "canceled" for a context cancellation, "unknown" otherwise.
func errKind(err error) string {
	var e *nimbuserr.Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return string(nimbuserr.Canceled)
	}
	return "unknown"
}

// QueryTask runs one parsed Query against a Snapshot, claiming partitions
// one at a time so the scheduler's worker pool can fan a single query out
// across as many workers as there are partitions (§4.11/§4.12's
// "query sub-tasks re-queue at front"). A partition is claimed whole: its
// columns are fully decoded by CompilePartition in one call, so there is no
// finer-grained unit of work to hand out within a partition.
type QueryTask struct {
	ID       string
	Query    *Query
	Snapshot *Snapshot

	ctx     context.Context
	logger  zerolog.Logger
	metrics *nimbusmetrics.Registry

	claimed int64 // next partition index to hand out
	wg      sync.WaitGroup

	mu      sync.Mutex
	results []*BatchResult
	err     error
}

// NewQueryTask builds a task over every partition in snapshot, ready to be
// handed to scheduler.Scheduler.Schedule. Call Wait to block for the full
// result set.
func NewQueryTask(ctx context.Context, q *Query, snapshot *Snapshot, logger zerolog.Logger, metrics *nimbusmetrics.Registry) *QueryTask {
	t := &QueryTask{
		ID:       uuid.NewString(),
		Query:    q,
		Snapshot: snapshot,
		ctx:      ctx,
		logger:   logger,
		metrics:  metrics,
	}
	t.wg.Add(snapshot.PartitionCount())
	return t
}

// Execute claims and compiles exactly one partition. Safe to call
// concurrently from multiple workers: claiming is a single atomic
// increment, so two workers never compile the same partition twice.
func (t *QueryTask) Execute() {
	i := atomic.AddInt64(&t.claimed, 1) - 1
	total := int64(t.Snapshot.PartitionCount())
	if i >= total {
		return
	}

	defer t.wg.Done()

	if err := t.ctx.Err(); err != nil {
		t.recordErr(err)
		return
	}

	handle := t.Snapshot.Partition(int(i))
	result, err := CompilePartition(t.ctx, t.Query, handle)
	if err != nil {
		t.logger.Debug().Err(err).Uint64("partition", handle.ID()).Str("query", t.ID).Msg("partition compile failed")
		t.recordErr(err)
		return
	}

	t.mu.Lock()
	t.results = append(t.results, result)
	t.mu.Unlock()
}

func (t *QueryTask) recordErr(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.QueryErrorsTotal.WithLabelValues(errKind(err)).Inc()
	}
}

// Completed reports whether every partition has been claimed. A claimed
// partition may still be mid-compile on another worker; Wait, not
// Completed, is what a caller blocks on for the actual result set.
func (t *QueryTask) Completed() bool {
	return atomic.LoadInt64(&t.claimed) >= int64(t.Snapshot.PartitionCount())
}

// MaxParallelism lets the scheduler re-queue this task at the front after
// each slice, so up to one worker per remaining partition can run
// concurrently (§4.12's multithreaded task protocol).
func (t *QueryTask) MaxParallelism() int {
	n := t.Snapshot.PartitionCount()
	if n < 1 {
		return 1
	}
	return n
}

// Wait blocks until every partition has finished compiling (not merely been
// claimed) and returns the collected per-partition results, or the first
// error any partition hit.
func (t *QueryTask) Wait() ([]*BatchResult, error) {
	t.wg.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.results, t.err
}
