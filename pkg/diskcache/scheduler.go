// Package diskcache implements the disk-read scheduler and resident-column
// LRU of §4.8: a point-lookup path (get_or_load) for single-column access,
// a sequential-read path (schedule_sequential_read/service_reads) that
// coalesces a column scan across many partitions into readahead-bounded
// runs, and byte-budget eviction.
package diskcache

import (
	"context"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/nimbusdb/nimbusdb/pkg/column"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbusmetrics"
)

// Loader is the subset of the storage engine the scheduler needs: loading
// one column's data given its resolved subpartition key.
type Loader interface {
	LoadColumn(ctx context.Context, table string, partitionID uint64, subKey, columnName string) (*column.Column, error)
}

// Key identifies one column handle: a single column within a single
// partition of a single table.
type Key struct {
	Table       string
	PartitionID uint64
	Column      string
}

// handle is the resident/scheduled state of one column, guarded by its own
// mutex so a point lookup on one column never blocks a lookup on another.
type handle struct {
	mu       sync.Mutex
	resident bool
	scheduled bool
	column   *column.Column
	size     int64
	subKey   string
}

// PartitionColumns describes one partition's column layout for sequential
// scheduling: the subpartition key and known size for each of its columns
// (taken from partition metadata, valid whether or not the column has been
// loaded yet).
type PartitionColumns struct {
	PartitionID uint64
	Columns     map[string]ColumnRef
}

// ColumnRef is a column's location/size within a partition, independent of
// whether it has been loaded into memory.
type ColumnRef struct {
	SubKey    string
	SizeBytes int64
}

// run is a scheduled sequential read: a contiguous partition-id range
// sharing the same set of non-resident needed columns, bounded by the
// readahead budget.
type run struct {
	table      string
	startID    uint64
	endID      uint64
	partitions []PartitionColumns
	columns    map[string]bool
	bytes      int64
}

// Scheduler is the disk-read scheduler of §4.8.
type Scheduler struct {
	loader Loader
	logger zerolog.Logger
	metrics *nimbusmetrics.Registry

	handlesMu sync.Mutex
	handles   map[Key]*handle
	lru       *lru.Cache

	residentMu    sync.Mutex
	residentBytes int64
	budget        int64

	readerToken sync.Mutex

	queueMu sync.Mutex
	queue   []run

	loadCond       *sync.Cond
	loadInProgress bool
}

// New builds a scheduler over loader with the given resident-byte budget
// (the trigger point for Evict; 0 means unbounded).
func New(loader Loader, budget int64, logger zerolog.Logger, metrics *nimbusmetrics.Registry) *Scheduler {
	cache, _ := lru.New(1 << 20)
	s := &Scheduler{
		loader:  loader,
		logger:  logger,
		metrics: metrics,
		handles: make(map[Key]*handle),
		lru:     cache,
		budget:  budget,
	}
	s.loadCond = sync.NewCond(&sync.Mutex{})
	return s
}

func (s *Scheduler) handleFor(key Key, subKey string, size int64) *handle {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()
	h, ok := s.handles[key]
	if !ok {
		h = &handle{subKey: subKey, size: size}
		s.handles[key] = h
	}
	return h
}

// GetOrLoad is the point-lookup path: return the column if resident,
// parking on the load condition variable if a sequential read already
// promised to load it, otherwise loading it directly under the reader
// token (§4.8's get_or_load).
func (s *Scheduler) GetOrLoad(ctx context.Context, table string, partitionID uint64, subKey, columnName string, sizeBytes int64) (*column.Column, error) {
	key := Key{Table: table, PartitionID: partitionID, Column: columnName}
	h := s.handleFor(key, subKey, sizeBytes)

	for {
		h.mu.Lock()
		if h.resident {
			col := h.column
			h.mu.Unlock()
			s.touch(key)
			return col, nil
		}
		if h.scheduled {
			h.mu.Unlock()
			s.loadCond.L.Lock()
			for s.loadInProgress {
				s.loadCond.Wait()
			}
			s.loadCond.L.Unlock()
			continue
		}
		h.mu.Unlock()
		break
	}

	s.readerToken.Lock()
	defer s.readerToken.Unlock()

	h.mu.Lock()
	if h.resident {
		col := h.column
		h.mu.Unlock()
		s.touch(key)
		return col, nil
	}
	h.mu.Unlock()

	col, err := s.loader.LoadColumn(ctx, table, partitionID, subKey, columnName)
	if err != nil {
		return nil, err
	}
	s.install(key, h, col)
	s.metrics.ColumnLoadsTotal.Inc()
	return col, nil
}

func (s *Scheduler) install(key Key, h *handle, col *column.Column) {
	h.mu.Lock()
	h.column = col
	h.resident = true
	h.scheduled = false
	h.size = int64(col.ByteSize())
	h.mu.Unlock()

	s.lru.Add(key, struct{}{})
	s.residentMu.Lock()
	s.residentBytes += h.size
	overBudget := s.budget > 0 && s.residentBytes > s.budget
	s.residentMu.Unlock()
	s.metrics.ResidentBytes.Set(float64(s.residentBytes))

	if overBudget {
		s.evictLocked(s.budget)
	}
}

func (s *Scheduler) touch(key Key) {
	s.lru.Add(key, struct{}{})
}

// ScheduleSequentialRead groups snapshot (already an ascending-id-ordered
// set of one table's partitions) into readahead-bounded runs over the
// needed columns, queuing each run for ServiceReads to drain (§4.8's
// schedule_sequential_read).
func (s *Scheduler) ScheduleSequentialRead(table string, snapshot []PartitionColumns, needed []string, readahead int64) {
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].PartitionID < snapshot[j].PartitionID })

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	var current run
	for _, part := range snapshot {
		nonResident := s.nonResidentColumns(table, part, needed)
		if current.bytes > readahead || !sameColumnSet(current.columns, nonResident) {
			if len(current.columns) > 0 {
				s.queue = append(s.queue, current)
			}
			current = run{
				table:      table,
				startID:    part.PartitionID,
				columns:    nonResident,
				partitions: []PartitionColumns{part},
				bytes:      s.promiseBytes(table, part, nonResident),
			}
		} else {
			current.partitions = append(current.partitions, part)
			current.bytes += s.promiseBytes(table, part, nonResident)
		}
		current.endID = part.PartitionID
	}
	if len(current.columns) > 0 {
		s.queue = append(s.queue, current)
	}
}

func (s *Scheduler) nonResidentColumns(table string, part PartitionColumns, needed []string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range needed {
		ref, ok := part.Columns[name]
		if !ok {
			continue
		}
		key := Key{Table: table, PartitionID: part.PartitionID, Column: name}
		h := s.handleFor(key, ref.SubKey, ref.SizeBytes)
		h.mu.Lock()
		resident := h.resident
		h.mu.Unlock()
		if !resident {
			out[name] = true
		}
	}
	return out
}

// promiseBytes marks each non-resident needed column as scheduled and
// returns the bytes promised for this partition's contribution to the run.
func (s *Scheduler) promiseBytes(table string, part PartitionColumns, columns map[string]bool) int64 {
	var total int64
	for name := range columns {
		ref := part.Columns[name]
		key := Key{Table: table, PartitionID: part.PartitionID, Column: name}
		h := s.handleFor(key, ref.SubKey, ref.SizeBytes)
		h.mu.Lock()
		if !h.resident && !h.scheduled {
			h.scheduled = true
			total += ref.SizeBytes
		}
		h.mu.Unlock()
	}
	return total
}

func sameColumnSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// ServiceReads drains the queued runs one at a time under the reader
// token, loading every (partition, column) pair a run promised, installing
// results, and waking GetOrLoad waiters after each run (§4.8's
// service_reads).
func (s *Scheduler) ServiceReads(ctx context.Context) error {
	s.loadCond.L.Lock()
	s.loadInProgress = true
	s.loadCond.L.Unlock()

	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.queueMu.Unlock()
			break
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		if err := s.serviceRun(ctx, next); err != nil {
			s.loadCond.L.Lock()
			s.loadInProgress = false
			s.loadCond.L.Unlock()
			s.loadCond.Broadcast()
			return err
		}

		s.loadCond.Broadcast()
	}

	s.loadCond.L.Lock()
	s.loadInProgress = false
	s.loadCond.L.Unlock()
	s.loadCond.Broadcast()
	return nil
}

func (s *Scheduler) serviceRun(ctx context.Context, r run) error {
	s.readerToken.Lock()
	defer s.readerToken.Unlock()

	s.logger.Debug().Uint64("start", r.startID).Uint64("end", r.endID).Int("columns", len(r.columns)).Msg("servicing sequential read")

	for name := range r.columns {
		for _, part := range r.partitions {
			ref, ok := part.Columns[name]
			if !ok {
				continue
			}
			key := Key{Table: r.table, PartitionID: part.PartitionID, Column: name}
			h := s.handleFor(key, ref.SubKey, ref.SizeBytes)
			h.mu.Lock()
			resident := h.resident
			h.mu.Unlock()
			if resident {
				continue
			}
			col, err := s.loader.LoadColumn(ctx, r.table, part.PartitionID, ref.SubKey, name)
			if err != nil {
				return nimbuserr.Wrap(nimbuserr.IO, err, "servicing sequential read for partition %d column %q", part.PartitionID, name)
			}
			s.install(key, h, col)
		}
	}
	return nil
}

// Evict pops resident columns in LRU order until residentBytes is at or
// below limit, clearing each handle's in-memory column but leaving it and
// its metadata in place (§4.8's eviction; the reader token already
// serializes Evict against an ongoing GetOrLoad/ServiceReads).
func (s *Scheduler) Evict(limit int64) {
	s.readerToken.Lock()
	defer s.readerToken.Unlock()
	s.evictLocked(limit)
}

// evictLocked is Evict's loop; the caller holds the reader token.
func (s *Scheduler) evictLocked(limit int64) {
	for {
		s.residentMu.Lock()
		over := s.residentBytes > limit
		s.residentMu.Unlock()
		if !over {
			return
		}
		keys := s.lru.Keys()
		if len(keys) == 0 {
			return
		}
		key := keys[0].(Key)
		s.lru.Remove(key)

		s.handlesMu.Lock()
		h, ok := s.handles[key]
		s.handlesMu.Unlock()
		if !ok {
			continue
		}
		h.mu.Lock()
		if h.resident {
			h.resident = false
			h.column = nil
			s.residentMu.Lock()
			s.residentBytes -= h.size
			s.residentMu.Unlock()
			s.metrics.ColumnEvictionTotal.Inc()
			s.metrics.ResidentBytes.Set(float64(s.residentBytes))
		}
		h.mu.Unlock()
	}
}

// ResidentBytes reports the current aggregate resident size.
func (s *Scheduler) ResidentBytes() int64 {
	s.residentMu.Lock()
	defer s.residentMu.Unlock()
	return s.residentBytes
}
