package query

import (
	"context"

	"github.com/nimbusdb/nimbusdb/pkg/column"
	"github.com/nimbusdb/nimbusdb/pkg/diskcache"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/partition"
)

// partitionRef is one partition's planning-time identity: either an
// on-disk partition (meta set, resolved through the disk-read scheduler) or
// the single synthetic partition holding the not-yet-flushed ingest buffer
// (memory set, already fully resident).
type partitionRef struct {
	id     uint64
	length int
	meta   *partition.Metadata
	memory map[string]*column.Column
}

// Snapshot is the set of partitions a query runs against, taken once at
// query-submission time so that a concurrent flush cannot change the row
// set mid-query (§4.11's "the query runs against a fixed snapshot of
// partitions").
type Snapshot struct {
	table      string
	cache      *diskcache.Scheduler
	partitions []partitionRef
}

// NewSnapshot builds a Snapshot over every on-disk partition of table known
// to metaStore, plus one extra synthetic partition for the rows currently
// sitting in the ingest buffer, if any are present. memColumns/memRowCount
// should come from ingest.Buffer.FinalizeAll, called while the ingest
// buffer's own lock is still held so the row count and column materialize
// off of the exact same data.
func NewSnapshot(table string, metaStore *partition.MetaStore, cache *diskcache.Scheduler, memColumns map[string]*column.Column, memRowCount int) *Snapshot {
	s := &Snapshot{table: table, cache: cache}
	for _, meta := range metaStore.Partitions(table) {
		s.partitions = append(s.partitions, partitionRef{id: meta.ID, length: int(meta.Len), meta: meta})
	}
	if memRowCount > 0 {
		s.partitions = append(s.partitions, partitionRef{
			id:     memoryPartitionID,
			length: memRowCount,
			memory: memColumns,
		})
	}
	return s
}

// memoryPartitionID is the synthetic id the in-memory ingest-buffer
// partition is addressed by; on-disk partition ids are allocated from the
// meta-store sequentially starting at 0, so this sentinel only collides in
// principle, never in practice within a single table's lifetime, and the
// combine stage never needs to compare it against a real partition id.
const memoryPartitionID = ^uint64(0)

// Table reports the table this snapshot was taken over.
func (s *Snapshot) Table() string { return s.table }

// PartitionCount reports how many partitions the planner must fan out
// over, the MaxParallelism() a QueryTask reports to the scheduler.
func (s *Snapshot) PartitionCount() int { return len(s.partitions) }

// TotalRows sums Len across every partition in the snapshot, an upper
// bound on the result's row count before WHERE/GROUP BY/LIMIT are applied.
func (s *Snapshot) TotalRows() int {
	total := 0
	for _, p := range s.partitions {
		total += p.length
	}
	return total
}

// Partition returns a handle to the i-th partition in the snapshot.
func (s *Snapshot) Partition(i int) *PartitionHandle {
	return &PartitionHandle{snapshot: s, ref: s.partitions[i]}
}

// PartitionHandle is one partition's column-load surface, the unit of work
// a QueryTask claims atomically.
type PartitionHandle struct {
	snapshot *Snapshot
	ref      partitionRef
}

func (h *PartitionHandle) ID() uint64      { return h.ref.id }
func (h *PartitionHandle) Len() int        { return h.ref.length }
func (h *PartitionHandle) IsMemory() bool  { return h.ref.memory != nil }

// ColumnNames lists every column this partition carries, used to resolve a
// SELECT * wildcard against the partition actually being scanned (on-disk
// partitions may lag behind a table's current full schema, §4.4).
func (h *PartitionHandle) ColumnNames() []string {
	if h.ref.memory != nil {
		names := make([]string, 0, len(h.ref.memory))
		for n := range h.ref.memory {
			names = append(names, n)
		}
		return names
	}
	names := make([]string, 0, len(h.ref.meta.ColumnSubpartition))
	for n := range h.ref.meta.ColumnSubpartition {
		names = append(names, n)
	}
	return names
}

// Load resolves and decodes the named column within this partition,
// through the disk-read scheduler's column cache for an on-disk partition
// or directly from the already-finalized ingest buffer columns otherwise.
func (h *PartitionHandle) Load(ctx context.Context, columnName string) (*column.Column, error) {
	if h.ref.memory != nil {
		col, ok := h.ref.memory[columnName]
		if !ok {
			return nil, nimbuserr.New(nimbuserr.NotFound, "column %q not present in in-memory buffer", columnName)
		}
		return col, nil
	}
	subKey, err := h.ref.meta.SubpartitionKey(columnName)
	if err != nil {
		return nil, err
	}
	var sizeBytes int64
	for _, sub := range h.ref.meta.Subpartitions {
		if sub.Key == subKey {
			sizeBytes = sub.SizeBytes
			break
		}
	}
	return h.snapshot.cache.GetOrLoad(ctx, h.snapshot.table, h.ref.id, subKey, columnName, sizeBytes)
}
