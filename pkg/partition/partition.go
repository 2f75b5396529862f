// Package partition implements the partition and meta-store model of §4.4:
// a partition is a set of subpartitions of columns, and the meta-store
// tracks every partition across every table plus the WAL watermark.
package partition

import (
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
)

// SubpartitionMetadata describes one on-disk blob holding a disjoint set of
// a partition's columns.
type SubpartitionMetadata struct {
	Key       string
	Columns   []string
	SizeBytes int64
}

// Metadata describes one partition: its position within a table's row
// stream and how its columns are grouped into subpartition blobs.
type Metadata struct {
	TableName string
	ID        uint64
	Offset    uint64
	Len       uint64

	Subpartitions      []SubpartitionMetadata
	ColumnSubpartition map[string]int
}

// SubpartitionKey returns the blob key holding column, per §4.4's
// `subpartition_key(column_name)`.
func (m *Metadata) SubpartitionKey(column string) (string, error) {
	idx, ok := m.ColumnSubpartition[column]
	if !ok {
		return "", nimbuserr.New(nimbuserr.NotFound, "column %q not present in partition %d", column, m.ID)
	}
	if idx < 0 || idx >= len(m.Subpartitions) {
		return "", nimbuserr.New(nimbuserr.Corruption, "partition %d: column %q maps to out-of-range subpartition %d", m.ID, column, idx)
	}
	return m.Subpartitions[idx].Key, nil
}

type partitionItem struct {
	id   uint64
	meta *Metadata
}

func lessPartitionItem(a, b partitionItem) bool { return a.id < b.id }

// MetaStore is the process-wide persistent index of every partition in
// every table, plus the WAL id watermark (§3's "Meta-store").
type MetaStore struct {
	mu sync.Mutex

	NextWALID uint64
	tables    map[string]*btree.BTreeG[partitionItem]

	nextPartitionID uint64
}

// New returns an empty meta-store with next_wal_id = 0.
func New() *MetaStore {
	return &MetaStore{tables: make(map[string]*btree.BTreeG[partitionItem])}
}

// AllocateWALID returns the next WAL segment id and advances the watermark,
// matching §4.7's "under the meta-store lock, assign the segment id".
func (m *MetaStore) AllocateWALID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.NextWALID
	m.NextWALID++
	return id
}

// ObserveWALID advances the watermark to max(current, id+1) without
// allocating, used during WAL replay at startup (§4.7 step 4).
func (m *MetaStore) ObserveWALID(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id+1 > m.NextWALID {
		m.NextWALID = id + 1
	}
}

// AddPartition registers meta under its table, replacing any existing entry
// with the same id.
func (m *MetaStore) AddPartition(meta *Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tree, ok := m.tables[meta.TableName]
	if !ok {
		tree = btree.NewG(32, lessPartitionItem)
		m.tables[meta.TableName] = tree
	}
	tree.ReplaceOrInsert(partitionItem{id: meta.ID, meta: meta})
	if meta.ID+1 > m.nextPartitionID {
		m.nextPartitionID = meta.ID + 1
	}
}

// AllocatePartitionID returns the next partition id unique for the lifetime
// of the database (§3's "identified by a 64-bit id unique for the lifetime
// of the database"), spanning every table since ids are drawn from one
// process-wide counter rather than one counter per table.
func (m *MetaStore) AllocatePartitionID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextPartitionID
	m.nextPartitionID++
	return id
}

// RemovePartitions drops the given partition ids from table, used when a
// compaction supersedes them with a merged partition.
func (m *MetaStore) RemovePartitions(table string, ids []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tree, ok := m.tables[table]
	if !ok {
		return
	}
	for _, id := range ids {
		tree.Delete(partitionItem{id: id})
	}
}

// Partitions returns table's partitions ordered by ascending id.
func (m *MetaStore) Partitions(table string) []*Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	tree, ok := m.tables[table]
	if !ok {
		return nil
	}
	out := make([]*Metadata, 0, tree.Len())
	tree.Ascend(func(item partitionItem) bool {
		out = append(out, item.meta)
		return true
	})
	return out
}

// Tables returns every table name known to the meta-store, sorted.
func (m *MetaStore) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tables))
	for name := range m.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Partition looks up a single partition by table and id.
func (m *MetaStore) Partition(table string, id uint64) (*Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tree, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	item, ok := tree.Get(partitionItem{id: id})
	if !ok {
		return nil, false
	}
	return item.meta, true
}

// RowCount sums Len across every partition of table.
func (m *MetaStore) RowCount(table string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	tree, ok := m.tables[table]
	if !ok {
		return 0
	}
	var total uint64
	tree.Ascend(func(item partitionItem) bool {
		total += item.meta.Len
		return true
	})
	return total
}
