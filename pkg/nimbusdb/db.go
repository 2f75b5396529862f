// Package nimbusdb implements the top-level facade of §4.13: it wires the
// blob-writer, storage engine, disk-read scheduler, ingest buffers, worker
// pool, and query planner into the single entry point an embedder or the
// CLI drives (ingest, flush, run_query, table_stats, mem_tree).
package nimbusdb

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/nimbusdb/nimbusdb/pkg/blobstore"
	"github.com/nimbusdb/nimbusdb/pkg/column"
	"github.com/nimbusdb/nimbusdb/pkg/config"
	"github.com/nimbusdb/nimbusdb/pkg/diskcache"
	"github.com/nimbusdb/nimbusdb/pkg/ingest"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuslog"
	"github.com/nimbusdb/nimbusdb/pkg/nimbusmetrics"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/partition"
	"github.com/nimbusdb/nimbusdb/pkg/query"
	"github.com/nimbusdb/nimbusdb/pkg/scheduler"
	"github.com/nimbusdb/nimbusdb/pkg/storage"
	"github.com/nimbusdb/nimbusdb/pkg/wal"
)

// BackendKind selects the blob-writer capability (A) implementation a DB is
// opened against.
type BackendKind string

const (
	BackendFS   BackendKind = "fs"
	BackendBolt BackendKind = "bolt"
)

// Options configures Open. Open replaces zero Tunables, a non-positive
// Threads and an empty Backend with their defaults.
type Options struct {
	Backend  BackendKind
	Tunables config.Tunables
	Threads  int
	Logs     nimbuslog.Config
}

// DefaultOptions returns sensible defaults: a filesystem blob-writer backend,
// the stock tunables, and four workers (cmd/nimbusdb's --threads flag
// defaults to runtime.NumCPU() instead).
func DefaultOptions() Options {
	return Options{Backend: BackendFS, Tunables: config.DefaultTunables(), Threads: 4}
}

// tableState is one table's in-memory side: its open ingest buffer and how
// many of its rows are already durable in a WAL segment.
type tableState struct {
	mu          sync.Mutex
	buf         *ingest.Buffer
	walFlushed  int
	lastWALFlush time.Time
}

// DB is the top-level facade of §4.13, wiring components A-L.
type DB struct {
	root     string
	opts     Options
	blobs    blobstore.Store
	closer   func() error
	engine   *storage.Engine
	cache    *diskcache.Scheduler
	sched    *scheduler.Scheduler
	logs     *nimbuslog.Registry
	metrics  *nimbusmetrics.Registry

	mu     sync.Mutex
	tables map[string]*tableState
}

// cacheLoader adapts *storage.Engine to diskcache.Loader; a named type
// rather than the engine satisfying the interface implicitly keeps the
// dependency direction (diskcache -> storage) explicit at the call site.
type cacheLoader struct{ engine *storage.Engine }

func (c cacheLoader) LoadColumn(ctx context.Context, table string, partitionID uint64, subKey, columnName string) (*column.Column, error) {
	return c.engine.LoadColumn(ctx, table, partitionID, subKey, columnName)
}

// Open runs the storage engine's recovery sequence (§4.7) against root,
// replays any WAL segments it returns into fresh per-table ingest buffers,
// and starts the worker pool, ready for Ingest/RunQuery.
func Open(ctx context.Context, root string, opts Options) (*DB, error) {
	if opts.Tunables == (config.Tunables{}) {
		opts.Tunables = config.DefaultTunables()
	}
	if opts.Threads <= 0 {
		opts.Threads = 4
	}
	logs := nimbuslog.NewRegistry(opts.Logs)
	metrics := nimbusmetrics.NewRegistry()

	var blobs blobstore.Store
	var closer func() error
	switch opts.Backend {
	case BackendBolt:
		store, err := blobstore.NewBoltStore(path.Join(root, "nimbusdb.bolt"))
		if err != nil {
			return nil, nimbuserr.Wrap(nimbuserr.IO, err, "opening bolt blob-writer backend")
		}
		blobs, closer = blobstore.NewChecksummed(store), store.Close
	default:
		store, err := blobstore.NewFSStore(root)
		if err != nil {
			return nil, nimbuserr.Wrap(nimbuserr.IO, err, "opening filesystem blob-writer backend")
		}
		blobs = blobstore.NewChecksummed(store)
	}

	engine, segments, err := storage.Open(ctx, blobs, root, false, logs.Component("storage"), metrics)
	if err != nil {
		return nil, err
	}

	db := &DB{
		root:    root,
		opts:    opts,
		blobs:   blobs,
		closer:  closer,
		engine:  engine,
		logs:    logs,
		metrics: metrics,
		tables:  make(map[string]*tableState),
	}
	db.cache = diskcache.New(cacheLoader{engine: engine}, opts.Tunables.ResidentBudgetBytes, logs.Component("diskcache"), metrics)
	db.sched = scheduler.New(logs.Component("scheduler"), metrics)
	db.sched.Start(opts.Threads)

	for _, seg := range segments {
		for _, t := range seg.Tables {
			st := db.tableState(t.TableName)
			st.mu.Lock()
			st.buf.ReplayWAL(t)
			st.walFlushed = st.buf.RowCount()
			st.mu.Unlock()
		}
	}

	return db, nil
}

// tableState returns table's in-memory state, creating it (with a fresh
// ingest buffer) on first reference.
func (db *DB) tableState(table string) *tableState {
	db.mu.Lock()
	defer db.mu.Unlock()
	st, ok := db.tables[table]
	if !ok {
		st = &tableState{buf: ingest.NewBuffer(table), lastWALFlush: time.Time{}}
		db.tables[table] = st
	}
	return st
}

// Close stops the worker pool and releases the blob-writer backend.
func (db *DB) Close() error {
	db.sched.Stop()
	if db.closer != nil {
		return db.closer()
	}
	return nil
}

// Ingest appends one row to table's in-memory buffer (§4.13's "append to
// the ingest buffer"), then durably appends it to the WAL once
// WALFlushRows rows or FlushInterval has elapsed since the last WAL write
// for this table (§4.6/§4.7's ingest-then-WAL-flush lifecycle).
func (db *DB) Ingest(ctx context.Context, table string, row map[string]nimbustype.Value) error {
	st := db.tableState(table)
	st.mu.Lock()
	st.buf.PushRow(row)
	pending := st.buf.RowCount() - st.walFlushed
	due := pending >= db.opts.Tunables.WALFlushRows || time.Since(st.lastWALFlush) >= db.opts.Tunables.FlushInterval
	st.mu.Unlock()

	db.metrics.IngestRowsTotal.WithLabelValues(table).Inc()

	if due && pending > 0 {
		return db.flushWAL(ctx, table, st)
	}
	return nil
}

// flushWAL durably appends every row accumulated since the table's last WAL
// write, without materializing a partition (§4.7's "WAL append").
func (db *DB) flushWAL(ctx context.Context, table string, st *tableState) error {
	st.mu.Lock()
	since := st.walFlushed
	if st.buf.RowCount() == since {
		st.mu.Unlock()
		return nil
	}
	batch := st.buf.SinceRow(since)
	st.mu.Unlock()

	segment := &wal.Segment{Tables: []wal.TableBatch{batch}}
	n, err := db.engine.AppendWAL(ctx, segment)
	if err != nil {
		return err
	}
	db.metrics.IngestBytesTotal.WithLabelValues(table).Add(float64(n))

	st.mu.Lock()
	st.walFlushed = since + int(batch.RowCount)
	st.lastWALFlush = time.Now()
	st.mu.Unlock()
	return nil
}

// Flush materializes table's full ingest buffer into a new partition and
// persists it via the storage engine (§4.13's "drain the ingest buffer into
// a partition, persist via storage engine, trim WAL"), replacing the
// table's buffer with an empty one. A no-op if the buffer is empty.
func (db *DB) Flush(ctx context.Context, table string) error {
	st := db.tableState(table)

	if err := db.flushWAL(ctx, table, st); err != nil {
		return err
	}

	st.mu.Lock()
	rowCount := st.buf.RowCount()
	if rowCount == 0 {
		st.mu.Unlock()
		return nil
	}
	buf := st.buf
	st.mu.Unlock()

	timer := nimbusmetrics.NewTimer()
	columns, err := buf.FinalizeAll(db.opts.Tunables.DictionaryCardinalityMax)
	if err != nil {
		return err
	}

	offset := db.engine.MetaStore().RowCount(table)
	id := db.engine.MetaStore().AllocatePartitionID()
	meta := partition.NewMetadata(table, id, offset, columns, db.opts.Tunables.SubpartitionTargetBytes)

	bundles := make(map[string]map[string]*column.Column, len(meta.Subpartitions))
	for _, sub := range meta.Subpartitions {
		bundle := make(map[string]*column.Column, len(sub.Columns))
		for _, name := range sub.Columns {
			bundle[name] = columns[name]
		}
		bundles[sub.Key] = bundle
	}

	if err := db.engine.PersistPartitions(ctx, table, []storage.Entry{{Meta: meta, Bundles: bundles}}); err != nil {
		return err
	}
	timer.ObserveDuration(db.metrics.FlushDuration)
	db.metrics.FlushesTotal.Inc()

	st.mu.Lock()
	st.buf = ingest.NewBuffer(table)
	st.walFlushed = 0
	st.lastWALFlush = time.Now()
	st.mu.Unlock()
	return nil
}

// FlushAll flushes every table with a non-empty ingest buffer.
func (db *DB) FlushAll(ctx context.Context) error {
	db.mu.Lock()
	tables := make([]string, 0, len(db.tables))
	for t := range db.tables {
		tables = append(tables, t)
	}
	db.mu.Unlock()
	sort.Strings(tables)
	for _, t := range tables {
		if err := db.Flush(ctx, t); err != nil {
			return fmt.Errorf("flushing table %q: %w", t, err)
		}
	}
	return nil
}

// RunQuery parses, plans, and executes sql against the current snapshot of
// the named table (§4.13's run_query).
func (db *DB) RunQuery(ctx context.Context, sql string) (*query.Result, error) {
	q, err := query.Parse(sql)
	if err != nil {
		return nil, err
	}

	// An unknown table resolves to an empty Snapshot (no partitions, no
	// buffered rows), which CompilePartition/CombineResults naturally
	// reduce to an empty result (§8: "queries on unknown tables return an
	// empty result").
	st := db.tableState(q.Table)
	st.mu.Lock()
	memColumns, err := st.buf.FinalizeAll(db.opts.Tunables.DictionaryCardinalityMax)
	memRowCount := st.buf.RowCount()
	st.mu.Unlock()
	if err != nil {
		return nil, err
	}

	snapshot := query.NewSnapshot(q.Table, db.engine.MetaStore(), db.cache, memColumns, memRowCount)

	timer := nimbusmetrics.NewTimer()
	task := query.NewQueryTask(ctx, q, snapshot, db.logs.Component("query"), db.metrics)
	db.sched.Schedule(task)
	result, err := query.Await(task)
	timer.ObserveDurationVec(db.metrics.QueryLatency, q.Table)
	return result, err
}

// Explain returns the compiled plan description for sql without executing
// it (§4.13's run_query(..., explain=true)).
func (db *DB) Explain(ctx context.Context, sql string) (string, error) {
	q, err := query.Parse(sql)
	if err != nil {
		return "", err
	}
	snapshot := query.NewSnapshot(q.Table, db.engine.MetaStore(), db.cache, nil, 0)
	return query.Explain(q, snapshot.PartitionCount()), nil
}

func (db *DB) tableRowCount(table string) int {
	db.mu.Lock()
	st, ok := db.tables[table]
	db.mu.Unlock()
	if !ok {
		return 0
	}
	return st.buf.RowCount()
}

// TableStats is one table's residency/size summary, returned by TableStats.
type TableStats struct {
	Table          string
	Partitions     int
	RowCount       uint64
	BufferedRows   int
	ResidentBytes  int64
}

// TableStats reports per-table row counts and buffered-row counts (§4.13's
// table_stats).
func (db *DB) TableStats() []TableStats {
	names := db.engine.MetaStore().Tables()
	seen := make(map[string]bool, len(names))
	var out []TableStats
	for _, name := range names {
		seen[name] = true
		out = append(out, TableStats{
			Table:        name,
			Partitions:   len(db.engine.MetaStore().Partitions(name)),
			RowCount:     db.engine.MetaStore().RowCount(name),
			BufferedRows: db.tableRowCount(name),
		})
	}
	db.mu.Lock()
	var extra []string
	for name := range db.tables {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	db.mu.Unlock()
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, TableStats{Table: name, BufferedRows: db.tableRowCount(name)})
	}
	return out
}

// MemTree renders a recursive table -> partition -> column byte-size
// breakdown down to depth levels deep (§4.13's mem_tree), grounded on
// original_source's tree.rs dump.
func (db *DB) MemTree(depth int) string {
	var b []byte
	for _, table := range db.engine.MetaStore().Tables() {
		b = append(b, []byte(table+"\n")...)
		if depth < 1 {
			continue
		}
		for _, meta := range db.engine.MetaStore().Partitions(table) {
			b = append(b, []byte(fmt.Sprintf("  partition %d (%d rows)\n", meta.ID, meta.Len))...)
			if depth < 2 {
				continue
			}
			for _, sub := range meta.Subpartitions {
				b = append(b, []byte(fmt.Sprintf("    %s: %d bytes, columns %v\n", sub.Key, sub.SizeBytes, sub.Columns))...)
			}
		}
	}
	return string(b)
}

// Counters exposes the storage engine's lifetime byte/file counters.
func (db *DB) Counters() storage.Counters { return db.engine.Counters.Snapshot() }

// ResidentBytes reports the disk-read scheduler's current resident-column
// footprint.
func (db *DB) ResidentBytes() int64 { return db.cache.ResidentBytes() }

// Evict drops resident columns down to limit bytes (§4.8's eviction,
// exposed for an operator to trigger under memory pressure outside the
// automatic byte-budget check already wired into the cache).
func (db *DB) Evict(limit int64) { db.cache.Evict(limit) }
