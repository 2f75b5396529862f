package nimbusdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	opts := DefaultOptions()
	opts.Threads = 2
	db, err := Open(context.Background(), t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIngestAndRunQueryAgainstBufferedRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, db.Ingest(ctx, "events", map[string]nimbustype.Value{
			"id":   nimbustype.IntValue(i),
			"name": nimbustype.StrValue("row"),
		}))
	}

	result, err := db.RunQuery(ctx, "SELECT id FROM events")
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestFlushMaterializesPartitionAndClearsBuffer(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := int64(0); i < 10; i++ {
		require.NoError(t, db.Ingest(ctx, "events", map[string]nimbustype.Value{"id": nimbustype.IntValue(i)}))
	}
	require.NoError(t, db.Flush(ctx, "events"))

	stats := db.TableStats()
	require.Len(t, stats, 1)
	assert.Equal(t, "events", stats[0].Table)
	assert.Equal(t, uint64(10), stats[0].RowCount)
	assert.Equal(t, 0, stats[0].BufferedRows)
	assert.GreaterOrEqual(t, stats[0].Partitions, 1)
}

func TestFlushAllFlushesEveryTableWithBufferedRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Ingest(ctx, "a", map[string]nimbustype.Value{"x": nimbustype.IntValue(1)}))
	require.NoError(t, db.Ingest(ctx, "b", map[string]nimbustype.Value{"x": nimbustype.IntValue(2)}))

	require.NoError(t, db.FlushAll(ctx))

	stats := db.TableStats()
	require.Len(t, stats, 2)
	for _, s := range stats {
		assert.Equal(t, uint64(1), s.RowCount)
	}
}

func TestRunQueryOnUnknownTableReturnsEmptyResult(t *testing.T) {
	db := openTestDB(t)
	result, err := db.RunQuery(context.Background(), "SELECT x FROM nonexistent")
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestExplainDoesNotExecute(t *testing.T) {
	db := openTestDB(t)
	plan, err := db.Explain(context.Background(), "SELECT id FROM events")
	require.NoError(t, err)
	assert.NotEmpty(t, plan)
}

func TestOpenRecoversUnflushedRowsFromWAL(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	opts := DefaultOptions()
	opts.Threads = 2
	opts.Tunables.WALFlushRows = 1 // flush every row to the WAL immediately

	db, err := Open(ctx, dir, opts)
	require.NoError(t, err)

	for i := int64(0); i < 4; i++ {
		require.NoError(t, db.Ingest(ctx, "events", map[string]nimbustype.Value{"id": nimbustype.IntValue(i)}))
	}
	require.NoError(t, db.Close())

	reopened, err := Open(ctx, dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	stats := reopened.TableStats()
	require.Len(t, stats, 1)
	assert.Equal(t, 4, stats[0].BufferedRows)
}

func TestMemTreeRendersFlushedPartitions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Ingest(ctx, "events", map[string]nimbustype.Value{"id": nimbustype.IntValue(1)}))
	require.NoError(t, db.Flush(ctx, "events"))

	tree := db.MemTree(2)
	assert.Contains(t, tree, "events")
	assert.Contains(t, tree, "partition 0")
}
