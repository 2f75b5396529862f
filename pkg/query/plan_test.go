package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/column"
	"github.com/nimbusdb/nimbusdb/pkg/partition"
)

// singlePartitionSnapshot wraps cols as the lone in-memory partition of a
// fresh, disk-free Snapshot, the shape CompilePartition's tests need without
// an engine behind them.
func singlePartitionSnapshot(t *testing.T, table string, rows int, cols map[string]*column.Column) *PartitionHandle {
	t.Helper()
	snap := NewSnapshot(table, partition.New(), nil, cols, rows)
	require.Equal(t, 1, snap.PartitionCount())
	return snap.Partition(0)
}

func compile(t *testing.T, sql string, handle *PartitionHandle) *BatchResult {
	t.Helper()
	q, err := Parse(sql)
	require.NoError(t, err)
	br, err := CompilePartition(context.Background(), q, handle)
	require.NoError(t, err)
	return br
}

func wireColumn(t *testing.T, br *BatchResult, name string) Column {
	t.Helper()
	for i, n := range br.ColumnNames {
		if n == name {
			return toWireColumn(br.Columns[i])
		}
	}
	t.Fatalf("column %q not in result %v", name, br.ColumnNames)
	return Column{}
}

// TestCompileSelectScenarioS1 mirrors scenario S1: SELECT a, b, c FROM t
// where c is a Nullable<Float> column with a null at row 0 must yield
// c = [null, 3.5] rather than silently densifying it.
func TestCompileSelectScenarioS1(t *testing.T) {
	aCol, err := column.BuildIntColumn("a", []int64{1, 2}, nil)
	require.NoError(t, err)
	bCol, err := column.BuildIntColumn("b", []int64{10, 20}, nil)
	require.NoError(t, err)
	cCol, err := column.BuildFloatColumn("c", []float64{0, 3.5}, []bool{false, true})
	require.NoError(t, err)

	handle := singlePartitionSnapshot(t, "t", 2, map[string]*column.Column{
		"a": aCol, "b": bCol, "c": cCol,
	})

	br := compile(t, "SELECT a, b, c FROM t", handle)
	c := wireColumn(t, br, "c")

	require.Equal(t, ColumnFloat, c.Kind)
	require.Len(t, c.Nulls, 2)
	assert.True(t, c.Nulls[0])
	assert.False(t, c.Nulls[1])
	assert.Equal(t, 3.5, c.Floats[1])
}

// TestCompileSelectWhereKeepsNullBitmapAligned covers a WHERE clause that
// drops row 0 of a two-row nullable display column: the surviving row's
// null marker must still describe the row that actually survived, not a
// stale pre-filter index.
func TestCompileSelectWhereKeepsNullBitmapAligned(t *testing.T) {
	aCol, err := column.BuildIntColumn("a", []int64{1, 2, 3}, nil)
	require.NoError(t, err)
	cCol, err := column.BuildFloatColumn("c", []float64{1.5, 0, 3.5}, []bool{true, false, true})
	require.NoError(t, err)

	handle := singlePartitionSnapshot(t, "t", 3, map[string]*column.Column{"a": aCol, "c": cCol})

	br := compile(t, "SELECT a, c FROM t WHERE a > 1", handle)
	c := wireColumn(t, br, "c")

	require.Len(t, c.Nulls, 2)
	assert.True(t, c.Nulls[0])
	assert.False(t, c.Nulls[1])
	assert.Equal(t, 3.5, c.Floats[1])
}

// TestCompileSelectOrderByKeepsNullBitmapAligned covers ORDER BY's
// Select-by-indices materialization: the display column's null markers must
// follow their row through the reorder, not stay in source-row order.
func TestCompileSelectOrderByKeepsNullBitmapAligned(t *testing.T) {
	aCol, err := column.BuildIntColumn("a", []int64{2, 1}, nil)
	require.NoError(t, err)
	cCol, err := column.BuildFloatColumn("c", []float64{3.5, 0}, []bool{true, false})
	require.NoError(t, err)

	handle := singlePartitionSnapshot(t, "t", 2, map[string]*column.Column{"a": aCol, "c": cCol})

	br := compile(t, "SELECT a, c FROM t ORDER BY a", handle)
	a := wireColumn(t, br, "a")
	c := wireColumn(t, br, "c")

	require.Equal(t, []int64{1, 2}, a.Ints)
	require.Len(t, c.Nulls, 2)
	assert.True(t, c.Nulls[0])
	assert.False(t, c.Nulls[1])
	assert.Equal(t, 3.5, c.Floats[1])
}

// TestCompileSelectOrderByIntUsesTopN exercises plan.go's TopN-gated branch
// for an integer ranking column, confirming LIMIT narrows to the smallest
// (default ascending) N rows rather than every matching row.
func TestCompileSelectOrderByIntUsesTopN(t *testing.T) {
	aCol, err := column.BuildIntColumn("a", []int64{5, 1, 4, 2, 3}, nil)
	require.NoError(t, err)
	handle := singlePartitionSnapshot(t, "t", 5, map[string]*column.Column{"a": aCol})

	br := compile(t, "SELECT a FROM t ORDER BY a LIMIT 3", handle)
	a := wireColumn(t, br, "a")
	assert.Equal(t, []int64{1, 2, 3}, a.Ints)
}

// TestCompileSelectOrderByFloatUsesSortByFallback covers the non-integer
// ranking column branch, which falls back to SortBy+truncate since TopN only
// compares int64 keys.
func TestCompileSelectOrderByFloatUsesSortByFallback(t *testing.T) {
	aCol, err := column.BuildFloatColumn("a", []float64{5, 1, 4, 2, 3}, nil)
	require.NoError(t, err)
	handle := singlePartitionSnapshot(t, "t", 5, map[string]*column.Column{"a": aCol})

	br := compile(t, "SELECT a FROM t ORDER BY a LIMIT 3", handle)
	a := wireColumn(t, br, "a")
	assert.Equal(t, []float64{1, 2, 3}, a.Floats)
}

// TestCompileAggregateGroupsWithinPartition covers GROUP BY + aggregates
// running entirely within one partition, a baseline compileAggregate path
// combine_test.go's cross-partition tests build on.
func TestCompileAggregateGroupsWithinPartition(t *testing.T) {
	kCol, err := column.BuildIntColumn("k", []int64{1, 1, 2}, nil)
	require.NoError(t, err)
	vCol, err := column.BuildIntColumn("v", []int64{10, 20, 30}, nil)
	require.NoError(t, err)
	handle := singlePartitionSnapshot(t, "t", 3, map[string]*column.Column{"k": kCol, "v": vCol})

	br := compile(t, "SELECT k, SUM(v) FROM t GROUP BY k", handle)
	require.True(t, br.Aggregate)

	k := wireColumn(t, br, "k")
	sum := wireColumn(t, br, "SUM(v)")

	got := map[int64]int64{}
	for i, key := range k.Ints {
		got[key] = sum.Ints[i]
	}
	assert.Equal(t, map[int64]int64{1: 30, 2: 30}, got)
}
