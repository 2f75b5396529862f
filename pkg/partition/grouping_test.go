package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/column"
)

func intCol(t *testing.T, name string, n int) *column.Column {
	t.Helper()
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = int64(i)
	}
	col, err := column.BuildIntColumn(name, vals, nil)
	require.NoError(t, err)
	return col
}

func TestGroupSubpartitionsPacksUnderTarget(t *testing.T) {
	cols := map[string]*column.Column{
		"a": intCol(t, "a", 1000),
		"b": intCol(t, "b", 1000),
		"c": intCol(t, "c", 1000),
	}
	// a large target packs every column into one subpartition.
	subs := GroupSubpartitions(cols, 1<<30, "7")
	require.Len(t, subs, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, subs[0].Columns)
}

func TestGroupSubpartitionsSplitsOversizedSet(t *testing.T) {
	cols := map[string]*column.Column{
		"a": intCol(t, "a", 1000),
		"b": intCol(t, "b", 1000),
		"c": intCol(t, "c", 1000),
	}
	oneColSize := int64(cols["a"].ByteSize())
	subs := GroupSubpartitions(cols, oneColSize, "7")
	require.Len(t, subs, 3)
	for i, sub := range subs {
		assert.Equal(t, subpartitionKey("7", i), sub.Key)
		assert.Len(t, sub.Columns, 1)
	}
}

func TestGroupSubpartitionsOversizedColumnGetsOwnSubpartition(t *testing.T) {
	cols := map[string]*column.Column{
		"small": intCol(t, "small", 10),
		"big":   intCol(t, "big", 10000),
	}
	target := int64(cols["small"].ByteSize()) + 1
	subs := GroupSubpartitions(cols, target, "1")
	require.GreaterOrEqual(t, len(subs), 1)
	found := false
	for _, sub := range subs {
		if len(sub.Columns) == 1 && sub.Columns[0] == "big" {
			found = true
		}
	}
	assert.True(t, found, "oversized column should get its own subpartition")
}

func TestNewMetadataBuildsColumnSubpartitionMapping(t *testing.T) {
	cols := map[string]*column.Column{
		"x": intCol(t, "x", 5),
		"y": intCol(t, "y", 5),
	}
	meta := NewMetadata("events", 3, 100, cols, 1<<30)
	assert.Equal(t, "events", meta.TableName)
	assert.Equal(t, uint64(3), meta.ID)
	assert.Equal(t, uint64(100), meta.Offset)
	assert.Equal(t, uint64(5), meta.Len)
	require.Len(t, meta.Subpartitions, 1)
	for _, name := range []string{"x", "y"} {
		idx, ok := meta.ColumnSubpartition[name]
		require.True(t, ok)
		assert.Equal(t, 0, idx)
	}
}

func TestAllocatePartitionIDAdvancesPastObservedIDs(t *testing.T) {
	m := New()
	assert.Equal(t, uint64(0), m.AllocatePartitionID())

	m.AddPartition(&Metadata{TableName: "t", ID: 9})
	assert.Equal(t, uint64(10), m.AllocatePartitionID())
	assert.Equal(t, uint64(11), m.AllocatePartitionID())
}

func TestItoa(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "42", itoa(42))
	assert.Equal(t, "12345", itoa(12345))
}
