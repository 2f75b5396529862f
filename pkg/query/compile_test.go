package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/column"
)

// TestCompileIsNullReadsRawBitmap covers evalNullCheck's use of rawColumn
// rather than denseColumn: IS NULL must see the real presence bitmap, not a
// sentinel-fused value that looks like an ordinary row.
func TestCompileIsNullReadsRawBitmap(t *testing.T) {
	cCol, err := column.BuildFloatColumn("c", []float64{0, 3.5}, []bool{false, true})
	require.NoError(t, err)
	handle := singlePartitionSnapshot(t, "t", 2, map[string]*column.Column{"c": cCol})

	br := compile(t, "SELECT c FROM t WHERE c IS NULL", handle)
	c := wireColumn(t, br, "c")
	require.Len(t, c.Nulls, 1)
	assert.True(t, c.Nulls[0])
}

// TestCompileIsNotNullReadsRawBitmap is IS NULL's complement.
func TestCompileIsNotNullReadsRawBitmap(t *testing.T) {
	cCol, err := column.BuildFloatColumn("c", []float64{0, 3.5}, []bool{false, true})
	require.NoError(t, err)
	handle := singlePartitionSnapshot(t, "t", 2, map[string]*column.Column{"c": cCol})

	br := compile(t, "SELECT c FROM t WHERE c IS NOT NULL", handle)
	c := wireColumn(t, br, "c")
	require.Len(t, c.Nulls, 1)
	assert.False(t, c.Nulls[0])
	assert.Equal(t, 3.5, c.Floats[0])
}

// TestCompileArithmeticOnNullableIntFusesToSentinel covers denseColumn's
// computation path (left unchanged by the display-column fix): a nullable
// int column used inside arithmetic still gets fused to its 0 sentinel, since
// BinaryOperator has no nullable-aware variant.
func TestCompileArithmeticOnNullableIntFusesToSentinel(t *testing.T) {
	aCol, err := column.BuildIntColumn("a", []int64{0, 5}, []bool{false, true})
	require.NoError(t, err)
	handle := singlePartitionSnapshot(t, "t", 2, map[string]*column.Column{"a": aCol})

	br := compile(t, "SELECT a + 1 FROM t", handle)
	sum := wireColumn(t, br, "(a + 1)")
	assert.Nil(t, sum.Nulls)
	assert.Equal(t, []int64{1, 6}, sum.Ints)
}

// TestCompileDisplayColumnDoesNotAffectFilterComputation confirms a nullable
// column referenced both in the select list and the WHERE clause still
// filters correctly: the WHERE clause's own evaluation goes through
// denseColumn regardless of what the select list does with displayColumn.
func TestCompileDisplayColumnDoesNotAffectFilterComputation(t *testing.T) {
	aCol, err := column.BuildIntColumn("a", []int64{1, 2, 3}, nil)
	require.NoError(t, err)
	cCol, err := column.BuildFloatColumn("c", []float64{1.5, 0, 3.5}, []bool{true, false, true})
	require.NoError(t, err)
	handle := singlePartitionSnapshot(t, "t", 3, map[string]*column.Column{"a": aCol, "c": cCol})

	br := compile(t, "SELECT c FROM t WHERE c IS NOT NULL", handle)
	c := wireColumn(t, br, "c")
	require.Len(t, c.Nulls, 2)
	assert.False(t, c.Nulls[0])
	assert.False(t, c.Nulls[1])
	assert.Equal(t, []float64{1.5, 3.5}, c.Floats)
}
