package column

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeColumnRoundTrip(t *testing.T) {
	values := []int64{1000, 1005, 1002, 1050, 999}
	col, err := BuildIntColumn("ts", values, nil)
	require.NoError(t, err)

	blob := SerializeColumn(col)
	got, err := DeserializeColumn(blob)
	require.NoError(t, err)

	assert.Equal(t, col.Name, got.Name)
	assert.Equal(t, col.Len, got.Len)
	assert.Equal(t, col.Logical, got.Logical)
	assert.Equal(t, col.Codec, got.Codec)

	sec, err := got.Decode()
	require.NoError(t, err)
	assert.Equal(t, values, sec.I64)
}

func TestSerializeDeserializeNullableColumnRoundTrip(t *testing.T) {
	values := []int64{5, 0, 9, 0}
	present := []bool{true, false, true, false}
	col, err := BuildIntColumn("v", values, present)
	require.NoError(t, err)

	blob := SerializeColumn(col)
	got, err := DeserializeColumn(blob)
	require.NoError(t, err)
	require.True(t, got.EncodingType().IsNullable())

	mask, err := got.NullMask()
	require.NoError(t, err)
	assert.True(t, mask.Contains(1))
	assert.True(t, mask.Contains(3))
	assert.False(t, mask.Contains(0))
}

func TestSerializeDeserializeBundleRoundTrip(t *testing.T) {
	a, err := BuildIntColumn("a", []int64{1, 2, 3}, nil)
	require.NoError(t, err)
	b, err := BuildStringColumn("b", []string{"x", "y", "z"}, nil, 1<<16)
	require.NoError(t, err)

	names := []string{"a", "b"}
	columns := map[string]*Column{"a": a, "b": b}

	blob := SerializeBundle(names, columns)
	got, order, err := DeserializeBundle(blob)
	require.NoError(t, err)
	assert.Equal(t, names, order)
	require.Contains(t, got, "a")
	require.Contains(t, got, "b")

	aSec, err := got["a"].Decode()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, aSec.I64)

	bSec, err := got["b"].Decode()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, bSec.Str)
}
