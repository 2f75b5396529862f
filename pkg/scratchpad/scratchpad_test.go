package scratchpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

func TestSetGetRoundTrip(t *testing.T) {
	sp := New(2, nil)
	ref := TypedBufferRef{Ref: 0, Type: nimbustype.I64}

	require.NoError(t, sp.Set(ref, codec.I64Section([]int64{1, 2, 3})))
	got, err := sp.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got.I64)
}

func TestSetRejectsTypeChange(t *testing.T) {
	sp := New(1, nil)
	ref := TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	require.NoError(t, sp.Set(ref, codec.I64Section([]int64{1})))

	err := sp.Set(ref, codec.StrSection([]string{"x"}))
	assert.Error(t, err)
}

func TestPinBlocksMutation(t *testing.T) {
	sp := New(1, nil)
	ref := TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	require.NoError(t, sp.Set(ref, codec.I64Section([]int64{1})))

	_, err := sp.GetPinned(ref)
	require.NoError(t, err)

	err = sp.Set(ref, codec.I64Section([]int64{2}))
	assert.Error(t, err)
}

func TestAliasResolvesToSource(t *testing.T) {
	sp := New(2, nil)
	src := TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	require.NoError(t, sp.Set(src, codec.I64Section([]int64{7, 8})))
	require.NoError(t, sp.Alias(0, 1))

	got, err := sp.Get(TypedBufferRef{Ref: 1, Type: nimbustype.I64})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, got.I64)
}

func TestCollectPinnedReturnsOnlyPinnedCells(t *testing.T) {
	sp := New(2, nil)
	a := TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	b := TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	require.NoError(t, sp.Set(a, codec.I64Section([]int64{1})))
	require.NoError(t, sp.Set(b, codec.I64Section([]int64{2})))
	require.NoError(t, sp.Pin(0))

	pinned := sp.CollectPinned()
	require.Len(t, pinned, 1)
	assert.Equal(t, []int64{1}, pinned[0].I64)
}

func TestGetColumnData(t *testing.T) {
	sections := map[string][]codec.Section{
		"x": {codec.I64Section([]int64{9})},
	}
	sp := New(0, sections)
	sec, err := sp.GetColumnData("x", 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, sec.I64)

	_, err = sp.GetColumnData("missing", 0)
	assert.Error(t, err)
}

func TestSetConstAndGetConst(t *testing.T) {
	sp := New(1, nil)
	ref := TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	require.NoError(t, sp.SetConst(ref, nimbustype.IntValue(42)))

	v, err := sp.GetConst(ref)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int)
}
