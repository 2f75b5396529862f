package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

func TestSortByAscendingReordersIndices(t *testing.T) {
	sp := scratchpad.New(3, nil)
	ranking := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	indices := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.U32}
	require.NoError(t, sp.Set(ranking, codec.I64Section([]int64{30, 10, 20})))
	require.NoError(t, sp.Set(indices, codec.U32Section([]uint32{0, 1, 2})))

	op := &SortBy{Ranking: ranking, Indices: indices, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 0}, got.U32)
}

func TestSortByDescendingFloatsPutsNaNFirst(t *testing.T) {
	sp := scratchpad.New(3, nil)
	ranking := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.F64}
	indices := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.U32}
	nan := 0.0
	nan = nan / nan
	require.NoError(t, sp.Set(ranking, codec.F64Section([]float64{1.0, nan, 2.0})))
	require.NoError(t, sp.Set(indices, codec.U32Section([]uint32{0, 1, 2})))

	op := &SortBy{Ranking: ranking, Indices: indices, Output: out, Descending: true}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.U32[0])
}

func TestTopNKeepsBestNAscending(t *testing.T) {
	sp := scratchpad.New(2, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	indices := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}

	op := &TopN{Input: in, Indices: indices, N: 2, Descending: false}
	require.NoError(t, op.Init(6, 6, sp))

	require.NoError(t, sp.Set(in, codec.I64Section([]int64{5, 1, 9, 2, 7, 0})))
	require.NoError(t, op.Execute(false, sp))
	require.NoError(t, op.Finalize(sp))

	got, err := sp.Get(indices)
	require.NoError(t, err)
	require.Len(t, got.U32, 2)
	assert.Equal(t, uint32(5), got.U32[0])
	assert.Equal(t, uint32(1), got.U32[1])
}

func TestTopNKeepsBestNDescending(t *testing.T) {
	sp := scratchpad.New(2, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	indices := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}

	op := &TopN{Input: in, Indices: indices, N: 2, Descending: true}
	require.NoError(t, op.Init(6, 6, sp))

	require.NoError(t, sp.Set(in, codec.I64Section([]int64{5, 1, 9, 2, 7, 0})))
	require.NoError(t, op.Execute(false, sp))
	require.NoError(t, op.Finalize(sp))

	got, err := sp.Get(indices)
	require.NoError(t, err)
	require.Len(t, got.U32, 2)
	assert.Equal(t, uint32(2), got.U32[0])
	assert.Equal(t, uint32(4), got.U32[1])
}
