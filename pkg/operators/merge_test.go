package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

func TestMergeInterleavesSortedInputs(t *testing.T) {
	sp := scratchpad.New(4, nil)
	left := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	right := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	merged := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	ops := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.U8}
	require.NoError(t, sp.Set(left, codec.I64Section([]int64{1, 3, 5})))
	require.NoError(t, sp.Set(right, codec.I64Section([]int64{2, 4, 6})))

	op := &Merge{Left: left, Right: right, Merged: merged, MergeOps: ops}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(merged)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, got.I64)

	gotOps, err := sp.Get(ops)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 0, 1, 0, 1, 0}, gotOps.U8)
}

func TestMergeRespectsLimit(t *testing.T) {
	sp := scratchpad.New(4, nil)
	left := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	right := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	merged := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	ops := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.U8}
	require.NoError(t, sp.Set(left, codec.I64Section([]int64{1, 3, 5})))
	require.NoError(t, sp.Set(right, codec.I64Section([]int64{2, 4, 6})))

	op := &Merge{Left: left, Right: right, Merged: merged, MergeOps: ops, Limit: 2}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(merged)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.I64)
}

func TestMergeKeepReplaysMergeOps(t *testing.T) {
	sp := scratchpad.New(4, nil)
	left := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.Str}
	right := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.Str}
	ops := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.U8}
	out := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.Str}
	require.NoError(t, sp.Set(left, codec.StrSection([]string{"a", "b"})))
	require.NoError(t, sp.Set(right, codec.StrSection([]string{"x", "y"})))
	require.NoError(t, sp.Set(ops, codec.U8Section([]uint8{1, 0, 0, 1})))

	op := &MergeKeep{Left: left, Right: right, MergeOps: ops, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "x", "y", "b"}, got.Str)
}

func TestMergeDropDiscardsUnkeptRows(t *testing.T) {
	sp := scratchpad.New(3, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	keep := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U8}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	require.NoError(t, sp.Set(in, codec.I64Section([]int64{10, 20, 30})))
	require.NoError(t, sp.Set(keep, codec.U8Section([]uint8{1, 0, 1})))

	op := &MergeDrop{Input: in, Keep: keep, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 30}, got.I64)
}

func TestMergeDeduplicateCollapsesAdjacentEqualKeys(t *testing.T) {
	sp := scratchpad.New(4, nil)
	left := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	right := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	merged := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	ops := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.U8}
	require.NoError(t, sp.Set(left, codec.I64Section([]int64{1, 2, 3})))
	require.NoError(t, sp.Set(right, codec.I64Section([]int64{2, 3, 4})))

	op := &MergeDeduplicate{Merge: Merge{Left: left, Right: right, Merged: merged, MergeOps: ops}}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(merged)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, got.I64)
}

func TestMergeAggregateSumsSharedKeys(t *testing.T) {
	sp := scratchpad.New(6, nil)
	lk := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	la := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	rk := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	ra := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.I64}
	mk := scratchpad.TypedBufferRef{Ref: 4, Type: nimbustype.I64}
	ma := scratchpad.TypedBufferRef{Ref: 5, Type: nimbustype.I64}
	require.NoError(t, sp.Set(lk, codec.I64Section([]int64{1, 2, 4})))
	require.NoError(t, sp.Set(la, codec.I64Section([]int64{10, 20, 40})))
	require.NoError(t, sp.Set(rk, codec.I64Section([]int64{2, 3})))
	require.NoError(t, sp.Set(ra, codec.I64Section([]int64{200, 300})))

	op := &MergeAggregate{LeftKeys: lk, LeftAggs: la, RightKeys: rk, RightAggs: ra, MergedKeys: mk, MergedAggs: ma}
	require.NoError(t, op.Execute(false, sp))

	keys, err := sp.Get(mk)
	require.NoError(t, err)
	aggs, err := sp.Get(ma)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, keys.I64)
	assert.Equal(t, []int64{10, 220, 300, 40}, aggs.I64)
}

func TestPartitionFindsRunBoundaries(t *testing.T) {
	sp := scratchpad.New(2, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	out := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}
	require.NoError(t, sp.Set(in, codec.I64Section([]int64{1, 1, 2, 2, 2, 3})))

	op := &Partition{Input: in, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2, 5, 6}, got.U32)
}
