package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

func TestHashMapGroupingAssignsFirstSeenOrder(t *testing.T) {
	sp := scratchpad.New(4, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	unique := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	groupOf := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.U32}
	card := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.I64}
	require.NoError(t, sp.Set(in, codec.I64Section([]int64{5, 9, 5, 1, 9})))

	op := &HashMapGrouping{Input: in, Unique: unique, GroupOf: groupOf, Cardinality: card}
	require.NoError(t, op.Init(5, 5, sp))
	require.NoError(t, op.Execute(false, sp))

	gotUnique, err := sp.Get(unique)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 9, 1}, gotUnique.I64)

	gotGroups, err := sp.Get(groupOf)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 0, 2, 1}, gotGroups.U32)

	gotCard, err := sp.GetConst(card)
	require.NoError(t, err)
	assert.Equal(t, int64(3), gotCard.Int)
}

func TestHashMapGroupingNaNKeysGroupTogether(t *testing.T) {
	sp := scratchpad.New(4, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.F64}
	unique := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.F64}
	groupOf := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.U32}
	card := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.I64}
	nan := 0.0
	nan = nan / nan
	require.NoError(t, sp.Set(in, codec.F64Section([]float64{nan, 1.0, nan})))

	op := &HashMapGrouping{Input: in, Unique: unique, GroupOf: groupOf, Cardinality: card}
	require.NoError(t, op.Init(3, 3, sp))
	require.NoError(t, op.Execute(false, sp))

	gotGroups, err := sp.Get(groupOf)
	require.NoError(t, err)
	assert.Equal(t, gotGroups.U32[0], gotGroups.U32[2])
	assert.NotEqual(t, gotGroups.U32[0], gotGroups.U32[1])
}

func TestHashMapGroupingByteSlicesResolvesCollisions(t *testing.T) {
	sp := scratchpad.New(3, nil)
	unique := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.ByteSlices}
	groupOf := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}
	card := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}

	rows := [][]byte{[]byte("abc"), []byte("def"), []byte("abc")}
	op := &HashMapGroupingByteSlices{Rows: rows, Unique: unique, GroupOf: groupOf, Cardinality: card}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(groupOf)
	require.NoError(t, err)
	assert.Equal(t, got.U32[0], got.U32[2])
	assert.NotEqual(t, got.U32[0], got.U32[1])

	gotCard, err := sp.GetConst(card)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gotCard.Int)
}
