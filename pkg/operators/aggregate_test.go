package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

func TestVecSumAccumulatesPerGroup(t *testing.T) {
	sp := scratchpad.New(4, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	grouping := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}
	maxIndex := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	out := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.I64}
	require.NoError(t, sp.Set(in, codec.I64Section([]int64{1, 2, 3, 4})))
	require.NoError(t, sp.Set(grouping, codec.U32Section([]uint32{0, 1, 0, 1})))
	require.NoError(t, sp.SetConst(maxIndex, nimbustype.IntValue(1)))

	op := &VecSum{Input: in, Grouping: grouping, MaxIndex: maxIndex, Output: out}
	require.NoError(t, op.Init(4, 4, sp))
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 6}, got.I64)
}

func TestVecSumOverflowAborts(t *testing.T) {
	sp := scratchpad.New(4, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	grouping := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}
	maxIndex := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	out := scratchpad.TypedBufferRef{Ref: 3, Type: nimbustype.I64}
	require.NoError(t, sp.Set(in, codec.I64Section([]int64{9223372036854775807, 1})))
	require.NoError(t, sp.Set(grouping, codec.U32Section([]uint32{0, 0})))
	require.NoError(t, sp.SetConst(maxIndex, nimbustype.IntValue(0)))

	op := &VecSum{Input: in, Grouping: grouping, MaxIndex: maxIndex, Output: out}
	require.NoError(t, op.Init(2, 2, sp))
	err := op.Execute(false, sp)
	require.Error(t, err)
	assert.True(t, nimbuserr.Is(err, nimbuserr.Overflow))
}

func TestVecCountCountsRowsPerGroup(t *testing.T) {
	sp := scratchpad.New(3, nil)
	grouping := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.U32}
	maxIndex := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	require.NoError(t, sp.Set(grouping, codec.U32Section([]uint32{0, 1, 0, 2})))
	require.NoError(t, sp.SetConst(maxIndex, nimbustype.IntValue(2)))

	op := &VecCount{Grouping: grouping, MaxIndex: maxIndex, Output: out}
	require.NoError(t, op.Init(4, 4, sp))
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1, 1}, got.I64)
}

func TestExistsMarksPresentGroups(t *testing.T) {
	sp := scratchpad.New(3, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	maxIndex := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.U8}
	require.NoError(t, sp.Set(in, codec.I64Section([]int64{0, 2})))
	require.NoError(t, sp.SetConst(maxIndex, nimbustype.IntValue(2)))

	op := &Exists{Input: in, MaxIndex: maxIndex, Output: out}
	require.NoError(t, op.Init(2, 2, sp))
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 0, 1}, got.U8)
}
