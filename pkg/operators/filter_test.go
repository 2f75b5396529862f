package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

func TestFilterCompactsToMaskedRows(t *testing.T) {
	sp := scratchpad.New(3, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	mask := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U8}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	require.NoError(t, sp.Set(in, codec.I64Section([]int64{10, 20, 30, 40})))
	require.NoError(t, sp.Set(mask, codec.U8Section([]uint8{1, 0, 1, 0})))

	op := &Filter{Input: in, Mask: mask, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 30}, got.I64)
}

func TestFilterStreamingAccumulates(t *testing.T) {
	sp := scratchpad.New(3, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	mask := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U8}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.I64}
	op := &Filter{Input: in, Mask: mask, Output: out}
	require.NoError(t, sp.Set(out, codec.I64Section(nil)))

	require.NoError(t, sp.Set(in, codec.I64Section([]int64{1, 2})))
	require.NoError(t, sp.Set(mask, codec.U8Section([]uint8{1, 0})))
	require.NoError(t, op.Execute(true, sp))

	require.NoError(t, sp.Set(in, codec.I64Section([]int64{3, 4})))
	require.NoError(t, sp.Set(mask, codec.U8Section([]uint8{0, 1})))
	require.NoError(t, op.Execute(true, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, got.I64)
}

func TestSelectMaterializesAtIndices(t *testing.T) {
	sp := scratchpad.New(3, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.Str}
	idx := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U32}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.Str}
	require.NoError(t, sp.Set(in, codec.StrSection([]string{"a", "b", "c"})))
	require.NoError(t, sp.Set(idx, codec.U32Section([]uint32{2, 0})))

	op := &Select{Input: in, Indices: idx, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, got.Str)
}
