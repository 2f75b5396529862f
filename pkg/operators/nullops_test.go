package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

func nullableI64(sp *scratchpad.Scratchpad, ref scratchpad.TypedBufferRef, values []int64, present []bool) error {
	words := make([]uint64, codec.BitmapWord(len(present)))
	for i, ok := range present {
		if ok {
			codec.BitmapSet(words, i)
		}
	}
	nullable, err := codec.DecodeNullable(codec.I64Section(values), codec.U64Section(words))
	if err != nil {
		return err
	}
	return sp.Set(ref, nullable)
}

func TestGetNullMapExposesPresenceBitmap(t *testing.T) {
	sp := scratchpad.New(2, nil)
	from := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64.Nullable()}
	present := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U64}
	require.NoError(t, nullableI64(sp, from, []int64{1, 0, 3}, []bool{true, false, true}))

	op := &GetNullMap{From: from, Present: present}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(present)
	require.NoError(t, err)
	assert.True(t, codec.BitmapGet(got.U64, 0))
	assert.False(t, codec.BitmapGet(got.U64, 1))
	assert.True(t, codec.BitmapGet(got.U64, 2))
}

func TestMakeNullableWrapsAllPresent(t *testing.T) {
	sp := scratchpad.New(2, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64}
	out := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64.Nullable()}
	require.NoError(t, sp.Set(in, codec.I64Section([]int64{5, 6, 7})))

	op := &MakeNullable{Input: in, Output: out}
	require.NoError(t, op.Execute(false, sp))

	_, bitmap, err := sp.GetNullable(out)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.True(t, codec.BitmapGet(bitmap, i))
	}
}

func TestCombineNullMapsIntersectsPresence(t *testing.T) {
	sp := scratchpad.New(3, nil)
	left := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64.Nullable()}
	right := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64.Nullable()}
	out := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.U64}
	require.NoError(t, nullableI64(sp, left, []int64{1, 2}, []bool{true, true}))
	require.NoError(t, nullableI64(sp, right, []int64{1, 2}, []bool{true, false}))

	op := &CombineNullMaps{Left: left, Right: right, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.True(t, codec.BitmapGet(got.U64, 0))
	assert.False(t, codec.BitmapGet(got.U64, 1))
}

func TestIsNullAndIsNotNullAreComplementary(t *testing.T) {
	sp := scratchpad.New(3, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64.Nullable()}
	isNullOut := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.U8}
	isNotNullOut := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.U8}
	require.NoError(t, nullableI64(sp, in, []int64{1, 0, 3}, []bool{true, false, true}))

	require.NoError(t, (&IsNull{Input: in, Output: isNullOut}).Execute(false, sp))
	require.NoError(t, (&IsNotNull{Input: in, Output: isNotNullOut}).Execute(false, sp))

	gotNull, err := sp.Get(isNullOut)
	require.NoError(t, err)
	gotNotNull, err := sp.Get(isNotNullOut)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 1, 0}, gotNull.U8)
	assert.Equal(t, []uint8{1, 0, 1}, gotNotNull.U8)
}

func TestFuseNullsI64ReplacesNullsWithSentinel(t *testing.T) {
	sp := scratchpad.New(2, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.I64.Nullable()}
	out := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	require.NoError(t, nullableI64(sp, in, []int64{1, 0, 3}, []bool{true, false, true}))

	op := &FuseNullsI64{Input: in, Sentinel: -1, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -1, 3}, got.I64)
}

func TestNullToI64FillsSentinel(t *testing.T) {
	sp := scratchpad.New(2, nil)
	in := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.Null}
	out := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	require.NoError(t, sp.Set(in, codec.Section{Type: nimbustype.Null, Bytes: make([]byte, 3)}))

	op := &NullToI64{Input: in, Sentinel: 42, Output: out}
	require.NoError(t, op.Execute(false, sp))

	got, err := sp.Get(out)
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 42, 42}, got.I64)
}
