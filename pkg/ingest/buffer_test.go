package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

func row(kv map[string]nimbustype.Value) map[string]nimbustype.Value { return kv }

func TestBufferScenarioS1(t *testing.T) {
	b := NewBuffer("t")
	b.PushRow(row(map[string]nimbustype.Value{
		"a": nimbustype.IntValue(1),
		"b": nimbustype.StrValue("x"),
	}))
	b.PushRow(row(map[string]nimbustype.Value{
		"a": nimbustype.IntValue(2),
		"b": nimbustype.StrValue("y"),
		"c": nimbustype.FloatValue(3.5),
	}))

	require.Equal(t, 2, b.RowCount())

	cols, err := b.FinalizeAll(1 << 16)
	require.NoError(t, err)

	aSec, err := cols["a"].Decode()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, aSec.I64)

	bSec, err := cols["b"].Decode()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, bSec.Str)

	require.True(t, cols["c"].EncodingType().IsNullable())
	cSec, err := cols["c"].Decode()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3.5}, cSec.F64)
	assert.False(t, codec.BitmapGet(cSec.NullBitmap, 0))
	assert.True(t, codec.BitmapGet(cSec.NullBitmap, 1))
}

func TestBufferMixedTypeWiden(t *testing.T) {
	b := NewBuffer("t")
	b.PushRow(row(map[string]nimbustype.Value{"x": nimbustype.IntValue(1)}))
	b.PushRow(row(map[string]nimbustype.Value{"x": nimbustype.StrValue("oops")}))

	col, err := b.Finalize("x", 1<<16)
	require.NoError(t, err)
	assert.Equal(t, nimbustype.LogicalMixed, col.Logical)

	sec, err := col.Decode()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "oops"}, sec.Str)
}

func TestBufferColumnIntroducedMidStreamIsNullPadded(t *testing.T) {
	b := NewBuffer("t")
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(1)}))
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(2)}))
	b.PushRow(row(map[string]nimbustype.Value{
		"a": nimbustype.IntValue(3),
		"b": nimbustype.StrValue("late"),
	}))

	col, err := b.Finalize("b", 1<<16)
	require.NoError(t, err)
	require.True(t, col.EncodingType().IsNullable())
	assert.Equal(t, 3, col.Len)

	sec, err := col.Decode()
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", "late"}, sec.Str)
}

func TestBufferSinceRowAndReplayWALRoundTrip(t *testing.T) {
	b := NewBuffer("t")
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(1), "b": nimbustype.StrValue("x")}))
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(2)}))
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.FloatValue(3.5), "b": nimbustype.StrValue("z")}))

	batch := b.SinceRow(0)
	require.Equal(t, "t", batch.TableName)
	require.Equal(t, uint64(3), batch.RowCount)
	require.NoError(t, batch.Validate())

	replayed := NewBuffer("t")
	replayed.ReplayWAL(batch)
	require.Equal(t, 3, replayed.RowCount())

	want, err := b.FinalizeAll(1 << 16)
	require.NoError(t, err)
	got, err := replayed.FinalizeAll(1 << 16)
	require.NoError(t, err)

	wantA, err := want["a"].Decode()
	require.NoError(t, err)
	gotA, err := got["a"].Decode()
	require.NoError(t, err)
	assert.Equal(t, wantA.Str, gotA.Str)

	wantB, err := want["b"].Decode()
	require.NoError(t, err)
	gotB, err := got["b"].Decode()
	require.NoError(t, err)
	assert.Equal(t, wantB.Str, gotB.Str)
}

func TestBufferSinceRowPartialTail(t *testing.T) {
	b := NewBuffer("t")
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(1)}))
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(2)}))
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(3)}))

	batch := b.SinceRow(2)
	assert.Equal(t, uint64(1), batch.RowCount)
	require.NoError(t, batch.Validate())
	assert.Equal(t, []int64{3}, batch.Columns["a"].DenseI64)
}

func TestBufferAllNullColumnFinalizesToNull(t *testing.T) {
	b := NewBuffer("t")
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(1)}))
	b.PushRow(row(map[string]nimbustype.Value{"a": nimbustype.IntValue(2)}))

	col, err := b.Finalize("never_seen", 1<<16)
	require.NoError(t, err)
	assert.Equal(t, nimbustype.LogicalNull, col.Logical)
	assert.Equal(t, 2, col.Len)
}
