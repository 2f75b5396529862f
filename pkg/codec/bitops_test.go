package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

func TestToI64RoundTrip(t *testing.T) {
	sec, err := EncodeToI64([]int64{1, 2, 300}, nimbustype.U16)
	require.NoError(t, err)
	values, err := DecodeToI64(sec)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 300}, values)
}

func TestEncodeToI64OverflowsNarrowerWidth(t *testing.T) {
	_, err := EncodeToI64([]int64{1, 1000}, nimbustype.U8)
	assert.Error(t, err)
}

func TestAddRoundTrip(t *testing.T) {
	sec, err := EncodeAdd([]int64{1000, 1005, 1010}, 1000, nimbustype.U8)
	require.NoError(t, err)
	values, err := DecodeAdd(sec, 1000)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 1005, 1010}, values)
}

func TestDeltaRoundTrip(t *testing.T) {
	original := []int64{100, 101, 99, 150, -20}
	sec, err := EncodeDelta(original, nimbustype.U32)
	require.NoError(t, err)
	values, err := DecodeDelta(sec)
	require.NoError(t, err)
	assert.Equal(t, original, values)
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40)} {
		assert.Equal(t, v, zigzagDecode(zigzagEncode(v)))
	}
}

func TestNullableRoundTrip(t *testing.T) {
	values := []int64{10, 0, 30, 0, 50}
	present := []bool{true, false, true, false, true}
	data, bitmap, err := EncodeNullable(values, present, nimbustype.U8)
	require.NoError(t, err)

	nullable, err := DecodeNullable(data, bitmap)
	require.NoError(t, err)
	assert.Equal(t, nimbustype.NullableU8, nullable.Type)

	for i, want := range present {
		assert.Equal(t, want, BitmapGet(nullable.NullBitmap, i))
	}
}
