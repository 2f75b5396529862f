package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// TestPipelineDecodeRangeOffset matches §4.6's "offset+bit-pack" integer
// encoding: a raw u8 section holding (value-min), widened and shifted back
// by Add.
func TestPipelineDecodeRangeOffset(t *testing.T) {
	raw, err := EncodeAdd([]int64{1000, 1002, 1001, 1050}, 1000, nimbustype.U8)
	require.NoError(t, err)

	pipeline := Pipeline{
		PushDataSection(0),
		Add(nimbustype.U8, 1000),
	}
	out, err := pipeline.Decode([]Section{raw})
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 1002, 1001, 1050}, out.I64)
}

// TestPipelineDecodeDeltaThenLZ4 matches a delta-encoded, LZ4-compressed
// integer column: the raw section holds zigzag deltas packed as u32, LZ4
// framed.
func TestPipelineDecodeDeltaThenLZ4(t *testing.T) {
	original := []int64{7, 9, 8, 40, 39}
	deltaSec, err := EncodeDelta(original, nimbustype.U32)
	require.NoError(t, err)

	compressed, err := CompressLZ4(deltaSec)
	require.NoError(t, err)

	pipeline := Pipeline{
		PushDataSection(0),
		LZ4(nimbustype.U32, len(original)),
		Delta(),
	}
	out, err := pipeline.Decode([]Section{BytesSection(compressed)})
	require.NoError(t, err)
	assert.Equal(t, original, out.I64)
}

// TestPipelineDecodeDictionaryString matches a low-cardinality string
// column: indices, a packed offset/length index, and raw dictionary bytes.
func TestPipelineDecodeDictionaryString(t *testing.T) {
	values := []string{"GET", "POST", "GET", "GET", "DELETE"}
	indices, offsetLen, data := BuildDictionary(values)

	pipeline := Pipeline{
		PushDataSection(0), // indices
		PushDataSection(1), // offset/len table
		PushDataSection(2), // dictionary bytes
		DictLookup(),
	}
	out, err := pipeline.Decode([]Section{
		U32Section(indices),
		U64Section(offsetLen),
		BytesSection(data),
	})
	require.NoError(t, err)
	assert.Equal(t, values, out.Str)
}

// TestPipelineDecodeNullableInt matches a nullable integer column: a dense
// data section plus a presence bitmap section.
func TestPipelineDecodeNullableInt(t *testing.T) {
	values := []int64{5, 0, 7}
	present := []bool{true, false, true}
	data, bitmap, err := EncodeNullable(values, present, nimbustype.U8)
	require.NoError(t, err)

	pipeline := Pipeline{
		PushDataSection(0), // data
		PushDataSection(1), // bitmap
		Nullable(),
	}
	out, err := pipeline.Decode([]Section{data, bitmap})
	require.NoError(t, err)
	assert.Equal(t, nimbustype.NullableU8, out.Type)
	assert.True(t, BitmapGet(out.NullBitmap, 0))
	assert.False(t, BitmapGet(out.NullBitmap, 1))
	assert.True(t, BitmapGet(out.NullBitmap, 2))
}

func TestPipelineDecodeEmptyStackIsCorruption(t *testing.T) {
	pipeline := Pipeline{Delta()}
	_, err := pipeline.Decode(nil)
	assert.Error(t, err)
}

func TestPipelineDecodeLeftoverStackIsCorruption(t *testing.T) {
	pipeline := Pipeline{PushDataSection(0), PushDataSection(1)}
	_, err := pipeline.Decode([]Section{I64Section([]int64{1}), I64Section([]int64{2})})
	assert.Error(t, err)
}
