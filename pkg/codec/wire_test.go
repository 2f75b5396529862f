package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

func TestSerializeDeserializeSectionRoundTrip(t *testing.T) {
	cases := []Section{
		U8Section([]uint8{1, 2, 3}),
		U16Section([]uint16{100, 200, 300}),
		U32Section([]uint32{1 << 20, 2 << 20}),
		U64Section([]uint64{1 << 40, 2 << 40}),
		I64Section([]int64{-5, 0, 7}),
		F64Section([]float64{1.5, -2.25}),
		StrSection([]string{"a", "bb", "ccc"}),
		BytesSection([]byte{0xde, 0xad, 0xbe, 0xef}),
	}
	for _, sec := range cases {
		blob := SerializeSection(sec)
		got, err := DeserializeSection(blob)
		assert.NoError(t, err)
		assert.Equal(t, sec.Type, got.Type)
		assert.Equal(t, sec.Len(), got.Len())
	}
}

func TestSerializeDeserializeNullableSection(t *testing.T) {
	data, err := EncodeAdd([]int64{1, 2}, 0, nimbustype.U8)
	assert.NoError(t, err)
	nullable, err := DecodeNullable(data, U64Section([]uint64{0b101}))
	assert.NoError(t, err)

	blob := SerializeSection(nullable)
	got, err := DeserializeSection(blob)
	assert.NoError(t, err)
	assert.True(t, got.Type.IsNullable())
	assert.Equal(t, nullable.NullBitmap, got.NullBitmap)
}
