package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackStringsRoundTrip(t *testing.T) {
	values := []string{"alpha", "", "gamma delta", "z"}
	packed, err := PackStrings(values)
	require.NoError(t, err)

	unpacked, err := UnpackStrings(packed, len(values))
	require.NoError(t, err)
	assert.Equal(t, values, unpacked)
}

func TestUnpackStringsLengthMismatch(t *testing.T) {
	_, err := UnpackStrings([]byte("a\x00b"), 5)
	assert.Error(t, err)
}

func TestHexPackRoundTrip(t *testing.T) {
	values := []string{"deadbeef", "0102abcd"}
	packed, err := PackHexStrings(values, 4)
	require.NoError(t, err)

	unpacked, err := UnhexpackStrings(packed, 4, false)
	require.NoError(t, err)
	assert.Equal(t, values, unpacked)
}

func TestUnhexpackStringsUppercase(t *testing.T) {
	packed := []byte{0xde, 0xad}
	unpacked, err := UnhexpackStrings(packed, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEAD"}, unpacked)
}

func TestDictionaryRoundTrip(t *testing.T) {
	values := []string{"us-east", "us-west", "us-east", "eu-west", "us-east"}
	indices, offsetLen, data := BuildDictionary(values)
	assert.Len(t, offsetLen, 3)

	decoded, err := DecodeDictLookup(U32Section(indices), U64Section(offsetLen), BytesSection(data))
	require.NoError(t, err)
	assert.Equal(t, values, decoded.Str)
}
