package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPcoIntRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 1000000, -999999, 42}
	compressed := CompressPcoInt(values)
	decoded, err := DecodePcoInt(compressed, len(values))
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestPcoFloatRoundTripFP64(t *testing.T) {
	values := []float64{1.1, -2.2, 0, 3.0e100}
	compressed := CompressPcoFloat(values, false)
	decoded, err := DecodePcoFloat(compressed, len(values), false)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestPcoFloatRoundTripFP32(t *testing.T) {
	values := []float64{1.5, -2.25, 0, 100.0}
	compressed := CompressPcoFloat(values, true)
	decoded, err := DecodePcoFloat(compressed, len(values), true)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}
