package nimbustype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	cases := []Value{
		NullValue,
		IntValue(0),
		IntValue(-42),
		FloatValue(3.5),
		FloatValue(-0.001),
		StrValue(""),
		StrValue("hello"),
		StrValue("i42"), // a string that looks like an encoded int must still round-trip as a string
	}
	for _, v := range cases {
		got := DecodeValue(EncodeValue(v))
		assert.Equal(t, v.Kind, got.Kind)
		switch v.Kind {
		case KindInt:
			assert.Equal(t, v.Int, got.Int)
		case KindFloat:
			assert.Equal(t, v.Float, got.Float)
		case KindStr:
			assert.Equal(t, v.Str, got.Str)
		}
	}
}

func TestDecodeValueMalformed(t *testing.T) {
	assert.Equal(t, NullValue, DecodeValue(""))
	assert.Equal(t, NullValue, DecodeValue("inot-a-number"))
	assert.Equal(t, NullValue, DecodeValue("fnot-a-number"))
	assert.Equal(t, NullValue, DecodeValue("xgarbage"))
}

func TestWidenLattice(t *testing.T) {
	assert.Equal(t, LogicalInteger, WidenLattice(LogicalNull, LogicalInteger))
	assert.Equal(t, LogicalInteger, WidenLattice(LogicalInteger, LogicalNull))
	assert.Equal(t, LogicalMixed, WidenLattice(LogicalInteger, LogicalFloat))
	assert.Equal(t, LogicalMixed, WidenLattice(LogicalString, LogicalInteger))
	assert.Equal(t, LogicalString, WidenLattice(LogicalString, LogicalString))
}
