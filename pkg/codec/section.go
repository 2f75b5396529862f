// Package codec implements the composable column decoding/encoding
// operations of §4.2: a column's on-disk representation is an ordered list
// of codec operations applied against a stack of data sections.
package codec

import "github.com/nimbusdb/nimbusdb/pkg/nimbustype"

// Section is one data/auxiliary vector backing a column (§3's
// "data_sections"). Exactly one of the typed slices is populated, selected
// by Type; this mirrors the tagged-sum approach the design notes call for in
// place of a downcasting trait object.
type Section struct {
	Type nimbustype.EncodingType

	U8  []uint8
	U16 []uint16
	U32 []uint32
	U64 []uint64
	I64 []int64
	F64 []float64
	// Bytes backs Str's packed-byte representations (LZ4 input, packed
	// strings, dictionary data) and OptStr's presence-adjacent byte blob.
	Bytes []byte
	Str   []string

	// NullBitmap is populated when Type.IsNullable(): bit i set means row i
	// is non-null. Stored as a packed []uint64 word vector.
	NullBitmap []uint64
}

// Len returns the number of logical elements the section carries.
func (s Section) Len() int {
	switch s.Type.Base() {
	case nimbustype.U8:
		return len(s.U8)
	case nimbustype.U16:
		return len(s.U16)
	case nimbustype.U32:
		return len(s.U32)
	case nimbustype.U64:
		return len(s.U64)
	case nimbustype.I64:
		return len(s.I64)
	case nimbustype.F64:
		return len(s.F64)
	case nimbustype.Str:
		return len(s.Str)
	default:
		return len(s.Bytes)
	}
}

// ByteSize estimates the in-memory footprint of the section, used for LRU
// residency accounting.
func (s Section) ByteSize() int {
	size := len(s.U8) + 2*len(s.U16) + 4*len(s.U32) + 8*len(s.U64) +
		8*len(s.I64) + 8*len(s.F64) + len(s.Bytes) + 8*len(s.NullBitmap)
	for _, str := range s.Str {
		size += len(str) + 16
	}
	return size
}

func U8Section(v []uint8) Section   { return Section{Type: nimbustype.U8, U8: v} }
func U16Section(v []uint16) Section { return Section{Type: nimbustype.U16, U16: v} }
func U32Section(v []uint32) Section { return Section{Type: nimbustype.U32, U32: v} }
func U64Section(v []uint64) Section { return Section{Type: nimbustype.U64, U64: v} }
func I64Section(v []int64) Section  { return Section{Type: nimbustype.I64, I64: v} }
func F64Section(v []float64) Section { return Section{Type: nimbustype.F64, F64: v} }
func StrSection(v []string) Section { return Section{Type: nimbustype.Str, Str: v} }
func BytesSection(v []byte) Section { return Section{Type: nimbustype.U8, Bytes: v} }
