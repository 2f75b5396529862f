package codec

import (
	"fmt"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// unsignedSlice returns sec's values widened to uint64, regardless of which
// unsigned width it is physically stored in.
func unsignedSlice(sec Section) ([]uint64, error) {
	out := make([]uint64, sec.Len())
	switch sec.Type {
	case nimbustype.U8:
		src := sec.U8
		if src == nil {
			src = sec.Bytes
		}
		out = make([]uint64, len(src))
		for i, v := range src {
			out[i] = uint64(v)
		}
	case nimbustype.U16:
		for i, v := range sec.U16 {
			out[i] = uint64(v)
		}
	case nimbustype.U32:
		for i, v := range sec.U32 {
			out[i] = uint64(v)
		}
	case nimbustype.U64:
		out = append(out[:0], sec.U64...)
	default:
		return nil, nimbuserr.New(nimbuserr.TypeError, "unsignedSlice: section is not an unsigned integer type (%s)", sec.Type)
	}
	return out, nil
}

// narrowToWidth packs unsigned 64-bit values into the smallest section type
// t can represent, used by encode-side codec ops. Values must fit in t.
func narrowToWidth(values []uint64, t nimbustype.EncodingType) (Section, error) {
	switch t {
	case nimbustype.U8:
		out := make([]uint8, len(values))
		for i, v := range values {
			if v > 0xff {
				return Section{}, nimbuserr.New(nimbuserr.Overflow, "value %d does not fit in u8", v)
			}
			out[i] = uint8(v)
		}
		return U8Section(out), nil
	case nimbustype.U16:
		out := make([]uint16, len(values))
		for i, v := range values {
			if v > 0xffff {
				return Section{}, nimbuserr.New(nimbuserr.Overflow, "value %d does not fit in u16", v)
			}
			out[i] = uint16(v)
		}
		return U16Section(out), nil
	case nimbustype.U32:
		out := make([]uint32, len(values))
		for i, v := range values {
			if v > 0xffffffff {
				return Section{}, nimbuserr.New(nimbuserr.Overflow, "value %d does not fit in u32", v)
			}
			out[i] = uint32(v)
		}
		return U32Section(out), nil
	case nimbustype.U64:
		return U64Section(append([]uint64(nil), values...)), nil
	default:
		return Section{}, nimbuserr.New(nimbuserr.TypeError, "narrowToWidth: unsupported target type %s", t)
	}
}

// DecodeToI64 widens an unsigned section of width t to a plain i64 vector.
func DecodeToI64(sec Section) ([]int64, error) {
	u, err := unsignedSlice(sec)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(u))
	for i, v := range u {
		out[i] = int64(v)
	}
	return out, nil
}

// EncodeToI64 narrows an i64 vector to the smallest unsigned width t. It is
// the inverse of DecodeToI64; values must be non-negative and fit in t.
func EncodeToI64(values []int64, t nimbustype.EncodingType) (Section, error) {
	u := make([]uint64, len(values))
	for i, v := range values {
		if v < 0 {
			return Section{}, nimbuserr.New(nimbuserr.Overflow, "negative value %d cannot be narrowed to unsigned %s", v, t)
		}
		u[i] = uint64(v)
	}
	return narrowToWidth(u, t)
}

// DecodeAdd adds scalar k to every element of an unsigned section of width
// t, producing an i64 vector. Used for range-offset integer encoding: t
// holds (value - min) and k == min.
func DecodeAdd(sec Section, k int64) ([]int64, error) {
	u, err := unsignedSlice(sec)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(u))
	for i, v := range u {
		sum := int64(v) + k
		if k > 0 && sum < int64(v) {
			return nil, nimbuserr.New(nimbuserr.Overflow, "overflow adding offset %d to %d", k, v)
		}
		out[i] = sum
	}
	return out, nil
}

// EncodeAdd subtracts k from every value and narrows the result to width t;
// the inverse of DecodeAdd.
func EncodeAdd(values []int64, k int64, t nimbustype.EncodingType) (Section, error) {
	u := make([]uint64, len(values))
	for i, v := range values {
		d := v - k
		if d < 0 {
			return Section{}, nimbuserr.New(nimbuserr.Overflow, "value %d is below offset %d", v, k)
		}
		u[i] = uint64(d)
	}
	return narrowToWidth(u, t)
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// DecodeDelta prefix-sums a section of zigzag-encoded per-element
// differences (width t); the first element is an absolute zigzag-encoded
// value, matching §4.2's "first element is absolute".
func DecodeDelta(sec Section) ([]int64, error) {
	u, err := unsignedSlice(sec)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(u))
	var acc int64
	for i, enc := range u {
		d := zigzagDecode(enc)
		if i == 0 {
			acc = d
		} else {
			acc += d
		}
		out[i] = acc
	}
	return out, nil
}

// EncodeDelta computes per-element differences (first element absolute),
// zigzag-encodes them, and narrows to width t; the inverse of DecodeDelta.
func EncodeDelta(values []int64, t nimbustype.EncodingType) (Section, error) {
	u := make([]uint64, len(values))
	var prev int64
	for i, v := range values {
		var d int64
		if i == 0 {
			d = v
		} else {
			d = v - prev
		}
		u[i] = zigzagEncode(d)
		prev = v
	}
	return narrowToWidth(u, t)
}

// DecodeNullable combines a data section and a packed presence bitmap
// (bit i set => row i non-null) into one Nullable<T> section.
func DecodeNullable(data, bitmap Section) (Section, error) {
	if len(bitmap.U64) == 0 && bitmap.Len() > 0 {
		return Section{}, nimbuserr.New(nimbuserr.TypeError, "Nullable bitmap section must be u64-packed")
	}
	nullable := data
	nullable.Type = data.Type.Nullable()
	nullable.NullBitmap = append([]uint64(nil), bitmap.U64...)
	return nullable, nil
}

// BitmapWord returns the packed-bitmap word count needed for n rows.
func BitmapWord(n int) int { return (n + 63) / 64 }

// BitmapSet sets bit i in a packed bitmap of words.
func BitmapSet(words []uint64, i int) {
	words[i/64] |= 1 << uint(i%64)
}

// BitmapGet reports whether bit i is set.
func BitmapGet(words []uint64, i int) bool {
	return words[i/64]&(1<<uint(i%64)) != 0
}

// EncodeNullable splits values (len(values) == len(present)) into a data
// section of type t holding only the non-null values packed densely, plus a
// presence bitmap; the inverse of DecodeNullable for the common dense-data
// case the builder produces.
func EncodeNullable(values []int64, present []bool, t nimbustype.EncodingType) (data Section, bitmap Section, err error) {
	if len(values) != len(present) {
		return Section{}, Section{}, fmt.Errorf("values/present length mismatch: %d vs %d", len(values), len(present))
	}
	dense := make([]int64, 0, len(values))
	words := make([]uint64, BitmapWord(len(values)))
	for i, v := range values {
		if present[i] {
			BitmapSet(words, i)
			dense = append(dense, v)
		}
	}
	data, err = EncodeToI64(dense, t)
	if err != nil {
		return Section{}, Section{}, err
	}
	return data, U64Section(words), nil
}
