package codec

import (
	"encoding/hex"
	"strings"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
)

// PackStrings concatenates values separated by a NUL byte, the inverse of
// UnpackStrings. Values must not themselves contain a NUL byte.
func PackStrings(values []string) ([]byte, error) {
	var b strings.Builder
	for i, v := range values {
		if strings.IndexByte(v, 0) >= 0 {
			return nil, nimbuserr.New(nimbuserr.TypeError, "string value contains embedded NUL byte")
		}
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(v)
	}
	return []byte(b.String()), nil
}

// UnpackStrings splits a NUL-separated packed byte buffer into n strings.
func UnpackStrings(packed []byte, n int) ([]string, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]string, 0, n)
	start := 0
	for i := 0; i < len(packed); i++ {
		if packed[i] == 0 {
			out = append(out, string(packed[start:i]))
			start = i + 1
		}
	}
	out = append(out, string(packed[start:]))
	if len(out) != n {
		return nil, nimbuserr.New(nimbuserr.Corruption, "unpacked %d strings, expected %d", len(out), n)
	}
	return out, nil
}

// PackHexStrings encodes values (each exactly width bytes when decoded from
// hex) back into their packed raw-byte form, the inverse of UnhexpackStrings.
func PackHexStrings(values []string, width int) ([]byte, error) {
	out := make([]byte, 0, width*len(values))
	for _, v := range values {
		raw, err := hex.DecodeString(v)
		if err != nil {
			return nil, nimbuserr.Wrap(nimbuserr.TypeError, err, "value %q is not valid hex", v)
		}
		if len(raw) != width {
			return nil, nimbuserr.New(nimbuserr.TypeError, "hex value %q decodes to %d bytes, expected %d", v, len(raw), width)
		}
		out = append(out, raw...)
	}
	return out, nil
}

// UnhexpackStrings decodes a fixed-width raw byte buffer (e.g. UUIDs, hash
// digests) into hex strings, one per width-byte row, upper or lower case.
func UnhexpackStrings(packed []byte, width int, uppercase bool) ([]string, error) {
	if width <= 0 {
		return nil, nimbuserr.New(nimbuserr.TypeError, "UnhexpackStrings: width must be positive")
	}
	if len(packed)%width != 0 {
		return nil, nimbuserr.New(nimbuserr.Corruption, "packed hex buffer length %d is not a multiple of width %d", len(packed), width)
	}
	n := len(packed) / width
	out := make([]string, n)
	for i := 0; i < n; i++ {
		row := packed[i*width : (i+1)*width]
		s := hex.EncodeToString(row)
		if uppercase {
			s = strings.ToUpper(s)
		}
		out[i] = s
	}
	return out, nil
}

// dictEntry packs a dictionary string's byte offset and length into a u64
// (offset in the high 32 bits, length in the low 32 bits), the on-disk index
// layout DictLookup's second stack argument expects.
func dictEntry(offset, length int) uint64 {
	return uint64(uint32(offset))<<32 | uint64(uint32(length))
}

func dictEntrySplit(packed uint64) (offset, length int) {
	return int(packed >> 32), int(uint32(packed))
}

// BuildDictionary deduplicates values into (indices, offsetLen, data): data
// is every distinct value concatenated, offsetLen packs each distinct
// value's (offset, length) in first-seen order, and indices maps each row to
// its distinct value's position. This is DictLookup's encode-side inverse.
func BuildDictionary(values []string) (indices []uint32, offsetLen []uint64, data []byte) {
	seen := make(map[string]uint32, len(values))
	indices = make([]uint32, len(values))
	for i, v := range values {
		idx, ok := seen[v]
		if !ok {
			idx = uint32(len(offsetLen))
			seen[v] = idx
			offsetLen = append(offsetLen, dictEntry(len(data), len(v)))
			data = append(data, v...)
		}
		indices[i] = idx
	}
	return indices, offsetLen, data
}

// DecodeDictLookup resolves dictionary-coded indices into strings: idx holds
// per-row dictionary indices, offsetLen holds each distinct value's packed
// (offset, length) into data.
func DecodeDictLookup(idx Section, offsetLen Section, data Section) (Section, error) {
	indices, err := unsignedSlice(idx)
	if err != nil {
		return Section{}, err
	}
	out := make([]string, len(indices))
	for i, di := range indices {
		if int(di) >= len(offsetLen.U64) {
			return Section{}, nimbuserr.New(nimbuserr.Corruption, "dictionary index %d out of range (dictionary has %d entries)", di, len(offsetLen.U64))
		}
		offset, length := dictEntrySplit(offsetLen.U64[di])
		if offset < 0 || offset+length > len(data.Bytes) {
			return Section{}, nimbuserr.New(nimbuserr.Corruption, "dictionary entry %d..%d out of bounds (data is %d bytes)", offset, offset+length, len(data.Bytes))
		}
		out[i] = string(data.Bytes[offset : offset+length])
	}
	return StrSection(out), nil
}
