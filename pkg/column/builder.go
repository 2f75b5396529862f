package column

import (
	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// widthFor returns the narrowest unsigned encoding type that can hold every
// value in [0, span].
func widthFor(span uint64) nimbustype.EncodingType {
	switch {
	case span <= 0xff:
		return nimbustype.U8
	case span <= 0xffff:
		return nimbustype.U16
	case span <= 0xffffffff:
		return nimbustype.U32
	default:
		return nimbustype.U64
	}
}

// isSortedNonDecreasing reports whether values is sorted, the condition
// under which delta-encoding pays off (§4.6: "sortedness + low slope →
// delta").
func isSortedNonDecreasing(values []int64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}

// maybeLZ4 applies LZ4 on top of sec if doing so shrinks it by at least the
// §4.3 1.5x threshold, returning the possibly-recompressed section, an
// updated pipeline tail, and whether LZ4 was applied.
func maybeLZ4(sec codec.Section, width nimbustype.EncodingType, n int) (codec.Section, codec.Op, bool) {
	compressed, err := codec.CompressLZ4(sec)
	if err != nil {
		return sec, codec.Op{}, false
	}
	rawSize := sec.ByteSize()
	if rawSize == 0 || float64(rawSize)/float64(len(compressed)) < 1.5 {
		return sec, codec.Op{}, false
	}
	return codec.BytesSection(compressed), codec.LZ4(width, n), true
}

// BuildIntColumn chooses a codec pipeline for an integer column following
// §4.6's "integer → offset+bit-pack+LZ4": range-offset the values to their
// narrowest unsigned width; when the input is sorted and every zigzag-encoded
// difference (the first element taken as absolute) fits that width,
// delta-encode instead; then opportunistically LZ4 the result.
// present may be nil for an all-non-null column.
func BuildIntColumn(name string, values []int64, present []bool) (*Column, error) {
	n := len(values)
	if present != nil {
		dense, bitmap, pipelineTail, err := buildNullableInt(values, present)
		if err != nil {
			return nil, err
		}
		pipeline := append(codec.Pipeline{codec.PushDataSection(0)}, pipelineTail...)
		pipeline = append(pipeline, codec.PushDataSection(1), codec.Nullable())
		return &Column{
			Name:         name,
			Len:          n,
			Logical:      nimbustype.LogicalInteger,
			Codec:        pipeline,
			DataSections: []codec.Section{dense, bitmap},
			Range:        intRange(values, present),
		}, nil
	}

	min, max := minMax(values)
	span := uint64(max - min)
	width := widthFor(span)

	if n > 1 && isSortedNonDecreasing(values) {
		deltaSec, err := codec.EncodeDelta(values, width)
		if err == nil {
			data, lz4Op, compressed := maybeLZ4(deltaSec, width, n)
			pipeline := codec.Pipeline{codec.PushDataSection(0)}
			if compressed {
				pipeline = append(pipeline, lz4Op)
			}
			pipeline = append(pipeline, codec.Delta())
			return &Column{
				Name:         name,
				Len:          n,
				Logical:      nimbustype.LogicalInteger,
				Codec:        pipeline,
				DataSections: []codec.Section{data},
				Range:        Range{Min: min, Max: max, Present: n > 0},
			}, nil
		}
	}

	offsetSec, err := codec.EncodeAdd(values, min, width)
	if err != nil {
		return nil, err
	}
	data, lz4Op, compressed := maybeLZ4(offsetSec, width, n)
	pipeline := codec.Pipeline{codec.PushDataSection(0)}
	if compressed {
		pipeline = append(pipeline, lz4Op)
	}
	pipeline = append(pipeline, codec.Add(width, min))
	return &Column{
		Name:         name,
		Len:          n,
		Logical:      nimbustype.LogicalInteger,
		Codec:        pipeline,
		DataSections: []codec.Section{data},
		Range:        Range{Min: min, Max: max, Present: n > 0},
	}, nil
}

func minMax(values []int64) (min, max int64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func intRange(values []int64, present []bool) Range {
	first := true
	var min, max int64
	for i, v := range values {
		if present != nil && !present[i] {
			continue
		}
		if first {
			min, max, first = v, v, false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return Range{Min: min, Max: max, Present: !first}
}

// buildNullableInt offset-encodes values and returns the data section,
// presence bitmap, and the decode pipeline tail to apply to the data section
// before the Nullable op wraps it. The data section stays full length (one
// slot per row, null slots holding min as an arbitrary in-range placeholder)
// since every consumer of a Nullable<I64> buffer (FuseNullsI64, IsNull,
// IsNotNull) reads the data section and the presence bitmap positionally
// against the same row index.
func buildNullableInt(values []int64, present []bool) (data, bitmap codec.Section, tail codec.Pipeline, err error) {
	words := make([]uint64, codec.BitmapWord(len(values)))
	first := true
	var min, max int64
	for i, v := range values {
		if present[i] {
			codec.BitmapSet(words, i)
			if first {
				min, max, first = v, v, false
			} else {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
		}
	}
	padded := make([]int64, len(values))
	for i, v := range values {
		if present[i] {
			padded[i] = v
		} else {
			padded[i] = min
		}
	}
	w := widthFor(uint64(max - min))
	data, err = codec.EncodeAdd(padded, min, w)
	if err != nil {
		return codec.Section{}, codec.Section{}, nil, err
	}
	return data, codec.U64Section(words), codec.Pipeline{codec.Add(w, min)}, nil
}

// BuildFloatColumn builds a float column via the Pco numeric codec (§4.6
// doesn't prescribe XOR-float specifically for this engine; Pco is the
// variable-length numeric codec this implementation grounds both integer
// and float compression on per SPEC_FULL.md's domain-stack notes).
// present may be nil for an all-non-null column; otherwise present[i] ==
// false marks row i null (§3's Nullable<F64>, exercised by scenario S1's
// "c = [null, 3.5] (Float, nullable)").
func BuildFloatColumn(name string, values []float64, present []bool) (*Column, error) {
	n := len(values)
	if present == nil {
		compressed, err := codec.EncodePco(codec.F64Section(values), false)
		if err != nil {
			return nil, err
		}
		return &Column{
			Name:         name,
			Len:          n,
			Logical:      nimbustype.LogicalFloat,
			Codec:        codec.Pipeline{codec.PushDataSection(0), codec.Pco(nimbustype.F64, n, false)},
			DataSections: []codec.Section{compressed},
		}, nil
	}

	// The data section stays full length (one slot per row, null slots
	// holding 0 as an arbitrary placeholder), the same convention
	// buildNullableInt uses: GetNullMap/IsNull/AssembleNullable and friends
	// all read the data section and the presence bitmap positionally
	// against the same row index.
	padded := make([]float64, n)
	words := make([]uint64, codec.BitmapWord(n))
	for i, v := range values {
		if present[i] {
			codec.BitmapSet(words, i)
			padded[i] = v
		}
	}
	compressed, err := codec.EncodePco(codec.F64Section(padded), false)
	if err != nil {
		return nil, err
	}
	return &Column{
		Name:    name,
		Len:     n,
		Logical: nimbustype.LogicalFloat,
		Codec: codec.Pipeline{
			codec.PushDataSection(0),
			codec.Pco(nimbustype.F64, n, false),
			codec.PushDataSection(1),
			codec.Nullable(),
		},
		DataSections: []codec.Section{compressed, codec.U64Section(words)},
	}, nil
}

// cardinality returns the number of distinct strings in values.
func cardinality(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func isHexOfWidth(values []string, width int) bool {
	for _, v := range values {
		if len(v) != width*2 {
			return false
		}
		for _, r := range v {
			if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
				return false
			}
		}
	}
	return true
}

// BuildStringColumn chooses a codec pipeline for a string column per
// §4.6: dictionary-encode when cardinality is low, hex-pack when every
// value is a fixed-width lower-case hex string, otherwise NUL-separated packing with
// opportunistic LZ4. present may be nil for an all-non-null column;
// otherwise present[i] == false marks row i null, handled uniformly across
// every inner encoding by encoding the full-length row-aligned slice (null
// slots holding "" as a placeholder) and wrapping it in a Nullable presence
// bitmap, the same row-index-aligned convention buildNullableInt and
// BuildFloatColumn's nullable path use.
func BuildStringColumn(name string, values []string, present []bool, dictionaryCardinalityMax int) (*Column, error) {
	if present == nil {
		return buildStringColumnDense(name, values, dictionaryCardinalityMax)
	}

	padded := make([]string, len(values))
	words := make([]uint64, codec.BitmapWord(len(values)))
	for i, v := range values {
		if present[i] {
			codec.BitmapSet(words, i)
			padded[i] = v
		}
	}
	inner, err := buildStringColumnDense(name, padded, dictionaryCardinalityMax)
	if err != nil {
		return nil, err
	}
	pipeline := append(codec.Pipeline{}, inner.Codec...)
	pipeline = append(pipeline, codec.PushDataSection(len(inner.DataSections)), codec.Nullable())
	sections := append(append([]codec.Section{}, inner.DataSections...), codec.U64Section(words))
	return &Column{
		Name:         name,
		Len:          len(values),
		Logical:      nimbustype.LogicalString,
		Codec:        pipeline,
		DataSections: sections,
	}, nil
}

// buildStringColumnDense is BuildStringColumn's non-nullable inner
// implementation, reused directly for the dense case and, when present is
// set, for the full-length slice with null slots padded to "".
func buildStringColumnDense(name string, values []string, dictionaryCardinalityMax int) (*Column, error) {
	n := len(values)

	if card := cardinality(values); card > 0 && card < dictionaryCardinalityMax && card < n {
		indices, offsetLen, data := codec.BuildDictionary(values)
		idxWidth := widthFor(uint64(len(offsetLen)))
		idxSec, err := narrowIndices(indices, idxWidth)
		if err != nil {
			return nil, err
		}
		return &Column{
			Name:    name,
			Len:     n,
			Logical: nimbustype.LogicalString,
			Codec: codec.Pipeline{
				codec.PushDataSection(0),
				codec.PushDataSection(1),
				codec.PushDataSection(2),
				codec.DictLookup(),
			},
			DataSections: []codec.Section{idxSec, codec.U64Section(offsetLen), codec.BytesSection(data)},
		}, nil
	}

	if n > 0 {
		width := len(values[0]) / 2
		if width > 0 && isHexOfWidth(values, width) {
			packed, err := codec.PackHexStrings(values, width)
			if err == nil {
				return &Column{
					Name:    name,
					Len:     n,
					Logical: nimbustype.LogicalString,
					Codec: codec.Pipeline{
						codec.PushDataSection(0),
						codec.UnhexpackStringsOp(width, false),
					},
					DataSections: []codec.Section{codec.BytesSection(packed)},
				}, nil
			}
		}
	}

	packed, err := codec.PackStrings(values)
	if err != nil {
		return nil, err
	}
	sec := codec.BytesSection(packed)
	data, lz4Op, compressed := maybeLZ4(sec, nimbustype.U8, n)
	pipeline := codec.Pipeline{codec.PushDataSection(0)}
	if compressed {
		pipeline = append(pipeline, lz4Op)
	}
	pipeline = append(pipeline, codec.UnpackStringsOp(n))
	return &Column{
		Name:         name,
		Len:          n,
		Logical:      nimbustype.LogicalString,
		Codec:        pipeline,
		DataSections: []codec.Section{data},
	}, nil
}

func narrowIndices(indices []uint32, width nimbustype.EncodingType) (codec.Section, error) {
	u := make([]uint64, len(indices))
	for i, v := range indices {
		u[i] = uint64(v)
	}
	switch width {
	case nimbustype.U8:
		out := make([]uint8, len(u))
		for i, v := range u {
			out[i] = uint8(v)
		}
		return codec.U8Section(out), nil
	case nimbustype.U16:
		out := make([]uint16, len(u))
		for i, v := range u {
			out[i] = uint16(v)
		}
		return codec.U16Section(out), nil
	default:
		return codec.U32Section(indices), nil
	}
}

// BuildNullColumn builds a Null column of n rows (§4.6's "null-only →
// Null(length)"); its data section holds n zero bytes, since a Null
// section's length is len(Bytes).
func BuildNullColumn(name string, n int) *Column {
	return &Column{
		Name:    name,
		Len:     n,
		Logical: nimbustype.LogicalNull,
		Codec:   codec.Pipeline{codec.PushDataSection(0)},
		DataSections: []codec.Section{
			{Type: nimbustype.Null, Bytes: make([]byte, n)},
		},
	}
}

// BuildMixedColumn builds a Mixed column: values are stored as their
// string representation (§4.6's "mixed → stored as Mixed values"); callers
// needing typed access re-parse via nimbustype.Value as required.
func BuildMixedColumn(name string, values []nimbustype.Value) *Column {
	rendered := make([]string, len(values))
	for i, v := range values {
		rendered[i] = v.String()
	}
	return &Column{
		Name:    name,
		Len:     len(values),
		Logical: nimbustype.LogicalMixed,
		Codec:   codec.Pipeline{codec.PushDataSection(0), codec.UnpackStringsOp(len(values))},
		DataSections: []codec.Section{
			mustPack(rendered),
		},
	}
}

func mustPack(values []string) codec.Section {
	packed, err := codec.PackStrings(values)
	if err != nil {
		// Mixed-value renderings never contain embedded NULs (String()
		// never emits one), so this path is unreachable.
		panic(err)
	}
	return codec.BytesSection(packed)
}
