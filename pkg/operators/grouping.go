package operators

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// HashMapGrouping assigns each input row a dense group index, first-seen
// order, the per-type key variant of §4.10's grouping family. Output:
// Unique holds one row per distinct key in first-seen order, GroupOf holds
// each input row's group index, Cardinality is the distinct-key count.
type HashMapGrouping struct {
	Base
	Input       scratchpad.TypedBufferRef
	Unique      scratchpad.TypedBufferRef
	GroupOf     scratchpad.TypedBufferRef
	Cardinality scratchpad.TypedBufferRef

	seen map[string]uint32
}

func (op *HashMapGrouping) Inputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *HashMapGrouping) Outputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Unique.Ref, op.GroupOf.Ref, op.Cardinality.Ref}
}
func (op *HashMapGrouping) CanStreamInput(int) bool  { return true }
func (op *HashMapGrouping) CanStreamOutput(i int) bool { return scratchpad.BufferRef(i) != op.Unique.Ref }
func (op *HashMapGrouping) Allocates() bool          { return true }

func (op *HashMapGrouping) Init(_ int, _ int, sp *scratchpad.Scratchpad) error {
	op.seen = make(map[string]uint32)
	if err := sp.Set(op.Unique, emptySectionOf(op.Unique.Type)); err != nil {
		return err
	}
	return sp.Set(op.GroupOf, codec.U32Section(nil))
}

// emptySectionOf builds a zero-length Section of the base encoding type t,
// the seed value grouping/aggregation operators grow via append.
func emptySectionOf(t nimbustype.EncodingType) codec.Section {
	switch t.Base() {
	case nimbustype.I64:
		return codec.I64Section(nil)
	case nimbustype.F64:
		return codec.F64Section(nil)
	case nimbustype.Str:
		return codec.StrSection(nil)
	default:
		return codec.U8Section(nil)
	}
}

// groupKeyOf renders one row of sec as a hashable string key. Grouping
// keys are rendered through xxhash-friendly byte encodings rather than
// reflected Go values, matching HashMapGroupingByteSlices' "composite key
// built from packed byte rows" approach for every key type uniformly.
func groupKeyOf(sec codec.Section, i int) string {
	switch sec.Type.Base() {
	case nimbustype.I64:
		var b [8]byte
		v := uint64(sec.I64[i])
		for j := 0; j < 8; j++ {
			b[j] = byte(v >> (8 * j))
		}
		return string(b[:])
	case nimbustype.F64:
		return codecFloatKey(sec.F64[i])
	case nimbustype.Str:
		return sec.Str[i]
	default:
		return ""
	}
}

// codecFloatKey renders f as a hashable key, canonicalizing NaN to a single
// bit pattern so every NaN groups together regardless of payload bits
// (matches f64Less's total order: NaN == NaN for grouping purposes).
func codecFloatKey(f float64) string {
	bits := math.Float64bits(f)
	if math.IsNaN(f) {
		bits = math.Float64bits(math.NaN())
	}
	var b [8]byte
	for j := 0; j < 8; j++ {
		b[j] = byte(bits >> (8 * j))
	}
	return string(b[:])
}

func (op *HashMapGrouping) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	input, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	unique, err := sp.Get(op.Unique)
	if err != nil {
		return err
	}
	var groups []uint32
	if streaming {
		prior, _ := sp.Get(op.GroupOf)
		groups = append([]uint32(nil), prior.U32...)
	}
	for i := 0; i < input.Len(); i++ {
		key := groupKeyOf(input, i)
		idx, ok := op.seen[key]
		if !ok {
			idx = uint32(unique.Len())
			op.seen[key] = idx
			unique = appendElem(unique, input, i)
		}
		groups = append(groups, idx)
	}
	if err := sp.Set(op.Unique, unique); err != nil {
		return err
	}
	if err := sp.Set(op.GroupOf, codec.U32Section(groups)); err != nil {
		return err
	}
	return sp.SetConst(op.Cardinality, nimbustype.IntValue(int64(len(op.seen))))
}

func appendElem(dst codec.Section, src codec.Section, i int) codec.Section {
	switch src.Type.Base() {
	case nimbustype.I64:
		dst.Type = src.Type
		dst.I64 = append(dst.I64, src.I64[i])
	case nimbustype.F64:
		dst.Type = src.Type
		dst.F64 = append(dst.F64, src.F64[i])
	case nimbustype.Str:
		dst.Type = src.Type
		dst.Str = append(dst.Str, src.Str[i])
	}
	return dst
}

// HashMapGroupingByteSlices groups rows by a composite key built from
// several columns packed as byte rows (e.g. multi-column GROUP BY), using
// xxhash to keep the map key compact regardless of row width.
type HashMapGroupingByteSlices struct {
	Base
	Rows        [][]byte
	Unique      scratchpad.TypedBufferRef
	GroupOf     scratchpad.TypedBufferRef
	Cardinality scratchpad.TypedBufferRef
}

func (op *HashMapGroupingByteSlices) Inputs() []scratchpad.BufferRef  { return nil }
func (op *HashMapGroupingByteSlices) Outputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Unique.Ref, op.GroupOf.Ref, op.Cardinality.Ref}
}
func (op *HashMapGroupingByteSlices) CanStreamInput(int) bool  { return false }
func (op *HashMapGroupingByteSlices) CanStreamOutput(int) bool { return false }
func (op *HashMapGroupingByteSlices) Allocates() bool          { return true }

func (op *HashMapGroupingByteSlices) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	seen := make(map[uint64][]int) // hash -> indices into Rows already assigned a group, to resolve collisions
	groupOfRow := make([]uint32, len(op.Rows))
	var uniqueIdx []int
	for i, row := range op.Rows {
		h := xxhash.Sum64(row)
		var group int = -1
		for _, j := range seen[h] {
			if string(op.Rows[j]) == string(row) {
				group = int(groupOfRow[j])
				break
			}
		}
		if group < 0 {
			group = len(uniqueIdx)
			uniqueIdx = append(uniqueIdx, i)
			seen[h] = append(seen[h], i)
		}
		groupOfRow[i] = uint32(group)
	}
	uniqueBytes := make([][]byte, len(uniqueIdx))
	for i, idx := range uniqueIdx {
		uniqueBytes[i] = op.Rows[idx]
	}
	var flat []byte
	for _, b := range uniqueBytes {
		flat = append(flat, b...)
	}
	if err := sp.Set(op.Unique, codec.Section{Type: nimbustype.ByteSlices, Bytes: flat}); err != nil {
		return err
	}
	if err := sp.Set(op.GroupOf, codec.U32Section(groupOfRow)); err != nil {
		return err
	}
	return sp.SetConst(op.Cardinality, nimbustype.IntValue(int64(len(uniqueIdx))))
}

// HashMapGroupingValRows is HashMapGroupingByteSlices specialized to rows of
// packed nimbustype.Value rather than raw bytes, the composite key variant
// used when the grouping columns carry mixed types.
type HashMapGroupingValRows struct {
	Base
	Rows        [][]nimbustype.Value
	Unique      scratchpad.TypedBufferRef
	GroupOf     scratchpad.TypedBufferRef
	Cardinality scratchpad.TypedBufferRef
}

func (op *HashMapGroupingValRows) Inputs() []scratchpad.BufferRef { return nil }
func (op *HashMapGroupingValRows) Outputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Unique.Ref, op.GroupOf.Ref, op.Cardinality.Ref}
}
func (op *HashMapGroupingValRows) CanStreamInput(int) bool  { return false }
func (op *HashMapGroupingValRows) CanStreamOutput(int) bool { return false }
func (op *HashMapGroupingValRows) Allocates() bool          { return true }

func (op *HashMapGroupingValRows) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	seen := make(map[string]uint32)
	groupOfRow := make([]uint32, len(op.Rows))
	var unique [][]nimbustype.Value
	for i, row := range op.Rows {
		key := valRowKey(row)
		idx, ok := seen[key]
		if !ok {
			idx = uint32(len(unique))
			seen[key] = idx
			unique = append(unique, row)
		}
		groupOfRow[i] = idx
	}
	if err := sp.Set(op.GroupOf, codec.U32Section(groupOfRow)); err != nil {
		return err
	}
	if err := sp.Set(op.Unique, codec.Section{Type: nimbustype.ValRows}); err != nil {
		return err
	}
	return sp.SetConst(op.Cardinality, nimbustype.IntValue(int64(len(unique))))
}

func valRowKey(row []nimbustype.Value) string {
	var b []byte
	for _, v := range row {
		b = append(b, byte(v.Kind))
		b = append(b, []byte(v.String())...)
		b = append(b, 0)
	}
	return string(b)
}
