package operators

import (
	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// Filter compacts Input down to the rows where Mask is non-zero, the
// boolean-mask variant of §4.10's Filter<T>.
type Filter struct {
	Base
	Input  scratchpad.TypedBufferRef
	Mask   scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *Filter) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Input.Ref, op.Mask.Ref}
}
func (op *Filter) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *Filter) CanStreamInput(int) bool         { return true }
func (op *Filter) CanStreamOutput(int) bool        { return true }
func (op *Filter) Allocates() bool                 { return true }

func (op *Filter) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	mask, err := sp.Get(op.Mask)
	if err != nil {
		return err
	}
	if mask.Len() != data.Len() {
		return nimbuserr.New(nimbuserr.TypeError, "Filter: mask length %d does not match data length %d", mask.Len(), data.Len())
	}
	prior := codec.Section{}
	if streaming {
		prior, _ = sp.Get(op.Output)
	}
	out, err := filterSection(data, mask, prior, streaming)
	if err != nil {
		return err
	}
	return sp.Set(op.Output, out)
}

func filterSection(data, mask codec.Section, prior codec.Section, _ bool) (codec.Section, error) {
	keep := mask
	switch data.Type.Base() {
	case nimbustype.I64:
		priorLen := len(prior.I64)
		out := append([]int64(nil), prior.I64...)
		for i, v := range data.I64 {
			if keep.U8 != nil && i < len(keep.U8) && keep.U8[i] > 0 {
				out = append(out, v)
			}
		}
		sec := codec.I64Section(out)
		sec.Type = data.Type
		if data.Type.IsNullable() {
			sec.NullBitmap = filterNullBitmap(data.NullBitmap, keep.U8, prior.NullBitmap, priorLen)
		}
		return sec, nil
	case nimbustype.F64:
		priorLen := len(prior.F64)
		out := append([]float64(nil), prior.F64...)
		for i, v := range data.F64 {
			if i < len(keep.U8) && keep.U8[i] > 0 {
				out = append(out, v)
			}
		}
		sec := codec.F64Section(out)
		sec.Type = data.Type
		if data.Type.IsNullable() {
			sec.NullBitmap = filterNullBitmap(data.NullBitmap, keep.U8, prior.NullBitmap, priorLen)
		}
		return sec, nil
	case nimbustype.Str:
		priorLen := len(prior.Str)
		out := append([]string(nil), prior.Str...)
		for i, v := range data.Str {
			if i < len(keep.U8) && keep.U8[i] > 0 {
				out = append(out, v)
			}
		}
		sec := codec.StrSection(out)
		sec.Type = data.Type
		if data.Type.IsNullable() {
			sec.NullBitmap = filterNullBitmap(data.NullBitmap, keep.U8, prior.NullBitmap, priorLen)
		}
		return sec, nil
	default:
		return codec.Section{}, nimbuserr.New(nimbuserr.TypeError, "Filter: unsupported data type %s", data.Type)
	}
}

// filterNullBitmap rebuilds a Nullable<T> section's presence bitmap in
// lockstep with filterSection's row selection: priorBitmap/priorLen carry
// whatever bits a streaming call already emitted, and one bit is appended
// per row keep marks true, read positionally against bitmap (§4.10's
// Nullable<T> data/bitmap alignment).
func filterNullBitmap(bitmap []uint64, keep []uint8, priorBitmap []uint64, priorLen int) []uint64 {
	kept := 0
	for _, k := range keep {
		if k > 0 {
			kept++
		}
	}
	words := make([]uint64, codec.BitmapWord(priorLen+kept))
	for i := 0; i < priorLen; i++ {
		if codec.BitmapGet(priorBitmap, i) {
			codec.BitmapSet(words, i)
		}
	}
	j := priorLen
	for i, k := range keep {
		if k > 0 {
			if codec.BitmapGet(bitmap, i) {
				codec.BitmapSet(words, j)
			}
			j++
		}
	}
	return words
}

// Select materializes Input at the row positions named by Indices (a dense
// U32 index vector), the counterpart to Filter when positions are already
// known rather than expressed as a boolean mask.
type Select struct {
	Base
	Input   scratchpad.TypedBufferRef
	Indices scratchpad.TypedBufferRef
	Output  scratchpad.TypedBufferRef
}

func (op *Select) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Input.Ref, op.Indices.Ref}
}
func (op *Select) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *Select) CanStreamInput(i int) bool       { return i == 1 }
func (op *Select) CanStreamOutput(int) bool        { return true }
func (op *Select) Allocates() bool                 { return true }

func (op *Select) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	indices, err := sp.Get(op.Indices)
	if err != nil {
		return err
	}
	prior := codec.Section{}
	if streaming {
		prior, _ = sp.Get(op.Output)
	}
	out, err := selectSection(data, indices.U32, prior)
	if err != nil {
		return err
	}
	return sp.Set(op.Output, out)
}

func selectSection(data codec.Section, indices []uint32, prior codec.Section) (codec.Section, error) {
	switch data.Type.Base() {
	case nimbustype.I64:
		priorLen := len(prior.I64)
		out := append([]int64(nil), prior.I64...)
		for _, i := range indices {
			out = append(out, data.I64[i])
		}
		sec := codec.I64Section(out)
		sec.Type = data.Type
		if data.Type.IsNullable() {
			sec.NullBitmap = selectNullBitmap(data.NullBitmap, indices, prior.NullBitmap, priorLen)
		}
		return sec, nil
	case nimbustype.F64:
		priorLen := len(prior.F64)
		out := append([]float64(nil), prior.F64...)
		for _, i := range indices {
			out = append(out, data.F64[i])
		}
		sec := codec.F64Section(out)
		sec.Type = data.Type
		if data.Type.IsNullable() {
			sec.NullBitmap = selectNullBitmap(data.NullBitmap, indices, prior.NullBitmap, priorLen)
		}
		return sec, nil
	case nimbustype.Str:
		priorLen := len(prior.Str)
		out := append([]string(nil), prior.Str...)
		for _, i := range indices {
			out = append(out, data.Str[i])
		}
		sec := codec.StrSection(out)
		sec.Type = data.Type
		if data.Type.IsNullable() {
			sec.NullBitmap = selectNullBitmap(data.NullBitmap, indices, prior.NullBitmap, priorLen)
		}
		return sec, nil
	default:
		return codec.Section{}, nimbuserr.New(nimbuserr.TypeError, "Select: unsupported data type %s", data.Type)
	}
}

// selectNullBitmap is filterNullBitmap's counterpart for Select: one bit is
// appended per index, read positionally out of bitmap at that index.
func selectNullBitmap(bitmap []uint64, indices []uint32, priorBitmap []uint64, priorLen int) []uint64 {
	words := make([]uint64, codec.BitmapWord(priorLen+len(indices)))
	for i := 0; i < priorLen; i++ {
		if codec.BitmapGet(priorBitmap, i) {
			codec.BitmapSet(words, i)
		}
	}
	for j, idx := range indices {
		if codec.BitmapGet(bitmap, int(idx)) {
			codec.BitmapSet(words, priorLen+j)
		}
	}
	return words
}
