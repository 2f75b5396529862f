package operators

import (
	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// GetNullMap exposes a Nullable<T> buffer's presence bitmap as its own
// output, an alias rather than a copy (§4.10's GetNullMap).
type GetNullMap struct {
	Base
	From    scratchpad.TypedBufferRef
	Present scratchpad.TypedBufferRef
}

func (op *GetNullMap) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.From.Ref} }
func (op *GetNullMap) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Present.Ref} }
func (op *GetNullMap) CanStreamInput(int) bool         { return true }
func (op *GetNullMap) CanStreamOutput(int) bool        { return true }
func (op *GetNullMap) Allocates() bool                 { return true }

func (op *GetNullMap) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	_, bitmap, err := sp.GetNullable(op.From)
	if err != nil {
		return err
	}
	return sp.Set(op.Present, codec.U64Section(bitmap))
}

// MakeNullable wraps a dense data buffer in an all-present bitmap, the step
// a never-null column's data takes before it can feed an operator expecting
// Nullable<T> (e.g. when merged alongside a genuinely nullable column).
type MakeNullable struct {
	Base
	Input  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *MakeNullable) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *MakeNullable) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *MakeNullable) CanStreamInput(int) bool         { return true }
func (op *MakeNullable) CanStreamOutput(int) bool        { return true }
func (op *MakeNullable) Allocates() bool                 { return true }

func (op *MakeNullable) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	bitmap := make([]uint64, codec.BitmapWord(data.Len()))
	for i := range bitmap {
		bitmap[i] = ^uint64(0)
	}
	nullable, err := codec.DecodeNullable(data, codec.U64Section(bitmap))
	if err != nil {
		return err
	}
	return sp.Set(op.Output, nullable)
}

// AssembleNullable recombines a data buffer and a presence bitmap computed
// separately (e.g. after a Filter ran on the data but the bitmap needs
// recombining at the same positions) back into one Nullable<T> buffer.
type AssembleNullable struct {
	Base
	Data    scratchpad.TypedBufferRef
	Present scratchpad.TypedBufferRef
	Output  scratchpad.TypedBufferRef
}

func (op *AssembleNullable) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Data.Ref, op.Present.Ref}
}
func (op *AssembleNullable) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *AssembleNullable) CanStreamInput(int) bool         { return true }
func (op *AssembleNullable) CanStreamOutput(int) bool        { return true }
func (op *AssembleNullable) Allocates() bool                 { return true }

func (op *AssembleNullable) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Data)
	if err != nil {
		return err
	}
	present, err := sp.Get(op.Present)
	if err != nil {
		return err
	}
	nullable, err := codec.DecodeNullable(data, present)
	if err != nil {
		return err
	}
	return sp.Set(op.Output, nullable)
}

// PropagateNullability combines an already-nullable source's presence
// bitmap onto a freshly computed (dense) result buffer of the same length,
// so e.g. an arithmetic result inherits nullability from its operand
// without having tracked it through the computation itself.
type PropagateNullability struct {
	Base
	NullableSource scratchpad.TypedBufferRef
	Data           scratchpad.TypedBufferRef
	Output         scratchpad.TypedBufferRef
}

func (op *PropagateNullability) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.NullableSource.Ref, op.Data.Ref}
}
func (op *PropagateNullability) Outputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Output.Ref}
}
func (op *PropagateNullability) CanStreamInput(int) bool  { return true }
func (op *PropagateNullability) CanStreamOutput(int) bool { return true }
func (op *PropagateNullability) Allocates() bool          { return true }

func (op *PropagateNullability) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	_, bitmap, err := sp.GetNullable(op.NullableSource)
	if err != nil {
		return err
	}
	data, err := sp.Get(op.Data)
	if err != nil {
		return err
	}
	nullable, err := codec.DecodeNullable(data, codec.U64Section(bitmap))
	if err != nil {
		return err
	}
	return sp.Set(op.Output, nullable)
}

// CombineNullMaps intersects two presence bitmaps (bitwise AND): the result
// of an arithmetic/comparison operator over two nullable operands is null
// wherever either operand is null (§4.10's "null if any operand is null").
type CombineNullMaps struct {
	Base
	Left   scratchpad.TypedBufferRef
	Right  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *CombineNullMaps) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Left.Ref, op.Right.Ref}
}
func (op *CombineNullMaps) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *CombineNullMaps) CanStreamInput(int) bool         { return true }
func (op *CombineNullMaps) CanStreamOutput(int) bool        { return true }
func (op *CombineNullMaps) Allocates() bool                 { return true }

func (op *CombineNullMaps) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	_, left, err := sp.GetNullable(op.Left)
	if err != nil {
		return err
	}
	_, right, err := sp.GetNullable(op.Right)
	if err != nil {
		return err
	}
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = left[i] & right[i]
	}
	return sp.Set(op.Output, codec.U64Section(out))
}

// IsNull/IsNotNull report per-row presence of a Nullable<T> buffer as a u8
// mask, the comparisons `IS NULL`/`IS NOT NULL` lower to (§4.10).
type IsNull struct {
	Base
	Input  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *IsNull) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *IsNull) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *IsNull) CanStreamInput(int) bool         { return true }
func (op *IsNull) CanStreamOutput(int) bool        { return true }
func (op *IsNull) Allocates() bool                 { return true }

func (op *IsNull) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, bitmap, err := sp.GetNullable(op.Input)
	if err != nil {
		return err
	}
	out := make([]uint8, data.Len())
	for i := range out {
		if !codec.BitmapGet(bitmap, i) {
			out[i] = 1
		}
	}
	return sp.Set(op.Output, codec.U8Section(out))
}

type IsNotNull struct {
	Base
	Input  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *IsNotNull) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *IsNotNull) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *IsNotNull) CanStreamInput(int) bool         { return true }
func (op *IsNotNull) CanStreamOutput(int) bool        { return true }
func (op *IsNotNull) Allocates() bool                 { return true }

func (op *IsNotNull) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, bitmap, err := sp.GetNullable(op.Input)
	if err != nil {
		return err
	}
	out := make([]uint8, data.Len())
	for i := range out {
		if codec.BitmapGet(bitmap, i) {
			out[i] = 1
		}
	}
	return sp.Set(op.Output, codec.U8Section(out))
}

// FuseNullsI64/FuseNullsStr replace null positions with a sentinel value,
// collapsing Nullable<T> down to dense T for operators with no nullable
// variant of their own (§4.10's FuseNullsI64/Str).
type FuseNullsI64 struct {
	Base
	Input    scratchpad.TypedBufferRef
	Sentinel int64
	Output   scratchpad.TypedBufferRef
}

func (op *FuseNullsI64) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *FuseNullsI64) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *FuseNullsI64) CanStreamInput(int) bool         { return true }
func (op *FuseNullsI64) CanStreamOutput(int) bool        { return true }
func (op *FuseNullsI64) Allocates() bool                 { return true }

func (op *FuseNullsI64) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, bitmap, err := sp.GetNullable(op.Input)
	if err != nil {
		return err
	}
	out := append([]int64(nil), data.I64...)
	for i := range out {
		if !codec.BitmapGet(bitmap, i) {
			out[i] = op.Sentinel
		}
	}
	return sp.Set(op.Output, codec.I64Section(out))
}

type FuseNullsStr struct {
	Base
	Input    scratchpad.TypedBufferRef
	Sentinel string
	Output   scratchpad.TypedBufferRef
}

func (op *FuseNullsStr) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *FuseNullsStr) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *FuseNullsStr) CanStreamInput(int) bool         { return true }
func (op *FuseNullsStr) CanStreamOutput(int) bool        { return true }
func (op *FuseNullsStr) Allocates() bool                 { return true }

func (op *FuseNullsStr) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, bitmap, err := sp.GetNullable(op.Input)
	if err != nil {
		return err
	}
	out := append([]string(nil), data.Str...)
	for i := range out {
		if !codec.BitmapGet(bitmap, i) {
			out[i] = op.Sentinel
		}
	}
	return sp.Set(op.Output, codec.StrSection(out))
}

// NullToI64/NullToVal/NullToVec materialize a length-only Null section into
// a concrete representation: an all-sentinel i64 vector, a tagged mixed
// Value vector of all-null, or an empty vector of the requested type
// (§4.10's NullToI64/Val/Vec).
type NullToI64 struct {
	Base
	Input    scratchpad.TypedBufferRef
	Sentinel int64
	Output   scratchpad.TypedBufferRef
}

func (op *NullToI64) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *NullToI64) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *NullToI64) CanStreamInput(int) bool         { return true }
func (op *NullToI64) CanStreamOutput(int) bool        { return true }
func (op *NullToI64) Allocates() bool                 { return true }

func (op *NullToI64) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	out := make([]int64, data.Len())
	for i := range out {
		out[i] = op.Sentinel
	}
	return sp.Set(op.Output, codec.I64Section(out))
}

type NullToVal struct {
	Base
	Input  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *NullToVal) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *NullToVal) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *NullToVal) CanStreamInput(int) bool         { return true }
func (op *NullToVal) CanStreamOutput(int) bool        { return true }
func (op *NullToVal) Allocates() bool                 { return true }

func (op *NullToVal) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	return sp.Set(op.Output, codec.Section{Type: nimbustype.Mixed, Bytes: make([]byte, data.Len())})
}

type NullToVec struct {
	Base
	Input  scratchpad.TypedBufferRef
	Target nimbustype.EncodingType
	Output scratchpad.TypedBufferRef
}

func (op *NullToVec) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *NullToVec) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *NullToVec) CanStreamInput(int) bool         { return true }
func (op *NullToVec) CanStreamOutput(int) bool        { return true }
func (op *NullToVec) Allocates() bool                 { return true }

func (op *NullToVec) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	return sp.Set(op.Output, emptySectionOf(op.Target))
}
