package operators

import (
	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// ReadColumnData exposes one raw data section of a scanned column as a
// buffer, the leaf of every decode pipeline's operator-graph lowering.
type ReadColumnData struct {
	Base
	Column       string
	SectionIndex int
	Output       scratchpad.TypedBufferRef
}

func (op *ReadColumnData) Inputs() []scratchpad.BufferRef  { return nil }
func (op *ReadColumnData) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *ReadColumnData) CanStreamInput(int) bool         { return false }
func (op *ReadColumnData) CanStreamOutput(int) bool        { return false }
func (op *ReadColumnData) Allocates() bool                 { return false }

func (op *ReadColumnData) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	sec, err := sp.GetColumnData(op.Column, op.SectionIndex)
	if err != nil {
		return err
	}
	return sp.Set(op.Output, sec)
}

// ConstantExpand emits a constant value in batch_size-sized chunks until len
// rows have been produced, the scan source a query literal compiles to when
// it must be compared elementwise against a vector.
type ConstantExpand struct {
	Base
	Value  nimbustype.Value
	Len    int
	Output scratchpad.TypedBufferRef

	currentIndex int
	batchSize    int
}

func (op *ConstantExpand) Inputs() []scratchpad.BufferRef  { return nil }
func (op *ConstantExpand) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *ConstantExpand) CanStreamInput(int) bool         { return false }
func (op *ConstantExpand) CanStreamOutput(int) bool        { return true }
func (op *ConstantExpand) Allocates() bool                 { return true }
func (op *ConstantExpand) IsStreamingProducer() bool       { return true }
func (op *ConstantExpand) HasMore() bool                   { return op.currentIndex < op.Len }

func (op *ConstantExpand) Init(_ int, batchSize int, sp *scratchpad.Scratchpad) error {
	op.batchSize = batchSize
	return sp.Set(op.Output, constSection(op.Value, batchSize))
}

func (op *ConstantExpand) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	op.currentIndex += op.batchSize
	if op.currentIndex <= op.Len {
		return nil
	}
	overshoot := op.currentIndex - op.Len
	sec, err := sp.Get(op.Output)
	if err != nil {
		return err
	}
	truncated := truncateSection(sec, sec.Len()-overshoot)
	return sp.Set(op.Output, truncated)
}

func constSection(v nimbustype.Value, n int) codec.Section {
	switch v.Kind {
	case nimbustype.KindInt:
		vals := make([]int64, n)
		for i := range vals {
			vals[i] = v.Int
		}
		return codec.I64Section(vals)
	case nimbustype.KindFloat:
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = v.Float
		}
		return codec.F64Section(vals)
	case nimbustype.KindStr:
		vals := make([]string, n)
		for i := range vals {
			vals[i] = v.Str
		}
		return codec.StrSection(vals)
	default:
		return codec.Section{Type: nimbustype.Null}
	}
}

func truncateSection(sec codec.Section, n int) codec.Section {
	out := sec
	switch sec.Type.Base() {
	case nimbustype.I64:
		out.I64 = sec.I64[:n]
	case nimbustype.F64:
		out.F64 = sec.F64[:n]
	case nimbustype.Str:
		out.Str = sec.Str[:n]
	case nimbustype.U8:
		out.U8 = sec.U8[:n]
	case nimbustype.U16:
		out.U16 = sec.U16[:n]
	case nimbustype.U32:
		out.U32 = sec.U32[:n]
	case nimbustype.U64:
		out.U64 = sec.U64[:n]
	}
	return out
}

// NullVec emits only a row count: a column whose presence bitmap is
// entirely unset, used when a referenced column is absent from a table's
// schema in a given partition (§4.10's length-only source).
type NullVec struct {
	Base
	Len    int
	Output scratchpad.TypedBufferRef
}

func (op *NullVec) Inputs() []scratchpad.BufferRef  { return nil }
func (op *NullVec) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *NullVec) CanStreamInput(int) bool         { return false }
func (op *NullVec) CanStreamOutput(int) bool        { return true }
func (op *NullVec) Allocates() bool                 { return false }

func (op *NullVec) Init(_ int, _ int, sp *scratchpad.Scratchpad) error {
	bitmap := make([]uint64, codec.BitmapWord(op.Len))
	nullable, err := codec.DecodeNullable(codec.I64Section(make([]int64, op.Len)), codec.U64Section(bitmap))
	if err != nil {
		return err
	}
	return sp.Set(op.Output, nullable)
}

func (op *NullVec) Execute(_ bool, _ *scratchpad.Scratchpad) error { return nil }
