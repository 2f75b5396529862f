package operators

import (
	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// BinOp names one typed binary operator, monomorphized at execution time
// over the operand Sections' encoding types rather than over a Go type
// parameter (§4.10's "BinaryOperator with widening rules", §9's note that
// macro-driven type reification is replaced by a dispatch table rather than
// a Go generic expansion, since the operand types are only known at plan
// time, not compile time).
type BinOp int

const (
	OpLess BinOp = iota
	OpLessEq
	OpGreater
	OpGreaterEq
	OpEquals
	OpNotEquals
	OpBoolAnd
	OpBoolOr
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
)

func (op BinOp) symbol() string {
	switch op {
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	case OpEquals:
		return "="
	case OpNotEquals:
		return "<>"
	case OpBoolAnd:
		return "AND"
	case OpBoolOr:
		return "OR"
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpModulo:
		return "%"
	default:
		return "?"
	}
}

func (op BinOp) isComparison() bool {
	return op == OpLess || op == OpLessEq || op == OpGreater || op == OpGreaterEq || op == OpEquals || op == OpNotEquals
}

// BinaryOperator applies a BinOp elementwise over two same-length Sections,
// widening unsigned integer operands to the narrowest common type the way
// §4.10 describes (u8<->u16->u16, u8<->i64->i64, ...): any integer operand
// pair is simply widened to int64, since every physical integer width here
// already narrows losslessly into it.
type BinaryOperator struct {
	Base
	LHS    scratchpad.TypedBufferRef
	RHS    scratchpad.TypedBufferRef
	Op     BinOp
	Output scratchpad.TypedBufferRef
}

func (op *BinaryOperator) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.LHS.Ref, op.RHS.Ref}
}
func (op *BinaryOperator) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *BinaryOperator) CanStreamInput(int) bool         { return true }
func (op *BinaryOperator) CanStreamOutput(int) bool        { return true }
func (op *BinaryOperator) Allocates() bool                 { return true }

func (op *BinaryOperator) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	lhs, err := sp.Get(op.LHS)
	if err != nil {
		return err
	}
	rhs, err := sp.Get(op.RHS)
	if err != nil {
		return err
	}
	prior := codec.Section{}
	if streaming {
		prior, _ = sp.Get(op.Output)
	}
	out, err := applyBinOp(op.Op, lhs, rhs, prior)
	if err != nil {
		return err
	}
	return sp.Set(op.Output, out)
}

func applyBinOp(kind BinOp, lhs, rhs codec.Section, prior codec.Section) (codec.Section, error) {
	if lhs.Type.Base() == nimbustype.Str || rhs.Type.Base() == nimbustype.Str {
		return applyBinOpStr(kind, lhs, rhs, prior)
	}
	if kind == OpBoolAnd || kind == OpBoolOr {
		return applyBoolOp(kind, lhs, rhs, prior)
	}
	if lhs.Type.Base() == nimbustype.F64 || rhs.Type.Base() == nimbustype.F64 {
		return applyBinOpF64(kind, lhs, rhs, prior)
	}
	return applyBinOpI64(kind, lhs, rhs, prior)
}

func toI64Slice(sec codec.Section) ([]int64, error) {
	switch sec.Type.Base() {
	case nimbustype.I64:
		return sec.I64, nil
	case nimbustype.U8, nimbustype.U16, nimbustype.U32, nimbustype.U64:
		return codec.DecodeToI64(sec)
	default:
		return nil, nimbuserr.New(nimbuserr.TypeError, "BinaryOperator: cannot widen %s to i64", sec.Type)
	}
}

func applyBinOpI64(kind BinOp, lhsSec, rhsSec codec.Section, prior codec.Section) (codec.Section, error) {
	lhs, err := toI64Slice(lhsSec)
	if err != nil {
		return codec.Section{}, err
	}
	rhs, err := toI64Slice(rhsSec)
	if err != nil {
		return codec.Section{}, err
	}
	n := lhs
	if len(rhs) < len(n) {
		n = rhs
	}
	if kind.isComparison() {
		out := append([]uint8(nil), prior.U8...)
		for i := range n {
			out = append(out, compareI64(kind, lhs[i], rhs[i]))
		}
		return codec.U8Section(out), nil
	}
	out := append([]int64(nil), prior.I64...)
	for i := range n {
		v, err := arithI64(kind, lhs[i], rhs[i])
		if err != nil {
			return codec.Section{}, err
		}
		out = append(out, v)
	}
	return codec.I64Section(out), nil
}

func compareI64(kind BinOp, l, r int64) uint8 {
	var b bool
	switch kind {
	case OpLess:
		b = l < r
	case OpLessEq:
		b = l <= r
	case OpGreater:
		b = l > r
	case OpGreaterEq:
		b = l >= r
	case OpEquals:
		b = l == r
	case OpNotEquals:
		b = l != r
	}
	if b {
		return 1
	}
	return 0
}

func arithI64(kind BinOp, l, r int64) (int64, error) {
	switch kind {
	case OpAdd:
		sum := l + r
		if (r > 0 && sum < l) || (r < 0 && sum > l) {
			return 0, nimbuserr.New(nimbuserr.Overflow, "integer overflow: %d + %d", l, r)
		}
		return sum, nil
	case OpSubtract:
		diff := l - r
		if (r < 0 && diff < l) || (r > 0 && diff > l) {
			return 0, nimbuserr.New(nimbuserr.Overflow, "integer overflow: %d - %d", l, r)
		}
		return diff, nil
	case OpMultiply:
		if l != 0 && r != 0 {
			prod := l * r
			if prod/l != r {
				return 0, nimbuserr.New(nimbuserr.Overflow, "integer overflow: %d * %d", l, r)
			}
			return prod, nil
		}
		return 0, nil
	case OpDivide:
		if r == 0 {
			return 0, nimbuserr.New(nimbuserr.Overflow, "division by zero: %d / 0", l)
		}
		return l / r, nil
	case OpModulo:
		if r == 0 {
			return 0, nimbuserr.New(nimbuserr.Overflow, "division by zero: %d %% 0", l)
		}
		return l % r, nil
	default:
		return 0, nimbuserr.New(nimbuserr.TypeError, "unsupported arithmetic op %s on integers", kind.symbol())
	}
}

func toF64Slice(sec codec.Section) ([]float64, error) {
	switch sec.Type.Base() {
	case nimbustype.F64:
		return sec.F64, nil
	case nimbustype.I64:
		out := make([]float64, len(sec.I64))
		for i, v := range sec.I64 {
			out[i] = float64(v)
		}
		return out, nil
	case nimbustype.U8, nimbustype.U16, nimbustype.U32, nimbustype.U64:
		ints, err := codec.DecodeToI64(sec)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(ints))
		for i, v := range ints {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, nimbuserr.New(nimbuserr.TypeError, "BinaryOperator: cannot widen %s to f64", sec.Type)
	}
}

func applyBinOpF64(kind BinOp, lhsSec, rhsSec codec.Section, prior codec.Section) (codec.Section, error) {
	lhs, err := toF64Slice(lhsSec)
	if err != nil {
		return codec.Section{}, err
	}
	rhs, err := toF64Slice(rhsSec)
	if err != nil {
		return codec.Section{}, err
	}
	n := lhs
	if len(rhs) < len(n) {
		n = rhs
	}
	if kind.isComparison() {
		out := append([]uint8(nil), prior.U8...)
		for i := range n {
			out = append(out, compareF64(kind, lhs[i], rhs[i]))
		}
		return codec.U8Section(out), nil
	}
	out := append([]float64(nil), prior.F64...)
	for i := range n {
		v, err := arithF64(kind, lhs[i], rhs[i])
		if err != nil {
			return codec.Section{}, err
		}
		out = append(out, v)
	}
	return codec.F64Section(out), nil
}

func compareF64(kind BinOp, l, r float64) uint8 {
	var b bool
	switch kind {
	case OpLess:
		b = l < r
	case OpLessEq:
		b = l <= r
	case OpGreater:
		b = l > r
	case OpGreaterEq:
		b = l >= r
	case OpEquals:
		b = l == r
	case OpNotEquals:
		b = l != r
	}
	if b {
		return 1
	}
	return 0
}

func arithF64(kind BinOp, l, r float64) (float64, error) {
	switch kind {
	case OpAdd:
		return l + r, nil
	case OpSubtract:
		return l - r, nil
	case OpMultiply:
		return l * r, nil
	case OpDivide:
		if r == 0 {
			return 0, nimbuserr.New(nimbuserr.Overflow, "division by zero: %g / 0", l)
		}
		return l / r, nil
	default:
		return 0, nimbuserr.New(nimbuserr.TypeError, "unsupported arithmetic op %s on floats", kind.symbol())
	}
}

func applyBinOpStr(kind BinOp, lhs, rhs codec.Section, prior codec.Section) (codec.Section, error) {
	if !kind.isComparison() {
		return codec.Section{}, nimbuserr.New(nimbuserr.TypeError, "unsupported op %s on strings", kind.symbol())
	}
	n := lhs.Str
	if len(rhs.Str) < len(n) {
		n = rhs.Str
	}
	out := append([]uint8(nil), prior.U8...)
	for i := range n {
		var b bool
		l, r := lhs.Str[i], rhs.Str[i]
		switch kind {
		case OpLess:
			b = l < r
		case OpLessEq:
			b = l <= r
		case OpGreater:
			b = l > r
		case OpGreaterEq:
			b = l >= r
		case OpEquals:
			b = l == r
		case OpNotEquals:
			b = l != r
		}
		if b {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return codec.U8Section(out), nil
}

func applyBoolOp(kind BinOp, lhs, rhs codec.Section, prior codec.Section) (codec.Section, error) {
	n := lhs.U8
	if len(rhs.U8) < len(n) {
		n = rhs.U8
	}
	out := append([]uint8(nil), prior.U8...)
	for i := range n {
		var v uint8
		if kind == OpBoolAnd {
			v = lhs.U8[i] & rhs.U8[i]
		} else {
			v = lhs.U8[i] | rhs.U8[i]
		}
		out = append(out, v)
	}
	return codec.U8Section(out), nil
}
