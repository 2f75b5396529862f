package codec

import (
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// OpKind names one step of a column's decode pipeline (§4.2).
type OpKind int

const (
	OpPushDataSection OpKind = iota
	OpToI64
	OpAdd
	OpDelta
	OpNullable
	OpLZ4
	OpPco
	OpUnpackStrings
	OpUnhexpackStrings
	OpDictLookup
)

func (k OpKind) String() string {
	switch k {
	case OpPushDataSection:
		return "PushDataSection"
	case OpToI64:
		return "ToI64"
	case OpAdd:
		return "Add"
	case OpDelta:
		return "Delta"
	case OpNullable:
		return "Nullable"
	case OpLZ4:
		return "LZ4"
	case OpPco:
		return "Pco"
	case OpUnpackStrings:
		return "UnpackStrings"
	case OpUnhexpackStrings:
		return "UnhexpackStrings"
	case OpDictLookup:
		return "DictLookup"
	default:
		return "?"
	}
}

// Op is one codec pipeline instruction together with its parameters. Not
// every field applies to every Kind; see Pipeline.Decode.
type Op struct {
	Kind OpKind

	// SectionIndex selects which raw data_sections entry PushDataSection
	// places on the stack.
	SectionIndex int

	// Width is the physical width ToI64/Add read, or the target width
	// LZ4/Pco decode into.
	Width nimbustype.EncodingType

	// Scalar is Add's offset k.
	Scalar int64

	// Len is the logical element count LZ4/Pco/UnpackStrings must
	// produce; for UnhexpackStrings it is the byte width of each row.
	Len int

	// Uppercase selects upper-case hex digits for UnhexpackStrings.
	Uppercase bool

	// IsFP32 selects single-precision float storage for Pco.
	IsFP32 bool
}

func PushDataSection(i int) Op { return Op{Kind: OpPushDataSection, SectionIndex: i} }
func ToI64(w nimbustype.EncodingType) Op { return Op{Kind: OpToI64, Width: w} }
func Add(w nimbustype.EncodingType, k int64) Op { return Op{Kind: OpAdd, Width: w, Scalar: k} }
func Delta() Op { return Op{Kind: OpDelta} }
func Nullable() Op { return Op{Kind: OpNullable} }
func LZ4(t nimbustype.EncodingType, n int) Op { return Op{Kind: OpLZ4, Width: t, Len: n} }
func Pco(t nimbustype.EncodingType, n int, fp32 bool) Op {
	return Op{Kind: OpPco, Width: t, Len: n, IsFP32: fp32}
}
func UnpackStringsOp(n int) Op { return Op{Kind: OpUnpackStrings, Len: n} }
func UnhexpackStringsOp(width int, uppercase bool) Op {
	return Op{Kind: OpUnhexpackStrings, Len: width, Uppercase: uppercase}
}
func DictLookup() Op { return Op{Kind: OpDictLookup} }

// Pipeline is the ordered list of Ops describing one column's decode chain.
type Pipeline []Op

// stack is a small helper around []Section with pop-from-top semantics, the
// same evaluation order the original implementation's operator graph uses.
type stack struct {
	sections []Section
}

func (s *stack) push(sec Section) { s.sections = append(s.sections, sec) }

func (s *stack) pop() (Section, error) {
	if len(s.sections) == 0 {
		return Section{}, nimbuserr.New(nimbuserr.Corruption, "codec pipeline: popped from an empty stack")
	}
	top := s.sections[len(s.sections)-1]
	s.sections = s.sections[:len(s.sections)-1]
	return top, nil
}

// Decode runs the pipeline against rawSections (a column's on-disk data
// sections, in order) and returns the single fully-decoded Section left on
// the stack. Each op's stack arity:
//
//	PushDataSection  pushes rawSections[i]
//	ToI64, Add       pop 1, push 1 (i64)
//	Delta            pop 1, push 1 (i64)
//	Nullable         pop 2 (bitmap, then data), push 1 (nullable data)
//	LZ4, Pco         pop 1 (bytes), push 1 (typed)
//	UnpackStrings    pop 1 (bytes), push 1 (str)
//	UnhexpackStrings pop 1 (bytes), push 1 (str)
//	DictLookup       pop 3 (data, offsetLen, indices), push 1 (str)
func (p Pipeline) Decode(rawSections []Section) (Section, error) {
	s := &stack{}
	for _, op := range p {
		switch op.Kind {
		case OpPushDataSection:
			if op.SectionIndex < 0 || op.SectionIndex >= len(rawSections) {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "PushDataSection: index %d out of range (%d sections)", op.SectionIndex, len(rawSections))
			}
			s.push(rawSections[op.SectionIndex])

		case OpToI64:
			top, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			values, err := DecodeToI64(top)
			if err != nil {
				return Section{}, err
			}
			s.push(I64Section(values))

		case OpAdd:
			top, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			values, err := DecodeAdd(top, op.Scalar)
			if err != nil {
				return Section{}, err
			}
			s.push(I64Section(values))

		case OpDelta:
			top, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			values, err := DecodeDelta(top)
			if err != nil {
				return Section{}, err
			}
			s.push(I64Section(values))

		case OpNullable:
			bitmap, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			data, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			nullable, err := DecodeNullable(data, bitmap)
			if err != nil {
				return Section{}, err
			}
			s.push(nullable)

		case OpLZ4:
			top, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			decoded, err := DecodeLZ4(top.Bytes, op.Width, op.Len)
			if err != nil {
				return Section{}, err
			}
			s.push(decoded)

		case OpPco:
			top, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			decoded, err := DecodePco(top, op.Width, op.Len, op.IsFP32)
			if err != nil {
				return Section{}, err
			}
			s.push(decoded)

		case OpUnpackStrings:
			top, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			values, err := UnpackStrings(top.Bytes, op.Len)
			if err != nil {
				return Section{}, err
			}
			s.push(StrSection(values))

		case OpUnhexpackStrings:
			top, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			values, err := UnhexpackStrings(top.Bytes, op.Len, op.Uppercase)
			if err != nil {
				return Section{}, err
			}
			s.push(StrSection(values))

		case OpDictLookup:
			data, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			offsetLen, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			idx, err := s.pop()
			if err != nil {
				return Section{}, err
			}
			values, err := DecodeDictLookup(idx, offsetLen, data)
			if err != nil {
				return Section{}, err
			}
			s.push(values)

		default:
			return Section{}, nimbuserr.New(nimbuserr.Fatal, "codec pipeline: unknown op %s", op.Kind)
		}
	}
	if len(s.sections) != 1 {
		return Section{}, nimbuserr.New(nimbuserr.Corruption, "codec pipeline: expected exactly 1 section left on stack, got %d", len(s.sections))
	}
	return s.sections[0], nil
}
