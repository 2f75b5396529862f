package operators

import (
	"regexp"
	"time"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// ToYear maps a column of Unix timestamps to the calendar year each falls
// in, the TO_YEAR(ts) scalar function of §6.
type ToYear struct {
	Base
	Input  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *ToYear) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *ToYear) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *ToYear) CanStreamInput(int) bool         { return true }
func (op *ToYear) CanStreamOutput(int) bool        { return true }
func (op *ToYear) Allocates() bool                 { return true }

func (op *ToYear) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	ts, err := toI64Slice(data)
	if err != nil {
		return err
	}
	prior := codec.Section{}
	if streaming {
		prior, _ = sp.Get(op.Output)
	}
	out := append([]int64(nil), prior.I64...)
	for _, t := range ts {
		out = append(out, int64(time.Unix(t, 0).UTC().Year()))
	}
	return sp.Set(op.Output, codec.I64Section(out))
}

// Length maps a column of strings to each value's byte length, the
// LENGTH(s) scalar function of §6.
type Length struct {
	Base
	Input  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *Length) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *Length) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *Length) CanStreamInput(int) bool         { return true }
func (op *Length) CanStreamOutput(int) bool        { return true }
func (op *Length) Allocates() bool                 { return true }

func (op *Length) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	if data.Type.Base() != nimbustype.Str {
		return nimbuserr.New(nimbuserr.TypeError, "LENGTH: operand is %s, not a string", data.Type)
	}
	prior := codec.Section{}
	if streaming {
		prior, _ = sp.Get(op.Output)
	}
	out := append([]int64(nil), prior.I64...)
	for _, s := range data.Str {
		out = append(out, int64(len(s)))
	}
	return sp.Set(op.Output, codec.I64Section(out))
}

// BooleanNot flips a u8 boolean-mask buffer, the NOT prefix operator of §6.
type BooleanNot struct {
	Base
	Input  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *BooleanNot) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *BooleanNot) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *BooleanNot) CanStreamInput(int) bool         { return true }
func (op *BooleanNot) CanStreamOutput(int) bool        { return true }
func (op *BooleanNot) Allocates() bool                 { return true }

func (op *BooleanNot) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	prior := codec.Section{}
	if streaming {
		prior, _ = sp.Get(op.Output)
	}
	out := append([]uint8(nil), prior.U8...)
	for _, b := range data.U8 {
		out = append(out, b^1)
	}
	return sp.Set(op.Output, codec.U8Section(out))
}

// RegexMatch reports, per row, whether a string column matches a fixed
// compiled pattern, the regex-match predicate of §6.
type RegexMatch struct {
	Base
	Input   scratchpad.TypedBufferRef
	Pattern *regexp.Regexp
	Output  scratchpad.TypedBufferRef
}

func (op *RegexMatch) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *RegexMatch) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *RegexMatch) CanStreamInput(int) bool         { return true }
func (op *RegexMatch) CanStreamOutput(int) bool        { return true }
func (op *RegexMatch) Allocates() bool                 { return true }

func (op *RegexMatch) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	if data.Type.Base() != nimbustype.Str {
		return nimbuserr.New(nimbuserr.TypeError, "regex match: operand is %s, not a string", data.Type)
	}
	prior := codec.Section{}
	if streaming {
		prior, _ = sp.Get(op.Output)
	}
	out := append([]uint8(nil), prior.U8...)
	for _, s := range data.Str {
		if op.Pattern.MatchString(s) {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return sp.Set(op.Output, codec.U8Section(out))
}

// Like reports, per row, whether a string column matches a SQL LIKE pattern
// (% any run of characters, _ any single character), compiled to a regexp
// once at plan time rather than re-interpreted per row.
type Like struct {
	Base
	Input   scratchpad.TypedBufferRef
	Pattern *regexp.Regexp
	Output  scratchpad.TypedBufferRef
}

func (op *Like) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *Like) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *Like) CanStreamInput(int) bool         { return true }
func (op *Like) CanStreamOutput(int) bool        { return true }
func (op *Like) Allocates() bool                 { return true }

func (op *Like) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	if data.Type.Base() != nimbustype.Str {
		return nimbuserr.New(nimbuserr.TypeError, "LIKE: operand is %s, not a string", data.Type)
	}
	prior := codec.Section{}
	if streaming {
		prior, _ = sp.Get(op.Output)
	}
	out := append([]uint8(nil), prior.U8...)
	for _, s := range data.Str {
		if op.Pattern.MatchString(s) {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return sp.Set(op.Output, codec.U8Section(out))
}

// CompileLikePattern turns a SQL LIKE pattern into an anchored regexp:
// '%' becomes '.*', '_' becomes '.', and every other regexp metacharacter
// is escaped literally.
func CompileLikePattern(pattern string) (*regexp.Regexp, error) {
	var b []byte
	b = append(b, '^')
	for _, r := range pattern {
		switch r {
		case '%':
			b = append(b, '.', '*')
		case '_':
			b = append(b, '.')
		default:
			b = append(b, []byte(regexp.QuoteMeta(string(r)))...)
		}
	}
	b = append(b, '$')
	re, err := regexp.Compile(string(b))
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.SyntaxError, err, "compiling LIKE pattern %q", pattern)
	}
	return re, nil
}
