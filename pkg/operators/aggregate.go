package operators

import (
	"math"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// VecSum accumulates Input into per-group running sums indexed by Grouping,
// sized to MaxIndex+1 groups (§4.10's VecSum<T,Grouping>); an integer
// overflow in any running sum aborts the query per §4.10's edge-case
// policy.
type VecSum struct {
	Base
	Input    scratchpad.TypedBufferRef
	Grouping scratchpad.TypedBufferRef
	MaxIndex scratchpad.TypedBufferRef
	Output   scratchpad.TypedBufferRef
}

func (op *VecSum) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Grouping.Ref, op.Input.Ref, op.MaxIndex.Ref}
}
func (op *VecSum) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *VecSum) CanStreamInput(int) bool         { return true }
func (op *VecSum) CanStreamOutput(int) bool        { return false }
func (op *VecSum) Allocates() bool                 { return true }

func (op *VecSum) Init(_ int, _ int, sp *scratchpad.Scratchpad) error {
	return sp.Set(op.Output, codec.I64Section(nil))
}

func (op *VecSum) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	nums, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	grouping, err := sp.Get(op.Grouping)
	if err != nil {
		return err
	}
	maxIndex, err := sp.GetConst(op.MaxIndex)
	if err != nil {
		return err
	}
	sums, err := sp.Get(op.Output)
	if err != nil {
		return err
	}
	want := int(maxIndex.Int) + 1
	out := append([]int64(nil), sums.I64...)
	for len(out) < want {
		out = append(out, 0)
	}
	for i, g := range grouping.U32 {
		v, err := toInt64At(nums, i)
		if err != nil {
			return err
		}
		sum := out[g] + v
		if (v > 0 && sum < out[g]) || (v < 0 && sum > out[g]) {
			return nimbuserr.New(nimbuserr.Overflow, "SUM overflow in group %d", g)
		}
		out[g] = sum
	}
	return sp.Set(op.Output, codec.I64Section(out))
}

func toInt64At(sec codec.Section, i int) (int64, error) {
	vals, err := toI64Slice(sec)
	if err != nil {
		return 0, err
	}
	return vals[i], nil
}

// Exists marks, per group, whether at least one row fell into it: the
// presence-per-group aggregate §4.10 names separately from VecSum because
// it needs no accumulator, only a single write.
type Exists struct {
	Base
	Input    scratchpad.TypedBufferRef
	MaxIndex scratchpad.TypedBufferRef
	Output   scratchpad.TypedBufferRef
}

func (op *Exists) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *Exists) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *Exists) CanStreamInput(int) bool         { return true }
func (op *Exists) CanStreamOutput(int) bool        { return false }
func (op *Exists) Allocates() bool                 { return true }

func (op *Exists) Init(_ int, _ int, sp *scratchpad.Scratchpad) error {
	return sp.Set(op.Output, codec.U8Section(nil))
}

func (op *Exists) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	maxIndex, err := sp.GetConst(op.MaxIndex)
	if err != nil {
		return err
	}
	existing, err := sp.Get(op.Output)
	if err != nil {
		return err
	}
	want := int(maxIndex.Int) + 1
	out := append([]uint8(nil), existing.U8...)
	for len(out) < want {
		out = append(out, 0)
	}
	indices, err := toI64Slice(data)
	if err != nil {
		return err
	}
	for _, i := range indices {
		out[i] = 1
	}
	return sp.Set(op.Output, codec.U8Section(out))
}

// VecCount is VecSum specialized to counting rows per group: a constant-one
// input summed through the same grouped-accumulator logic (§4.10's
// "grouped sum-of-ones").
type VecCount struct {
	Base
	Grouping scratchpad.TypedBufferRef
	MaxIndex scratchpad.TypedBufferRef
	Output   scratchpad.TypedBufferRef
}

func (op *VecCount) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Grouping.Ref, op.MaxIndex.Ref}
}
func (op *VecCount) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *VecCount) CanStreamInput(int) bool         { return true }
func (op *VecCount) CanStreamOutput(int) bool        { return false }
func (op *VecCount) Allocates() bool                 { return true }

func (op *VecCount) Init(_ int, _ int, sp *scratchpad.Scratchpad) error {
	return sp.Set(op.Output, codec.I64Section(nil))
}

func (op *VecCount) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	grouping, err := sp.Get(op.Grouping)
	if err != nil {
		return err
	}
	maxIndex, err := sp.GetConst(op.MaxIndex)
	if err != nil {
		return err
	}
	counts, err := sp.Get(op.Output)
	if err != nil {
		return err
	}
	want := int(maxIndex.Int) + 1
	out := append([]int64(nil), counts.I64...)
	for len(out) < want {
		out = append(out, 0)
	}
	for _, g := range grouping.U32 {
		out[g]++
	}
	return sp.Set(op.Output, codec.I64Section(out))
}

// VecMax/VecMin track the running per-group extremum of Input, the MAX/MIN
// aggregate functions of §6 (Aggregator::Max/Min's grouped form).
type VecMax struct {
	Base
	Input    scratchpad.TypedBufferRef
	Grouping scratchpad.TypedBufferRef
	MaxIndex scratchpad.TypedBufferRef
	Output   scratchpad.TypedBufferRef

	seen []bool
}

func (op *VecMax) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Grouping.Ref, op.Input.Ref, op.MaxIndex.Ref}
}
func (op *VecMax) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *VecMax) CanStreamInput(int) bool         { return true }
func (op *VecMax) CanStreamOutput(int) bool        { return false }
func (op *VecMax) Allocates() bool                 { return true }

func (op *VecMax) Init(_ int, _ int, sp *scratchpad.Scratchpad) error {
	return sp.Set(op.Output, codec.I64Section(nil))
}

func (op *VecMax) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	return vecExtremum(op, sp, func(a, b int64) bool { return b > a })
}

// VecMin is VecMax with the comparison inverted.
type VecMin struct {
	Base
	Input    scratchpad.TypedBufferRef
	Grouping scratchpad.TypedBufferRef
	MaxIndex scratchpad.TypedBufferRef
	Output   scratchpad.TypedBufferRef

	seen []bool
}

func (op *VecMin) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Grouping.Ref, op.Input.Ref, op.MaxIndex.Ref}
}
func (op *VecMin) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *VecMin) CanStreamInput(int) bool         { return true }
func (op *VecMin) CanStreamOutput(int) bool        { return false }
func (op *VecMin) Allocates() bool                 { return true }

func (op *VecMin) Init(_ int, _ int, sp *scratchpad.Scratchpad) error {
	return sp.Set(op.Output, codec.I64Section(nil))
}

func (op *VecMin) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	return vecExtremum(op, sp, func(a, b int64) bool { return b < a })
}

// extremumOp is the shared shape VecMax/VecMin dispatch through: a grouped
// accumulator plus a seen-bit per group, so the first row of a group always
// replaces the sentinel rather than comparing against it.
type extremumOp interface {
	inputs() (input, grouping, maxIndex scratchpad.TypedBufferRef, output scratchpad.TypedBufferRef)
	seenSlice() *[]bool
}

func (op *VecMax) inputs() (scratchpad.TypedBufferRef, scratchpad.TypedBufferRef, scratchpad.TypedBufferRef, scratchpad.TypedBufferRef) {
	return op.Input, op.Grouping, op.MaxIndex, op.Output
}
func (op *VecMax) seenSlice() *[]bool { return &op.seen }

func (op *VecMin) inputs() (scratchpad.TypedBufferRef, scratchpad.TypedBufferRef, scratchpad.TypedBufferRef, scratchpad.TypedBufferRef) {
	return op.Input, op.Grouping, op.MaxIndex, op.Output
}
func (op *VecMin) seenSlice() *[]bool { return &op.seen }

// vecExtremum runs the shared VecMax/VecMin accumulation loop; better(a, b)
// reports whether candidate b should replace the current extremum a.
func vecExtremum(op extremumOp, sp *scratchpad.Scratchpad, better func(a, b int64) bool) error {
	input, grouping, maxIndexRef, output := op.inputs()
	nums, err := sp.Get(input)
	if err != nil {
		return err
	}
	groupingSec, err := sp.Get(grouping)
	if err != nil {
		return err
	}
	maxIndex, err := sp.GetConst(maxIndexRef)
	if err != nil {
		return err
	}
	cur, err := sp.Get(output)
	if err != nil {
		return err
	}
	want := int(maxIndex.Int) + 1
	out := append([]int64(nil), cur.I64...)
	for len(out) < want {
		out = append(out, math.MinInt64)
	}
	seen := *op.seenSlice()
	for len(seen) < want {
		seen = append(seen, false)
	}
	for i, g := range groupingSec.U32 {
		v, err := toInt64At(nums, i)
		if err != nil {
			return err
		}
		if !seen[g] || better(out[g], v) {
			out[g] = v
			seen[g] = true
		}
	}
	*op.seenSlice() = seen
	return sp.Set(output, codec.I64Section(out))
}
