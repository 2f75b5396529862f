package operators

import (
	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// Merge performs a two-way merge of Left and Right (both assumed already
// sorted by the same key, ascending unless Descending), keeping at most
// Limit rows and recording, per output row, which side it came from
// (MergeOps: 1 = left, 0 = right) so a later pass can merge dependent
// columns in lock-step (§4.10's Merge).
type Merge struct {
	Base
	Left       scratchpad.TypedBufferRef
	Right      scratchpad.TypedBufferRef
	Merged     scratchpad.TypedBufferRef
	MergeOps   scratchpad.TypedBufferRef
	Limit      int
	Descending bool
}

func (op *Merge) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Left.Ref, op.Right.Ref}
}
func (op *Merge) Outputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Merged.Ref, op.MergeOps.Ref}
}
func (op *Merge) CanStreamInput(int) bool  { return false }
func (op *Merge) CanStreamOutput(int) bool { return false }
func (op *Merge) Allocates() bool          { return true }

func (op *Merge) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	left, err := sp.Get(op.Left)
	if err != nil {
		return err
	}
	right, err := sp.Get(op.Right)
	if err != nil {
		return err
	}
	leftVals, err := toI64Slice(left)
	if err != nil {
		return err
	}
	rightVals, err := toI64Slice(right)
	if err != nil {
		return err
	}
	merged, ops := mergeI64(leftVals, rightVals, op.Limit, op.Descending)
	if err := sp.Set(op.Merged, codec.I64Section(merged)); err != nil {
		return err
	}
	return sp.Set(op.MergeOps, codec.U8Section(ops))
}

func mergeI64(left, right []int64, limit int, descending bool) ([]int64, []uint8) {
	total := len(left) + len(right)
	if limit > 0 && limit < total {
		total = limit
	}
	merged := make([]int64, 0, total)
	ops := make([]uint8, 0, total)
	i, j := 0, 0
	takesLeft := func(l, r int64) bool {
		if descending {
			return l >= r
		}
		return l <= r
	}
	for i < len(left) && j < len(right) && len(merged) < total {
		if takesLeft(left[i], right[j]) {
			merged = append(merged, left[i])
			ops = append(ops, 1)
			i++
		} else {
			merged = append(merged, right[j])
			ops = append(ops, 0)
			j++
		}
	}
	for ; i < len(left) && len(merged) < total; i++ {
		merged = append(merged, left[i])
		ops = append(ops, 1)
	}
	for ; j < len(right) && len(merged) < total; j++ {
		merged = append(merged, right[j])
		ops = append(ops, 0)
	}
	return merged, ops
}

// MergeKeep replays a prior Merge's MergeOps to interleave two dependent
// columns (e.g. the payload that rode along with Merge's sort key) without
// re-comparing keys.
type MergeKeep struct {
	Base
	Left     scratchpad.TypedBufferRef
	Right    scratchpad.TypedBufferRef
	MergeOps scratchpad.TypedBufferRef
	Output   scratchpad.TypedBufferRef
}

func (op *MergeKeep) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Left.Ref, op.Right.Ref, op.MergeOps.Ref}
}
func (op *MergeKeep) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *MergeKeep) CanStreamInput(int) bool         { return false }
func (op *MergeKeep) CanStreamOutput(int) bool        { return false }
func (op *MergeKeep) Allocates() bool                 { return true }

func (op *MergeKeep) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	left, err := sp.Get(op.Left)
	if err != nil {
		return err
	}
	right, err := sp.Get(op.Right)
	if err != nil {
		return err
	}
	mergeOps, err := sp.Get(op.MergeOps)
	if err != nil {
		return err
	}
	out, err := mergeKeepSection(left, right, mergeOps.U8)
	if err != nil {
		return err
	}
	return sp.Set(op.Output, out)
}

func mergeKeepSection(left, right codec.Section, ops []uint8) (codec.Section, error) {
	li, ri := 0, 0
	switch left.Type.Base() {
	case nimbustype.I64:
		out := make([]int64, 0, len(ops))
		for _, keepLeft := range ops {
			if keepLeft == 1 {
				out = append(out, left.I64[li])
				li++
			} else {
				out = append(out, right.I64[ri])
				ri++
			}
		}
		return codec.I64Section(out), nil
	case nimbustype.F64:
		out := make([]float64, 0, len(ops))
		for _, keepLeft := range ops {
			if keepLeft == 1 {
				out = append(out, left.F64[li])
				li++
			} else {
				out = append(out, right.F64[ri])
				ri++
			}
		}
		return codec.F64Section(out), nil
	case nimbustype.Str:
		out := make([]string, 0, len(ops))
		for _, keepLeft := range ops {
			if keepLeft == 1 {
				out = append(out, left.Str[li])
				li++
			} else {
				out = append(out, right.Str[ri])
				ri++
			}
		}
		return codec.StrSection(out), nil
	default:
		return codec.Section{}, nimbuserr.New(nimbuserr.TypeError, "MergeKeep: unsupported type %s", left.Type)
	}
}

// MergeDrop is MergeKeep's complement: it discards the rows a prior Merge
// dropped to respect Limit, keeping a dependent column's rows in lock-step
// with Merge's survivors. ops carries 1 for "kept", 0 for "dropped".
type MergeDrop struct {
	Base
	Input  scratchpad.TypedBufferRef
	Keep   scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *MergeDrop) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Input.Ref, op.Keep.Ref}
}
func (op *MergeDrop) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *MergeDrop) CanStreamInput(int) bool         { return false }
func (op *MergeDrop) CanStreamOutput(int) bool        { return false }
func (op *MergeDrop) Allocates() bool                 { return true }

func (op *MergeDrop) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	data, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	keep, err := sp.Get(op.Keep)
	if err != nil {
		return err
	}
	out, err := filterSection(data, keep, codec.Section{}, false)
	if err != nil {
		return err
	}
	return sp.Set(op.Output, out)
}

// MergeDeduplicate runs Merge and then collapses adjacent equal keys,
// keeping the first occurrence; used to combine two sorted DISTINCT-like
// partial results (§4.10's MergeDeduplicate).
type MergeDeduplicate struct {
	Merge
}

func (op *MergeDeduplicate) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	if err := op.Merge.Execute(streaming, sp); err != nil {
		return err
	}
	merged, err := sp.Get(op.Merged)
	if err != nil {
		return err
	}
	vals, err := toI64Slice(merged)
	if err != nil {
		return err
	}
	var out []int64
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			out = append(out, v)
		}
	}
	return sp.Set(op.Merged, codec.I64Section(out))
}

// MergeDeduplicatePartitioned is MergeDeduplicate scoped within runs sharing
// a partition key, so deduplication never crosses a partition boundary
// (§4.10's MergeDeduplicatePartitioned, used when merging grouped partial
// results keyed on a composite of (partition, value)).
type MergeDeduplicatePartitioned struct {
	Merge
	PartitionOf scratchpad.TypedBufferRef
}

func (op *MergeDeduplicatePartitioned) Execute(streaming bool, sp *scratchpad.Scratchpad) error {
	if err := op.Merge.Execute(streaming, sp); err != nil {
		return err
	}
	merged, err := sp.Get(op.Merged)
	if err != nil {
		return err
	}
	partitions, err := sp.Get(op.PartitionOf)
	if err != nil {
		return err
	}
	vals, err := toI64Slice(merged)
	if err != nil {
		return err
	}
	parts, err := toI64Slice(partitions)
	if err != nil {
		return err
	}
	var out []int64
	for i, v := range vals {
		if i == 0 || v != vals[i-1] || parts[i] != parts[i-1] {
			out = append(out, v)
		}
	}
	return sp.Set(op.Merged, codec.I64Section(out))
}

// MergeAggregate merges two sorted (key, aggregate) partial group results,
// summing the aggregate for keys present on both sides (§4.10's
// MergeAggregate; the associativity §8 Testable Property 9 requires).
type MergeAggregate struct {
	Base
	LeftKeys    scratchpad.TypedBufferRef
	LeftAggs    scratchpad.TypedBufferRef
	RightKeys   scratchpad.TypedBufferRef
	RightAggs   scratchpad.TypedBufferRef
	MergedKeys  scratchpad.TypedBufferRef
	MergedAggs  scratchpad.TypedBufferRef
}

func (op *MergeAggregate) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.LeftKeys.Ref, op.LeftAggs.Ref, op.RightKeys.Ref, op.RightAggs.Ref}
}
func (op *MergeAggregate) Outputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.MergedKeys.Ref, op.MergedAggs.Ref}
}
func (op *MergeAggregate) CanStreamInput(int) bool  { return false }
func (op *MergeAggregate) CanStreamOutput(int) bool { return false }
func (op *MergeAggregate) Allocates() bool          { return true }

func (op *MergeAggregate) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	lk, err := sp.Get(op.LeftKeys)
	if err != nil {
		return err
	}
	la, err := sp.Get(op.LeftAggs)
	if err != nil {
		return err
	}
	rk, err := sp.Get(op.RightKeys)
	if err != nil {
		return err
	}
	ra, err := sp.Get(op.RightAggs)
	if err != nil {
		return err
	}
	leftKeys, err := toI64Slice(lk)
	if err != nil {
		return err
	}
	rightKeys, err := toI64Slice(rk)
	if err != nil {
		return err
	}
	leftAggs, err := toI64Slice(la)
	if err != nil {
		return err
	}
	rightAggs, err := toI64Slice(ra)
	if err != nil {
		return err
	}

	var keys, aggs []int64
	i, j := 0, 0
	for i < len(leftKeys) && j < len(rightKeys) {
		switch {
		case leftKeys[i] == rightKeys[j]:
			sum := leftAggs[i] + rightAggs[j]
			if (rightAggs[j] > 0 && sum < leftAggs[i]) || (rightAggs[j] < 0 && sum > leftAggs[i]) {
				return nimbuserr.New(nimbuserr.Overflow, "MergeAggregate: overflow summing group %d", leftKeys[i])
			}
			keys = append(keys, leftKeys[i])
			aggs = append(aggs, sum)
			i++
			j++
		case leftKeys[i] < rightKeys[j]:
			keys = append(keys, leftKeys[i])
			aggs = append(aggs, leftAggs[i])
			i++
		default:
			keys = append(keys, rightKeys[j])
			aggs = append(aggs, rightAggs[j])
			j++
		}
	}
	for ; i < len(leftKeys); i++ {
		keys = append(keys, leftKeys[i])
		aggs = append(aggs, leftAggs[i])
	}
	for ; j < len(rightKeys); j++ {
		keys = append(keys, rightKeys[j])
		aggs = append(aggs, rightAggs[j])
	}
	if err := sp.Set(op.MergedKeys, codec.I64Section(keys)); err != nil {
		return err
	}
	return sp.Set(op.MergedAggs, codec.I64Section(aggs))
}

// Partition splits Input into contiguous runs sharing the same key
// (Input must already be sorted), returning run start offsets; SubPartition
// further splits each run by a secondary key. Both return offsets only, the
// lightweight structural output later operators index into.
type Partition struct {
	Base
	Input  scratchpad.TypedBufferRef
	Output scratchpad.TypedBufferRef
}

func (op *Partition) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *Partition) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *Partition) CanStreamInput(int) bool         { return false }
func (op *Partition) CanStreamOutput(int) bool        { return false }
func (op *Partition) Allocates() bool                 { return true }

func (op *Partition) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	input, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	vals, err := toI64Slice(input)
	if err != nil {
		return err
	}
	var offsets []uint32
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			offsets = append(offsets, uint32(i))
		}
	}
	offsets = append(offsets, uint32(len(vals)))
	return sp.Set(op.Output, codec.U32Section(offsets))
}

// SubPartition splits each run named by Runs into finer runs by Secondary's
// value, producing a refined offsets vector.
type SubPartition struct {
	Base
	Runs      scratchpad.TypedBufferRef
	Secondary scratchpad.TypedBufferRef
	Output    scratchpad.TypedBufferRef
}

func (op *SubPartition) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Runs.Ref, op.Secondary.Ref}
}
func (op *SubPartition) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *SubPartition) CanStreamInput(int) bool         { return false }
func (op *SubPartition) CanStreamOutput(int) bool        { return false }
func (op *SubPartition) Allocates() bool                 { return true }

func (op *SubPartition) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	runs, err := sp.Get(op.Runs)
	if err != nil {
		return err
	}
	secondary, err := sp.Get(op.Secondary)
	if err != nil {
		return err
	}
	vals, err := toI64Slice(secondary)
	if err != nil {
		return err
	}
	var offsets []uint32
	for r := 0; r+1 < len(runs.U32); r++ {
		start, end := runs.U32[r], runs.U32[r+1]
		for i := start; i < end; i++ {
			if i == start || vals[i] != vals[i-1] {
				offsets = append(offsets, i)
			}
		}
	}
	if len(runs.U32) > 0 {
		offsets = append(offsets, runs.U32[len(runs.U32)-1])
	}
	return sp.Set(op.Output, codec.U32Section(offsets))
}
