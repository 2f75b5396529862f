package operators

import (
	"math"
	"sort"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// SortBy reorders Indices (in place, aliased to Output) by the values of
// Ranking, stable when Stable is set (§4.10's SortBy<T>/SortUnstableBy*;
// ties only need determinism across batches when the plan requires it).
type SortBy struct {
	Base
	Ranking    scratchpad.TypedBufferRef
	Indices    scratchpad.TypedBufferRef
	Output     scratchpad.TypedBufferRef
	Descending bool
	Stable     bool
}

func (op *SortBy) Inputs() []scratchpad.BufferRef {
	return []scratchpad.BufferRef{op.Ranking.Ref, op.Indices.Ref}
}
func (op *SortBy) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Output.Ref} }
func (op *SortBy) CanStreamInput(int) bool         { return false }
func (op *SortBy) CanStreamOutput(int) bool        { return false }
func (op *SortBy) Allocates() bool                 { return true }

func (op *SortBy) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	if err := sp.Alias(op.Indices.Ref, op.Output.Ref); err != nil {
		return err
	}
	ranking, err := sp.Get(op.Ranking)
	if err != nil {
		return err
	}
	indices, err := sp.Get(op.Indices)
	if err != nil {
		return err
	}
	idx := append([]uint32(nil), indices.U32...)
	less, err := rankingLess(ranking, op.Descending)
	if err != nil {
		return err
	}
	cmp := func(i, j int) bool { return less(int(idx[i]), int(idx[j])) }
	if op.Stable {
		sort.SliceStable(idx, cmp)
	} else {
		sort.Slice(idx, cmp)
	}
	return sp.Set(op.Output, codec.U32Section(idx))
}

// rankingLess builds a less-than predicate over element positions of
// ranking, honoring descending order; ranking may be an integer, float, or
// string section.
func rankingLess(ranking codec.Section, descending bool) (func(i, j int) bool, error) {
	switch ranking.Type.Base() {
	case nimbustype.F64:
		f := ranking.F64
		if descending {
			return func(i, j int) bool { return f64Less(f[j], f[i]) }, nil
		}
		return func(i, j int) bool { return f64Less(f[i], f[j]) }, nil
	case nimbustype.Str:
		s := ranking.Str
		if descending {
			return func(i, j int) bool { return s[i] > s[j] }, nil
		}
		return func(i, j int) bool { return s[i] < s[j] }, nil
	default:
		vals, err := toI64Slice(ranking)
		if err != nil {
			return nil, nimbuserr.New(nimbuserr.TypeError, "SortBy: unsupported ranking type %s", ranking.Type)
		}
		if descending {
			return func(i, j int) bool { return vals[i] > vals[j] }, nil
		}
		return func(i, j int) bool { return vals[i] < vals[j] }, nil
	}
}

// f64Less totally orders floats, NaN sorting above every non-NaN value and
// equal to itself, matching the total-order comparator
// original_source/src/engine/operators/functions.rs uses for float ranking.
func f64Less(a, b float64) bool {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if aNaN || bNaN {
		return !aNaN && bNaN
	}
	return a < b
}

// TopN keeps the best N rows seen so far by an integer key, streaming over
// the input via a binary-heap replace (§4.10's heap-based top-N); Finalize
// sorts the surviving heap into final rank order.
type TopN struct {
	Base
	Input      scratchpad.TypedBufferRef
	Indices    scratchpad.TypedBufferRef
	N          int
	Descending bool

	lastIndex int
	keys      []int64
	indices   []uint32
}

func (op *TopN) Inputs() []scratchpad.BufferRef  { return []scratchpad.BufferRef{op.Input.Ref} }
func (op *TopN) Outputs() []scratchpad.BufferRef { return []scratchpad.BufferRef{op.Indices.Ref} }
func (op *TopN) CanStreamInput(int) bool         { return true }
func (op *TopN) CanStreamOutput(int) bool        { return false }
func (op *TopN) Allocates() bool                 { return true }

func (op *TopN) Init(_ int, _ int, _ *scratchpad.Scratchpad) error {
	op.keys = make([]int64, 0, op.N)
	op.indices = make([]uint32, 0, op.N)
	return nil
}

// worseThan reports whether a is a less desirable candidate than b, i.e.
// the heap root ordering: the heap root always holds the worst-kept key,
// ready to be evicted by a better candidate.
func (op *TopN) worseThan(a, b int64) bool {
	if op.Descending {
		return a < b
	}
	return a > b
}

func (op *TopN) Execute(_ bool, sp *scratchpad.Scratchpad) error {
	input, err := sp.Get(op.Input)
	if err != nil {
		return err
	}
	values, err := toI64Slice(input)
	if err != nil {
		return err
	}

	i := 0
	for len(op.indices) < op.N && i < len(values) {
		op.keys = append(op.keys, values[i])
		op.indices = append(op.indices, uint32(op.lastIndex+i))
		i++
	}
	if len(op.indices) == op.N && i > 0 {
		op.heapify()
	}
	for ; i < len(values); i++ {
		if op.worseThan(op.keys[0], values[i]) {
			op.heapReplace(values[i], uint32(op.lastIndex+i))
		}
	}
	op.lastIndex += len(values)
	return nil
}

func (op *TopN) heapify() {
	n := len(op.keys)
	for node := n/2 - 1; node >= 0; node-- {
		op.siftDown(node)
	}
}

func (op *TopN) siftDown(node int) {
	n := len(op.keys)
	for {
		worst := node
		l, r := 2*node+1, 2*node+2
		if l < n && op.worseThan(op.keys[l], op.keys[worst]) {
			worst = l
		}
		if r < n && op.worseThan(op.keys[r], op.keys[worst]) {
			worst = r
		}
		if worst == node {
			return
		}
		op.keys[node], op.keys[worst] = op.keys[worst], op.keys[node]
		op.indices[node], op.indices[worst] = op.indices[worst], op.indices[node]
		node = worst
	}
}

func (op *TopN) heapReplace(key int64, index uint32) {
	op.keys[0] = key
	op.indices[0] = index
	op.siftDown(0)
}

// Finalize sorts the heap's surviving entries into final rank order (best
// first).
func (op *TopN) Finalize(sp *scratchpad.Scratchpad) error {
	order := make([]int, len(op.keys))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		if op.Descending {
			return op.keys[order[i]] > op.keys[order[j]]
		}
		return op.keys[order[i]] < op.keys[order[j]]
	})
	out := make([]uint32, len(order))
	for i, o := range order {
		out[i] = op.indices[o]
	}
	return sp.Set(op.Indices, codec.U32Section(out))
}
