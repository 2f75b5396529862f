package query

import (
	"context"
	"math"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/operators"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// CompilePartition runs q against a single partition, decoding exactly the
// columns it references, compiling q's filter/select/group/order clauses
// into the operators those clauses lower to, and returning that partition's
// contribution to the overall result (§4.11 steps 1-4: resolve columns,
// compile the per-partition operator graph, run it, produce a BatchResult).
func CompilePartition(ctx context.Context, q *Query, handle *PartitionHandle) (*BatchResult, error) {
	rowLen := handle.Len()

	needed := q.ReferencedColumns()
	var wildcardNames []string
	for _, e := range q.Select {
		if e.IsWildcard() {
			wildcardNames = sortedNames(columnNameSet(handle.ColumnNames()))
			for _, n := range wildcardNames {
				needed[n] = true
			}
		}
	}

	decoded, err := partitionColumnSections(ctx, handle, needed)
	if err != nil {
		return nil, err
	}

	c := &compileCtx{
		sp:     scratchpad.New(estimateBufferCount(q)+len(decoded), nil),
		alloc:  &bufAlloc{},
		raw:    make(map[string]scratchpad.TypedBufferRef),
		dense:  make(map[string]scratchpad.TypedBufferRef),
		rowLen: rowLen,
	}
	for name, sec := range decoded {
		ref := c.alloc.ref(sec.Type)
		if err := c.sp.Set(ref, sec); err != nil {
			return nil, err
		}
		c.raw[name] = ref
	}

	var mask *scratchpad.TypedBufferRef
	if q.HasFilter() {
		m, err := evalExpr(c, q.Filter)
		if err != nil {
			return nil, err
		}
		maskSec, err := c.sp.Get(m)
		if err != nil {
			return nil, err
		}
		if maskSec.Type.Base() != nimbustype.U8 {
			return nil, nimbuserr.New(nimbuserr.TypeError, "WHERE clause must evaluate to a boolean expression")
		}
		mask = &m
	}

	if q.HasAggregates() {
		return compileAggregate(c, q, mask)
	}
	return compileSelect(c, q, mask, wildcardNames)
}

func columnNameSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// compileSelect handles the non-aggregate path: evaluate every select
// expression over the full partition, apply the WHERE mask, then apply
// ORDER BY/LIMIT (§4.11 step 2's streaming-select branch).
func compileSelect(c *compileCtx, q *Query, mask *scratchpad.TypedBufferRef, wildcardNames []string) (*BatchResult, error) {
	names := wildcardNames
	exprs := q.Select
	if len(names) == 0 {
		names = make([]string, len(q.Select))
		for i, e := range q.Select {
			names[i] = exprLabel(e)
		}
	} else {
		exprs = make([]Expr, len(wildcardNames))
		for i, n := range wildcardNames {
			exprs[i] = ColumnExpr(n)
		}
	}

	cols := make([]scratchpad.TypedBufferRef, len(exprs))
	for i, e := range exprs {
		var ref scratchpad.TypedBufferRef
		var err error
		if e.Kind == ExprColumn && e.ColName != "*" {
			ref, err = c.displayColumn(e.ColName)
		} else {
			ref, err = evalExpr(c, e)
		}
		if err != nil {
			return nil, err
		}
		filtered, err := c.applyFilter(ref, mask)
		if err != nil {
			return nil, err
		}
		cols[i] = filtered
	}

	if q.OrderBy != nil {
		orderRef, err := c.denseColumn(q.OrderBy.ColName)
		if err != nil {
			return nil, err
		}
		orderRef, err = c.applyFilter(orderRef, mask)
		if err != nil {
			return nil, err
		}
		orderSec, err := c.sp.Get(orderRef)
		if err != nil {
			return nil, err
		}
		n := orderSec.Len()
		limit := localLimit(q, n)

		// An integer ranking column feeds the heap-based TopN (§4.10): O(n
		// log limit) rather than a full sort. Float/string rankings fall
		// back to SortBy+truncate since TopN's heap only compares int64
		// keys (toI64Slice has no Float/Str widening).
		var truncatedRef scratchpad.TypedBufferRef
		if orderSec.Type.Base() == nimbustype.I64 {
			topN := &operators.TopN{Input: orderRef, Indices: c.alloc.ref(nimbustype.U32), N: limit, Descending: q.OrderBy.Descending}
			if err := runOp(topN, n, c.sp); err != nil {
				return nil, err
			}
			truncatedRef = topN.Indices
		} else {
			identity := make([]uint32, n)
			for i := range identity {
				identity[i] = uint32(i)
			}
			identityRef := c.alloc.ref(nimbustype.U32)
			if err := c.sp.Set(identityRef, codec.U32Section(identity)); err != nil {
				return nil, err
			}

			sortedRef := c.alloc.ref(nimbustype.U32)
			sortOp := &operators.SortBy{Ranking: orderRef, Indices: identityRef, Output: sortedRef, Descending: q.OrderBy.Descending, Stable: true}
			if err := runOp(sortOp, n, c.sp); err != nil {
				return nil, err
			}

			sortedSec, err := c.sp.Get(sortedRef)
			if err != nil {
				return nil, err
			}
			truncatedRef = c.alloc.ref(nimbustype.U32)
			if err := c.sp.Set(truncatedRef, codec.U32Section(append([]uint32(nil), sortedSec.U32[:limit]...))); err != nil {
				return nil, err
			}
		}

		out := make([]codec.Section, len(cols))
		for i, ref := range cols {
			materialized := c.alloc.ref(nimbustype.I64)
			if err := runOp(&operators.Select{Input: ref, Indices: truncatedRef, Output: materialized}, n, c.sp); err != nil {
				return nil, err
			}
			sec, err := c.sp.Get(materialized)
			if err != nil {
				return nil, err
			}
			out[i] = sec
		}
		return &BatchResult{ColumnNames: names, Columns: out}, nil
	}

	out := make([]codec.Section, len(cols))
	rowCount := -1
	for i, ref := range cols {
		sec, err := c.sp.Get(ref)
		if err != nil {
			return nil, err
		}
		if rowCount < 0 {
			rowCount = sec.Len()
		}
		out[i] = sec
	}
	if rowCount < 0 {
		rowCount = 0
	}
	limit := localLimit(q, rowCount)
	if limit < rowCount {
		for i, sec := range out {
			out[i] = truncateForSelect(sec, limit)
		}
	}
	return &BatchResult{ColumnNames: names, Columns: out}, nil
}

// localLimit bounds how many rows this single partition needs to keep: a
// query asking for offset+limit rows overall never needs more than that
// many from any one partition before the combine stage merges across
// partitions (§4.11's "bound per-partition work to what the final answer
// could possibly need").
func localLimit(q *Query, available int) int {
	if q.Limit <= 0 {
		return available
	}
	want := q.Offset + q.Limit
	if want < 0 || want > available {
		return available
	}
	return want
}

func truncateForSelect(sec codec.Section, n int) codec.Section {
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
	}
	return out
}

// compileAggregate handles the GROUP BY / aggregate path: build a dense
// group index per surviving row (via HashMapGrouping for a single grouping
// column, or HashMapGroupingByteSlices for a composite key), run each
// select-list aggregate through its grouped accumulator, and materialize
// the group-key columns by picking each group's first representative row
// (§4.11 step 2's hash-grouping branch).
func compileAggregate(c *compileCtx, q *Query, mask *scratchpad.TypedBufferRef) (*BatchResult, error) {
	groupCols := make([]scratchpad.TypedBufferRef, len(q.GroupBy))
	for i, e := range q.GroupBy {
		ref, err := evalExpr(c, e)
		if err != nil {
			return nil, err
		}
		filtered, err := c.applyFilter(ref, mask)
		if err != nil {
			return nil, err
		}
		groupCols[i] = filtered
	}

	var groupOfRef, cardinalityRef scratchpad.TypedBufferRef
	var filteredLen int
	switch len(groupCols) {
	case 0:
		filteredLen = filteredRowCount(c, mask)
		groupOfRef = c.alloc.ref(nimbustype.U32)
		zeros := make([]uint32, filteredLen)
		if err := c.sp.Set(groupOfRef, codec.U32Section(zeros)); err != nil {
			return nil, err
		}
		cardinalityRef = c.alloc.ref(nimbustype.I64)
		if err := c.sp.SetConst(cardinalityRef, nimbustype.IntValue(1)); err != nil {
			return nil, err
		}
	case 1:
		sec, err := c.sp.Get(groupCols[0])
		if err != nil {
			return nil, err
		}
		filteredLen = sec.Len()
		uniqueRef := c.alloc.ref(sec.Type.Base())
		groupOfRef = c.alloc.ref(nimbustype.U32)
		cardinalityRef = c.alloc.ref(nimbustype.I64)
		op := &operators.HashMapGrouping{Input: groupCols[0], Unique: uniqueRef, GroupOf: groupOfRef, Cardinality: cardinalityRef}
		if err := runOp(op, filteredLen, c.sp); err != nil {
			return nil, err
		}
	default:
		sections := make([]codec.Section, len(groupCols))
		for i, ref := range groupCols {
			sec, err := c.sp.Get(ref)
			if err != nil {
				return nil, err
			}
			sections[i] = sec
			filteredLen = sec.Len()
		}
		rows := make([][]byte, filteredLen)
		for i := 0; i < filteredLen; i++ {
			rows[i] = packGroupRow(sections, i)
		}
		uniqueRef := c.alloc.ref(nimbustype.ByteSlices)
		groupOfRef = c.alloc.ref(nimbustype.U32)
		cardinalityRef = c.alloc.ref(nimbustype.I64)
		op := &operators.HashMapGroupingByteSlices{Rows: rows, Unique: uniqueRef, GroupOf: groupOfRef, Cardinality: cardinalityRef}
		if err := runOp(op, filteredLen, c.sp); err != nil {
			return nil, err
		}
	}

	cardinalityVal, err := c.sp.GetConst(cardinalityRef)
	if err != nil {
		return nil, err
	}
	cardinality := int(cardinalityVal.Int)

	groupOfSec, err := c.sp.Get(groupOfRef)
	if err != nil {
		return nil, err
	}
	repIdx := make([]int, cardinality)
	seen := make([]bool, cardinality)
	for i, g := range groupOfSec.U32 {
		if !seen[g] {
			seen[g] = true
			repIdx[g] = i
		}
	}
	repIdxRef := c.alloc.ref(nimbustype.U32)
	repIdxU32 := make([]uint32, cardinality)
	for i, v := range repIdx {
		repIdxU32[i] = uint32(v)
	}
	if err := c.sp.Set(repIdxRef, codec.U32Section(repIdxU32)); err != nil {
		return nil, err
	}

	names := make([]string, len(q.Select))
	out := make([]codec.Section, len(q.Select))
	for i, se := range q.Select {
		names[i] = exprLabel(se)
		switch se.Kind {
		case ExprAggregate:
			sec, err := compileAggregateCall(c, se, mask, groupOfRef, cardinalityRef)
			if err != nil {
				return nil, err
			}
			out[i] = sec
		case ExprColumn:
			idx := groupByIndex(q.GroupBy, se.ColName)
			if idx < 0 {
				return nil, nimbuserr.New(nimbuserr.SyntaxError, "column %q must appear in GROUP BY or be wrapped in an aggregate", se.ColName)
			}
			materialized := c.alloc.ref(nimbustype.I64)
			if err := runOp(&operators.Select{Input: groupCols[idx], Indices: repIdxRef, Output: materialized}, cardinality, c.sp); err != nil {
				return nil, err
			}
			sec, err := c.sp.Get(materialized)
			if err != nil {
				return nil, err
			}
			out[i] = sec
		default:
			return nil, nimbuserr.New(nimbuserr.SyntaxError, "a GROUP BY query's select list may only contain aggregates and grouped columns")
		}
	}
	return &BatchResult{Aggregate: true, ColumnNames: names, Columns: out}, nil
}

func groupByIndex(groupBy []Expr, colName string) int {
	for i, e := range groupBy {
		if e.Kind == ExprColumn && e.ColName == colName {
			return i
		}
	}
	return -1
}

func filteredRowCount(c *compileCtx, mask *scratchpad.TypedBufferRef) int {
	if mask == nil {
		return c.rowLen
	}
	sec, err := c.sp.Get(*mask)
	if err != nil {
		return 0
	}
	n := 0
	for _, b := range sec.U8 {
		if b > 0 {
			n++
		}
	}
	return n
}

func compileAggregateCall(c *compileCtx, se Expr, mask *scratchpad.TypedBufferRef, groupOfRef, cardinalityRef scratchpad.TypedBufferRef) (codec.Section, error) {
	if se.Agg == AggCount {
		out := c.alloc.ref(nimbustype.I64)
		if err := runOp(&operators.VecCount{Grouping: groupOfRef, MaxIndex: cardinalityRef, Output: out}, c.rowLen, c.sp); err != nil {
			return codec.Section{}, err
		}
		return c.sp.Get(out)
	}

	operandRef, err := evalExpr(c, *se.Operand)
	if err != nil {
		return codec.Section{}, err
	}
	operandRef, err = c.applyFilter(operandRef, mask)
	if err != nil {
		return codec.Section{}, err
	}

	out := c.alloc.ref(nimbustype.I64)
	var op operators.Operator
	switch se.Agg {
	case AggSum:
		op = &operators.VecSum{Input: operandRef, Grouping: groupOfRef, MaxIndex: cardinalityRef, Output: out}
	case AggMax:
		op = &operators.VecMax{Input: operandRef, Grouping: groupOfRef, MaxIndex: cardinalityRef, Output: out}
	case AggMin:
		op = &operators.VecMin{Input: operandRef, Grouping: groupOfRef, MaxIndex: cardinalityRef, Output: out}
	default:
		return codec.Section{}, nimbuserr.New(nimbuserr.SyntaxError, "unknown aggregate %v", se.Agg)
	}
	if err := runOp(op, c.rowLen, c.sp); err != nil {
		return codec.Section{}, err
	}
	return c.sp.Get(out)
}

// packGroupRow renders row i of a composite GROUP BY key as a byte string,
// for HashMapGroupingByteSlices' Rows input.
func packGroupRow(sections []codec.Section, i int) []byte {
	var b []byte
	for _, sec := range sections {
		switch sec.Type.Base() {
		case nimbustype.I64:
			v := uint64(sec.I64[i])
			for j := 0; j < 8; j++ {
				b = append(b, byte(v>>(8*j)))
			}
		case nimbustype.F64:
			f := sec.F64[i]
			if math.IsNaN(f) {
				f = math.NaN()
			}
			bits := math.Float64bits(f)
			for j := 0; j < 8; j++ {
				b = append(b, byte(bits>>(8*j)))
			}
		case nimbustype.Str:
			b = append(b, []byte(sec.Str[i])...)
			b = append(b, 0)
		}
	}
	return b
}
