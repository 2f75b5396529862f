package query

import (
	"math"
	"sort"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/operators"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// CombineResults reduces one BatchResult per partition into the query's
// final answer (§4.11 step 3: "combine partial results"). Every partition
// already applied its WHERE/ORDER BY/LIMIT locally, so combine only merges
// across partitions and re-applies the query's global OFFSET/LIMIT — or,
// for a GROUP BY query, re-groups values whose group landed in more than
// one partition under the same key.
func CombineResults(q *Query, parts []*BatchResult) (*BatchResult, error) {
	var names []string
	for _, p := range parts {
		if p != nil {
			names = p.ColumnNames
			break
		}
	}
	if names == nil {
		names = make([]string, len(q.Select))
		for i, e := range q.Select {
			names[i] = exprLabel(e)
		}
	}

	if q.HasAggregates() {
		return combineAggregateResults(q, names, parts)
	}
	return combineSelectResults(q, names, parts)
}

func combineSelectResults(q *Query, names []string, parts []*BatchResult) (*BatchResult, error) {
	nCols := len(names)
	var live []*BatchResult
	for _, p := range parts {
		if p != nil {
			live = append(live, p)
		}
	}

	merged, err := tournamentMergeSelect(q, names, live, nCols)
	if err != nil {
		return nil, err
	}
	if merged == nil {
		perColumn := make([][]codec.Section, nCols)
		for _, p := range live {
			for i := 0; i < nCols && i < len(p.Columns); i++ {
				perColumn[i] = append(perColumn[i], p.Columns[i])
			}
		}
		merged = make([]codec.Section, nCols)
		for i := range merged {
			merged[i] = concatSections(perColumn[i])
		}
		if q.OrderBy != nil {
			if orderIdx := indexOf(names, q.OrderBy.ColName); orderIdx >= 0 {
				perm := sortPermutation(merged[orderIdx], q.OrderBy.Descending)
				for i := range merged {
					merged[i] = permuteSection(merged[i], perm)
				}
			}
		}
	}

	n := 0
	if nCols > 0 {
		n = merged[0].Len()
	}
	start, end := offsetLimit(q, n)
	for i := range merged {
		merged[i] = sliceSection(merged[i], start, end)
	}
	return &BatchResult{ColumnNames: names, Columns: merged}, nil
}

// tournamentMergeSelect folds parts pairwise through operators.Merge/
// MergeKeep on the query's ORDER BY column (§4.11 step 5's "tournament-
// style reducer... O(n log p)"), each partition having already sorted
// itself locally. It returns nil, nil when the shape doesn't fit: no
// ORDER BY, fewer than two partitions, a non-integer ranking column
// (Merge's toI64Slice has no Float/Str widening), or any nullable column
// in play (Merge/MergeKeep don't carry a NullBitmap, so a nullable display
// column falls back to the concat+permute path below, which does).
func tournamentMergeSelect(q *Query, names []string, parts []*BatchResult, nCols int) ([]codec.Section, error) {
	if q.OrderBy == nil || len(parts) < 2 {
		return nil, nil
	}
	orderIdx := indexOf(names, q.OrderBy.ColName)
	if orderIdx < 0 || orderIdx >= len(parts[0].Columns) || parts[0].Columns[orderIdx].Type.Base() != nimbustype.I64 {
		return nil, nil
	}
	for _, p := range parts {
		for _, sec := range p.Columns {
			if sec.Type.IsNullable() {
				return nil, nil
			}
			switch sec.Type.Base() {
			case nimbustype.I64, nimbustype.F64, nimbustype.Str:
			default:
				return nil, nil
			}
		}
	}

	acc := append([]codec.Section(nil), parts[0].Columns...)
	for _, p := range parts[1:] {
		next, err := mergeTwo(acc, p.Columns, orderIdx, q.OrderBy.Descending)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// mergeTwo runs a single operators.Merge step on left/right's order column,
// then replays MergeOps through MergeKeep for every other column so all
// columns stay row-aligned with the merged order column.
func mergeTwo(left, right []codec.Section, orderIdx int, descending bool) ([]codec.Section, error) {
	nCols := len(left)
	sp := scratchpad.New(3*nCols+2, nil)
	cell := func(i int) scratchpad.TypedBufferRef {
		return scratchpad.TypedBufferRef{Ref: scratchpad.BufferRef(i), Type: nimbustype.I64}
	}
	leftRefs := make([]scratchpad.TypedBufferRef, nCols)
	rightRefs := make([]scratchpad.TypedBufferRef, nCols)
	for i := 0; i < nCols; i++ {
		leftRefs[i] = cell(i)
		rightRefs[i] = cell(nCols + i)
		if err := sp.Set(leftRefs[i], left[i]); err != nil {
			return nil, err
		}
		if err := sp.Set(rightRefs[i], right[i]); err != nil {
			return nil, err
		}
	}
	mergedRef := cell(2 * nCols)
	opsRef := cell(2*nCols + 1)
	mergeOp := &operators.Merge{Left: leftRefs[orderIdx], Right: rightRefs[orderIdx], Merged: mergedRef, MergeOps: opsRef, Descending: descending}
	if err := runOp(mergeOp, left[orderIdx].Len()+right[orderIdx].Len(), sp); err != nil {
		return nil, err
	}

	out := make([]codec.Section, nCols)
	mergedSec, err := sp.Get(mergedRef)
	if err != nil {
		return nil, err
	}
	out[orderIdx] = mergedSec
	for i := 0; i < nCols; i++ {
		if i == orderIdx {
			continue
		}
		outRef := cell(2*nCols + 2 + i)
		keepOp := &operators.MergeKeep{Left: leftRefs[i], Right: rightRefs[i], MergeOps: opsRef, Output: outRef}
		if err := runOp(keepOp, 0, sp); err != nil {
			return nil, err
		}
		sec, err := sp.Get(outRef)
		if err != nil {
			return nil, err
		}
		out[i] = sec
	}
	return out, nil
}

// combineAggregateResults re-groups every partition's (key, aggregate) rows
// by the full group-by key, since the same key can legitimately appear in
// more than one partition's partial result (§8's cross-partition grouping
// property). SUM/COUNT combine additively; MAX/MIN combine by taking the
// extremum of the two partial extrema — both the associative combine §8's
// Testable Property 9 requires of a correct partial-aggregate merge.
func combineAggregateResults(q *Query, names []string, parts []*BatchResult) (*BatchResult, error) {
	nCols := len(q.Select)
	var groupColIdx []int
	for i, e := range q.Select {
		if e.Kind == ExprColumn {
			groupColIdx = append(groupColIdx, i)
		}
	}

	// Every surviving (partition, row) pair becomes one composite-key row;
	// HashMapGroupingValRows (§4.10's grouping family) assigns each the
	// dense group index a same-key row from a different partition must
	// share, replacing a hand-rolled string-keyed map with the named
	// operator. Its own Unique output carries no row data for this key
	// variant, so group values are still read back off the source rows by
	// group index, same as before.
	var rows [][]nimbustype.Value
	var rowPart []*BatchResult
	var rowAt []int
	for _, p := range parts {
		if p == nil || len(p.Columns) == 0 {
			continue
		}
		n := p.Columns[0].Len()
		for r := 0; r < n; r++ {
			key := make([]nimbustype.Value, len(groupColIdx))
			for gi, ci := range groupColIdx {
				key[gi] = sectionValueAt(p.Columns[ci], r)
			}
			rows = append(rows, key)
			rowPart = append(rowPart, p)
			rowAt = append(rowAt, r)
		}
	}

	groupOfRef := scratchpad.TypedBufferRef{Ref: 0, Type: nimbustype.U32}
	cardRef := scratchpad.TypedBufferRef{Ref: 1, Type: nimbustype.I64}
	uniqueRef := scratchpad.TypedBufferRef{Ref: 2, Type: nimbustype.ValRows}
	sp := scratchpad.New(3, nil)
	groupOp := &operators.HashMapGroupingValRows{Rows: rows, GroupOf: groupOfRef, Cardinality: cardRef, Unique: uniqueRef}
	if err := runOp(groupOp, len(rows), sp); err != nil {
		return nil, err
	}
	groupOfSec, err := sp.Get(groupOfRef)
	if err != nil {
		return nil, err
	}
	cardVal, err := sp.GetConst(cardRef)
	if err != nil {
		return nil, err
	}
	n := int(cardVal.Int)

	groupVals := make([][]nimbustype.Value, n)
	aggOut := make([][]int64, n)
	aggSeen := make([][]bool, n)
	for i := range groupVals {
		groupVals[i] = make([]nimbustype.Value, nCols)
		aggOut[i] = make([]int64, nCols)
		aggSeen[i] = make([]bool, nCols)
	}

	for i, g := range groupOfSec.U32 {
		idx := int(g)
		p, r := rowPart[i], rowAt[i]
		for _, ci := range groupColIdx {
			groupVals[idx][ci] = sectionValueAt(p.Columns[ci], r)
		}
		for ci, e := range q.Select {
			if e.Kind != ExprAggregate {
				continue
			}
			v := p.Columns[ci].I64[r]
			switch e.Agg {
			case AggSum, AggCount:
				aggOut[idx][ci] += v
			case AggMax:
				if !aggSeen[idx][ci] || v > aggOut[idx][ci] {
					aggOut[idx][ci] = v
				}
			case AggMin:
				if !aggSeen[idx][ci] || v < aggOut[idx][ci] {
					aggOut[idx][ci] = v
				}
			}
			aggSeen[idx][ci] = true
		}
	}
	cols := make([]codec.Section, nCols)
	for ci, e := range q.Select {
		if e.Kind == ExprAggregate {
			vals := make([]int64, n)
			for r := range aggOut {
				vals[r] = aggOut[r][ci]
			}
			cols[ci] = codec.I64Section(vals)
			continue
		}
		cols[ci] = buildGroupColumn(groupVals, ci)
	}

	if q.OrderBy != nil {
		if orderIdx := indexOf(names, q.OrderBy.ColName); orderIdx >= 0 {
			perm := sortPermutation(cols[orderIdx], q.OrderBy.Descending)
			for i := range cols {
				cols[i] = permuteSection(cols[i], perm)
			}
		}
	}

	start, end := offsetLimit(q, n)
	for i := range cols {
		cols[i] = sliceSection(cols[i], start, end)
	}
	return &BatchResult{Aggregate: true, ColumnNames: names, Columns: cols}, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// offsetLimit clamps [offset, offset+limit) against n, the no-LIMIT case
// passing every row through.
func offsetLimit(q *Query, n int) (start, end int) {
	start = q.Offset
	if start > n {
		start = n
	}
	if start < 0 {
		start = 0
	}
	end = n
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return start, end
}

func sectionValueAt(sec codec.Section, r int) nimbustype.Value {
	switch sec.Type.Base() {
	case nimbustype.I64:
		return nimbustype.IntValue(sec.I64[r])
	case nimbustype.F64:
		return nimbustype.FloatValue(sec.F64[r])
	case nimbustype.Str:
		return nimbustype.StrValue(sec.Str[r])
	default:
		return nimbustype.NullValue
	}
}

// buildGroupColumn renders select column ci's group-key values back into a
// typed Section, inferring the column's type from the first row (every row
// in a given select position carries the same type, since it comes from the
// same GROUP BY expression every time).
func buildGroupColumn(rows [][]nimbustype.Value, ci int) codec.Section {
	if len(rows) == 0 {
		return codec.I64Section(nil)
	}
	switch rows[0][ci].Kind {
	case nimbustype.KindFloat:
		out := make([]float64, len(rows))
		for r, row := range rows {
			out[r] = row[ci].Float
		}
		return codec.F64Section(out)
	case nimbustype.KindStr:
		out := make([]string, len(rows))
		for r, row := range rows {
			out[r] = row[ci].Str
		}
		return codec.StrSection(out)
	default:
		out := make([]int64, len(rows))
		for r, row := range rows {
			out[r] = row[ci].Int
		}
		return codec.I64Section(out)
	}
}

// concatSections concatenates secs row-wise. When any input carries a
// Nullable<T> presence bitmap, the output gets one too (a non-nullable
// input along the way contributes all-present rows) so a display column's
// null markers (§4.10) survive crossing a partition boundary, not just
// staying intact within one partition's own result.
func concatSections(secs []codec.Section) codec.Section {
	if len(secs) == 0 {
		return codec.I64Section(nil)
	}
	nullable := false
	for _, s := range secs {
		if s.Type.IsNullable() {
			nullable = true
			break
		}
	}

	var out codec.Section
	switch secs[0].Type.Base() {
	case nimbustype.F64:
		var vals []float64
		for _, s := range secs {
			vals = append(vals, s.F64...)
		}
		out = codec.F64Section(vals)
	case nimbustype.Str:
		var vals []string
		for _, s := range secs {
			vals = append(vals, s.Str...)
		}
		out = codec.StrSection(vals)
	case nimbustype.U8:
		var vals []uint8
		for _, s := range secs {
			vals = append(vals, s.U8...)
		}
		out = codec.U8Section(vals)
	default:
		var vals []int64
		for _, s := range secs {
			vals = append(vals, s.I64...)
		}
		out = codec.I64Section(vals)
	}

	if nullable {
		out.Type = secs[0].Type.Base().Nullable()
		out.NullBitmap = concatNullBitmaps(secs)
	}
	return out
}

// concatNullBitmaps rebuilds a row-aligned presence bitmap across secs in
// concatenation order, treating any non-nullable input's rows as entirely
// present.
func concatNullBitmaps(secs []codec.Section) []uint64 {
	total := 0
	for _, s := range secs {
		total += s.Len()
	}
	words := make([]uint64, codec.BitmapWord(total))
	row := 0
	for _, s := range secs {
		n := s.Len()
		for i := 0; i < n; i++ {
			present := true
			if s.Type.IsNullable() {
				present = codec.BitmapGet(s.NullBitmap, i)
			}
			if present {
				codec.BitmapSet(words, row)
			}
			row++
		}
	}
	return words
}

func sliceSection(sec codec.Section, start, end int) codec.Section {
	out := sec
	switch sec.Type.Base() {
	case nimbustype.I64:
		out.I64 = sec.I64[start:end]
	case nimbustype.F64:
		out.F64 = sec.F64[start:end]
	case nimbustype.Str:
		out.Str = sec.Str[start:end]
	case nimbustype.U8:
		out.U8 = sec.U8[start:end]
	}
	if sec.Type.IsNullable() {
		out.NullBitmap = sliceNullBitmap(sec.NullBitmap, start, end)
	}
	return out
}

func permuteSection(sec codec.Section, perm []int) codec.Section {
	var out codec.Section
	switch sec.Type.Base() {
	case nimbustype.I64:
		vals := make([]int64, len(perm))
		for i, p := range perm {
			vals[i] = sec.I64[p]
		}
		out = codec.I64Section(vals)
	case nimbustype.F64:
		vals := make([]float64, len(perm))
		for i, p := range perm {
			vals[i] = sec.F64[p]
		}
		out = codec.F64Section(vals)
	case nimbustype.Str:
		vals := make([]string, len(perm))
		for i, p := range perm {
			vals[i] = sec.Str[p]
		}
		out = codec.StrSection(vals)
	default:
		return sec
	}
	if sec.Type.IsNullable() {
		out.Type = sec.Type
		words := make([]uint64, codec.BitmapWord(len(perm)))
		for i, p := range perm {
			if codec.BitmapGet(sec.NullBitmap, p) {
				codec.BitmapSet(words, i)
			}
		}
		out.NullBitmap = words
	}
	return out
}

// sliceNullBitmap re-packs bitmap[start:end] into a freshly word-aligned
// bitmap so downstream BitmapGet calls index from 0, matching sliceSection's
// row renumbering.
func sliceNullBitmap(bitmap []uint64, start, end int) []uint64 {
	words := make([]uint64, codec.BitmapWord(end-start))
	for i := start; i < end; i++ {
		if codec.BitmapGet(bitmap, i) {
			codec.BitmapSet(words, i-start)
		}
	}
	return words
}

// sortPermutation returns the row-index order that sorts key ascending (or
// descending), breaking ties by original position for a stable sort. Floats
// use a NaN-sorts-highest total order, matching operators.f64Less (§9's
// resolved Open Question on NaN ordering).
func sortPermutation(key codec.Section, descending bool) []int {
	n := key.Len()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	less := func(i, j int) bool {
		a, b := perm[i], perm[j]
		switch key.Type.Base() {
		case nimbustype.F64:
			if descending {
				return f64LessTotal(key.F64[b], key.F64[a])
			}
			return f64LessTotal(key.F64[a], key.F64[b])
		case nimbustype.Str:
			if descending {
				return key.Str[b] < key.Str[a]
			}
			return key.Str[a] < key.Str[b]
		default:
			if descending {
				return key.I64[b] < key.I64[a]
			}
			return key.I64[a] < key.I64[b]
		}
	}
	sort.SliceStable(perm, less)
	return perm
}

func f64LessTotal(a, b float64) bool {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if aNaN || bNaN {
		return !aNaN && bNaN
	}
	return a < b
}
