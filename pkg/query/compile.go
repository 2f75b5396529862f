package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/operators"
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// compileRegex compiles a REGEXP operand's pattern once at plan time.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.SyntaxError, err, "compiling REGEXP pattern %q", pattern)
	}
	return re, nil
}

// BatchResult is one partition's contribution to a query's answer: a set of
// named output columns, all the same length, either raw filtered/ordered
// rows (streaming-select path) or one row per distinct group
// (hash-grouping path). The combine stage reduces a slice of these into one
// final BatchResult (§4.11's "combine partial results").
type BatchResult struct {
	Aggregate   bool
	ColumnNames []string
	Columns     []codec.Section
}

// bufAlloc hands out monotonically increasing scratchpad buffer refs for one
// partition's compiled pipeline.
type bufAlloc struct{ next scratchpad.BufferRef }

func (a *bufAlloc) ref(t nimbustype.EncodingType) scratchpad.TypedBufferRef {
	r := a.next
	a.next++
	return scratchpad.TypedBufferRef{Ref: r, Type: t}
}

// runOp drives one operator through its full Init/Execute/Finalize
// lifecycle in a single non-streaming pass, the shape every compiled
// per-partition pipeline in this package uses (§4.11 compiles a short,
// fixed operator sequence per partition rather than a windowed stream,
// since the column is already fully decoded in memory by the time
// compilation runs).
func runOp(op operators.Operator, totalLen int, sp *scratchpad.Scratchpad) error {
	if err := op.Init(totalLen, totalLen, sp); err != nil {
		return err
	}
	if err := op.Execute(false, sp); err != nil {
		return err
	}
	return op.Finalize(sp)
}

// compileCtx carries the per-partition compilation state: the scratchpad
// every operator reads/writes, the buffer allocator, and the column
// buffers already seeded from the partition's decoded data.
type compileCtx struct {
	sp     *scratchpad.Scratchpad
	alloc  *bufAlloc
	raw    map[string]scratchpad.TypedBufferRef
	dense  map[string]scratchpad.TypedBufferRef
	rowLen int
}

func (c *compileCtx) rawColumn(name string) (scratchpad.TypedBufferRef, error) {
	ref, ok := c.raw[name]
	if !ok {
		return scratchpad.TypedBufferRef{}, nimbuserr.New(nimbuserr.NotFound, "column %q not resolved for this query", name)
	}
	return ref, nil
}

// denseColumn returns a non-nullable buffer for name, fusing away any
// presence bitmap on first access (§4.10's FuseNullsI64/FuseNullsStr): most
// operators in this pipeline have no nullable-aware variant, so every
// operand feeding arithmetic, comparison, grouping, or sorting is fused to
// its base type up front. IS NULL/IS NOT NULL read the raw buffer instead,
// through rawColumn, before this fusing ever happens.
func (c *compileCtx) denseColumn(name string) (scratchpad.TypedBufferRef, error) {
	if ref, ok := c.dense[name]; ok {
		return ref, nil
	}
	raw, err := c.rawColumn(name)
	if err != nil {
		return scratchpad.TypedBufferRef{}, err
	}
	sec, err := c.sp.Get(raw)
	if err != nil {
		return scratchpad.TypedBufferRef{}, err
	}
	if !sec.Type.IsNullable() {
		c.dense[name] = raw
		return raw, nil
	}
	base := sec.Type.Base()
	out := c.alloc.ref(base)
	switch base {
	case nimbustype.I64:
		if err := runOp(&operators.FuseNullsI64{Input: raw, Sentinel: 0, Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
	case nimbustype.Str:
		if err := runOp(&operators.FuseNullsStr{Input: raw, Sentinel: "", Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
	default:
		// Nullable<F64> has no fuse operator; the dense F64 slice underneath
		// a Nullable<F64> section is already populated positionally, so
		// arithmetic over it simply treats a null row's stored value (the
		// ingest buffer pads these with 0) as its value. Documented
		// simplification: NULL propagation through float arithmetic is not
		// tracked past this point. The value is re-homed into a fresh cell
		// tagged plain F64 so downstream Filter/Select don't inherit a
		// Nullable<F64> type tag with no matching bitmap semantics.
		out = c.alloc.ref(nimbustype.F64)
		if err := c.sp.Set(out, codec.F64Section(append([]float64(nil), sec.F64...))); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
	}
	c.dense[name] = out
	return out, nil
}

// displayColumn returns name's buffer for SELECT-list output: unlike
// denseColumn, a nullable column is returned as-is, bitmap intact, rather
// than fused to a sentinel (§4.10's GetNullMap/AssembleNullable path,
// exercised end to end instead of only from this package's own operator
// tests). Computation (arithmetic, predicates, grouping, sorting) still
// goes through denseColumn, since those operators have no nullable-aware
// variant; only bare display of a column's own values needs the bitmap.
func (c *compileCtx) displayColumn(name string) (scratchpad.TypedBufferRef, error) {
	return c.rawColumn(name)
}

func (c *compileCtx) applyFilter(ref scratchpad.TypedBufferRef, mask *scratchpad.TypedBufferRef) (scratchpad.TypedBufferRef, error) {
	if mask == nil {
		return ref, nil
	}
	sec, err := c.sp.Get(ref)
	if err != nil {
		return scratchpad.TypedBufferRef{}, err
	}
	out := c.alloc.ref(sec.Type.Base())
	if err := runOp(&operators.Filter{Input: ref, Mask: *mask, Output: out}, c.rowLen, c.sp); err != nil {
		return scratchpad.TypedBufferRef{}, err
	}
	return out, nil
}

// evalExpr lowers e into a sequence of operators writing a dense result
// buffer, returning the TypedBufferRef holding it. Evaluation always runs
// over the partition's full (unfiltered) row count; callers filter the
// result afterward via applyFilter.
func evalExpr(c *compileCtx, e Expr) (scratchpad.TypedBufferRef, error) {
	switch e.Kind {
	case ExprColumn:
		if e.ColName == "*" {
			return scratchpad.TypedBufferRef{}, nimbuserr.New(nimbuserr.SyntaxError, "* may only appear as a bare select item")
		}
		return c.denseColumn(e.ColName)

	case ExprConst:
		return evalConst(c, e.Const)

	case ExprFunc1:
		return evalFunc1(c, e)

	case ExprFunc2:
		lhs, err := evalExpr(c, *e.Left)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		rhs, err := evalExpr(c, *e.Right)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		outType := nimbustype.I64
		if isComparisonOrBool(e.BinOp) {
			outType = nimbustype.U8
		} else if isFloatOperand(c, lhs) || isFloatOperand(c, rhs) {
			outType = nimbustype.F64
		}
		out := c.alloc.ref(outType)
		if err := runOp(&operators.BinaryOperator{LHS: lhs, RHS: rhs, Op: e.BinOp, Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		return out, nil

	case ExprLike:
		operand, err := evalExpr(c, *e.Left)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		pattern, err := operators.CompileLikePattern(e.Pattern)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		out := c.alloc.ref(nimbustype.U8)
		if err := runOp(&operators.Like{Input: operand, Pattern: pattern, Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		return out, nil

	case ExprRegexMatch:
		operand, err := evalExpr(c, *e.Left)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		pattern, err := compileRegex(e.Pattern)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		out := c.alloc.ref(nimbustype.U8)
		if err := runOp(&operators.RegexMatch{Input: operand, Pattern: pattern, Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		return out, nil

	case ExprAggregate:
		return scratchpad.TypedBufferRef{}, nimbuserr.New(nimbuserr.SyntaxError, "aggregate function not allowed outside the select list")

	default:
		return scratchpad.TypedBufferRef{}, nimbuserr.New(nimbuserr.SyntaxError, "unknown expression kind %d", e.Kind)
	}
}

func isFloatOperand(c *compileCtx, ref scratchpad.TypedBufferRef) bool {
	sec, err := c.sp.Get(ref)
	return err == nil && sec.Type.Base() == nimbustype.F64
}

func evalConst(c *compileCtx, v nimbustype.Value) (scratchpad.TypedBufferRef, error) {
	t := nimbustype.Null
	switch v.Kind {
	case nimbustype.KindInt:
		t = nimbustype.I64
	case nimbustype.KindFloat:
		t = nimbustype.F64
	case nimbustype.KindStr:
		t = nimbustype.Str
	}
	out := c.alloc.ref(t)
	if err := runOp(&operators.ConstantExpand{Value: v, Len: c.rowLen, Output: out}, c.rowLen, c.sp); err != nil {
		return scratchpad.TypedBufferRef{}, err
	}
	return out, nil
}

func evalFunc1(c *compileCtx, e Expr) (scratchpad.TypedBufferRef, error) {
	switch e.Func1 {
	case Func1IsNull, Func1IsNotNull:
		return evalNullCheck(c, e)
	}

	operand, err := evalExpr(c, *e.Operand)
	if err != nil {
		return scratchpad.TypedBufferRef{}, err
	}
	switch e.Func1 {
	case Func1Negate:
		sec, err := c.sp.Get(operand)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		t := sec.Type.Base()
		zero := c.alloc.ref(t)
		zeroValue := nimbustype.IntValue(0)
		if t == nimbustype.F64 {
			zeroValue = nimbustype.FloatValue(0)
		}
		if err := runOp(&operators.ConstantExpand{Value: zeroValue, Len: c.rowLen, Output: zero}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		out := c.alloc.ref(t)
		if err := runOp(&operators.BinaryOperator{LHS: zero, RHS: operand, Op: operators.OpSubtract, Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		return out, nil

	case Func1Not:
		out := c.alloc.ref(nimbustype.U8)
		if err := runOp(&operators.BooleanNot{Input: operand, Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		return out, nil

	case Func1ToYear:
		out := c.alloc.ref(nimbustype.I64)
		if err := runOp(&operators.ToYear{Input: operand, Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		return out, nil

	case Func1Length:
		out := c.alloc.ref(nimbustype.I64)
		if err := runOp(&operators.Length{Input: operand, Output: out}, c.rowLen, c.sp); err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		return out, nil

	default:
		return scratchpad.TypedBufferRef{}, nimbuserr.New(nimbuserr.SyntaxError, "unknown unary function %d", e.Func1)
	}
}

// evalNullCheck handles IS NULL/IS NOT NULL specially: it needs the raw
// (pre-fuse) column buffer to read the real presence bitmap. A non-column
// operand is never nullable in this package's expression model, so it
// lowers straight to an all-true/all-false constant mask.
func evalNullCheck(c *compileCtx, e Expr) (scratchpad.TypedBufferRef, error) {
	wantNull := e.Func1 == Func1IsNull

	if e.Operand.Kind == ExprColumn {
		raw, err := c.rawColumn(e.Operand.ColName)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		sec, err := c.sp.Get(raw)
		if err != nil {
			return scratchpad.TypedBufferRef{}, err
		}
		if sec.Type.IsNullable() {
			out := c.alloc.ref(nimbustype.U8)
			if wantNull {
				return out, runOp(&operators.IsNull{Input: raw, Output: out}, c.rowLen, c.sp)
			}
			return out, runOp(&operators.IsNotNull{Input: raw, Output: out}, c.rowLen, c.sp)
		}
		if sec.Type == nimbustype.Null {
			// Column is wholly absent from this partition's schema: every
			// row counts as null.
			out := c.alloc.ref(nimbustype.U8)
			v := nimbustype.IntValue(1)
			if !wantNull {
				v = nimbustype.IntValue(0)
			}
			return out, runOp(&operators.ConstantExpand{Value: v, Len: c.rowLen, Output: out}, c.rowLen, c.sp)
		}
	}

	v := nimbustype.IntValue(0)
	if !wantNull {
		v = nimbustype.IntValue(1)
	}
	out := c.alloc.ref(nimbustype.U8)
	return out, runOp(&operators.ConstantExpand{Value: v, Len: c.rowLen, Output: out}, c.rowLen, c.sp)
}

// isComparisonOrBool reports whether op produces a u8 boolean mask rather
// than a value of its operands' type.
func isComparisonOrBool(op operators.BinOp) bool {
	switch op {
	case operators.OpLess, operators.OpLessEq, operators.OpGreater, operators.OpGreaterEq,
		operators.OpEquals, operators.OpNotEquals, operators.OpBoolAnd, operators.OpBoolOr:
		return true
	default:
		return false
	}
}

// binOpSymbol renders op the way §6's grammar spells it, for unaliased
// computed-expression column labels.
func binOpSymbol(op operators.BinOp) string {
	switch op {
	case operators.OpLess:
		return "<"
	case operators.OpLessEq:
		return "<="
	case operators.OpGreater:
		return ">"
	case operators.OpGreaterEq:
		return ">="
	case operators.OpEquals:
		return "="
	case operators.OpNotEquals:
		return "<>"
	case operators.OpBoolAnd:
		return "AND"
	case operators.OpBoolOr:
		return "OR"
	case operators.OpAdd:
		return "+"
	case operators.OpSubtract:
		return "-"
	case operators.OpMultiply:
		return "*"
	case operators.OpDivide:
		return "/"
	case operators.OpModulo:
		return "%"
	default:
		return "?"
	}
}

// exprLabel renders e as the output column name a computed select
// expression takes when it has no explicit alias (§6 has no AS clause, so
// every computed expression is labeled by its rendered form, matching a
// psql-style anonymous column name).
func exprLabel(e Expr) string {
	switch e.Kind {
	case ExprColumn:
		return e.ColName
	case ExprConst:
		return e.Const.String()
	case ExprFunc1:
		return fmt.Sprintf("%s(%s)", func1Name(e.Func1), exprLabel(*e.Operand))
	case ExprFunc2:
		return fmt.Sprintf("(%s %s %s)", exprLabel(*e.Left), binOpSymbol(e.BinOp), exprLabel(*e.Right))
	case ExprLike:
		return fmt.Sprintf("(%s LIKE %q)", exprLabel(*e.Left), e.Pattern)
	case ExprRegexMatch:
		return fmt.Sprintf("(%s REGEXP %q)", exprLabel(*e.Left), e.Pattern)
	case ExprAggregate:
		operand := "*"
		if !(e.Operand.Kind == ExprConst && e.Operand.Const.Kind == nimbustype.KindInt) {
			operand = exprLabel(*e.Operand)
		}
		return fmt.Sprintf("%s(%s)", e.Agg, operand)
	default:
		return "?"
	}
}

func func1Name(f Func1) string {
	switch f {
	case Func1Negate:
		return "-"
	case Func1ToYear:
		return "TO_YEAR"
	case Func1Not:
		return "NOT"
	case Func1IsNull:
		return "IS_NULL"
	case Func1IsNotNull:
		return "IS_NOT_NULL"
	case Func1Length:
		return "LENGTH"
	default:
		return "?"
	}
}

// estimateBufferCount upper-bounds the scratchpad cells one partition's
// compiled pipeline needs, generous enough that a real query never runs out
// (§4.9's arena is sized once per query rather than grown dynamically).
func estimateBufferCount(q *Query) int {
	count := 16 // filter mask, sort indices, grouping outputs, misc
	var walk func(e Expr) int
	walk = func(e Expr) int {
		n := 1
		switch e.Kind {
		case ExprFunc1:
			n += walk(*e.Operand)
		case ExprFunc2:
			n += walk(*e.Left) + walk(*e.Right)
		case ExprLike, ExprRegexMatch:
			n += walk(*e.Left)
		case ExprAggregate:
			n += walk(*e.Operand)
		}
		return n
	}
	for _, e := range q.Select {
		count += 4 * walk(e)
	}
	count += 4 * walk(q.Filter)
	for _, e := range q.GroupBy {
		count += 4 * walk(e)
	}
	return count * 2
}

// partitionColumnSections decodes every column in names, tolerating a
// column absent from this partition's schema as an all-null, length-only
// section (§4.4's "partitions may have heterogeneous schemas" note on
// columns introduced mid-stream).
func partitionColumnSections(ctx context.Context, handle *PartitionHandle, names map[string]bool) (map[string]codec.Section, error) {
	out := make(map[string]codec.Section, len(names))
	for name := range names {
		col, err := handle.Load(ctx, name)
		if err != nil {
			if nimbuserr.Is(err, nimbuserr.NotFound) {
				out[name] = codec.Section{Type: nimbustype.Null, Bytes: make([]byte, handle.Len())}
				continue
			}
			return nil, err
		}
		sec, err := col.Decode()
		if err != nil {
			return nil, err
		}
		out[name] = sec
	}
	return out, nil
}

func sortedNames(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
