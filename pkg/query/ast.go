// Package query implements the planner and task model of §4.11: parsing a
// SELECT statement, compiling a per-partition operator graph over it,
// running that graph through the scheduler, and combining the per-partition
// results into one answer.
package query

import (
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/operators"
)

// Func1 names a unary scalar function (§6's grammar), mirrored from
// original_source's Func1Type.
type Func1 int

const (
	Func1Negate Func1 = iota
	Func1ToYear
	Func1Not
	Func1IsNull
	Func1IsNotNull
	Func1Length
)

// Aggregator names a SQL aggregate function (§6).
type Aggregator int

const (
	AggSum Aggregator = iota
	AggCount
	AggMax
	AggMin
)

func (a Aggregator) String() string {
	switch a {
	case AggSum:
		return "SUM"
	case AggCount:
		return "COUNT"
	case AggMax:
		return "MAX"
	case AggMin:
		return "MIN"
	default:
		return "?"
	}
}

// Expr is a scalar expression tree: a column reference, a literal, a unary
// or binary function application, or an aggregate wrapping a sub-expression
// (§6's expression grammar; shape grounded on original_source's syntax.Expr
// enum, with Func2Type folded into operators.BinOp rather than a second
// parallel enum, since every Func2Type variant already has a BinOp twin).
type Expr struct {
	Kind ExprKind

	// ColName is set when Kind == ExprColumn; "*" means every column.
	ColName string

	// Const is set when Kind == ExprConst.
	Const nimbustype.Value

	// Func1/Operand are set when Kind == ExprFunc1.
	Func1   Func1
	Operand *Expr

	// BinOp/Left/Right are set when Kind == ExprFunc2.
	BinOp operators.BinOp
	Left  *Expr
	Right *Expr

	// Like/RegexMatch set when Kind == ExprLike/ExprRegexMatch; Left is the
	// operand, Pattern the literal pattern string.
	Pattern string

	// Agg/Operand are set when Kind == ExprAggregate.
	Agg Aggregator
}

type ExprKind int

const (
	ExprColumn ExprKind = iota
	ExprConst
	ExprFunc1
	ExprFunc2
	ExprLike
	ExprRegexMatch
	ExprAggregate
)

func ColumnExpr(name string) Expr { return Expr{Kind: ExprColumn, ColName: name} }
func ConstExpr(v nimbustype.Value) Expr { return Expr{Kind: ExprConst, Const: v} }
func Func1Expr(f Func1, operand Expr) Expr {
	return Expr{Kind: ExprFunc1, Func1: f, Operand: &operand}
}
func BinExpr(op operators.BinOp, left, right Expr) Expr {
	return Expr{Kind: ExprFunc2, BinOp: op, Left: &left, Right: &right}
}
func LikeExpr(left Expr, pattern string) Expr {
	return Expr{Kind: ExprLike, Left: &left, Pattern: pattern}
}
func RegexExpr(left Expr, pattern string) Expr {
	return Expr{Kind: ExprRegexMatch, Left: &left, Pattern: pattern}
}
func AggregateExpr(agg Aggregator, operand Expr) Expr {
	return Expr{Kind: ExprAggregate, Agg: agg, Operand: &operand}
}

// ColumnNames collects every distinct column name referenced anywhere in e,
// the "column resolution" step of §4.11's planner (grounded on
// original_source's Expr::add_colnames).
func (e Expr) ColumnNames(into map[string]bool) {
	switch e.Kind {
	case ExprColumn:
		if e.ColName != "*" {
			into[e.ColName] = true
		}
	case ExprFunc1:
		e.Operand.ColumnNames(into)
	case ExprFunc2:
		e.Left.ColumnNames(into)
		e.Right.ColumnNames(into)
	case ExprLike, ExprRegexMatch:
		e.Left.ColumnNames(into)
	case ExprAggregate:
		e.Operand.ColumnNames(into)
	}
}

func (e Expr) IsWildcard() bool { return e.Kind == ExprColumn && e.ColName == "*" }

// OrderBy names the single sort key §6's grammar allows.
type OrderBy struct {
	ColName    string
	Descending bool
}

// Query is a fully parsed SELECT statement, the input to the planner
// (§4.11's "parsed query"), grounded on original_source's engine::query::Query.
type Query struct {
	Select  []Expr
	Table   string
	Filter  Expr // Expr{Kind: ExprConst, Const: IntValue(1)} when no WHERE clause
	GroupBy []Expr
	OrderBy *OrderBy
	Limit   int
	Offset  int
}

// HasAggregates reports whether any top-level select expression is an
// aggregate, the branch point of §4.11 step 2 ("if aggregate is empty:
// streaming select; otherwise: hash grouping").
func (q *Query) HasAggregates() bool {
	for _, e := range q.Select {
		if e.Kind == ExprAggregate {
			return true
		}
	}
	return false
}

// HasFilter reports whether q carries a real WHERE clause, as opposed to the
// parser's default "no WHERE clause" sentinel (Filter: ConstExpr(IntValue(1))).
func (q *Query) HasFilter() bool {
	return !(q.Filter.Kind == ExprConst && q.Filter.Const.Kind == nimbustype.KindInt && q.Filter.Const.Int == 1)
}

// ReferencedColumns returns the full set of column names the plan must read:
// every name mentioned in Select, Filter, GroupBy, and OrderBy.
func (q *Query) ReferencedColumns() map[string]bool {
	cols := make(map[string]bool)
	for _, e := range q.Select {
		e.ColumnNames(cols)
	}
	q.Filter.ColumnNames(cols)
	for _, e := range q.GroupBy {
		e.ColumnNames(cols)
	}
	if q.OrderBy != nil {
		cols[q.OrderBy.ColName] = true
	}
	return cols
}
