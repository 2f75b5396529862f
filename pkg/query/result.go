package query

import (
	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// ColumnKind tags which variant of the external query-result wire format
// (§6) a Column carries.
type ColumnKind int

const (
	ColumnFloat ColumnKind = iota
	ColumnInt
	ColumnString
	ColumnMixed
	ColumnNull
	ColumnXor
)

// Column is one named result column in the external wire format: a tagged
// union so a client decodes only the variant it actually asked for, rather
// than every query result paying for a generic Mixed/AnyVal representation
// (§6's "Column is a tagged union of Float/Int/String/Mixed/Null/Xor").
// This query engine only ever produces Float/Int/String/Null: Mixed and Xor
// describe raw on-disk column storage handled entirely within pkg/column
// and pkg/codec, never a query projection's own type (every projection
// expression is statically typed once arithmetic/aggregate rules narrow its
// operands), so a result.go value never carries those two kinds today.
//
// Nulls carries the Mixed-equivalent partial-nullability a plain
// Float/Int/String column needs when its source was Nullable<T> (scenario
// S1's "c = [null, 3.5] (Float, nullable)"): it is nil for an entirely
// non-nullable column, and otherwise one bool per row, true where that
// row's Floats/Ints/Strings slot is a null placeholder rather than a real
// value, rather than promoting the whole column to ColumnMixed.
type Column struct {
	Kind      ColumnKind
	Floats    []float64
	Ints      []int64
	Strings   []string
	Nulls     []bool
	NullCount int
	Xor       []byte
}

// Result is the final, fully-materialized answer to a query: an ordered set
// of named columns plus the query id that produced it, matching the shape
// run_query returns through the in-process API (§4.13).
type Result struct {
	QueryID string
	Columns map[string]Column
	Order   []string // column names in select-list order, for display
}

// Await blocks until task has run every partition, combines the partial
// results, and converts the final BatchResult into the external wire
// format (§4.11 step 6, "Finalize"). The caller schedules task on a
// scheduler.Scheduler before calling Await.
func Await(task *QueryTask) (*Result, error) {
	parts, err := task.Wait()
	if err != nil {
		return nil, err
	}
	combined, err := CombineResults(task.Query, parts)
	if err != nil {
		return nil, err
	}
	return toResult(task.ID, combined), nil
}

func toResult(queryID string, br *BatchResult) *Result {
	r := &Result{QueryID: queryID, Columns: make(map[string]Column, len(br.ColumnNames)), Order: br.ColumnNames}
	for i, name := range br.ColumnNames {
		var sec codec.Section
		if i < len(br.Columns) {
			sec = br.Columns[i]
		}
		r.Columns[name] = toWireColumn(sec)
	}
	return r
}

// toWireColumn converts one materialized result section into its external
// representation. A boolean (u8) result column — e.g. SELECT a < b with no
// surrounding aggregate — renders as Int 0/1, since §6's grammar has no
// separate boolean wire type. A Nullable<T> section (GetNullMap/
// AssembleNullable's data/bitmap pair, carried all the way from the
// partition's display column) gets its per-row Nulls marker populated
// instead of being silently densified.
func toWireColumn(sec codec.Section) Column {
	switch sec.Type.Base() {
	case nimbustype.F64:
		return Column{Kind: ColumnFloat, Floats: sec.F64, Nulls: nullMarkers(sec)}
	case nimbustype.Str:
		return Column{Kind: ColumnString, Strings: sec.Str, Nulls: nullMarkers(sec)}
	case nimbustype.U8:
		ints := make([]int64, len(sec.U8))
		for i, b := range sec.U8 {
			ints[i] = int64(b)
		}
		return Column{Kind: ColumnInt, Ints: ints, Nulls: nullMarkers(sec)}
	case nimbustype.Null:
		return Column{Kind: ColumnNull, NullCount: sec.Len()}
	default:
		return Column{Kind: ColumnInt, Ints: sec.I64, Nulls: nullMarkers(sec)}
	}
}

// nullMarkers reports, one bool per row, whether sec's Nullable<T> presence
// bitmap marks that row absent. Returns nil for a non-nullable section so a
// fully-present column's wire form carries no Nulls overhead.
func nullMarkers(sec codec.Section) []bool {
	if !sec.Type.IsNullable() {
		return nil
	}
	n := sec.Len()
	nulls := make([]bool, n)
	for i := range nulls {
		nulls[i] = !codec.BitmapGet(sec.NullBitmap, i)
	}
	return nulls
}
