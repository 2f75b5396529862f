// Package ingest implements the in-memory ingest buffer of §4.6: a mirror
// of the WAL's schema that additionally tracks each column's observed type
// lattice until the buffer is lowered into a durable Column.
package ingest

import (
	"sort"
	"sync"

	"github.com/nimbusdb/nimbusdb/pkg/column"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/wal"
)

// rawColumn accumulates one column's values in submission order, tracking
// the union of logical types seen so far (§4.6's type-widening lattice:
// null ⊂ integer ⊂ mixed, null ⊂ float ⊂ mixed, null ⊂ string ⊂ mixed).
// Exactly one typed slice is populated at a time, selected by logical;
// present is lazily nil while every row seen is non-null.
type rawColumn struct {
	logical nimbustype.LogicalType
	rows    int

	present []bool
	ints    []int64
	floats  []float64
	strs    []string
	mixed   []nimbustype.Value
}

func newRawColumn() *rawColumn { return &rawColumn{logical: nimbustype.LogicalNull} }

// push appends v as the next row, widening the column's type as needed.
func (c *rawColumn) push(v nimbustype.Value) {
	incoming := logicalOf(v)

	if c.logical == nimbustype.LogicalMixed {
		c.mixed = append(c.mixed, v)
		c.rows++
		return
	}

	widened := nimbustype.WidenLattice(c.logical, incoming)
	if widened == nimbustype.LogicalMixed {
		c.convertToMixed()
		c.mixed = append(c.mixed, v)
		c.logical = nimbustype.LogicalMixed
		c.rows++
		return
	}

	if c.logical == nimbustype.LogicalNull && widened != nimbustype.LogicalNull {
		c.materialize(widened, c.rows)
		c.logical = widened
	}

	switch c.logical {
	case nimbustype.LogicalInteger:
		if incoming == nimbustype.LogicalNull {
			c.ints = append(c.ints, 0)
			c.present = markNull(c.present, len(c.ints)-1, false)
		} else {
			c.ints = append(c.ints, v.Int)
			c.present = markNull(c.present, len(c.ints)-1, true)
		}
	case nimbustype.LogicalFloat:
		if incoming == nimbustype.LogicalNull {
			c.floats = append(c.floats, 0)
			c.present = markNull(c.present, len(c.floats)-1, false)
		} else {
			c.floats = append(c.floats, v.Float)
			c.present = markNull(c.present, len(c.floats)-1, true)
		}
	case nimbustype.LogicalString:
		if incoming == nimbustype.LogicalNull {
			c.strs = append(c.strs, "")
			c.present = markNull(c.present, len(c.strs)-1, false)
		} else {
			c.strs = append(c.strs, v.Str)
			c.present = markNull(c.present, len(c.strs)-1, true)
		}
	}
	c.rows++
}

// materialize allocates a typed slice of the given logical type, pre-filled
// with n null entries, used the first time a raw column sees a typed value
// after a run of null-only rows (§4.6: "missing columns get null-padded").
func (c *rawColumn) materialize(logical nimbustype.LogicalType, n int) {
	if n == 0 {
		return
	}
	c.present = make([]bool, n)
	switch logical {
	case nimbustype.LogicalInteger:
		c.ints = make([]int64, n)
	case nimbustype.LogicalFloat:
		c.floats = make([]float64, n)
	case nimbustype.LogicalString:
		c.strs = make([]string, n)
	}
}

// convertToMixed renders the currently active typed slice into Value form,
// preserving nulls, ahead of a type clash forcing a widen to Mixed.
func (c *rawColumn) convertToMixed() {
	mixed := make([]nimbustype.Value, c.rows)
	switch c.logical {
	case nimbustype.LogicalInteger:
		for i, v := range c.ints {
			if c.present != nil && !c.present[i] {
				mixed[i] = nimbustype.NullValue
			} else {
				mixed[i] = nimbustype.IntValue(v)
			}
		}
	case nimbustype.LogicalFloat:
		for i, v := range c.floats {
			if c.present != nil && !c.present[i] {
				mixed[i] = nimbustype.NullValue
			} else {
				mixed[i] = nimbustype.FloatValue(v)
			}
		}
	case nimbustype.LogicalString:
		for i, v := range c.strs {
			if c.present != nil && !c.present[i] {
				mixed[i] = nimbustype.NullValue
			} else {
				mixed[i] = nimbustype.StrValue(v)
			}
		}
	case nimbustype.LogicalNull:
		for i := range mixed {
			mixed[i] = nimbustype.NullValue
		}
	}
	c.mixed = mixed
	c.ints, c.floats, c.strs, c.present = nil, nil, nil, nil
}

// markNull grows a presence slice (lazily allocated: nil means "all
// present so far") to record a null or non-null at index i.
func markNull(present []bool, i int, value bool) []bool {
	if present == nil {
		if value {
			return nil
		}
		present = make([]bool, i+1)
		for j := 0; j < i; j++ {
			present[j] = true
		}
	}
	for len(present) <= i {
		present = append(present, true)
	}
	present[i] = value
	return present
}

// padNull extends the raw column with n null rows, used when a column is
// missing from a row.
func (c *rawColumn) padNull(n int) {
	for i := 0; i < n; i++ {
		c.push(nimbustype.NullValue)
	}
}

func logicalOf(v nimbustype.Value) nimbustype.LogicalType {
	switch v.Kind {
	case nimbustype.KindInt:
		return nimbustype.LogicalInteger
	case nimbustype.KindFloat:
		return nimbustype.LogicalFloat
	case nimbustype.KindStr:
		return nimbustype.LogicalString
	default:
		return nimbustype.LogicalNull
	}
}

// Buffer mirrors the WAL in memory with an open schema: rows may introduce
// new columns at any time, and earlier rows are treated as null for them.
type Buffer struct {
	mu          sync.Mutex
	tableName   string
	rowCount    int
	columns     map[string]*rawColumn
	columnOrder []string
}

// NewBuffer creates an empty ingest buffer for one table.
func NewBuffer(tableName string) *Buffer {
	return &Buffer{tableName: tableName, columns: make(map[string]*rawColumn)}
}

// PushRow appends one row given as a column name → value map, in submission
// order. Columns absent from values are null-padded; a value for a column
// not seen before allocates it, back-padding the rows preceding it as null.
func (b *Buffer) PushRow(values map[string]nimbustype.Value) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name := range values {
		if _, ok := b.columns[name]; !ok {
			col := newRawColumn()
			col.padNull(b.rowCount)
			b.columns[name] = col
			b.columnOrder = append(b.columnOrder, name)
		}
	}
	for _, name := range b.columnOrder {
		col := b.columns[name]
		if v, ok := values[name]; ok {
			col.push(v)
		} else {
			col.padNull(1)
		}
	}
	b.rowCount++
}

// RowCount reports the number of rows accumulated so far.
func (b *Buffer) RowCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rowCount
}

// ColumnNames reports the columns seen so far, in first-appearance order.
func (b *Buffer) ColumnNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.columnOrder))
	copy(names, b.columnOrder)
	return names
}

// Finalize lowers one raw column into a durable Column (§4.6), choosing the
// cheapest codec chain for its observed logical type. dictionaryCardinalityMax
// bounds when a string column gets dictionary-encoded versus packed.
func (b *Buffer) Finalize(name string, dictionaryCardinalityMax int) (*column.Column, error) {
	b.mu.Lock()
	col, ok := b.columns[name]
	if !ok {
		rowCount := b.rowCount
		b.mu.Unlock()
		return column.BuildNullColumn(name, rowCount), nil
	}
	logical := col.logical
	n := col.rows
	var ints []int64
	var floats []float64
	var strs []string
	var mixed []nimbustype.Value
	var present []bool
	if col.present != nil {
		present = append([]bool(nil), col.present...)
	}
	switch logical {
	case nimbustype.LogicalInteger:
		ints = append([]int64(nil), col.ints...)
	case nimbustype.LogicalFloat:
		floats = append([]float64(nil), col.floats...)
	case nimbustype.LogicalString:
		strs = append([]string(nil), col.strs...)
	case nimbustype.LogicalMixed:
		mixed = append([]nimbustype.Value(nil), col.mixed...)
	}
	b.mu.Unlock()

	switch logical {
	case nimbustype.LogicalNull:
		return column.BuildNullColumn(name, n), nil
	case nimbustype.LogicalInteger:
		return column.BuildIntColumn(name, ints, present)
	case nimbustype.LogicalFloat:
		return column.BuildFloatColumn(name, floats, present)
	case nimbustype.LogicalString:
		return column.BuildStringColumn(name, strs, present, dictionaryCardinalityMax)
	default:
		return column.BuildMixedColumn(name, mixed), nil
	}
}

// FinalizeAll lowers every column in the buffer, in sorted name order (a
// stable, test-friendly iteration order the caller can rely on when
// assembling a partition's subpartitions).
func (b *Buffer) FinalizeAll(dictionaryCardinalityMax int) (map[string]*column.Column, error) {
	names := b.ColumnNames()
	sort.Strings(names)
	out := make(map[string]*column.Column, len(names))
	for _, name := range names {
		col, err := b.Finalize(name, dictionaryCardinalityMax)
		if err != nil {
			return nil, err
		}
		out[name] = col
	}
	return out, nil
}

// TableName reports the table this buffer accumulates rows for.
func (b *Buffer) TableName() string { return b.tableName }

// SinceRow renders rows [since, RowCount) into a wal.TableBatch, the
// mirror-to-WAL half of §4.6 ("the ingest buffer mirrors the WAL in
// memory"): the storage engine calls this to durably append only the rows
// a table has accumulated since its last WAL flush.
func (b *Buffer) SinceRow(since int) wal.TableBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := wal.TableBatch{
		TableName: b.tableName,
		RowCount:  uint64(b.rowCount - since),
		Columns:   make(map[string]wal.ColumnData, len(b.columnOrder)),
	}
	for _, name := range b.columnOrder {
		batch.Columns[name] = b.columns[name].walSlice(since, b.rowCount)
	}
	return batch
}

// walSlice encodes rows [since, upto) of one raw column into its WAL wire
// representation: dense when every row in range is present, sparse
// otherwise for Integer/Float columns; String/Mixed/Null columns always
// render through wal.KindMixed (dense, one type-tagged entry per row)
// since the wire format has no separate dense-string kind (§4.5).
func (c *rawColumn) walSlice(since, upto int) wal.ColumnData {
	n := upto - since
	present := func(i int) bool {
		return c.present == nil || i >= len(c.present) || c.present[i]
	}
	switch c.logical {
	case nimbustype.LogicalInteger:
		dense := true
		for i := since; i < upto; i++ {
			if !present(i) {
				dense = false
				break
			}
		}
		if dense {
			vals := make([]int64, n)
			copy(vals, c.ints[since:upto])
			return wal.ColumnData{Kind: wal.KindDenseI64, DenseI64: vals}
		}
		var sparse []wal.SparseI64
		for i := since; i < upto; i++ {
			if present(i) {
				sparse = append(sparse, wal.SparseI64{Index: uint64(i - since), Value: c.ints[i]})
			}
		}
		return wal.ColumnData{Kind: wal.KindSparseI64, SparseI64: sparse}
	case nimbustype.LogicalFloat:
		dense := true
		for i := since; i < upto; i++ {
			if !present(i) {
				dense = false
				break
			}
		}
		if dense {
			vals := make([]float64, n)
			copy(vals, c.floats[since:upto])
			return wal.ColumnData{Kind: wal.KindDenseF64, DenseF64: vals}
		}
		var sparse []wal.SparseF64
		for i := since; i < upto; i++ {
			if present(i) {
				sparse = append(sparse, wal.SparseF64{Index: uint64(i - since), Value: c.floats[i]})
			}
		}
		return wal.ColumnData{Kind: wal.KindSparseF64, SparseF64: sparse}
	default:
		mixed := make([]string, n)
		for i := since; i < upto; i++ {
			idx := i - since
			switch c.logical {
			case nimbustype.LogicalString:
				if present(i) {
					mixed[idx] = nimbustype.EncodeValue(nimbustype.StrValue(c.strs[i]))
				} else {
					mixed[idx] = nimbustype.EncodeValue(nimbustype.NullValue)
				}
			case nimbustype.LogicalMixed:
				mixed[idx] = nimbustype.EncodeValue(c.mixed[i])
			default: // LogicalNull
				mixed[idx] = nimbustype.EncodeValue(nimbustype.NullValue)
			}
		}
		return wal.ColumnData{Kind: wal.KindMixed, Mixed: mixed}
	}
}

// ReplayWAL reconstructs and pushes every row of batch into b, reversing
// SinceRow, used by the storage engine's startup recovery (§4.7 step 4:
// "replay into the in-memory buffer") to rebuild table state from WAL
// segments the last shutdown did not fold into a partition.
func (b *Buffer) ReplayWAL(batch wal.TableBatch) {
	rows := make([]map[string]nimbustype.Value, batch.RowCount)
	for i := range rows {
		rows[i] = make(map[string]nimbustype.Value)
	}
	for name, data := range batch.Columns {
		switch data.Kind {
		case wal.KindDenseF64:
			for i, v := range data.DenseF64 {
				rows[i][name] = nimbustype.FloatValue(v)
			}
		case wal.KindDenseI64:
			for i, v := range data.DenseI64 {
				rows[i][name] = nimbustype.IntValue(v)
			}
		case wal.KindSparseF64:
			for _, s := range data.SparseF64 {
				rows[s.Index][name] = nimbustype.FloatValue(s.Value)
			}
		case wal.KindSparseI64:
			for _, s := range data.SparseI64 {
				rows[s.Index][name] = nimbustype.IntValue(s.Value)
			}
		case wal.KindMixed:
			for i, s := range data.Mixed {
				rows[i][name] = nimbustype.DecodeValue(s)
			}
		}
	}
	for _, row := range rows {
		b.PushRow(row)
	}
}
