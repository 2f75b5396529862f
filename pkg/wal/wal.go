// Package wal implements the write-ahead log segment format of §4.5: a
// batch of newly ingested rows grouped by table, each table holding a
// column_name → buffer mapping where buffer is dense or sparse typed data.
package wal

// Kind selects which one of ColumnData's five variants is populated.
type Kind int

const (
	KindDenseF64 Kind = iota
	KindDenseI64
	KindSparseF64
	KindSparseI64
	KindMixed
)

// SparseF64 pairs a row index with a value; absent indices are null.
type SparseF64 struct {
	Index uint64
	Value float64
}

type SparseI64 struct {
	Index uint64
	Value int64
}

// ColumnData is a single column's data within one table's WAL entry.
type ColumnData struct {
	Kind Kind

	DenseF64  []float64
	DenseI64  []int64
	SparseF64 []SparseF64
	SparseI64 []SparseI64
	// Mixed holds stringly-rendered values for columns whose type lattice
	// widened to Mixed (§4.6); index i corresponds to row i of the segment.
	Mixed []string
}

// TableBatch is one table's worth of columns within a segment.
type TableBatch struct {
	TableName string
	RowCount  uint64
	Columns   map[string]ColumnData
}

// Segment is one WAL segment: a monotonic id plus per-table column batches
// (§4.5).
type Segment struct {
	ID     uint64
	Tables []TableBatch
}

// Validate checks §4.5's invariant: every column's indices (for sparse
// data) are within the table's declared row count, and dense data's length
// matches it exactly.
func (s *Segment) Validate() error {
	for _, table := range s.Tables {
		for name, col := range table.Columns {
			if err := col.validate(table.RowCount, table.TableName, name); err != nil {
				return err
			}
		}
	}
	return nil
}
