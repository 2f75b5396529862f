package wal

import "github.com/nimbusdb/nimbusdb/pkg/nimbuserr"

func (c ColumnData) validate(rowCount uint64, table, column string) error {
	switch c.Kind {
	case KindDenseF64:
		if uint64(len(c.DenseF64)) != rowCount {
			return nimbuserr.New(nimbuserr.Corruption, "wal: table %q column %q dense f64 length %d != row count %d", table, column, len(c.DenseF64), rowCount)
		}
	case KindDenseI64:
		if uint64(len(c.DenseI64)) != rowCount {
			return nimbuserr.New(nimbuserr.Corruption, "wal: table %q column %q dense i64 length %d != row count %d", table, column, len(c.DenseI64), rowCount)
		}
	case KindSparseF64:
		for _, s := range c.SparseF64 {
			if s.Index >= rowCount {
				return nimbuserr.New(nimbuserr.Corruption, "wal: table %q column %q sparse f64 index %d >= row count %d", table, column, s.Index, rowCount)
			}
		}
	case KindSparseI64:
		for _, s := range c.SparseI64 {
			if s.Index >= rowCount {
				return nimbuserr.New(nimbuserr.Corruption, "wal: table %q column %q sparse i64 index %d >= row count %d", table, column, s.Index, rowCount)
			}
		}
	case KindMixed:
		if uint64(len(c.Mixed)) != rowCount {
			return nimbuserr.New(nimbuserr.Corruption, "wal: table %q column %q mixed length %d != row count %d", table, column, len(c.Mixed), rowCount)
		}
	default:
		return nimbuserr.New(nimbuserr.Fatal, "wal: table %q column %q has unknown data kind %d", table, column, c.Kind)
	}
	return nil
}
