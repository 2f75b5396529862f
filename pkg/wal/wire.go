package wal

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
)

// Wire layout: (u64 id, repeated TableBatch), matching §4.5's
// "(u64 id, repeated (table_name, repeated (column_name, data)))". Unknown
// tags at every nesting level are skipped on decode, so a segment carrying
// extra fields still decodes; the skipped fields are not kept, and
// Serialize does not write them back.
const (
	fieldSegID     = 1
	fieldSegTables = 2

	fieldTableName = 1
	fieldTableRows = 2
	fieldTableCols = 3

	fieldColName = 1
	fieldColData = 2

	// ColumnData sub-tags: kind is a small varint tag, the payload is a
	// repeated packed field appropriate to it.
	fieldDataKind      = 1
	fieldDataDenseF64  = 2
	fieldDataDenseI64  = 3
	fieldDataSparseF64 = 4
	fieldDataSparseI64 = 5
	fieldDataMixed     = 6
)

// Serialize encodes a Segment to its wire form.
func Serialize(s *Segment) ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldSegID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, s.ID)
	for _, table := range s.Tables {
		tableBuf, err := serializeTable(table)
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, fieldSegTables, protowire.BytesType)
		buf = protowire.AppendBytes(buf, tableBuf)
	}
	return buf, nil
}

func serializeTable(t TableBatch) ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldTableName, protowire.BytesType)
	buf = protowire.AppendString(buf, t.TableName)
	buf = protowire.AppendTag(buf, fieldTableRows, protowire.VarintType)
	buf = protowire.AppendVarint(buf, t.RowCount)
	for name, col := range t.Columns {
		colBuf, err := serializeColumn(name, col)
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, fieldTableCols, protowire.BytesType)
		buf = protowire.AppendBytes(buf, colBuf)
	}
	return buf, nil
}

func serializeColumn(name string, col ColumnData) ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldColName, protowire.BytesType)
	buf = protowire.AppendString(buf, name)

	var data []byte
	data = protowire.AppendTag(data, fieldDataKind, protowire.VarintType)
	data = protowire.AppendVarint(data, uint64(col.Kind))

	switch col.Kind {
	case KindDenseF64:
		for _, v := range col.DenseF64 {
			data = protowire.AppendTag(data, fieldDataDenseF64, protowire.Fixed64Type)
			data = protowire.AppendFixed64(data, math.Float64bits(v))
		}
	case KindDenseI64:
		for _, v := range col.DenseI64 {
			data = protowire.AppendTag(data, fieldDataDenseI64, protowire.VarintType)
			data = protowire.AppendVarint(data, uint64(v))
		}
	case KindSparseF64:
		for _, s := range col.SparseF64 {
			var entry []byte
			entry = protowire.AppendTag(entry, 1, protowire.VarintType)
			entry = protowire.AppendVarint(entry, s.Index)
			entry = protowire.AppendTag(entry, 2, protowire.Fixed64Type)
			entry = protowire.AppendFixed64(entry, math.Float64bits(s.Value))
			data = protowire.AppendTag(data, fieldDataSparseF64, protowire.BytesType)
			data = protowire.AppendBytes(data, entry)
		}
	case KindSparseI64:
		for _, s := range col.SparseI64 {
			var entry []byte
			entry = protowire.AppendTag(entry, 1, protowire.VarintType)
			entry = protowire.AppendVarint(entry, s.Index)
			entry = protowire.AppendTag(entry, 2, protowire.VarintType)
			entry = protowire.AppendVarint(entry, uint64(s.Value))
			data = protowire.AppendTag(data, fieldDataSparseI64, protowire.BytesType)
			data = protowire.AppendBytes(data, entry)
		}
	case KindMixed:
		for _, v := range col.Mixed {
			data = protowire.AppendTag(data, fieldDataMixed, protowire.BytesType)
			data = protowire.AppendString(data, v)
		}
	default:
		return nil, nimbuserr.New(nimbuserr.Fatal, "wal: column %q has unknown kind %d", name, col.Kind)
	}

	buf = protowire.AppendTag(buf, fieldColData, protowire.BytesType)
	buf = protowire.AppendBytes(buf, data)
	return buf, nil
}

// Deserialize decodes a wire-form Segment.
func Deserialize(blob []byte) (*Segment, error) {
	s := &Segment{}
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, nimbuserr.New(nimbuserr.Corruption, "wal segment: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldSegID:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "wal segment: invalid id")
			}
			s.ID = v
			body = body[n:]
		case fieldSegTables:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "wal segment: invalid table block")
			}
			body = body[n:]
			table, err := deserializeTable(v)
			if err != nil {
				return nil, err
			}
			s.Tables = append(s.Tables, table)
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "wal segment: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return s, nil
}

func deserializeTable(blob []byte) (TableBatch, error) {
	t := TableBatch{Columns: make(map[string]ColumnData)}
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return t, nimbuserr.New(nimbuserr.Corruption, "wal table: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldTableName:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return t, nimbuserr.New(nimbuserr.Corruption, "wal table: invalid name")
			}
			t.TableName = v
			body = body[n:]
		case fieldTableRows:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return t, nimbuserr.New(nimbuserr.Corruption, "wal table: invalid row count")
			}
			t.RowCount = v
			body = body[n:]
		case fieldTableCols:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return t, nimbuserr.New(nimbuserr.Corruption, "wal table: invalid column block")
			}
			body = body[n:]
			name, col, err := deserializeColumn(v)
			if err != nil {
				return t, err
			}
			t.Columns[name] = col
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return t, nimbuserr.New(nimbuserr.Corruption, "wal table: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return t, nil
}

func deserializeColumn(blob []byte) (string, ColumnData, error) {
	var name string
	var col ColumnData
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return name, col, nimbuserr.New(nimbuserr.Corruption, "wal column: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldColName:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return name, col, nimbuserr.New(nimbuserr.Corruption, "wal column: invalid name")
			}
			name = v
			body = body[n:]
		case fieldColData:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return name, col, nimbuserr.New(nimbuserr.Corruption, "wal column: invalid data block")
			}
			body = body[n:]
			c, err := deserializeColumnData(v)
			if err != nil {
				return name, col, err
			}
			col = c
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return name, col, nimbuserr.New(nimbuserr.Corruption, "wal column: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return name, col, nil
}

func deserializeColumnData(blob []byte) (ColumnData, error) {
	var col ColumnData
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return col, nimbuserr.New(nimbuserr.Corruption, "wal column data: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldDataKind:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return col, nimbuserr.New(nimbuserr.Corruption, "wal column data: invalid kind")
			}
			col.Kind = Kind(v)
			body = body[n:]
		case fieldDataDenseF64:
			v, n := protowire.ConsumeFixed64(body)
			if n < 0 {
				return col, nimbuserr.New(nimbuserr.Corruption, "wal column data: invalid dense f64")
			}
			col.DenseF64 = append(col.DenseF64, math.Float64frombits(v))
			body = body[n:]
		case fieldDataDenseI64:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return col, nimbuserr.New(nimbuserr.Corruption, "wal column data: invalid dense i64")
			}
			col.DenseI64 = append(col.DenseI64, int64(v))
			body = body[n:]
		case fieldDataSparseF64:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return col, nimbuserr.New(nimbuserr.Corruption, "wal column data: invalid sparse f64 entry")
			}
			body = body[n:]
			entry, err := deserializeSparseF64(v)
			if err != nil {
				return col, err
			}
			col.SparseF64 = append(col.SparseF64, entry)
		case fieldDataSparseI64:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return col, nimbuserr.New(nimbuserr.Corruption, "wal column data: invalid sparse i64 entry")
			}
			body = body[n:]
			entry, err := deserializeSparseI64(v)
			if err != nil {
				return col, err
			}
			col.SparseI64 = append(col.SparseI64, entry)
		case fieldDataMixed:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return col, nimbuserr.New(nimbuserr.Corruption, "wal column data: invalid mixed value")
			}
			col.Mixed = append(col.Mixed, v)
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return col, nimbuserr.New(nimbuserr.Corruption, "wal column data: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return col, nil
}

func deserializeSparseF64(blob []byte) (SparseF64, error) {
	var s SparseF64
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return s, nimbuserr.New(nimbuserr.Corruption, "wal sparse f64: invalid tag")
		}
		body = body[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return s, nimbuserr.New(nimbuserr.Corruption, "wal sparse f64: invalid index")
			}
			s.Index = v
			body = body[n:]
		case 2:
			v, n := protowire.ConsumeFixed64(body)
			if n < 0 {
				return s, nimbuserr.New(nimbuserr.Corruption, "wal sparse f64: invalid value")
			}
			s.Value = math.Float64frombits(v)
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return s, nimbuserr.New(nimbuserr.Corruption, "wal sparse f64: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return s, nil
}

func deserializeSparseI64(blob []byte) (SparseI64, error) {
	var s SparseI64
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return s, nimbuserr.New(nimbuserr.Corruption, "wal sparse i64: invalid tag")
		}
		body = body[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return s, nimbuserr.New(nimbuserr.Corruption, "wal sparse i64: invalid index")
			}
			s.Index = v
			body = body[n:]
		case 2:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return s, nimbuserr.New(nimbuserr.Corruption, "wal sparse i64: invalid value")
			}
			s.Value = int64(v)
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return s, nimbuserr.New(nimbuserr.Corruption, "wal sparse i64: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return s, nil
}
