package column

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// Wire field numbers for a single Column message, and for the subpartition
// bundle message that groups named columns into one blob per §4.4 ("the
// blob is the bincode-equivalent serialization of the contained columns").
const (
	fieldColName    = 1
	fieldColLen     = 2
	fieldColLogical = 3
	fieldColRangeOK = 4
	fieldColRangeLo = 5
	fieldColRangeHi = 6
	fieldColOps     = 7
	fieldColSection = 8

	fieldBundleEntry    = 1
	fieldBundleEntryKey = 1
	fieldBundleEntryCol = 2
)

// SerializeColumn encodes one Column, its codec pipeline and data sections,
// to bytes.
func SerializeColumn(c *Column) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldColName, protowire.BytesType)
	buf = protowire.AppendString(buf, c.Name)
	buf = protowire.AppendTag(buf, fieldColLen, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.Len))
	buf = protowire.AppendTag(buf, fieldColLogical, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.Logical))
	if c.Range.Present {
		buf = protowire.AppendTag(buf, fieldColRangeOK, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
		buf = protowire.AppendTag(buf, fieldColRangeLo, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(c.Range.Min))
		buf = protowire.AppendTag(buf, fieldColRangeHi, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(c.Range.Max))
	}
	for _, op := range c.Codec {
		buf = protowire.AppendTag(buf, fieldColOps, protowire.BytesType)
		buf = protowire.AppendBytes(buf, codec.SerializeOp(op))
	}
	for _, sec := range c.DataSections {
		buf = protowire.AppendTag(buf, fieldColSection, protowire.BytesType)
		buf = protowire.AppendBytes(buf, codec.SerializeSection(sec))
	}
	return buf
}

// DeserializeColumn decodes one Column previously produced by SerializeColumn.
func DeserializeColumn(blob []byte) (*Column, error) {
	c := &Column{}
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldColName:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid name")
			}
			c.Name = v
			body = body[n:]
		case fieldColLen:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid len")
			}
			c.Len = int(v)
			body = body[n:]
		case fieldColLogical:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid logical")
			}
			c.Logical = nimbustype.LogicalType(v)
			body = body[n:]
		case fieldColRangeOK:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid range flag")
			}
			c.Range.Present = v != 0
			body = body[n:]
		case fieldColRangeLo:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid range min")
			}
			c.Range.Min = protowire.DecodeZigZag(v)
			body = body[n:]
		case fieldColRangeHi:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid range max")
			}
			c.Range.Max = protowire.DecodeZigZag(v)
			body = body[n:]
		case fieldColOps:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid op")
			}
			op, err := codec.DeserializeOp(v)
			if err != nil {
				return nil, nimbuserr.Wrap(nimbuserr.Corruption, err, "column %q: decoding op", c.Name)
			}
			c.Codec = append(c.Codec, op)
			body = body[n:]
		case fieldColSection:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: invalid section")
			}
			sec, err := codec.DeserializeSection(v)
			if err != nil {
				return nil, nimbuserr.Wrap(nimbuserr.Corruption, err, "column %q: decoding section", c.Name)
			}
			c.DataSections = append(c.DataSections, sec)
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "column: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return c, nil
}

// SerializeBundle encodes a subpartition's full set of named columns into
// one blob (§4.4: one blob per "{partition_id}_{subpartition_key}.part").
// names fixes iteration order so the encoding is deterministic.
func SerializeBundle(names []string, columns map[string]*Column) []byte {
	var buf []byte
	for _, name := range names {
		col, ok := columns[name]
		if !ok {
			continue
		}
		var entry []byte
		entry = protowire.AppendTag(entry, fieldBundleEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = protowire.AppendTag(entry, fieldBundleEntryCol, protowire.BytesType)
		entry = protowire.AppendBytes(entry, SerializeColumn(col))

		buf = protowire.AppendTag(buf, fieldBundleEntry, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry)
	}
	return buf
}

// DeserializeBundle decodes a blob produced by SerializeBundle, returning
// the columns keyed by name and the order they were encoded in.
func DeserializeBundle(blob []byte) (map[string]*Column, []string, error) {
	columns := make(map[string]*Column)
	var order []string
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, nil, nimbuserr.New(nimbuserr.Corruption, "bundle: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldBundleEntry:
			entryBytes, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nil, nimbuserr.New(nimbuserr.Corruption, "bundle: invalid entry")
			}
			name, col, err := deserializeBundleEntry(entryBytes)
			if err != nil {
				return nil, nil, err
			}
			columns[name] = col
			order = append(order, name)
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, nil, nimbuserr.New(nimbuserr.Corruption, "bundle: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return columns, order, nil
}

func deserializeBundleEntry(blob []byte) (string, *Column, error) {
	var name string
	var col *Column
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return "", nil, nimbuserr.New(nimbuserr.Corruption, "bundle entry: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldBundleEntryKey:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return "", nil, nimbuserr.New(nimbuserr.Corruption, "bundle entry: invalid name")
			}
			name = v
			body = body[n:]
		case fieldBundleEntryCol:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return "", nil, nimbuserr.New(nimbuserr.Corruption, "bundle entry: invalid column")
			}
			c, err := DeserializeColumn(v)
			if err != nil {
				return "", nil, err
			}
			col = c
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return "", nil, nimbuserr.New(nimbuserr.Corruption, "bundle entry: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return name, col, nil
}
