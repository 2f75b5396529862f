package partition

import (
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// Wire field numbers for the meta-store message. Unknown fields on
// deserialize are skipped (protowire.ConsumeFieldValue), not rejected, so
// a blob carrying extra fields still decodes; the skipped fields are not
// kept, and Serialize does not write them back.
const (
	fieldNextWALID    = 1
	fieldStringTable  = 2
	fieldPartitions   = 3
	fieldTableName    = 1
	fieldID           = 2
	fieldOffset       = 3
	fieldLen          = 4
	fieldSubpartition = 5

	fieldSubKey       = 1
	fieldSubSizeBytes = 2
	fieldSubColumnsV0 = 3 // repeated raw strings (historical v0)
	fieldSubColumnIDs = 4 // packed varints into the string table (v1/v2)
)

// encoding version stored as the wire blob's first byte, ahead of any
// protowire field: v0 stored column names verbatim per subpartition; v1
// interned them against an uncompressed string table; v2 (current)
// LZ4-compresses both the string table and each subpartition's id list.
const (
	versionRawStrings        byte = 0
	versionInternedIDs       byte = 1
	versionCompressedIDs     byte = 2
)

const currentVersion = versionCompressedIDs

// Serialize encodes the meta-store in the current (v2) wire format:
// a deduplicated, sorted, LZ4-compressed column-name table, with each
// subpartition storing an LZ4-compressed sorted list of ids into it.
func Serialize(m *MetaStore) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := collectColumnNames(m)
	interned := make(map[string]uint32, len(names))
	for i, n := range names {
		interned[n] = uint32(i)
	}

	tableBlob := []byte(strings.Join(names, "\x00"))
	compressedTable, err := codec.CompressLZ4(codec.BytesSection(tableBlob))
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "compressing meta-store string table")
	}

	var buf []byte
	buf = protowire.AppendTag(buf, fieldNextWALID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, m.NextWALID)
	buf = protowire.AppendTag(buf, fieldStringTable, protowire.BytesType)
	buf = protowire.AppendBytes(buf, compressedTable)

	for _, table := range sortedTableNames(m) {
		tree := m.tables[table]
		tree.Ascend(func(item partitionItem) bool {
			partBuf, perr := serializePartition(item.meta, interned)
			if perr != nil {
				err = perr
				return false
			}
			buf = protowire.AppendTag(buf, fieldPartitions, protowire.BytesType)
			buf = protowire.AppendBytes(buf, partBuf)
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	return append([]byte{currentVersion}, buf...), nil
}

func sortedTableNames(m *MetaStore) []string {
	out := make([]string, 0, len(m.tables))
	for name := range m.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectColumnNames(m *MetaStore) []string {
	seen := map[string]struct{}{}
	for _, tree := range m.tables {
		tree.Ascend(func(item partitionItem) bool {
			for col := range item.meta.ColumnSubpartition {
				seen[col] = struct{}{}
			}
			return true
		})
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func serializePartition(meta *Metadata, interned map[string]uint32) ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldTableName, protowire.BytesType)
	buf = protowire.AppendString(buf, meta.TableName)
	buf = protowire.AppendTag(buf, fieldID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, meta.ID)
	buf = protowire.AppendTag(buf, fieldOffset, protowire.VarintType)
	buf = protowire.AppendVarint(buf, meta.Offset)
	buf = protowire.AppendTag(buf, fieldLen, protowire.VarintType)
	buf = protowire.AppendVarint(buf, meta.Len)

	for _, sub := range meta.Subpartitions {
		subBuf, err := serializeSubpartition(sub, interned)
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, fieldSubpartition, protowire.BytesType)
		buf = protowire.AppendBytes(buf, subBuf)
	}
	return buf, nil
}

func serializeSubpartition(sub SubpartitionMetadata, interned map[string]uint32) ([]byte, error) {
	ids := make([]uint32, 0, len(sub.Columns))
	for _, c := range sub.Columns {
		id, ok := interned[c]
		if !ok {
			return nil, nimbuserr.New(nimbuserr.Corruption, "column %q missing from interned string table", c)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var idBuf []byte
	for _, id := range ids {
		idBuf = protowire.AppendVarint(idBuf, uint64(id))
	}
	compressedIDs, err := codec.CompressLZ4(codec.BytesSection(idBuf))
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "compressing subpartition column ids")
	}

	var buf []byte
	buf = protowire.AppendTag(buf, fieldSubKey, protowire.BytesType)
	buf = protowire.AppendString(buf, sub.Key)
	buf = protowire.AppendTag(buf, fieldSubSizeBytes, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(sub.SizeBytes))
	buf = protowire.AppendTag(buf, fieldSubColumnIDs, protowire.BytesType)
	buf = protowire.AppendBytes(buf, compressedIDs)
	return buf, nil
}

// Deserialize decodes a meta-store wire blob, accepting all three
// historical encodings (§4.4).
func Deserialize(data []byte) (*MetaStore, error) {
	if len(data) == 0 {
		return New(), nil
	}
	version := data[0]
	body := data[1:]

	m := New()
	var names []string

	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, nimbuserr.New(nimbuserr.Corruption, "meta-store: invalid tag")
		}
		body = body[n:]

		switch num {
		case fieldNextWALID:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "meta-store: invalid next_wal_id")
			}
			m.NextWALID = v
			body = body[n:]

		case fieldStringTable:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "meta-store: invalid string table")
			}
			body = body[n:]
			tableBlob := v
			if version == versionCompressedIDs {
				decoded, err := decompressLZ4Raw(v)
				if err != nil {
					return nil, err
				}
				tableBlob = decoded
			}
			if len(tableBlob) > 0 {
				names = strings.Split(string(tableBlob), "\x00")
			}

		case fieldPartitions:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "meta-store: invalid partition block")
			}
			body = body[n:]
			meta, err := deserializePartition(v, version, names)
			if err != nil {
				return nil, err
			}
			m.AddPartition(meta)

		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "meta-store: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return m, nil
}

func deserializePartition(data []byte, version byte, names []string) (*Metadata, error) {
	meta := &Metadata{ColumnSubpartition: make(map[string]int)}
	body := data
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, nimbuserr.New(nimbuserr.Corruption, "partition: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldTableName:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "partition: invalid tablename")
			}
			meta.TableName = v
			body = body[n:]
		case fieldID:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "partition: invalid id")
			}
			meta.ID = v
			body = body[n:]
		case fieldOffset:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "partition: invalid offset")
			}
			meta.Offset = v
			body = body[n:]
		case fieldLen:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "partition: invalid len")
			}
			meta.Len = v
			body = body[n:]
		case fieldSubpartition:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "partition: invalid subpartition block")
			}
			body = body[n:]
			sub, err := deserializeSubpartition(v, version, names)
			if err != nil {
				return nil, err
			}
			idx := len(meta.Subpartitions)
			meta.Subpartitions = append(meta.Subpartitions, sub)
			for _, col := range sub.Columns {
				meta.ColumnSubpartition[col] = idx
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, nimbuserr.New(nimbuserr.Corruption, "partition: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return meta, nil
}

func deserializeSubpartition(data []byte, version byte, names []string) (SubpartitionMetadata, error) {
	var sub SubpartitionMetadata
	body := data
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return sub, nimbuserr.New(nimbuserr.Corruption, "subpartition: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldSubKey:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return sub, nimbuserr.New(nimbuserr.Corruption, "subpartition: invalid key")
			}
			sub.Key = v
			body = body[n:]
		case fieldSubSizeBytes:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return sub, nimbuserr.New(nimbuserr.Corruption, "subpartition: invalid size_bytes")
			}
			sub.SizeBytes = int64(v)
			body = body[n:]
		case fieldSubColumnsV0:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return sub, nimbuserr.New(nimbuserr.Corruption, "subpartition: invalid v0 column name")
			}
			sub.Columns = append(sub.Columns, v)
			body = body[n:]
		case fieldSubColumnIDs:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return sub, nimbuserr.New(nimbuserr.Corruption, "subpartition: invalid column id list")
			}
			body = body[n:]
			idBuf := v
			if version == versionCompressedIDs {
				decoded, err := decompressLZ4Raw(v)
				if err != nil {
					return sub, err
				}
				idBuf = decoded
			}
			for len(idBuf) > 0 {
				id, n := protowire.ConsumeVarint(idBuf)
				if n < 0 {
					return sub, nimbuserr.New(nimbuserr.Corruption, "subpartition: invalid column id varint")
				}
				idBuf = idBuf[n:]
				if int(id) >= len(names) {
					return sub, nimbuserr.New(nimbuserr.Corruption, "subpartition: column id %d out of range of string table (%d entries)", id, len(names))
				}
				sub.Columns = append(sub.Columns, names[id])
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return sub, nimbuserr.New(nimbuserr.Corruption, "subpartition: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return sub, nil
}

// decompressLZ4Raw decompresses an lz4 frame to its raw byte contents,
// without reinterpreting it as any typed section (used for the string
// table and column-id varint streams, which are just opaque bytes).
func decompressLZ4Raw(compressed []byte) ([]byte, error) {
	sec, err := codec.DecodeLZ4(compressed, nimbustype.U8, 0)
	if err != nil {
		return nil, err
	}
	return sec.Bytes, nil
}
