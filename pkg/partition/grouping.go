package partition

import (
	"sort"

	"github.com/nimbusdb/nimbusdb/pkg/column"
)

// GroupSubpartitions packs columns into subpartitions whose total
// compressed size stays within targetBytes, in arrival (sorted-name) order,
// per §4.4 ("the column-to-subpartition grouping is chosen at persist time
// to keep subpartition size within a configurable target"). A column whose
// own compressed size already exceeds targetBytes gets its own
// subpartition rather than being split (§9's Open Question resolution: a
// size-target heuristic is sufficient since the meta-store records
// whatever grouping was actually realized).
//
// keyPrefix namespaces the generated subpartition keys so two partitions
// never collide on key alone (the facade uses the partition id).
func GroupSubpartitions(columns map[string]*column.Column, targetBytes int64, keyPrefix string) []SubpartitionMetadata {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	var subs []SubpartitionMetadata
	var cur SubpartitionMetadata
	var curSize int64
	flush := func() {
		if len(cur.Columns) == 0 {
			return
		}
		cur.Key = subpartitionKey(keyPrefix, len(subs))
		cur.SizeBytes = curSize
		subs = append(subs, cur)
		cur = SubpartitionMetadata{}
		curSize = 0
	}

	for _, name := range names {
		size := int64(columns[name].ByteSize())
		if curSize > 0 && curSize+size > targetBytes {
			flush()
		}
		cur.Columns = append(cur.Columns, name)
		curSize += size
	}
	flush()
	return subs
}

func subpartitionKey(prefix string, index int) string {
	return prefix + "_sub" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// NewMetadata builds a partition's Metadata from its finalized columns,
// grouping them into subpartitions via GroupSubpartitions and deriving the
// column -> subpartition index mapping §4.4 requires.
func NewMetadata(tableName string, id, offset uint64, columns map[string]*column.Column, targetBytes int64) *Metadata {
	rowLen := uint64(0)
	for _, col := range columns {
		rowLen = uint64(col.Len)
		break
	}
	subs := GroupSubpartitions(columns, targetBytes, itoa(int(id)))
	colSub := make(map[string]int, len(columns))
	for i, sub := range subs {
		for _, name := range sub.Columns {
			colSub[name] = i
		}
	}
	return &Metadata{
		TableName:          tableName,
		ID:                 id,
		Offset:             offset,
		Len:                rowLen,
		Subpartitions:      subs,
		ColumnSubpartition: colSub,
	}
}
