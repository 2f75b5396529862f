// Package column implements the immutable, sectioned, compressed column
// model of §4.3: a Column pairs a codec pipeline with the raw data sections
// it decodes, plus the metadata (length, optional integer range) the query
// planner and disk-read scheduler need without decoding the column body.
package column

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// Range is a column's optional decoded-integer bound, used by the planner
// to skip partitions a predicate cannot match.
type Range struct {
	Min, Max int64
	Present  bool
}

// Column is an immutable unit of one partition's data (§3's "Column (C)").
type Column struct {
	Name  string
	Len   int
	Logical nimbustype.LogicalType
	Range Range

	// Codec is the ordered pipeline that reproduces the logical values from
	// DataSections; DataSections[0] holds the primary encoded values,
	// 1..N hold auxiliary data (dictionary bytes, presence bitmaps, ...).
	Codec        codec.Pipeline
	DataSections []codec.Section
}

// Decode runs Codec against DataSections, reproducing the logical values.
func (c *Column) Decode() (codec.Section, error) {
	sec, err := c.Codec.Decode(c.DataSections)
	if err != nil {
		return codec.Section{}, nimbuserr.Wrap(nimbuserr.Corruption, err, "decoding column %q", c.Name)
	}
	if sec.Len() != c.Len {
		return codec.Section{}, nimbuserr.New(nimbuserr.Corruption, "column %q decoded to %d rows, metadata says %d", c.Name, sec.Len(), c.Len)
	}
	return sec, nil
}

// ByteSize sums the physical footprint of every data section, the unit the
// disk-read scheduler's LRU and resident-budget accounting uses.
func (c *Column) ByteSize() int {
	total := 0
	for _, sec := range c.DataSections {
		total += sec.ByteSize()
	}
	return total
}

// EncodingType reports the physical encoding of section 0, the tag query
// operators dispatch on before any decode happens. When the pipeline ends in
// a Nullable op, section 0's type is reported as its Nullable<T> variant.
func (c *Column) EncodingType() nimbustype.EncodingType {
	if len(c.DataSections) == 0 {
		return nimbustype.Null
	}
	t := c.DataSections[0].Type
	if n := len(c.Codec); n > 0 && c.Codec[n-1].Kind == codec.OpNullable {
		return t.Nullable()
	}
	return t
}

// NullMask decodes the column and returns the set of null row indices as a
// roaring bitmap. The operators in pkg/operators do not call it; they read
// the packed presence bitmap of the decoded section directly.
// Returns nil for a non-nullable column (no rows are ever null).
func (c *Column) NullMask() (*roaring.Bitmap, error) {
	if !c.EncodingType().IsNullable() {
		return nil, nil
	}
	sec, err := c.Decode()
	if err != nil {
		return nil, err
	}
	mask := roaring.New()
	for i := 0; i < len(sec.NullBitmap)*64 && i < c.Len; i++ {
		if !codec.BitmapGet(sec.NullBitmap, i) {
			mask.Add(uint32(i))
		}
	}
	return mask, nil
}
