// Package scratchpad implements the typed buffer references and per-query
// arena of §4.9: every vector operator reads and writes cells of a
// Scratchpad by BufferRef, pins the cells that back its final output, and
// the arena hands them back at query end via CollectPinned.
package scratchpad

import (
	"sync"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// BufferRef is a small handle into a Scratchpad's cell array. Unlike the
// phantom-typed handle this is modeled on, a BufferRef carries no compile-
// time element type: Go has no trait-object-free way to erase and recover
// a generic type the way the original's `mem::transmute` does, so the
// runtime EncodingType tag on TypedBufferRef is the only type check,
// enforced at Get/Set time instead of at the type level.
type BufferRef int

// TypedBufferRef pairs a BufferRef with the EncodingType operators dispatch
// on before touching a cell.
type TypedBufferRef struct {
	Ref  BufferRef
	Type nimbustype.EncodingType
}

// cell is one scratchpad slot: an owned or aliased vector, plus whether it
// has committed to an encoding type yet.
type cell struct {
	mu      sync.Mutex
	sec     codec.Section
	typed   bool
	pinned  bool
	aliasOf BufferRef // -1 if this cell owns its data
}

// Scratchpad is the per-query arena: a fixed-size array of cells plus the
// raw data sections of the columns a query touches, indexed by name and
// section index (the ReadColumnData operator's source).
type Scratchpad struct {
	cells   []*cell
	columns map[string][]codec.Section
}

// New allocates an empty scratchpad of count cells, backed by columns (one
// entry per column name the query scans, holding that column's raw data
// sections in order).
func New(count int, columns map[string][]codec.Section) *Scratchpad {
	cells := make([]*cell, count)
	for i := range cells {
		cells[i] = &cell{aliasOf: -1}
	}
	return &Scratchpad{cells: cells, columns: columns}
}

func (s *Scratchpad) resolve(ref BufferRef) (*cell, error) {
	if int(ref) < 0 || int(ref) >= len(s.cells) {
		return nil, nimbuserr.New(nimbuserr.NotFound, "scratchpad: buffer ref %d out of range", ref)
	}
	c := s.cells[ref]
	seen := map[BufferRef]bool{ref: true}
	for c.aliasOf >= 0 {
		if seen[c.aliasOf] {
			return nil, nimbuserr.New(nimbuserr.Fatal, "scratchpad: alias cycle at buffer ref %d", ref)
		}
		seen[c.aliasOf] = true
		c = s.cells[c.aliasOf]
	}
	return c, nil
}

// GetColumnData returns one raw data section of a scanned column, the
// entry point the ReadColumnData scan source reads through.
func (s *Scratchpad) GetColumnData(name string, sectionIndex int) (codec.Section, error) {
	sections, ok := s.columns[name]
	if !ok {
		return codec.Section{}, nimbuserr.New(nimbuserr.NotFound, "scratchpad: no column named %q", name)
	}
	if sectionIndex < 0 || sectionIndex >= len(sections) {
		return codec.Section{}, nimbuserr.New(nimbuserr.NotFound, "scratchpad: column %q has no section %d", name, sectionIndex)
	}
	return sections[sectionIndex], nil
}

// Get returns the current value of ref's cell.
func (s *Scratchpad) Get(ref TypedBufferRef) (codec.Section, error) {
	c, err := s.resolve(ref.Ref)
	if err != nil {
		return codec.Section{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.typed {
		return codec.Section{}, nimbuserr.New(nimbuserr.NotFound, "scratchpad: buffer ref %d read before write", ref.Ref)
	}
	return c.sec, nil
}

// GetMut returns a pointer into ref's cell for in-place mutation. Returns
// an error if the cell is pinned (a pinned cell cannot be mutated or
// replaced for the rest of the query, §4.9's invariant).
func (s *Scratchpad) GetMut(ref TypedBufferRef) (*codec.Section, error) {
	c, err := s.resolve(ref.Ref)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned {
		return nil, nimbuserr.New(nimbuserr.Fatal, "scratchpad: buffer ref %d is pinned, cannot mutate", ref.Ref)
	}
	return &c.sec, nil
}

// GetPinned marks ref's cell pinned and returns its current value. Go's
// garbage collector makes the original's unsafe lifetime-extending
// transmute unnecessary: the returned Section's backing slices simply
// outlive the Scratchpad for as long as the caller holds a reference to
// them.
func (s *Scratchpad) GetPinned(ref TypedBufferRef) (codec.Section, error) {
	c, err := s.resolve(ref.Ref)
	if err != nil {
		return codec.Section{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.typed {
		return codec.Section{}, nimbuserr.New(nimbuserr.NotFound, "scratchpad: buffer ref %d read before write", ref.Ref)
	}
	c.pinned = true
	return c.sec, nil
}

// GetNullable splits a Nullable<T> cell into its data section and presence
// bitmap.
func (s *Scratchpad) GetNullable(ref TypedBufferRef) (data codec.Section, nullBitmap []uint64, err error) {
	sec, err := s.Get(ref)
	if err != nil {
		return codec.Section{}, nil, err
	}
	if !sec.Type.IsNullable() {
		return codec.Section{}, nil, nimbuserr.New(nimbuserr.TypeError, "scratchpad: buffer ref %d is not nullable", ref.Ref)
	}
	return sec, sec.NullBitmap, nil
}

// GetConst reads a scalar out of a length-1 (or length-0 all-null) cell,
// the representation `ConstantExpand` and comparison operators read a
// query literal through.
func (s *Scratchpad) GetConst(ref TypedBufferRef) (nimbustype.Value, error) {
	sec, err := s.Get(ref)
	if err != nil {
		return nimbustype.Value{}, err
	}
	switch {
	case len(sec.I64) > 0:
		return nimbustype.IntValue(sec.I64[0]), nil
	case len(sec.F64) > 0:
		return nimbustype.FloatValue(sec.F64[0]), nil
	case len(sec.Str) > 0:
		return nimbustype.StrValue(sec.Str[0]), nil
	default:
		return nimbustype.NullValue, nil
	}
}

// Set stores vec into ref's cell, rejecting writes to a pinned cell or a
// type change from a previously written value.
func (s *Scratchpad) Set(ref TypedBufferRef, vec codec.Section) error {
	c, err := s.resolve(ref.Ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned {
		return nimbuserr.New(nimbuserr.Fatal, "scratchpad: buffer ref %d is pinned, cannot set", ref.Ref)
	}
	if c.typed && c.sec.Type != vec.Type {
		return nimbuserr.New(nimbuserr.TypeError, "scratchpad: buffer ref %d committed to %v, got %v", ref.Ref, c.sec.Type, vec.Type)
	}
	c.sec = vec
	c.typed = true
	return nil
}

// SetNullable stores a Nullable<T> section built from data and
// nullBitmap into ref's cell.
func (s *Scratchpad) SetNullable(ref TypedBufferRef, data codec.Section, nullBitmap []uint64) error {
	nullable, err := codec.DecodeNullable(data, codec.U64Section(nullBitmap))
	if err != nil {
		return err
	}
	return s.Set(ref, nullable)
}

// SetConst stores a length-1 scalar section into ref's cell.
func (s *Scratchpad) SetConst(ref TypedBufferRef, value nimbustype.Value) error {
	var sec codec.Section
	switch value.Kind {
	case nimbustype.KindInt:
		sec = codec.I64Section([]int64{value.Int})
	case nimbustype.KindFloat:
		sec = codec.F64Section([]float64{value.Float})
	case nimbustype.KindStr:
		sec = codec.StrSection([]string{value.Str})
	default:
		sec = codec.I64Section(nil)
	}
	return s.Set(ref, sec)
}

// Alias makes dst resolve to src's cell for all future access, without
// copying data.
func (s *Scratchpad) Alias(src, dst BufferRef) error {
	if _, err := s.resolve(src); err != nil {
		return err
	}
	if int(dst) < 0 || int(dst) >= len(s.cells) {
		return nimbuserr.New(nimbuserr.NotFound, "scratchpad: buffer ref %d out of range", dst)
	}
	dstCell := s.cells[dst]
	dstCell.mu.Lock()
	defer dstCell.mu.Unlock()
	if dstCell.pinned {
		return nimbuserr.New(nimbuserr.Fatal, "scratchpad: buffer ref %d is pinned, cannot alias", dst)
	}
	dstCell.aliasOf = src
	return nil
}

// Pin marks ref's cell pinned without reading it, used when a cell's
// final value was already written by a prior Set/GetPinned.
func (s *Scratchpad) Pin(ref BufferRef) error {
	c, err := s.resolve(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = true
	return nil
}

// Unpin clears ref's pin, used only by the streaming machinery after every
// consumer of the cell has committed its read.
func (s *Scratchpad) Unpin(ref BufferRef) error {
	c, err := s.resolve(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = false
	return nil
}

// CollectPinned returns every pinned cell's section, in cell index order,
// the vectors that back the query's output columns.
func (s *Scratchpad) CollectPinned() []codec.Section {
	var out []codec.Section
	for _, c := range s.cells {
		c.mu.Lock()
		if c.pinned {
			out = append(out, c.sec)
		}
		c.mu.Unlock()
	}
	return out
}
