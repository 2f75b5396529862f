// Package operators implements the vectorized operator graph of §4.10: each
// operator declares the buffers it reads and writes, whether it can work on
// a streamed window or needs the whole input, and runs in up to three
// phases (Init once, Execute per batch, Finalize once at end of stream).
package operators

import (
	"github.com/nimbusdb/nimbusdb/pkg/scratchpad"
)

// Operator is one unit of vectorized computation in a partition's operator
// graph (§4.10).
type Operator interface {
	// Inputs and Outputs name the buffer refs this operator reads/writes,
	// used by the planner to topologically order a graph.
	Inputs() []scratchpad.BufferRef
	Outputs() []scratchpad.BufferRef

	// CanStreamInput/CanStreamOutput report whether input i / output i can
	// be processed/produced one batch at a time rather than needing (or
	// producing) the operator's entire domain at once.
	CanStreamInput(i int) bool
	CanStreamOutput(i int) bool

	// Allocates reports whether Execute produces a new vector rather than
	// aliasing an existing one.
	Allocates() bool

	// IsStreamingProducer and HasMore identify a source operator that
	// emits output across multiple Execute calls (e.g. a decompressor
	// unpacking one block at a time); HasMore is checked after each
	// Execute to decide whether the graph needs another round.
	IsStreamingProducer() bool
	HasMore() bool

	// Init performs one-time setup given the operator's total domain size
	// and the chosen batch size, typically allocating output buffers with
	// a capacity hint.
	Init(totalLen, batchSize int, sp *scratchpad.Scratchpad) error

	// Execute performs one batch of work. streaming indicates whether this
	// is one window of a larger stream (in which case output buffers
	// should be cleared/appended rather than replaced).
	Execute(streaming bool, sp *scratchpad.Scratchpad) error

	// Finalize runs once after the last Execute, for operators that need
	// an end-of-stream step (sorting accumulated partial results,
	// revealing pinned outputs).
	Finalize(sp *scratchpad.Scratchpad) error
}

// Base provides the common default implementations most operators share;
// embed it and override only what differs.
type Base struct{}

func (Base) IsStreamingProducer() bool                                    { return false }
func (Base) HasMore() bool                                                { return false }
func (Base) Init(int, int, *scratchpad.Scratchpad) error                  { return nil }
func (Base) Finalize(*scratchpad.Scratchpad) error                        { return nil }
