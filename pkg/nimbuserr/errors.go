// Package nimbuserr defines the error taxonomy shared across nimbusdb's
// storage and query components.
package nimbuserr

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Kind classifies an Error so callers can branch on failure category without
// string matching.
type Kind string

const (
	// SyntaxError means the parser rejected input,
	// or the planner found a reference to an unknown column.
	SyntaxError Kind = "syntax_error"
	// NotFound means a table or column is unknown. Queries against an
	// unknown table return an empty result rather than this error; this kind
	// is for internal lookups where the caller must be told.
	NotFound Kind = "not_found"
	// TypeError means an operator was invoked on incompatible encoding types.
	TypeError Kind = "type_error"
	// Overflow means integer overflow or division by zero in arithmetic or
	// aggregation.
	Overflow Kind = "overflow"
	// Corruption means a checksum failure, version mismatch, or inconsistent
	// meta-store/WAL state.
	Corruption Kind = "corruption"
	// IO means a blob-writer failure; transient, retried at the next flush.
	IO Kind = "io"
	// Canceled means a query task was dropped before completion.
	Canceled Kind = "canceled"
	// Fatal means an invariant violation; carries a backtrace.
	Fatal Kind = "fatal"
)

// Error is the concrete error type returned by every nimbusdb component.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Backtrace string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates cause with a kind and message, preserving it for errors.Is/As.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Fatalf builds a Fatal error with a captured stack trace, for invariant
// violations that should never happen in a correct build.
func Fatalf(format string, args ...any) *Error {
	return &Error{
		Kind:      Fatal,
		Message:   fmt.Sprintf(format, args...),
		Backtrace: string(debug.Stack()),
	}
}

// Is reports whether err is, or wraps, a nimbuserr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
