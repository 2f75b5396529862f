// Package nimbustype holds the value and encoding type vocabulary shared by
// the codec, column, operator, WAL, and ingest packages: the physical
// encoding types a runtime buffer may carry (§3), and the decoded value
// kinds a column may logically hold.
package nimbustype

import (
	"fmt"
	"strconv"
)

// EncodingType is the physical representation tag carried alongside every
// runtime buffer, exhaustive per §3.
type EncodingType int

const (
	U8 EncodingType = iota
	U16
	U32
	U64
	I64
	F64
	Str
	OptStr
	Mixed
	Null // length-only
	MergeOp
	Premerge
	ByteSlices // row-major packed byte rows
	ValRows    // row-major packed mixed values
	ScalarI64
	ScalarF64
	ScalarStr
	ScalarString
	// Nullable<T> variants: a data buffer of the base type paired with a
	// packed presence bitmap (bit i set => row i non-null).
	NullableU8
	NullableU16
	NullableU32
	NullableU64
	NullableI64
	NullableF64
	NullableStr
)

func (e EncodingType) String() string {
	switch e {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case I64:
		return "i64"
	case F64:
		return "f64"
	case Str:
		return "str"
	case OptStr:
		return "opt_str"
	case Mixed:
		return "mixed"
	case Null:
		return "null"
	case MergeOp:
		return "merge_op"
	case Premerge:
		return "premerge"
	case ByteSlices:
		return "byte_slices"
	case ValRows:
		return "val_rows"
	case ScalarI64:
		return "scalar_i64"
	case ScalarF64:
		return "scalar_f64"
	case ScalarStr:
		return "scalar_str"
	case ScalarString:
		return "scalar_string"
	case NullableU8:
		return "nullable_u8"
	case NullableU16:
		return "nullable_u16"
	case NullableU32:
		return "nullable_u32"
	case NullableU64:
		return "nullable_u64"
	case NullableI64:
		return "nullable_i64"
	case NullableF64:
		return "nullable_f64"
	case NullableStr:
		return "nullable_str"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// IsNullable reports whether e is one of the Nullable<T> variants.
func (e EncodingType) IsNullable() bool {
	return e >= NullableU8 && e <= NullableStr
}

// Base returns the non-nullable encoding type underlying a Nullable<T>
// variant; it is the identity for non-nullable types.
func (e EncodingType) Base() EncodingType {
	switch e {
	case NullableU8:
		return U8
	case NullableU16:
		return U16
	case NullableU32:
		return U32
	case NullableU64:
		return U64
	case NullableI64:
		return I64
	case NullableF64:
		return F64
	case NullableStr:
		return Str
	default:
		return e
	}
}

// Nullable returns the Nullable<T> variant wrapping e; it panics if e has no
// nullable counterpart.
func (e EncodingType) Nullable() EncodingType {
	switch e {
	case U8:
		return NullableU8
	case U16:
		return NullableU16
	case U32:
		return NullableU32
	case U64:
		return NullableU64
	case I64:
		return NullableI64
	case F64:
		return NullableF64
	case Str:
		return NullableStr
	default:
		panic(fmt.Sprintf("no nullable variant for %s", e))
	}
}

// LogicalType is the decoded, user-facing type of a column (§3).
type LogicalType int

const (
	LogicalNull LogicalType = iota
	LogicalInteger
	LogicalFloat
	LogicalString
	LogicalMixed
)

func (t LogicalType) String() string {
	switch t {
	case LogicalNull:
		return "Null"
	case LogicalInteger:
		return "Integer"
	case LogicalFloat:
		return "Float"
	case LogicalString:
		return "String"
	case LogicalMixed:
		return "Mixed"
	default:
		return "Unknown"
	}
}

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindStr
)

// Value is a single tagged mixed-type value (§3's "tagged mixed variant").
type Value struct {
	Kind ValueKind
	Int  int64
	Float float64
	Str   string
}

// NullValue is the canonical null Value.
var NullValue = Value{Kind: KindNull}

// IntValue builds an integer Value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue builds a float Value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// StrValue builds a string Value.
func StrValue(v string) Value { return Value{Kind: KindStr, Str: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindStr:
		return v.Str
	default:
		return "?"
	}
}

// EncodeValue renders v as a self-describing, type-tagged string: the WAL
// wire format's Mixed column kind has no separate dense-string variant
// (§4.5), so string and mixed-typed columns round-trip through this
// encoding instead of Value.String()'s lossy human-readable form.
func EncodeValue(v Value) string {
	switch v.Kind {
	case KindInt:
		return "i" + strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return "f" + strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindStr:
		return "s" + v.Str
	default:
		return "n"
	}
}

// DecodeValue reverses EncodeValue.
func DecodeValue(s string) Value {
	if s == "" {
		return NullValue
	}
	switch s[0] {
	case 'i':
		n, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return NullValue
		}
		return IntValue(n)
	case 'f':
		f, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return NullValue
		}
		return FloatValue(f)
	case 's':
		return StrValue(s[1:])
	default:
		return NullValue
	}
}

// WidenLattice computes the logical type lattice join used by the ingest
// buffer when a new value arrives for a column: null ⊂ integer ⊂ mixed,
// null ⊂ float ⊂ mixed, null ⊂ string ⊂ mixed, and any mix of
// integer/float/string widens straight to mixed.
func WidenLattice(current LogicalType, incoming LogicalType) LogicalType {
	if current == incoming {
		return current
	}
	if current == LogicalNull {
		return incoming
	}
	if incoming == LogicalNull {
		return current
	}
	return LogicalMixed
}
