package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pierrec/lz4/v4"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// CompressLZ4 frames sec's raw little-endian bytes through lz4, the
// general-purpose fallback codec applied to any section whose entropy
// survives the type-specific passes (§4.6's "≥1.5x" heuristic lives in the
// column builder, not here).
func CompressLZ4(sec Section) ([]byte, error) {
	raw, err := sectionRawBytes(sec)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "lz4 compress")
	}
	if err := w.Close(); err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.IO, err, "lz4 compress: close")
	}
	return buf.Bytes(), nil
}

// DecodeLZ4 decompresses a raw lz4 frame and reinterprets the resulting
// bytes as a section of type t holding n elements, matching the on-disk
// layout CompressLZ4 produced for that width.
func DecodeLZ4(compressed []byte, t nimbustype.EncodingType, n int) (Section, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	raw, err := io.ReadAll(r)
	if err != nil {
		return Section{}, nimbuserr.Wrap(nimbuserr.Corruption, err, "lz4 decompress")
	}
	return sectionFromRawBytes(raw, t, n)
}

// sectionRawBytes serializes a section's typed slice to little-endian bytes
// for lz4/checksum framing. Str sections are not supported here; they are
// packed via UnpackStrings/DictLookup before ever reaching lz4.
func sectionRawBytes(sec Section) ([]byte, error) {
	switch sec.Type.Base() {
	case nimbustype.U8:
		if sec.Bytes != nil {
			return sec.Bytes, nil
		}
		return sec.U8, nil
	case nimbustype.U16:
		buf := make([]byte, 2*len(sec.U16))
		for i, v := range sec.U16 {
			binary.LittleEndian.PutUint16(buf[2*i:], v)
		}
		return buf, nil
	case nimbustype.U32:
		buf := make([]byte, 4*len(sec.U32))
		for i, v := range sec.U32 {
			binary.LittleEndian.PutUint32(buf[4*i:], v)
		}
		return buf, nil
	case nimbustype.U64:
		buf := make([]byte, 8*len(sec.U64))
		for i, v := range sec.U64 {
			binary.LittleEndian.PutUint64(buf[8*i:], v)
		}
		return buf, nil
	case nimbustype.I64:
		buf := make([]byte, 8*len(sec.I64))
		for i, v := range sec.I64 {
			binary.LittleEndian.PutUint64(buf[8*i:], uint64(v))
		}
		return buf, nil
	case nimbustype.F64:
		buf := make([]byte, 8*len(sec.F64))
		for i, v := range sec.F64 {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
		}
		return buf, nil
	default:
		return nil, nimbuserr.New(nimbuserr.TypeError, "lz4: section type %s has no raw byte representation", sec.Type)
	}
}

func sectionFromRawBytes(raw []byte, t nimbustype.EncodingType, n int) (Section, error) {
	switch t.Base() {
	case nimbustype.U8:
		return BytesSection(raw), nil
	case nimbustype.U16:
		if len(raw) < 2*n {
			return Section{}, nimbuserr.New(nimbuserr.Corruption, "lz4 payload too short for %d u16 values", n)
		}
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(raw[2*i:])
		}
		return U16Section(out), nil
	case nimbustype.U32:
		if len(raw) < 4*n {
			return Section{}, nimbuserr.New(nimbuserr.Corruption, "lz4 payload too short for %d u32 values", n)
		}
		out := make([]uint32, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(raw[4*i:])
		}
		return U32Section(out), nil
	case nimbustype.U64:
		if len(raw) < 8*n {
			return Section{}, nimbuserr.New(nimbuserr.Corruption, "lz4 payload too short for %d u64 values", n)
		}
		out := make([]uint64, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(raw[8*i:])
		}
		return U64Section(out), nil
	case nimbustype.I64:
		if len(raw) < 8*n {
			return Section{}, nimbuserr.New(nimbuserr.Corruption, "lz4 payload too short for %d i64 values", n)
		}
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[8*i:]))
		}
		return I64Section(out), nil
	case nimbustype.F64:
		if len(raw) < 8*n {
			return Section{}, nimbuserr.New(nimbuserr.Corruption, "lz4 payload too short for %d f64 values", n)
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
		return F64Section(out), nil
	default:
		return Section{}, nimbuserr.New(nimbuserr.TypeError, "lz4: target type %s has no raw byte representation", t)
	}
}
