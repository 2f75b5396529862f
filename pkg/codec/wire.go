package codec

import (
	"encoding/binary"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// Wire tags for a Section: exactly one of the typed-field tags is present
// (mirroring which slice Section itself populates), plus an optional
// NullBitmap tag when Type.IsNullable().
const (
	fieldSecType       = 1
	fieldSecU8         = 2
	fieldSecU16        = 3
	fieldSecU32        = 4
	fieldSecU64        = 5
	fieldSecI64        = 6
	fieldSecF64        = 7
	fieldSecBytes      = 8
	fieldSecStr        = 9
	fieldSecNullBitmap = 10
)

// SerializeSection encodes a Section to its wire form, used to persist a
// column's raw data sections (§4.4's "bincode-equivalent serialization of
// the contained columns").
func SerializeSection(sec Section) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldSecType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(sec.Type))

	switch {
	case sec.Bytes != nil:
		buf = protowire.AppendTag(buf, fieldSecBytes, protowire.BytesType)
		buf = protowire.AppendBytes(buf, sec.Bytes)
	case sec.U8 != nil:
		buf = protowire.AppendTag(buf, fieldSecU8, protowire.BytesType)
		buf = protowire.AppendBytes(buf, sec.U8)
	case sec.U16 != nil:
		raw := make([]byte, 2*len(sec.U16))
		for i, v := range sec.U16 {
			binary.LittleEndian.PutUint16(raw[2*i:], v)
		}
		buf = protowire.AppendTag(buf, fieldSecU16, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	case sec.U32 != nil:
		raw := make([]byte, 4*len(sec.U32))
		for i, v := range sec.U32 {
			binary.LittleEndian.PutUint32(raw[4*i:], v)
		}
		buf = protowire.AppendTag(buf, fieldSecU32, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	case sec.U64 != nil:
		raw := make([]byte, 8*len(sec.U64))
		for i, v := range sec.U64 {
			binary.LittleEndian.PutUint64(raw[8*i:], v)
		}
		buf = protowire.AppendTag(buf, fieldSecU64, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	case sec.I64 != nil:
		raw := make([]byte, 8*len(sec.I64))
		for i, v := range sec.I64 {
			binary.LittleEndian.PutUint64(raw[8*i:], uint64(v))
		}
		buf = protowire.AppendTag(buf, fieldSecI64, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	case sec.F64 != nil:
		raw := make([]byte, 8*len(sec.F64))
		for i, v := range sec.F64 {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
		}
		buf = protowire.AppendTag(buf, fieldSecF64, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	case sec.Str != nil:
		for _, s := range sec.Str {
			buf = protowire.AppendTag(buf, fieldSecStr, protowire.BytesType)
			buf = protowire.AppendString(buf, s)
		}
	}

	if sec.Type.IsNullable() {
		raw := make([]byte, 8*len(sec.NullBitmap))
		for i, v := range sec.NullBitmap {
			binary.LittleEndian.PutUint64(raw[8*i:], v)
		}
		buf = protowire.AppendTag(buf, fieldSecNullBitmap, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	}
	return buf
}

// DeserializeSection decodes a Section previously produced by
// SerializeSection. A zero-length Str/U8/etc. section writes no element
// tags, so it is indistinguishable from an absent one on the wire: each
// typed slice is set only when at least one tag of its kind appears.
func DeserializeSection(blob []byte) (Section, error) {
	var sec Section
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldSecType:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid type")
			}
			sec.Type = nimbustype.EncodingType(v)
			body = body[n:]
		case fieldSecBytes:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid bytes")
			}
			sec.Bytes = append([]byte(nil), v...)
			body = body[n:]
		case fieldSecU8:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid u8")
			}
			sec.U8 = append([]byte(nil), v...)
			body = body[n:]
		case fieldSecU16:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid u16")
			}
			body = body[n:]
			sec.U16 = make([]uint16, len(v)/2)
			for i := range sec.U16 {
				sec.U16[i] = binary.LittleEndian.Uint16(v[2*i:])
			}
		case fieldSecU32:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid u32")
			}
			body = body[n:]
			sec.U32 = make([]uint32, len(v)/4)
			for i := range sec.U32 {
				sec.U32[i] = binary.LittleEndian.Uint32(v[4*i:])
			}
		case fieldSecU64:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid u64")
			}
			body = body[n:]
			sec.U64 = make([]uint64, len(v)/8)
			for i := range sec.U64 {
				sec.U64[i] = binary.LittleEndian.Uint64(v[8*i:])
			}
		case fieldSecI64:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid i64")
			}
			body = body[n:]
			sec.I64 = make([]int64, len(v)/8)
			for i := range sec.I64 {
				sec.I64[i] = int64(binary.LittleEndian.Uint64(v[8*i:]))
			}
		case fieldSecF64:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid f64")
			}
			body = body[n:]
			sec.F64 = make([]float64, len(v)/8)
			for i := range sec.F64 {
				sec.F64[i] = math.Float64frombits(binary.LittleEndian.Uint64(v[8*i:]))
			}
		case fieldSecStr:
			v, n := protowire.ConsumeString(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid str")
			}
			sec.Str = append(sec.Str, v)
			body = body[n:]
		case fieldSecNullBitmap:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: invalid null bitmap")
			}
			body = body[n:]
			sec.NullBitmap = make([]uint64, len(v)/8)
			for i := range sec.NullBitmap {
				sec.NullBitmap[i] = binary.LittleEndian.Uint64(v[8*i:])
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return Section{}, nimbuserr.New(nimbuserr.Corruption, "section: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return sec, nil
}

// Wire tags for an Op.
const (
	fieldOpKind         = 1
	fieldOpSectionIndex = 2
	fieldOpWidth        = 3
	fieldOpScalar       = 4
	fieldOpLen          = 5
	fieldOpUppercase    = 6
	fieldOpIsFP32       = 7
)

// SerializeOp encodes one pipeline Op.
func SerializeOp(op Op) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldOpKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(op.Kind))
	buf = protowire.AppendTag(buf, fieldOpSectionIndex, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(op.SectionIndex))
	buf = protowire.AppendTag(buf, fieldOpWidth, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(op.Width))
	buf = protowire.AppendTag(buf, fieldOpScalar, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(op.Scalar))
	buf = protowire.AppendTag(buf, fieldOpLen, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(op.Len))
	if op.Uppercase {
		buf = protowire.AppendTag(buf, fieldOpUppercase, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	if op.IsFP32 {
		buf = protowire.AppendTag(buf, fieldOpIsFP32, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

// DeserializeOp decodes one Op previously produced by SerializeOp.
func DeserializeOp(blob []byte) (Op, error) {
	var op Op
	body := blob
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: invalid tag")
		}
		body = body[n:]
		switch num {
		case fieldOpKind:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: invalid kind")
			}
			op.Kind = OpKind(v)
			body = body[n:]
		case fieldOpSectionIndex:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: invalid section index")
			}
			op.SectionIndex = int(v)
			body = body[n:]
		case fieldOpWidth:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: invalid width")
			}
			op.Width = nimbustype.EncodingType(v)
			body = body[n:]
		case fieldOpScalar:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: invalid scalar")
			}
			op.Scalar = protowire.DecodeZigZag(v)
			body = body[n:]
		case fieldOpLen:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: invalid len")
			}
			op.Len = int(v)
			body = body[n:]
		case fieldOpUppercase:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: invalid uppercase")
			}
			op.Uppercase = v != 0
			body = body[n:]
		case fieldOpIsFP32:
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: invalid is_fp32")
			}
			op.IsFP32 = v != 0
			body = body[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return Op{}, nimbuserr.New(nimbuserr.Corruption, "op: unreadable unknown field %d", num)
			}
			body = body[n:]
		}
	}
	return op, nil
}
