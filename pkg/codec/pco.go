package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
)

// Pco stands in for the original implementation's dedicated
// variable-length numeric codec: values are zigzag-varint packed (integers)
// or stored as 4- or 8-byte floats (isFP32 selects single precision for
// columns whose values round-trip losslessly through float32), then the
// whole byte stream is passed through zstd for entropy coding.

var (
	zstdEncoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
)

func getZstdEncoder() *zstd.Encoder {
	zstdEncoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err)
		}
		zstdEncoder = enc
	})
	return zstdEncoder
}

func getZstdDecoder() *zstd.Decoder {
	zstdDecoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		zstdDecoder = dec
	})
	return zstdDecoder
}

// CompressPcoInt zigzag-varint packs an integer section and entropy-codes it
// with zstd.
func CompressPcoInt(values []int64) []byte {
	buf := make([]byte, 0, len(values)*2)
	var scratch [binary.MaxVarintLen64]byte
	for _, v := range values {
		n := binary.PutUvarint(scratch[:], zigzagEncode(v))
		buf = append(buf, scratch[:n]...)
	}
	return getZstdEncoder().EncodeAll(buf, nil)
}

// DecodePcoInt reverses CompressPcoInt, producing n int64 values.
func DecodePcoInt(compressed []byte, n int) ([]int64, error) {
	raw, err := getZstdDecoder().DecodeAll(compressed, nil)
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.Corruption, err, "pco: zstd decompress")
	}
	out := make([]int64, n)
	r := bytes.NewReader(raw)
	for i := 0; i < n; i++ {
		u, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, nimbuserr.Wrap(nimbuserr.Corruption, err, "pco: truncated varint stream at element %d", i)
		}
		out[i] = zigzagDecode(u)
	}
	return out, nil
}

// CompressPcoFloat packs a float section as either 4- or 8-byte IEEE-754
// values and entropy-codes it with zstd.
func CompressPcoFloat(values []float64, fp32 bool) []byte {
	var buf []byte
	if fp32 {
		buf = make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
		}
	} else {
		buf = make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
		}
	}
	return getZstdEncoder().EncodeAll(buf, nil)
}

// DecodePcoFloat reverses CompressPcoFloat, producing n float64 values.
func DecodePcoFloat(compressed []byte, n int, fp32 bool) ([]float64, error) {
	raw, err := getZstdDecoder().DecodeAll(compressed, nil)
	if err != nil {
		return nil, nimbuserr.Wrap(nimbuserr.Corruption, err, "pco: zstd decompress")
	}
	out := make([]float64, n)
	width := 8
	if fp32 {
		width = 4
	}
	if len(raw) < width*n {
		return nil, nimbuserr.New(nimbuserr.Corruption, "pco: payload too short for %d values", n)
	}
	for i := 0; i < n; i++ {
		if fp32 {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
		} else {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
	}
	return out, nil
}

// EncodePco compresses a section of type t (I64 or F64) into a byte
// section, choosing the integer or float path by t.
func EncodePco(sec Section, fp32 bool) (Section, error) {
	switch sec.Type.Base() {
	case nimbustype.I64:
		return BytesSection(CompressPcoInt(sec.I64)), nil
	case nimbustype.F64:
		return BytesSection(CompressPcoFloat(sec.F64, fp32)), nil
	default:
		return Section{}, nimbuserr.New(nimbuserr.TypeError, "pco: unsupported section type %s", sec.Type)
	}
}

// DecodePco decompresses a byte section produced by EncodePco back into n
// values of type t.
func DecodePco(sec Section, t nimbustype.EncodingType, n int, fp32 bool) (Section, error) {
	switch t.Base() {
	case nimbustype.I64:
		values, err := DecodePcoInt(sec.Bytes, n)
		if err != nil {
			return Section{}, err
		}
		return I64Section(values), nil
	case nimbustype.F64:
		values, err := DecodePcoFloat(sec.Bytes, n, fp32)
		if err != nil {
			return Section{}, err
		}
		return F64Section(values), nil
	default:
		return Section{}, nimbuserr.New(nimbuserr.TypeError, "pco: unsupported target type %s", t)
	}
}
