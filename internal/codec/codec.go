// Package codec decodes raw fieldbus register words into typed values and
// runs the post-decode processing pipeline (invert, scale, enum lookup).
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/nexus-edge/bench-engine/internal/domain"
)

// EnumLookup resolves the display label for an integral processed value.
// A missing label is not an error.
type EnumLookup interface {
	EnumLabel(registerID uint, raw int64) (string, bool)
}

// Decode interprets raw register words per the register's data type and
// byte ordering. The word count must match Register.WordCount exactly.
func Decode(reg *domain.Register, words []uint16) (domain.Value, error) {
	need := int(reg.WordCount())
	if len(words) < need {
		return domain.Value{}, fmt.Errorf("%w: got %d words, need %d", domain.ErrShortPayload, len(words), need)
	}
	data := orderBytes(words[:need], reg.ByteOrder)

	switch reg.DataType {
	case domain.DataTypeUInt16:
		return domain.Numeric(float64(binary.BigEndian.Uint16(data))), nil
	case domain.DataTypeInt16:
		return domain.Numeric(float64(int16(binary.BigEndian.Uint16(data)))), nil
	case domain.DataTypeUInt32:
		return domain.Numeric(float64(binary.BigEndian.Uint32(data))), nil
	case domain.DataTypeInt32:
		return domain.Numeric(float64(int32(binary.BigEndian.Uint32(data)))), nil
	case domain.DataTypeFloat32:
		bits := binary.BigEndian.Uint32(data)
		return domain.Numeric(float64(math.Float32frombits(bits))), nil
	case domain.DataTypeString:
		return domain.Text(decodeString(data)), nil
	default:
		return domain.Value{}, fmt.Errorf("%w: %q", domain.ErrInvalidDataType, reg.DataType)
	}
}

// DecodeBits interprets a single-bit read for coil/discrete-input kinds.
func DecodeBits(reg *domain.Register, bits []bool) (domain.Value, error) {
	if len(bits) == 0 {
		return domain.Value{}, fmt.Errorf("%w: empty bit payload", domain.ErrShortPayload)
	}
	if bits[0] {
		return domain.Numeric(1), nil
	}
	return domain.Numeric(0), nil
}

// Process runs the ordered post-decode pipeline on a decoded value:
//
//  1. binary inversion (before scaling)
//  2. scaling factor
//  3. enum label resolution for integral values
//
// Text values skip all three steps and pass through untouched; they are
// forwarded for live display only.
func Process(reg *domain.Register, v domain.Value, lookup EnumLookup) domain.Processed {
	if v.Kind == domain.ValueText {
		return domain.Processed{Value: v}
	}

	num := v.Num
	if reg.IsBinary() && reg.Invert {
		num = 1 - num
	}
	num *= reg.ScalingFactor

	out := domain.Processed{Value: domain.Numeric(num)}
	if reg.DisplayMode == domain.DisplayModeEnum && lookup != nil {
		if raw, ok := out.Value.IntegralNum(); ok {
			if label, found := lookup.EnumLabel(reg.ID, raw); found {
				out.Label = &label
			}
		}
	}
	return out
}

// Encode is the inverse of Decode for numeric types: it renders a value
// back into register words in the register's byte ordering. STRING
// registers are display-only and cannot be encoded.
func Encode(reg *domain.Register, value float64) ([]uint16, error) {
	data := make([]byte, int(reg.WordCount())*2)

	switch reg.DataType {
	case domain.DataTypeUInt16:
		binary.BigEndian.PutUint16(data, uint16(value))
	case domain.DataTypeInt16:
		binary.BigEndian.PutUint16(data, uint16(int16(value)))
	case domain.DataTypeUInt32:
		binary.BigEndian.PutUint32(data, uint32(value))
	case domain.DataTypeInt32:
		binary.BigEndian.PutUint32(data, uint32(int32(value)))
	case domain.DataTypeFloat32:
		binary.BigEndian.PutUint32(data, math.Float32bits(float32(value)))
	default:
		return nil, fmt.Errorf("%w: cannot encode %q", domain.ErrInvalidDataType, reg.DataType)
	}

	// The ordering transform is an involution, so encode reuses it.
	data = reorder(data, reg.ByteOrder)

	words := make([]uint16, len(data)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return words, nil
}

// orderBytes flattens register words into a big-endian-normalized byte
// sequence per the configured ordering. The single flag governs both byte
// and word order: LITTLE is a full reversal (DCBA).
func orderBytes(words []uint16, order domain.ByteOrder) []byte {
	data := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(data[i*2:], w)
	}
	return reorder(data, order)
}

func reorder(data []byte, order domain.ByteOrder) []byte {
	if order != domain.ByteOrderLittle {
		return data
	}
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[len(data)-1-i]
	}
	return out
}

// decodeString strips trailing NUL padding and decodes UTF-8 best-effort:
// invalid sequences are replaced, never fatal.
func decodeString(data []byte) string {
	data = bytes.TrimRight(data, "\x00")
	return strings.ToValidUTF8(string(data), "�")
}
