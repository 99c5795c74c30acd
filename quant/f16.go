package quant

import (
	"encoding/binary"
	"math"
)

// DecodeFloat16 converts one little-endian IEEE-754 binary16 value to
// float32, following the same inline bit-manipulation the gguf package uses
// to decode fp16 block scales (sign:1, exp:5 bias-15, mantissa:10).
func DecodeFloat16(raw uint16) float32 {
	sign := uint32(raw>>15) & 1
	exp := uint32(raw>>10) & 0x1F
	mant := uint32(raw) & 0x3FF
	if exp == 0 {
		return math.Float32frombits(sign << 31)
	}
	return math.Float32frombits((sign << 31) | ((exp + 112) << 23) | (mant << 13))
}

// EncodeFloat16 converts a float32 to binary16 by truncating the mantissa to
// 10 bits (rounding toward zero), flushing values below the binary16 normal
// range to signed zero and values above it (Inf and NaN included) to signed
// Inf.
func EncodeFloat16(v float32) uint16 {
	bits := math.Float32bits(v)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23)&0xFF - 127 + 15
	mant := bits & 0x7FFFFF
	switch {
	case exp <= 0:
		return sign
	case exp >= 0x1F:
		return sign | 0x7C00
	default:
		return sign | uint16(exp)<<10 | uint16(mant>>13)
	}
}

// DecodeBFloat16 converts one little-endian bfloat16 value to float32:
// bfloat16 is simply the top 16 bits of a float32, so decode is a
// zero-extending shift.
func DecodeBFloat16(raw uint16) float32 {
	return math.Float32frombits(uint32(raw) << 16)
}

// DequantizeF16 decodes a slice of little-endian binary16 bytes to float32.
func DequantizeF16(input []byte, output []float32) {
	for i := range output {
		output[i] = DecodeFloat16(binary.LittleEndian.Uint16(input[i*2 : i*2+2]))
	}
}

// DequantizeBF16 decodes a slice of little-endian bfloat16 bytes to float32.
func DequantizeBF16(input []byte, output []float32) {
	for i := range output {
		output[i] = DecodeBFloat16(binary.LittleEndian.Uint16(input[i*2 : i*2+2]))
	}
}
