// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package quant implements the low-bit quantization grid used by weight and
// activation tensors: LowBitConfig construction, uint8/int4 round-trip
// quantize/dequantize, grouped quantization metadata, and FP8-E4M3 decode.
package quant

import "math"

// SignMode is the sign-mode tag a LowBitConfig carries. Quantize and
// Dequantize do not read it: every grid uses unsigned codes
// [0, 2^bits-1] with an explicit zero point.
type SignMode int

const (
	Unsigned SignMode = iota
	Signed
)

// LowBitConfig is the (min, max, bits, signMode) descriptor that yields a
// (scale, zeroPoint) pair for a uniform quantization grid. bits is 4 or 8.
type LowBitConfig struct {
	Min      float32
	Max      float32
	Bits     int
	Sign     SignMode
	Scale    float32
	ZeroPoint float32
}

// NewLowBitConfig derives scale and zero point from (min, max, bits, sign).
// A degenerate range (max <= min) is widened to [min, min+1e-5], and a scale
// that still comes out as zero is replaced by 1. min and max are not clamped
// to include zero, so for a range that excludes zero the zero point lies
// outside [0, 2^bits-1]; it is kept as a float, so Dequantize still inverts
// Quantize on the grid.
func NewLowBitConfig(min, max float32, bits int, sign SignMode) LowBitConfig {
	c := LowBitConfig{Min: min, Max: max, Bits: bits, Sign: sign}
	if max <= min {
		max = min + 1e-5
	}
	levels := float32((int64(1) << uint(bits)) - 1)
	c.Scale = (max - min) / levels
	if c.Scale == 0 {
		c.Scale = 1
	}
	c.ZeroPoint = float32(math.Round(float64(-min / c.Scale)))
	return c
}

// Quantize maps a float value onto the grid, returning the clamped integer
// code as a float32 (the representation callers pack into uint8/nibbles).
func (c LowBitConfig) Quantize(x float32) float32 {
	levels := float32((int64(1) << uint(c.Bits)) - 1)
	v := float32(math.Round(float64(x/c.Scale + c.ZeroPoint)))
	if v < 0 {
		v = 0
	} else if v > levels {
		v = levels
	}
	return v
}

// Dequantize maps a grid code back to a float value.
func (c LowBitConfig) Dequantize(code float32) float32 {
	return (code - c.ZeroPoint) * c.Scale
}

// QuantizeUint8Row quantizes a full float32 row to uint8 using one
// LowBitConfig derived from the row's own min/max (group=1 activation
// quantization, per §4.4). Returns the config and the per-row sum of
// quantized codes (used by the INT8 kernel's weightSum-style correction
// term).
func QuantizeUint8Row(row []float32, out []uint8) (LowBitConfig, int64) {
	if len(row) == 0 {
		return LowBitConfig{}, 0
	}
	lo, hi := row[0], row[0]
	for _, v := range row[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	cfg := NewLowBitConfig(lo, hi, 8, Unsigned)
	var sum int64
	for i, v := range row {
		code := uint8(cfg.Quantize(v))
		out[i] = code
		sum += int64(code)
	}
	return cfg, sum
}

// DequantizeUint8Row is the inverse of QuantizeUint8Row.
func DequantizeUint8Row(codes []uint8, out []float32, cfg LowBitConfig) {
	for i, c := range codes {
		out[i] = cfg.Dequantize(float32(c))
	}
}

// PackNibbles packs a slice of 4-bit codes two-per-byte, little-nibble-first
// (the low nibble holds the even-indexed code), matching §6's wire format.
func PackNibbles(codes []uint8) []byte {
	out := make([]byte, (len(codes)+1)/2)
	for i, c := range codes {
		nib := c & 0x0F
		if i%2 == 0 {
			out[i/2] |= nib
		} else {
			out[i/2] |= nib << 4
		}
	}
	return out
}

// UnpackNibbles is the inverse of PackNibbles; n is the number of codes to
// extract (may be odd, in which case the last byte's high nibble is unused).
func UnpackNibbles(packed []byte, n int) []uint8 {
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		b := packed[i/2]
		if i%2 == 0 {
			out[i] = b & 0x0F
		} else {
			out[i] = (b >> 4) & 0x0F
		}
	}
	return out
}

// WeightSum computes sum_j(quant_w[r, j]) for a single row of quantized
// weight codes, used for the lazy per-row weight-sum invariant (§8.4). It
// is idempotent: calling it twice on the same row returns the same value.
func WeightSum(codes []uint8) int64 {
	var sum int64
	for _, c := range codes {
		sum += int64(c)
	}
	return sum
}
