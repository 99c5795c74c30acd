package quant

import (
	"math"
	"testing"
)

func TestFloat16RoundTrip(t *testing.T) {
	for _, x := range []float32{0, 1, -1, 0.5, -0.5, 2, 100, -100} {
		got := DecodeFloat16(EncodeFloat16(x))
		if diff := abs32(got - x); diff > 1e-3 {
			t.Errorf("decode(encode(%v)) = %v, diff %v", x, got, diff)
		}
	}
}

func TestDecodeBFloat16TruncatesFloat32(t *testing.T) {
	// bfloat16 is the top 16 bits of float32, so encoding by truncation and
	// decoding must return exactly the truncated value.
	for _, x := range []float32{1, -1, 0.5, 3.25} {
		raw := uint16(math.Float32bits(x) >> 16)
		got := DecodeBFloat16(raw)
		if got != x {
			t.Errorf("DecodeBFloat16(truncate(%v)) = %v, want %v", x, got, x)
		}
	}
}
