// Package kernel implements the quantized linear kernels of §4.4: one
// algorithm per (input dtype, weight dtype) combination, fused bias add,
// and the post-linear SwiGLU/GELU/SiLU activation.
package kernel

import (
	"math"

	"github.com/fastllm-numa/numacore/dtype"
)

// geluApproxCoeff and invSqrt2 mirror the activation constants the teacher
// carries for gelu_approx and erf-based gelu. Only the sigmoid
// approximation (gelu below, using geluApproxCoeff) has a function body;
// invSqrt2 is not used.
const (
	geluApproxCoeff = 1.702
	invSqrt2        = 0.7071067811865476
)

func silu(x float32) float32 {
	return x / (1 + float32(math.Exp(float64(-x))))
}

func sigmoid(x float32) float32 {
	return 1 / (1 + float32(math.Exp(float64(-x))))
}

func gelu(x float32) float32 {
	return x * sigmoid(geluApproxCoeff * x)
}

// ApplyActivation applies the fused post-linear op to a [n, width] row-major
// buffer in place (GELU/SiLU) or returns a new halved-width buffer
// (SwiGLU: silu(x[:H]) ⊙ x[H:]).
func ApplyActivation(raw []float32, n, width int, ex dtype.FusedActivation) []float32 {
	switch ex {
	case dtype.ActNone:
		return raw
	case dtype.ActGELU:
		for i, v := range raw {
			raw[i] = gelu(v)
		}
		return raw
	case dtype.ActSiLU:
		for i, v := range raw {
			raw[i] = silu(v)
		}
		return raw
	case dtype.ActSwiGLU:
		h := width / 2
		out := make([]float32, n*h)
		for row := 0; row < n; row++ {
			gate := raw[row*width : row*width+h]
			up := raw[row*width+h : row*width+width]
			dst := out[row*h : (row+1)*h]
			for j := 0; j < h; j++ {
				dst[j] = silu(gate[j]) * up[j]
			}
		}
		return out
	default:
		return raw
	}
}

// OutputWidth reports the row width after ApplyActivation: width/2 for
// SwiGLU (halved), width otherwise.
func OutputWidth(width int, ex dtype.FusedActivation) int {
	if ex == dtype.ActSwiGLU {
		return width / 2
	}
	return width
}

func addBias(raw []float32, n, width int, bias []float32) {
	if bias == nil {
		return
	}
	for row := 0; row < n; row++ {
		r := raw[row*width : (row+1)*width]
		for j := range r {
			r[j] += bias[j]
		}
	}
}
