package kernel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fastllm-numa/numacore/dtype"
	"github.com/fastllm-numa/numacore/errs"
	"github.com/fastllm-numa/numacore/hwy/contrib/matvec"
	"github.com/fastllm-numa/numacore/quant"
	"github.com/fastllm-numa/numacore/weights"
)

// LinearF32F32 computes, for each of the n activation rows, weight * row
// (weight is [localK, m] row-major) via the matrix-vector product of
// hwy/contrib/matvec, one activation row at a time. It is single-threaded
// over the whole [n, localK] shard, and the server calls it once per linear
// op: localK is not split across the worker's thread pool.
func LinearF32F32(input []float32, n, m int, w *weights.Weight) []float32 {
	weightF32 := asFloat32(w.Shard.Raw)
	out := make([]float32, n*w.LocalK)
	for row := 0; row < n; row++ {
		matvec.MatVec(weightF32, w.LocalK, m, input[row*m:(row+1)*m], out[row*w.LocalK:(row+1)*w.LocalK])
	}
	return out
}

func asFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = bytesToFloat32(raw[i*4 : i*4+4])
	}
	return out
}

func bytesToFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// LinearInt8 implements §4.4's F32×INT8 path:
//
//	C = (scale_w · (Qa·Qw − zeroA·sum(Qw) − zeroW·sum(Qa) + zeroA·zeroW·M)) · scale_a
//
// with one LowBitConfig per activation row (group=1 unless the weight
// itself is grouped, which INT8 weights in this design never are).
func LinearInt8(input []float32, n, m int, w *weights.Weight) []float32 {
	out := make([]float32, n*w.LocalK)
	qa := make([]uint8, m)
	for row := 0; row < n; row++ {
		actCfg, actSum := quant.QuantizeUint8Row(input[row*m:(row+1)*m], qa)
		for k := 0; k < w.LocalK; k++ {
			wCfg := w.LowBitConfigAt(k, 0)
			wCodes := w.Codes()[k*m : (k+1)*m]
			wSum := w.RowSum(k)

			var dot int64
			for j := 0; j < m; j++ {
				dot += int64(qa[j]) * int64(wCodes[j])
			}
			c := float32(dot) - actCfg.ZeroPoint*float32(wSum) - wCfg.ZeroPoint*float32(actSum) + actCfg.ZeroPoint*wCfg.ZeroPoint*float32(m)
			out[row*w.LocalK+k] = wCfg.Scale * c * actCfg.Scale
		}
	}
	return out
}

// LinearInt4NoZero and LinearInt4Group implement §4.4's F32×INT4-NOZERO and
// F32×INT4-GROUP paths: each nibble decoded on the fly. For the grouped
// variant the inner M dimension is split into groups of GroupSize elements,
// each with its own (min, scale), and the per-group activation sum is
// precomputed once per row (reused across all localK output rows).
func LinearInt4NoZero(input []float32, n, m int, w *weights.Weight) []float32 {
	return linearInt4(input, n, m, w)
}

func LinearInt4Group(input []float32, n, m int, w *weights.Weight) []float32 {
	return linearInt4(input, n, m, w)
}

func linearInt4(input []float32, n, m int, w *weights.Weight) []float32 {
	groups := w.Shard.GroupCount()
	groupSize := w.Shard.GroupSize
	if groupSize <= 0 {
		groupSize = m
	}
	out := make([]float32, n*w.LocalK)

	for row := 0; row < n; row++ {
		actRow := input[row*m : (row+1)*m]
		groupActSums := make([]float32, groups)
		for g := 0; g < groups; g++ {
			start, end := g*groupSize, min(g*groupSize+groupSize, m)
			var s float32
			for _, v := range actRow[start:end] {
				s += v
			}
			groupActSums[g] = s
		}
		for k := 0; k < w.LocalK; k++ {
			nibbles := w.Codes()[k*m : (k+1)*m] // already unpacked to one uint8 code per element
			var acc float32
			for g := 0; g < groups; g++ {
				cfg := w.LowBitConfigAt(k, g)
				start, end := g*groupSize, min(g*groupSize+groupSize, m)
				var dot float32
				for j := start; j < end; j++ {
					dot += actRow[j] * float32(nibbles[j])
				}
				// sum_j a_j*(q_j-zero)*scale = scale*(sum_j a_j*q_j - zero*sum_j a_j)
				acc += cfg.Scale * (dot - cfg.ZeroPoint*groupActSums[g])
			}
			out[row*w.LocalK+k] = acc
		}
	}
	return out
}

// LinearFP8 implements §4.4's F32×FP8-E4M3 path: decode FP8 on the fly via
// the fixed lookup table and run a dense dot product.
func LinearFP8(input []float32, n, m int, w *weights.Weight) []float32 {
	out := make([]float32, n*w.LocalK)
	decoded := make([]float32, m)
	for k := 0; k < w.LocalK; k++ {
		quant.DequantizeFP8E4M3(w.Shard.Raw[k*m:(k+1)*m], decoded)
		for row := 0; row < n; row++ {
			actRow := input[row*m : (row+1)*m]
			var acc float32
			for j := 0; j < m; j++ {
				acc += actRow[j] * decoded[j]
			}
			out[row*w.LocalK+k] = acc
		}
	}
	return out
}

// LinearF16 implements §4.4's F32×F16 path: decode binary16 weights on the
// fly and run a dense dot product, matching LinearFP8's structure.
func LinearF16(input []float32, n, m int, w *weights.Weight) []float32 {
	return linearHalfPrecision(input, n, m, w, quant.DequantizeF16)
}

// LinearBF16 implements §4.4's F32×BF16 path, identical to LinearF16 but
// decoding bfloat16 instead of binary16.
func LinearBF16(input []float32, n, m int, w *weights.Weight) []float32 {
	return linearHalfPrecision(input, n, m, w, quant.DequantizeBF16)
}

func linearHalfPrecision(input []float32, n, m int, w *weights.Weight, decode func([]byte, []float32)) []float32 {
	out := make([]float32, n*w.LocalK)
	decoded := make([]float32, m)
	for k := 0; k < w.LocalK; k++ {
		decode(w.Shard.Raw[k*m*2:(k+1)*m*2], decoded)
		for row := 0; row < n; row++ {
			actRow := input[row*m : (row+1)*m]
			var acc float32
			for j := 0; j < m; j++ {
				acc += actRow[j] * decoded[j]
			}
			out[row*w.LocalK+k] = acc
		}
	}
	return out
}

// RunLinear dispatches on the weight's dtype to the right kernel algorithm,
// applies bias, and applies the fused activation, per §4.4. The returned
// slice has shape [n, OutputWidth(localK, exType)].
func RunLinear(input []float32, n, m int, w *weights.Weight, bias []float32, ex dtype.FusedActivation) ([]float32, error) {
	var raw []float32
	switch w.Shard.DType {
	case dtype.F32:
		raw = LinearF32F32(input, n, m, w)
	case dtype.INT8:
		raw = LinearInt8(input, n, m, w)
	case dtype.INT4NoZero:
		raw = LinearInt4NoZero(input, n, m, w)
	case dtype.INT4Group:
		raw = LinearInt4Group(input, n, m, w)
	case dtype.FP8E4M3:
		raw = LinearFP8(input, n, m, w)
	case dtype.F16:
		raw = LinearF16(input, n, m, w)
	case dtype.BF16:
		raw = LinearBF16(input, n, m, w)
	case dtype.GGUF:
		var err error
		raw, err = LinearGGUF(input, n, m, w)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported weight dtype %v for linear kernel", errs.ErrConfiguration, w.Shard.DType)
	}
	addBias(raw, n, w.LocalK, bias)
	return ApplyActivation(raw, n, w.LocalK, ex), nil
}
