package kernel

import (
	"fmt"

	"github.com/fastllm-numa/numacore/errs"
	"github.com/fastllm-numa/numacore/hwy/contrib/gguf"
	"github.com/fastllm-numa/numacore/weights"
)

// fusedGGUFKinds are the block formats GGUFMatMul can run end to end
// (quantized activation, weight stays packed, vec-dot accumulation).
// IQ4_NL and the k-quant super-block formats (Q2_K..Q6_K) dequantize-then-dot
// instead, since the fused vec-dot table does not cover them.
var fusedGGUFKinds = map[string]gguf.QuantType{
	"Q4_0": gguf.TypeQ4_0,
	"Q8_0": gguf.TypeQ8_0,
}

var kQuantBlockSize = map[string]int{
	"IQ4_NL": gguf.BlockSizeIQ4NL,
	"Q2_K":   gguf.BlockSizeQ2K,
	"Q3_K":   gguf.BlockSizeQ3K,
	"Q4_K":   gguf.BlockSizeQ4K,
	"Q5_K":   gguf.BlockSizeQ5K,
	"Q6_K":   gguf.BlockSizeQ6K,
}

var kQuantDequant = map[string]func(data []uint8, output []float32){
	"IQ4_NL": gguf.BaseDequantizeIQ4NL,
	"Q2_K":   gguf.BaseDequantizeQ2K,
	"Q3_K":   gguf.BaseDequantizeQ3K,
	"Q4_K":   gguf.BaseDequantizeQ4K,
	"Q5_K":   gguf.BaseDequantizeQ5K,
	"Q6_K":   gguf.BaseDequantizeQ6K,
}

// LinearGGUF implements §4.4's F32×GGUF path: delegate to the pre-registered
// GGUF tensor descriptor's own quantized matmul, never dequantizing the
// weight wholesale for the Q4_0/Q8_0 formats. IQ4_NL and the k-quant
// super-block formats (Q2_K..Q6_K) dequantize one row at a time instead,
// since go-highway's fused vec-dot table only covers Q4_0 and Q8_0.
func LinearGGUF(input []float32, n, m int, w *weights.Weight) ([]float32, error) {
	if qt, ok := fusedGGUFKinds[w.GGUFKind]; ok {
		out := make([]float32, n*w.LocalK)
		gguf.GGUFMatMul(input, w.Shard.Raw, out, n, m, w.LocalK, qt)
		return out, nil
	}
	if blockSize, ok := kQuantBlockSize[w.GGUFKind]; ok {
		dequant := kQuantDequant[w.GGUFKind]
		valsPerBlock := gguf.QK_K
		if w.GGUFKind == "IQ4_NL" {
			valsPerBlock = gguf.QK
		}
		nblocks := m / valsPerBlock
		rowBytes := nblocks * blockSize
		out := make([]float32, n*w.LocalK)
		decoded := make([]float32, m)
		for k := 0; k < w.LocalK; k++ {
			dequant(w.Shard.Raw[k*rowBytes:(k+1)*rowBytes], decoded)
			for row := 0; row < n; row++ {
				actRow := input[row*m : (row+1)*m]
				var acc float32
				for j := 0; j < m; j++ {
					acc += actRow[j] * decoded[j]
				}
				out[row*w.LocalK+k] = acc
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unregistered GGUF quant kind %q", errs.ErrConfiguration, w.GGUFKind)
}
