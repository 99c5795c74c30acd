// Package attention implements the per-head causal attention kernel each
// worker runs against its head-sharded slice of a KV cache (§4.6).
package attention

import "math"

// blockSize is the number of consecutive query positions each tile covers.
const blockSize = 4

// CausalHead computes causal attention for one local head:
//
//	S = Q_block · K^T · scale, masked to the window [lKV-lQ+i, lKV),
//	O_block = softmax(S) · V
//
// q is [lQ, dim] row-major (this head's query rows), k and v are the cache's
// [lKV, dim] head slices (already sharded to this worker by the caller), and
// out is the pre-allocated [lQ, dim] output band for this head. Work is
// tiled in blocks of 4 query rows, as required so very long query ranges
// don't need one O(lQ*lKV) scratch buffer live at once.
func CausalHead(q, k, v []float32, lQ, lKV, dim int, scale float32, out []float32) {
	scores := make([]float32, blockSize*lKV)
	for blockStart := 0; blockStart < lQ; blockStart += blockSize {
		blockEnd := blockStart + blockSize
		if blockEnd > lQ {
			blockEnd = lQ
		}
		rows := blockEnd - blockStart
		causalHeadBlock(q[blockStart*dim:blockEnd*dim], k, v, rows, lQ, lKV, dim, scale, blockStart, scores, out[blockStart*dim:blockEnd*dim])
	}
}

func causalHeadBlock(qBlock, k, v []float32, rows, lQ, lKV, dim int, scale float32, blockStart int, scores, outBlock []float32) {
	offset := lKV - lQ
	for r := 0; r < rows; r++ {
		i := blockStart + r
		causalEnd := offset + i + 1 // exclusive: keys [0, causalEnd) are visible
		if causalEnd > lKV {
			causalEnd = lKV
		}
		if causalEnd < 0 {
			causalEnd = 0
		}
		qRow := qBlock[r*dim : (r+1)*dim]
		sRow := scores[r*lKV : r*lKV+lKV]

		maxVal := float32(math.Inf(-1))
		for j := 0; j < causalEnd; j++ {
			kRow := k[j*dim : (j+1)*dim]
			var dot float32
			for d := 0; d < dim; d++ {
				dot += qRow[d] * kRow[d]
			}
			s := dot * scale
			sRow[j] = s
			if s > maxVal {
				maxVal = s
			}
		}
		for j := causalEnd; j < lKV; j++ {
			sRow[j] = float32(math.Inf(-1))
		}

		var sum float32
		for j := 0; j < causalEnd; j++ {
			e := float32(math.Exp(float64(sRow[j] - maxVal)))
			sRow[j] = e
			sum += e
		}
		invSum := float32(1)
		if sum > 0 {
			invSum = 1 / sum
		}

		oRow := outBlock[r*dim : (r+1)*dim]
		for d := 0; d < dim; d++ {
			oRow[d] = 0
		}
		for j := 0; j < causalEnd; j++ {
			w := sRow[j] * invSum
			vRow := v[j*dim : (j+1)*dim]
			for d := 0; d < dim; d++ {
				oRow[d] += w * vRow[d]
			}
		}
	}
}

// HeadRange implements "heads [partId·H_q/P, (partId+1)·H_q/P)" (§4.6).
func HeadRange(hq, partID, partCount int) (start, end int) {
	base := hq / partCount
	start = partID * base
	end = start + base
	if partID == partCount-1 {
		end = hq
	}
	return start, end
}
