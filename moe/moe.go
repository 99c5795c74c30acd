// Package moe implements the mixture-of-experts kernel of §4.5: gate-score
// top-k expert selection, the always-on shared expert, per-expert
// gate_up/down projection, and aggregation of the selected experts' outputs
// back onto the hidden state, each scaled by its routing weight.
package moe

import (
	"fmt"
	"sort"

	"github.com/fastllm-numa/numacore/dtype"
	"github.com/fastllm-numa/numacore/errs"
	"github.com/fastllm-numa/numacore/kernel"
	"github.com/fastllm-numa/numacore/weights"
)

// Expert bundles one routed expert's two projections: gate_up (fused SwiGLU
// in, width 2*ffn) and down (ffn back to hidden).
type Expert struct {
	GateUp *weights.Weight
	Down   *weights.Weight
}

// Config carries the routing parameters a worker needs to reproduce the
// client's top-k selection deterministically (the client sends the already
// computed logits; the worker never recomputes the gate projection itself).
type Config struct {
	TopK        int
	NeedNorm    bool      // renormalize the selected weights to sum to 1
	SharedIndex int       // -1 disables the always-on shared expert
	Bias        []float32 // per-expert routing bias, subtracted before ranking

	// SharedScale multiplies the shared expert's aggregation weight
	// (e.g. the 0.5 in "0.6*e1 + 0.4*e2 + 0.5*e0"). Zero means unset and
	// defaults to 1 (no scaling).
	SharedScale float32
	// RouteScale multiplies every top-k routed (non-shared) expert's
	// aggregation weight, applied after NeedNorm renormalization. Zero
	// means unset and defaults to 1 (no scaling).
	RouteScale float32
}

func scaleOrDefault(scale float32) float32 {
	if scale == 0 {
		return 1
	}
	return scale
}

// selected is one chosen expert plus its aggregation weight.
type selected struct {
	index  int
	weight float32
}

// SelectExperts implements the top-k-with-bias selection: rank by
// (logit - bias) descending, take the top k, then restore each selected
// expert's original (un-biased) logit as its aggregation weight, per
// fastllm's bias-for-ranking-only convention. The shared expert, when
// enabled, is always included: it is appended with SharedScale as its weight
// unless it is already among the top k, where it keeps its routed weight.
func SelectExperts(logits []float32, cfg Config) []selected {
	n := len(logits)
	ranked := make([]int, n)
	for i := range ranked {
		ranked[i] = i
	}
	biased := func(i int) float32 {
		if cfg.Bias != nil {
			return logits[i] - cfg.Bias[i]
		}
		return logits[i]
	}
	sort.Slice(ranked, func(a, b int) bool {
		return biased(ranked[a]) > biased(ranked[b])
	})

	k := cfg.TopK
	if k > n {
		k = n
	}
	out := make([]selected, 0, k+1)
	seen := make(map[int]bool, k+1)
	for _, idx := range ranked[:k] {
		out = append(out, selected{index: idx, weight: logits[idx]})
		seen[idx] = true
	}
	if cfg.NeedNorm {
		normalize(out)
	}
	routeScale := scaleOrDefault(cfg.RouteScale)
	for i := range out {
		out[i].weight *= routeScale
	}
	if cfg.SharedIndex >= 0 && !seen[cfg.SharedIndex] {
		out = append(out, selected{index: cfg.SharedIndex, weight: scaleOrDefault(cfg.SharedScale)})
	}
	return out
}

func normalize(sel []selected) {
	var sum float32
	for _, s := range sel {
		sum += s.weight
	}
	if sum == 0 {
		return
	}
	for i := range sel {
		sel[i].weight /= sum
	}
}

// Run computes one row's MoE output: for each selected expert, gate_up then
// SwiGLU then down-project, scaled by its aggregation weight and summed into
// the hidden-size output, per §4.5.
func Run(hidden []float32, hiddenSize int, experts []Expert, logits []float32, cfg Config) ([]float32, error) {
	sel := SelectExperts(logits, cfg)
	out := make([]float32, hiddenSize)

	for _, s := range sel {
		if s.index < 0 || s.index >= len(experts) {
			return nil, fmt.Errorf("%w: moe routed to out-of-range expert %d (have %d)", errs.ErrConfiguration, s.index, len(experts))
		}
		e := experts[s.index]

		gateUp, err := kernel.RunLinear(hidden, 1, hiddenSize, e.GateUp, e.GateUp.Bias, dtype.ActSwiGLU)
		if err != nil {
			return nil, fmt.Errorf("moe expert %d gate_up: %w", s.index, err)
		}
		down, err := kernel.RunLinear(gateUp, 1, len(gateUp), e.Down, e.Down.Bias, dtype.ActNone)
		if err != nil {
			return nil, fmt.Errorf("moe expert %d down: %w", s.index, err)
		}
		if len(down) != hiddenSize {
			return nil, fmt.Errorf("%w: moe expert %d down-projection produced width %d, want %d", errs.ErrState, s.index, len(down), hiddenSize)
		}
		for i, v := range down {
			out[i] += s.weight * v
		}
	}
	return out, nil
}

// BatchGroups implements the batch-packing heuristic: experts whose gate_up
// local-K is an integer multiple of the smallest selected expert's local-K,
// and which divides evenly into threadCount, are grouped so a single
// threaded dispatch can process them as one widened matmul instead of one
// launch per expert. Experts that don't fit any group run alone.
func BatchGroups(experts []Expert, selectedIdx []int, threadCount int) [][]int {
	if len(selectedIdx) == 0 {
		return nil
	}
	minK := experts[selectedIdx[0]].GateUp.LocalK
	for _, idx := range selectedIdx[1:] {
		if k := experts[idx].GateUp.LocalK; k < minK {
			minK = k
		}
	}

	byMultiple := make(map[int][]int)
	var solo []int
	for _, idx := range selectedIdx {
		k := experts[idx].GateUp.LocalK
		if minK == 0 || k%minK != 0 {
			solo = append(solo, idx)
			continue
		}
		mult := k / minK
		if threadCount%mult != 0 && mult != 1 {
			solo = append(solo, idx)
			continue
		}
		byMultiple[mult] = append(byMultiple[mult], idx)
	}

	var groups [][]int
	for _, g := range byMultiple {
		groups = append(groups, g)
	}
	for _, idx := range solo {
		groups = append(groups, []int{idx})
	}
	return groups
}
