// Package weights implements the weight registration and sharding protocol
// each worker applies to a logical weight tensor of shape [K, M]: it reads
// the full tensor the client streams in and keeps only its own vertical
// slice, per §4.3.
package weights

import (
	"fmt"
	"math"

	"github.com/fastllm-numa/numacore/dtype"
	"github.com/fastllm-numa/numacore/errs"
	"github.com/fastllm-numa/numacore/quant"
	"github.com/fastllm-numa/numacore/tensor"
)

// ShardRange describes a contiguous [Start, End) row or column range.
type ShardRange struct {
	Start, End int
}

// RowShardRange implements "rows [partId·K/P, (partId+1)·K/P); last worker
// takes the remainder".
func RowShardRange(k, partID, partCount int) ShardRange {
	base := k / partCount
	start := partID * base
	end := start + base
	if partID == partCount-1 {
		end = k
	}
	return ShardRange{start, end}
}

// ColumnShardRange implements "columns [partId·M/P, (partId+1)·M/P), M
// rounded up to be even".
func ColumnShardRange(m, partID, partCount int) ShardRange {
	mEven := m
	if mEven%2 != 0 {
		mEven++
	}
	base := mEven / partCount
	start := partID * base
	end := start + base
	if end > m {
		end = m
	}
	if start > m {
		start = m
	}
	return ShardRange{start, end}
}

// SwigluShardRanges implements "take the partId-th slice of rows 0..K/2,
// then the partId-th slice of rows K/2..K" — each half is an independent
// row-shard over K/2.
func SwigluShardRanges(k, partID, partCount int) (gate, up ShardRange) {
	half := k / 2
	gate = RowShardRange(half, partID, partCount)
	up = RowShardRange(half, partID, partCount)
	up.Start += half
	up.End += half
	return gate, up
}

// Weight is one registered, already-sharded tensor plus the metadata a
// worker needs to run a kernel against it.
type Weight struct {
	Name       string
	Type       dtype.WeightType
	FullK      int // logical (unsharded) K, needed to compute output offsets
	FullM      int
	LocalK     int // rows (or, for linearColumn, full K) held by this worker
	LocalM     int // columns held (full M unless linearColumn)
	Shard      *tensor.Data
	Bias       []float32 // bias for the rows held (length LocalK); the full vector for linearColumn
	GGUFKind   string     // block format name (Q4_0, Q8_0, ...), set only for dtype.GGUF
}

// RegisterGGUF installs a pre-registered GGUF tensor descriptor: the weight
// is never dequantized wholesale, only its row range is sliced out of the
// packed block stream. blockBytesPerRow is the byte width of one output
// row's worth of quantized blocks (nblocks * BytesPerBlock(qt)), which the
// caller computes once from the GGUF quant kind.
func RegisterGGUF(name string, kind string, k, m int, full []byte, blockBytesPerRow int, partID, partCount int) *Weight {
	rng := RowShardRange(k, partID, partCount)
	localK := rng.End - rng.Start
	raw := append([]byte(nil), full[rng.Start*blockBytesPerRow:rng.End*blockBytesPerRow]...)
	shard := &tensor.Data{DType: dtype.GGUF, Shape: []int{localK, m}, Raw: raw}
	return &Weight{Name: name, Type: dtype.Linear, FullK: k, FullM: m, LocalK: localK, LocalM: m, Shard: shard, GGUFKind: kind}
}

// Registry is the per-worker weight map, keyed by logical name, matching
// ComputeServer's weight table.
type Registry struct {
	parts map[string]*Weight
}

// NewRegistry constructs an empty weight registry.
func NewRegistry() *Registry {
	return &Registry{parts: make(map[string]*Weight)}
}

// Lookup returns the shard registered under name, or (nil, false).
func (r *Registry) Lookup(name string) (*Weight, bool) {
	w, ok := r.parts[name]
	return w, ok
}

// Has reports whether name is registered, for the FindData op.
func (r *Registry) Has(name string) bool {
	_, ok := r.parts[name]
	return ok
}

// Unregister drops the map entry, freeing the shard for GC.
func (r *Registry) Unregister(name string) {
	delete(r.parts, name)
}

// RegisterDense extracts this worker's shard from a full dense (F32/F16)
// weight tensor, given its logical shape [K, M] and raw row-major bytes,
// according to the weight type's sharding rule. elemSize is the byte width
// of one element (4 for F32, 2 for F16).
func RegisterDense(name string, wt dtype.WeightType, dt dtype.DataType, k, m int, full []byte, elemSize int, bias []float32, partID, partCount int) (*Weight, error) {
	rowBytes := m * elemSize

	switch wt {
	case dtype.Linear:
		rng := RowShardRange(k, partID, partCount)
		localK := rng.End - rng.Start
		shard := tensor.NewDense(dt, []int{localK, m})
		copy(shard.Raw, full[rng.Start*rowBytes:rng.End*rowBytes])
		return &Weight{Name: name, Type: wt, FullK: k, FullM: m, LocalK: localK, LocalM: m, Shard: shard, Bias: sliceBias(bias, rng)}, nil

	case dtype.LinearSwiglu:
		gate, up := SwigluShardRanges(k, partID, partCount)
		localK := (gate.End - gate.Start) + (up.End - up.Start)
		shard := tensor.NewDense(dt, []int{localK, m})
		off := 0
		gateRows := gate.End - gate.Start
		copy(shard.Raw[off:off+gateRows*rowBytes], full[gate.Start*rowBytes:gate.End*rowBytes])
		off += gateRows * rowBytes
		upRows := up.End - up.Start
		copy(shard.Raw[off:off+upRows*rowBytes], full[up.Start*rowBytes:up.End*rowBytes])
		var localBias []float32
		if bias != nil {
			localBias = append(localBias, bias[gate.Start:gate.End]...)
			localBias = append(localBias, bias[up.Start:up.End]...)
		}
		return &Weight{Name: name, Type: wt, FullK: k, FullM: m, LocalK: localK, LocalM: m, Shard: shard, Bias: localBias}, nil

	case dtype.LinearColumn:
		rng := ColumnShardRange(m, partID, partCount)
		localM := rng.End - rng.Start
		shard := tensor.NewDense(dt, []int{k, localM})
		for row := 0; row < k; row++ {
			srcOff := row*rowBytes + rng.Start*elemSize
			dstOff := row * localM * elemSize
			copy(shard.Raw[dstOff:dstOff+localM*elemSize], full[srcOff:srcOff+localM*elemSize])
		}
		return &Weight{Name: name, Type: wt, FullK: k, FullM: m, LocalK: k, LocalM: localM, Shard: shard, Bias: bias}, nil

	default:
		return nil, fmt.Errorf("%w: unknown weight type tag %v", errs.ErrConfiguration, wt)
	}
}

func sliceBias(bias []float32, rng ShardRange) []float32 {
	if bias == nil {
		return nil
	}
	return append([]float32(nil), bias[rng.Start:rng.End]...)
}

// RegisterQuantized extracts this worker's shard from a full row-major INT8
// or grouped-INT4 weight, re-indexing per-row (and per-group, when grouped)
// quantization metadata the same way the element rows are sharded. codes is
// the full unpacked uint8 code matrix [k, m], one code per byte (INT4
// callers unpack nibbles before calling this); the shard keeps the codes
// unpacked.
func RegisterQuantized(name string, wt dtype.WeightType, dt dtype.DataType, k, m, groupSize int, codes []uint8, mins, scales []float32, bias []float32, partID, partCount int) (*Weight, error) {
	if wt != dtype.Linear && wt != dtype.LinearSwiglu {
		return nil, fmt.Errorf("%w: quantized column-sharded weights are not supported", errs.ErrConfiguration)
	}

	groups := 1
	if groupSize > 0 {
		groups = (m + groupSize - 1) / groupSize
	}

	extractRows := func(rng ShardRange) ([]uint8, []float32, []float32) {
		rows := rng.End - rng.Start
		outCodes := make([]uint8, rows*m)
		copy(outCodes, codes[rng.Start*m:rng.End*m])
		outMins := append([]float32(nil), mins[rng.Start*groups:rng.End*groups]...)
		outScales := append([]float32(nil), scales[rng.Start*groups:rng.End*groups]...)
		return outCodes, outMins, outScales
	}

	var localCodes []uint8
	var localMins, localScales []float32
	var localK int
	var localBias []float32

	if wt == dtype.Linear {
		rng := RowShardRange(k, partID, partCount)
		localK = rng.End - rng.Start
		localCodes, localMins, localScales = extractRows(rng)
		localBias = sliceBias(bias, rng)
	} else {
		gate, up := SwigluShardRanges(k, partID, partCount)
		gc, gm, gs := extractRows(gate)
		uc, um, us := extractRows(up)
		localCodes = append(append([]uint8(nil), gc...), uc...)
		localMins = append(append([]float32(nil), gm...), um...)
		localScales = append(append([]float32(nil), gs...), us...)
		localK = (gate.End - gate.Start) + (up.End - up.Start)
		if bias != nil {
			localBias = append(append([]float32(nil), bias[gate.Start:gate.End]...), bias[up.Start:up.End]...)
		}
	}

	shard := &tensor.Data{
		DType:     dt,
		Shape:     []int{localK, m},
		Strides:   []int{m, 1},
		Raw:       codesToBytes(localCodes),
		Mins:      localMins,
		Scales:    localScales,
		GroupSize: groupSize,
	}
	return &Weight{Name: name, Type: wt, FullK: k, FullM: m, LocalK: localK, LocalM: m, Shard: shard, Bias: localBias}, nil
}

func codesToBytes(codes []uint8) []byte {
	return codes
}

// Register installs an already-built shard into the registry under name.
func (r *Registry) Register(w *Weight) {
	r.parts[w.Name] = w
}

// Codes re-exposes the shard's raw uint8 codes for the linear kernels
// (INT8/INT4 paths store codes as one byte per element in Weight.Shard.Raw;
// INT4 codes arrive nibble-packed in the registration payload and the
// server unpacks them before registering, so the worker-local shard is
// never nibble-packed).
func (w *Weight) Codes() []uint8 {
	return w.Shard.Raw
}

// RowSum lazily computes and caches the per-row sum of quantized weight
// codes for row r (§8.4's weight-sum identity).
func (w *Weight) RowSum(r int) int64 {
	sums := w.Shard.RowSums(w.LocalK, func(row int) []uint8 {
		return w.Codes()[row*w.LocalM : (row+1)*w.LocalM]
	})
	return sums[r]
}

// LowBitConfigAt returns the (min, scale, zero) config for (row, group) of a
// quantized shard, recovering ZeroPoint the same way quant.NewLowBitConfig
// does so Dequantize applies Min for the asymmetric case.
func (w *Weight) LowBitConfigAt(row, group int) quant.LowBitConfig {
	groups := w.Shard.GroupCount()
	idx := row*groups + group
	min := w.Shard.Mins[idx]
	scale := w.Shard.Scales[idx]
	cfg := quant.LowBitConfig{Min: min, Scale: scale, Bits: 4, Sign: quant.Unsigned}
	if scale != 0 {
		cfg.ZeroPoint = float32(math.Round(float64(-min / scale)))
	}
	return cfg
}
