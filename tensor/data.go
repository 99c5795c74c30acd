// Package tensor defines the dense n-dimensional buffer type shared by
// weights, activations, and KV cache storage.
package tensor

import "github.com/fastllm-numa/numacore/dtype"

// Data is a dense tensor plus the quantization metadata needed to interpret
// it when DType is one of the quantized encodings. Shape is row-major;
// Strides is derived but kept explicit so a shard (a sub-view with the same
// strides but fewer rows) can be constructed without recomputation.
type Data struct {
	DType   dtype.DataType
	Shape   []int
	Strides []int

	// Raw holds the element bytes (dense for F32/F16/INT8, one code per
	// byte for INT4 variants, GGUF-block packed for GGUF).
	Raw []byte

	// Quantization metadata, present only when DType.IsQuantized().
	// Mins and Scales have length equal to the quantized axis
	// (rows), multiplied by GroupCount when GroupSize > 0.
	Mins       []float32
	Scales     []float32
	GroupSize  int // 0 means ungrouped (one config per row)

	// rowSums is the lazily computed per-row sum of quantized codes (§8.4).
	// nil until first computed.
	rowSums []int64
}

// NewDense allocates a Data with a zeroed Raw buffer of the right size for a
// dense (non-packed) dtype.
func NewDense(dt dtype.DataType, shape []int) *Data {
	n := 1
	for _, s := range shape {
		n *= s
	}
	strides := rowMajorStrides(shape)
	return &Data{
		DType:   dt,
		Shape:   append([]int(nil), shape...),
		Strides: strides,
		Raw:     make([]byte, n*dt.Size()),
	}
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// GroupCount returns the number of quantization groups per row for a
// grouped weight, or 1 if ungrouped.
func (d *Data) GroupCount() int {
	if d.GroupSize <= 0 || len(d.Shape) == 0 {
		return 1
	}
	m := d.Shape[len(d.Shape)-1]
	return (m + d.GroupSize - 1) / d.GroupSize
}

// ConfigIndex returns the (Mins, Scales) slot for (row, group).
func (d *Data) ConfigIndex(row, group int) int {
	return row*d.GroupCount() + group
}

// RowSums returns the lazily computed per-row sum of quantized codes,
// computing it on first access. computeRow extracts the uint8 codes for a
// given row (the caller knows how to unpack INT4/INT8 for its own layout).
func (d *Data) RowSums(rows int, computeRow func(row int) []uint8) []int64 {
	if d.rowSums != nil {
		return d.rowSums
	}
	sums := make([]int64, rows)
	for r := 0; r < rows; r++ {
		var s int64
		for _, c := range computeRow(r) {
			s += int64(c)
		}
		sums[r] = s
	}
	d.rowSums = sums
	return sums
}

// InvalidateRowSums forces the next RowSums call to recompute from scratch.
func (d *Data) InvalidateRowSums() {
	d.rowSums = nil
}
