package kernel

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/fastllm-numa/numacore/dtype"
	"github.com/fastllm-numa/numacore/quant"
	"github.com/fastllm-numa/numacore/tensor"
	"github.com/fastllm-numa/numacore/weights"
)

func f32Weight(k, m int, raw []float32) *weights.Weight {
	d := tensor.NewDense(dtype.F32, []int{k, m})
	for i, v := range raw {
		b := d.Raw[i*4 : i*4+4]
		bits := math.Float32bits(v)
		b[0] = byte(bits)
		b[1] = byte(bits >> 8)
		b[2] = byte(bits >> 16)
		b[3] = byte(bits >> 24)
	}
	return &weights.Weight{Name: "w", FullK: k, FullM: m, LocalK: k, LocalM: m, Shard: d}
}

// TestS1SingleWorkerF32Linear is scenario S1.
func TestS1SingleWorkerF32Linear(t *testing.T) {
	k, m, n := 3, 4, 2
	w := f32Weight(k, m, []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	})
	input := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := RunLinear(input, n, m, w, []float32{0, 0, 0}, dtype.ActNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{1, 2, 3, 5, 6, 7}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: want %v got %v", i, want[i], out[i])
		}
	}
}

// TestS2TwoWorkerRowShardedLinear is scenario S2: row-sharding the S1
// weight across two workers and concatenating reproduces S1.
func TestS2TwoWorkerRowShardedLinear(t *testing.T) {
	k, m, n := 3, 4, 2
	fullRaw := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
	input := []float32{1, 2, 3, 4, 5, 6, 7, 8}

	rng0 := weights.RowShardRange(k, 0, 2)
	rng1 := weights.RowShardRange(k, 1, 2)
	w0 := f32Weight(rng0.End-rng0.Start, m, fullRaw[rng0.Start*m:rng0.End*m])
	w1 := f32Weight(rng1.End-rng1.Start, m, fullRaw[rng1.Start*m:rng1.End*m])

	out0, err := RunLinear(input, n, m, w0, nil, dtype.ActNone)
	if err != nil {
		t.Fatal(err)
	}
	out1, err := RunLinear(input, n, m, w1, nil, dtype.ActNone)
	if err != nil {
		t.Fatal(err)
	}

	// Concatenate along the output-channel axis per row.
	got := make([]float32, n*k)
	for row := 0; row < n; row++ {
		copy(got[row*k:row*k+w0.LocalK], out0[row*w0.LocalK:(row+1)*w0.LocalK])
		copy(got[row*k+w0.LocalK:row*k+k], out1[row*w1.LocalK:(row+1)*w1.LocalK])
	}
	want := []float32{1, 2, 3, 5, 6, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: want %v got %v", i, want[i], got[i])
		}
	}
}

// TestINT4GroupLinearApproximatesF32 is scenario S3's spirit: an
// INT4-group weight whose dequant reconstructs the S1 identity-like matrix
// should match within a small multiple of the grid's scale.
func TestINT4GroupLinearApproximatesF32(t *testing.T) {
	k, m, groupSize := 1, 4, 4
	// Row encodes [1,0,0,0] exactly representable on an asymmetric [-0.5,1]
	// grid, so a zero min would mis-dequantize every code.
	row := []float32{1, 0, 0, 0}
	cfg := quant.NewLowBitConfig(-0.5, 1, 4, quant.Unsigned)
	codes := make([]uint8, m)
	for i, v := range row {
		codes[i] = uint8(cfg.Quantize(v))
	}
	d := &tensor.Data{
		DType:     dtype.INT4Group,
		Shape:     []int{k, m},
		Raw:       codes,
		Mins:      []float32{cfg.Min},
		Scales:    []float32{cfg.Scale},
		GroupSize: groupSize,
	}
	w := &weights.Weight{Name: "w", FullK: k, FullM: m, LocalK: k, LocalM: m, Shard: d}

	input := []float32{1, 2, 3, 4}
	out, err := RunLinear(input, 1, m, w, nil, dtype.ActNone)
	if err != nil {
		t.Fatal(err)
	}
	want := float32(1.0) // 1*1 + 2*0 + 3*0 + 4*0
	if diff := float32(math.Abs(float64(out[0] - want))); diff > 2*cfg.Scale {
		t.Errorf("want ~%v got %v (diff %v exceeds 2*scale=%v)", want, out[0], diff, 2*cfg.Scale)
	}
}

// TestF16LinearReproducesF32Identity exercises the F32×F16 path against the
// same identity-like matrix as S1, since binary16 exactly represents 0 and 1.
func TestF16LinearReproducesF32Identity(t *testing.T) {
	k, m, n := 3, 4, 2
	raw := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
	d := tensor.NewDense(dtype.F16, []int{k, m})
	for i, v := range raw {
		binary.LittleEndian.PutUint16(d.Raw[i*2:i*2+2], quant.EncodeFloat16(v))
	}
	w := &weights.Weight{Name: "w", FullK: k, FullM: m, LocalK: k, LocalM: m, Shard: d}

	input := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := RunLinear(input, n, m, w, nil, dtype.ActNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{1, 2, 3, 5, 6, 7}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: want %v got %v", i, want[i], out[i])
		}
	}
}

func TestApplyActivationSwiGLUHalvesWidth(t *testing.T) {
	n, width := 1, 4
	raw := []float32{1, 1, 2, 3} // gate=[1,1], up=[2,3]
	out := ApplyActivation(raw, n, width, dtype.ActSwiGLU)
	if len(out) != n*OutputWidth(width, dtype.ActSwiGLU) {
		t.Fatalf("expected halved width %d, got %d", OutputWidth(width, dtype.ActSwiGLU), len(out))
	}
}
