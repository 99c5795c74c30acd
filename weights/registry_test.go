package weights

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/fastllm-numa/numacore/dtype"
)

func f32Bytes(vals []float32) []byte {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// TestRowShardConcatenationMatchesUnsharded is property 1 (sharding
// equivalence) for the row-sharded F32 case: concatenating every worker's
// shard reproduces the full weight byte-for-byte.
func TestRowShardConcatenationMatchesUnsharded(t *testing.T) {
	k, m := 5, 4
	full := make([]float32, k*m)
	for i := range full {
		full[i] = float32(i)
	}
	raw := f32Bytes(full)

	for _, partCount := range []int{1, 2, 3} {
		var reassembled []byte
		for p := 0; p < partCount; p++ {
			w, err := RegisterDense("w", dtype.Linear, dtype.F32, k, m, raw, 4, nil, p, partCount)
			if err != nil {
				t.Fatalf("partCount=%d partID=%d: %v", partCount, p, err)
			}
			reassembled = append(reassembled, w.Shard.Raw...)
		}
		if !bytes.Equal(reassembled, raw) {
			t.Errorf("partCount=%d: reassembled shard bytes do not match unsharded weight", partCount)
		}
	}
}

// TestSwigluShardCoherence is property 2: a SwiGLU-row-sharded weight,
// concatenated across workers, reproduces the same gate-then-up layout as
// an unsharded SwiGLU linear (the two row-shard halves of K, back to back).
func TestSwigluShardCoherence(t *testing.T) {
	k, m := 8, 2 // gate rows 0..3, up rows 4..7
	full := make([]float32, k*m)
	for i := range full {
		full[i] = float32(i)
	}
	raw := f32Bytes(full)

	partCount := 2
	var gateRows, upRows []byte
	half := k / 2
	for p := 0; p < partCount; p++ {
		w, err := RegisterDense("gu", dtype.LinearSwiglu, dtype.F32, k, m, raw, 4, nil, p, partCount)
		if err != nil {
			t.Fatalf("partID=%d: %v", p, err)
		}
		// local shard is [gateShardRows || upShardRows]; gate shard rows count:
		gate := RowShardRange(half, p, partCount)
		gateLen := (gate.End - gate.Start) * m * 4
		gateRows = append(gateRows, w.Shard.Raw[:gateLen]...)
		upRows = append(upRows, w.Shard.Raw[gateLen:]...)
	}
	wantGate := raw[0 : half*m*4]
	wantUp := raw[half*m*4 : k*m*4]
	if !bytes.Equal(gateRows, wantGate) {
		t.Errorf("gate half mismatch")
	}
	if !bytes.Equal(upRows, wantUp) {
		t.Errorf("up half mismatch")
	}
}

func TestRegisterQuantizedSwigluMetadataOrder(t *testing.T) {
	k, m, group := 4, 4, 2
	codes := make([]uint8, k*m)
	for i := range codes {
		codes[i] = uint8(i)
	}
	groups := (m + group - 1) / group
	mins := make([]float32, k*groups)
	scales := make([]float32, k*groups)
	for i := range mins {
		mins[i] = float32(i)
		scales[i] = 1
	}
	w, err := RegisterQuantized("gu", dtype.LinearSwiglu, dtype.INT4Group, k, m, group, codes, mins, scales, nil, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.LocalK != k {
		t.Fatalf("expected localK=%d got %d", k, w.LocalK)
	}
	if len(w.Shard.Mins) != k*groups {
		t.Errorf("expected %d min entries, got %d", k*groups, len(w.Shard.Mins))
	}
	// With one worker the gate rows (0, 1) come first, then the up rows
	// (2, 3), so the per-(row, group) mins keep their original order.
	for i, v := range w.Shard.Mins {
		if v != float32(i) {
			t.Errorf("Mins[%d] = %v, want %v (gate rows before up rows)", i, v, float32(i))
		}
	}
}
