package kvcache

import (
	"testing"
	"time"
)

// TestAppendMonotonicity is property 5.
func TestAppendMonotonicity(t *testing.T) {
	r := NewRegistry()
	heads, dim := 2, 4
	uid := uint64(7)

	prevLen := 0
	prevCap := 0
	for _, step := range []int{2, 1, 5, 130} {
		fresh := make([]float32, heads*step*dim)
		c := r.Append(uid, heads, dim, fresh, step)
		if c.Len <= prevLen {
			t.Fatalf("len did not strictly increase: prev=%d got=%d", prevLen, c.Len)
		}
		if c.Cap < c.Len {
			t.Fatalf("cap %d < len %d", c.Cap, c.Len)
		}
		if c.Cap%128 != 0 {
			t.Errorf("cap %d not aligned to 128", c.Cap)
		}
		if prevCap != 0 && c.Cap != prevCap {
			if c.Cap < prevCap*2 && c.Cap < align(c.Len) {
				t.Errorf("capacity growth %d -> %d is not at least geometric factor 2 or required alignment", prevCap, c.Cap)
			}
		}
		prevLen = c.Len
		prevCap = c.Cap
	}
}

func TestSweepRemovesIdleCaches(t *testing.T) {
	r := NewRegistryWithThreshold(10 * time.Millisecond)
	uid := uint64(1)
	r.Append(uid, 1, 2, make([]float32, 2), 1)
	time.Sleep(20 * time.Millisecond)
	// Getting a different uid triggers a sweep first.
	r.Get(uint64(2), 1, 2)
	r.mu.Lock()
	_, stillThere := r.caches[uid]
	r.mu.Unlock()
	if stillThere {
		t.Errorf("expected idle cache to be swept")
	}
}

func TestHeadSliceLayout(t *testing.T) {
	r := NewRegistry()
	uid := uint64(3)
	heads, dim := 2, 2
	fresh := []float32{1, 2, 10, 20} // head0: [1,2], head1: [10,20]
	c := r.Append(uid, heads, dim, fresh, 1)
	h0 := c.HeadSlice(0)
	h1 := c.HeadSlice(1)
	if h0[0] != 1 || h0[1] != 2 {
		t.Errorf("head0 slice wrong: %v", h0)
	}
	if h1[0] != 10 || h1[1] != 20 {
		t.Errorf("head1 slice wrong: %v", h1)
	}
}
