package server

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/fastllm-numa/numacore/dtype"
	"github.com/fastllm-numa/numacore/shm"
	"github.com/fastllm-numa/numacore/tensor"
	"github.com/fastllm-numa/numacore/weights"
)

func TestReadLinearHeaderFields(t *testing.T) {
	buf := make([]byte, 40)
	vals := []int32{2, 4, 3, 0, 0, 1, 0, 0, 0, 0}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(v))
	}
	h := readLinearHeader(buf)
	if h.N != 2 || h.M != 4 || h.K != 3 || h.WeightNameLen != 1 {
		t.Errorf("unexpected header: %+v", h)
	}
}

func TestWeightTypeFromString(t *testing.T) {
	cases := map[string]dtype.WeightType{
		"linear":       dtype.Linear,
		"linearSwiglu": dtype.LinearSwiglu,
		"linearColumn": dtype.LinearColumn,
		"":             dtype.Linear,
	}
	for in, want := range cases {
		if got := weightTypeFromString(in); got != want {
			t.Errorf("weightTypeFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	name := fmt.Sprintf("numacore_srv_test_%d_%s", os.Getpid(), t.Name())
	region, err := shm.Create(name)
	if err != nil {
		t.Skipf("shared memory unavailable: %v", err)
	}
	t.Cleanup(func() {
		region.Close()
		shm.Remove(name)
	})
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	s := New(0, 1, 1, region, log)
	t.Cleanup(func() { s.Pool.Close() })
	return s
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

// TestDispatchFindData registers a weight and checks FindData reports it.
func TestDispatchFindData(t *testing.T) {
	s := newTestServer(t)
	d := tensor.NewDense(dtype.F32, []int{1, 1})
	s.Weights.Register(&weights.Weight{Name: "w1", FullK: 1, FullM: 1, LocalK: 1, LocalM: 1, Shard: d})

	in := s.Region.Input()
	binary.LittleEndian.PutUint32(in[0:4], 2)
	copy(in[4:6], "w1")
	if err := s.Dispatch(shm.TaskFindData); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Region.Output()[0] != 1 {
		t.Errorf("FindData for a registered weight should report found")
	}

	binary.LittleEndian.PutUint32(in[0:4], 6)
	copy(in[4:10], "absent")
	if err := s.Dispatch(shm.TaskFindData); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Region.Output()[0] != 0 {
		t.Errorf("FindData for an unregistered weight should report not found")
	}
}

// TestDispatchLinearFloatEndToEnd runs scenario S1 through the worker's
// dispatch path instead of calling the kernel package directly.
func TestDispatchLinearFloatEndToEnd(t *testing.T) {
	s := newTestServer(t)

	k, m, n := 3, 4, 2
	d := tensor.NewDense(dtype.F32, []int{k, m})
	identity := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
	for i, v := range identity {
		putF32(d.Raw[i*4:i*4+4], v)
	}
	s.Weights.Register(&weights.Weight{Name: "w", FullK: k, FullM: m, LocalK: k, LocalM: m, Shard: d})

	in := s.Region.Input()
	header := []int32{int32(n), int32(m), int32(k), 0, 0, 1, 0, 0, 0, 0}
	for i, v := range header {
		binary.LittleEndian.PutUint32(in[i*4:i*4+4], uint32(v))
	}
	off := 40
	copy(in[off:off+1], "w")
	off += 1

	inputRows := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	for i, v := range inputRows {
		putF32(in[off+i*4:off+i*4+4], v)
	}

	if err := s.Dispatch(shm.TaskLinearFloat); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float32{1, 2, 3, 5, 6, 7}
	outRegion := s.Region.Output()
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(outRegion[i*4 : i*4+4]))
		if got != w {
			t.Errorf("output[%d] = %v, want %v", i, got, w)
		}
	}
}
