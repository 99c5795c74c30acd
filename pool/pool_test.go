package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fastllm-numa/numacore/errs"
)

func TestPushOpRejectsOutOfRangeThread(t *testing.T) {
	p := New(2)
	defer p.Close()
	if err := p.PushOp(5, func() {}); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("PushOp(5, ...) error = %v, want wrapping ErrConfiguration", err)
	}
}

func TestWaitBlocksUntilQueueDrains(t *testing.T) {
	p := New(1)
	defer p.Close()

	var ran int32
	for i := 0; i < 10; i++ {
		if err := p.PushOp(0, func() { atomic.AddInt32(&ran, 1) }); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Wait(0); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&ran); got != 10 {
		t.Errorf("ran = %d, want 10", got)
	}
}

// TestFIFOOrderPerThread checks ops on a single thread's queue run in push
// order: each op appends its own index, and the result must be sorted.
func TestFIFOOrderPerThread(t *testing.T) {
	p := New(1)
	defer p.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		if err := p.PushOp(0, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatal(err)
		}
	}
	p.Wait(0)

	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d (FIFO violated): %v", i, v, i, order)
		}
	}
}

func TestIndependentThreadsRunConcurrently(t *testing.T) {
	p := New(4)
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(4)
	for thread := 0; thread < 4; thread++ {
		thread := thread
		// Each op blocks until all four ops have started, so this only
		// completes when the four threads run their ops at the same time.
		p.PushOp(thread, func() {
			wg.Done()
			wg.Wait()
		})
	}
	for thread := 0; thread < 4; thread++ {
		p.Wait(thread)
	}
	wg.Wait()
}
