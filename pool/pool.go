// Package pool implements the per-thread task queue a worker process uses
// to run kernels across its local CPU set, per §3: one FIFO queue per
// thread, no work-stealing between threads, and a blocking Wait that
// returns once every op pushed to a thread so far has completed.
package pool

import (
	"fmt"
	"sync"

	"github.com/fastllm-numa/numacore/errs"
)

// Op is one unit of work a thread executes, typically one kernel launch
// over a band of a weight's local-K range.
type Op func()

type lane struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Op
	pending int
	closed  bool
}

// Pool is a fixed set of worker goroutines, one per logical thread, each
// draining its own FIFO queue in push order.
type Pool struct {
	lanes []*lane
}

// New starts threadCount worker goroutines, each bound to its own queue.
func New(threadCount int) *Pool {
	p := &Pool{lanes: make([]*lane, threadCount)}
	for i := range p.lanes {
		l := &lane{}
		l.cond = sync.NewCond(&l.mu)
		p.lanes[i] = l
		go l.run()
	}
	return p
}

func (l *lane) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed && len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		op := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		op()

		l.mu.Lock()
		l.pending--
		l.cond.Broadcast()
		l.mu.Unlock()
	}
}

// PushOp enqueues op onto threadID's FIFO queue. Ops on the same thread run
// in the order they were pushed; ops on different threads run concurrently
// and independently, with no stealing between queues.
func (p *Pool) PushOp(threadID int, op Op) error {
	if threadID < 0 || threadID >= len(p.lanes) {
		return fmt.Errorf("%w: thread id %d out of range [0,%d)", errs.ErrConfiguration, threadID, len(p.lanes))
	}
	l := p.lanes[threadID]
	l.mu.Lock()
	l.pending++
	l.queue = append(l.queue, op)
	l.cond.Broadcast()
	l.mu.Unlock()
	return nil
}

// Wait blocks until every op pushed to threadID so far has completed.
func (p *Pool) Wait(threadID int) error {
	if threadID < 0 || threadID >= len(p.lanes) {
		return fmt.Errorf("%w: thread id %d out of range [0,%d)", errs.ErrConfiguration, threadID, len(p.lanes))
	}
	l := p.lanes[threadID]
	l.mu.Lock()
	for l.pending > 0 {
		l.cond.Wait()
	}
	l.mu.Unlock()
	return nil
}

// WaitAll blocks until every thread's queue has drained.
func (p *Pool) WaitAll() {
	for i := range p.lanes {
		p.Wait(i)
	}
}

// Close stops every worker goroutine once its queue has drained. The pool
// must not be used after Close.
func (p *Pool) Close() {
	for _, l := range p.lanes {
		l.mu.Lock()
		l.closed = true
		l.cond.Broadcast()
		l.mu.Unlock()
	}
}
