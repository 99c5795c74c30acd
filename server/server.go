// Package server implements the worker process (ComputeServer) of §4.2: it
// owns one vertical shard of every registered weight, a KV-cache registry,
// and a thread pool, and dispatches mailbox task codes against them.
package server

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fastllm-numa/numacore/kvcache"
	"github.com/fastllm-numa/numacore/pool"
	"github.com/fastllm-numa/numacore/shm"
	"github.com/fastllm-numa/numacore/weights"
)

// Server is one worker process's runtime state.
type Server struct {
	PartID     int
	PartCount  int
	WorkerID   int // this worker's flag-page index, equal to PartID in the single-mailbox deployment
	Threads    int
	Region     *shm.Region
	Weights    *weights.Registry
	KV         *kvcache.Registry
	Pool       *pool.Pool
	Log        *logrus.Entry
	scratch    []byte // accumulates StartLongData chunks until FinishLongData
	idleYield  time.Duration
	maxIdle    time.Duration
}

// New constructs a worker ready to enter its dispatch loop.
func New(partID, partCount, threads int, region *shm.Region, log *logrus.Logger) *Server {
	return &Server{
		PartID:    partID,
		PartCount: partCount,
		WorkerID:  partID,
		Threads:   threads,
		Region:    region,
		Weights:   weights.NewRegistry(),
		KV:        kvcache.NewRegistry(),
		Pool:      pool.New(threads),
		Log:       log.WithFields(logrus.Fields{"role": "numaworker", "part_id": partID}),
		idleYield: 0,
		maxIdle:   3 * time.Second,
	}
}

// Run enters the dispatch loop: spin on the own flag, dispatch on a
// nonzero task code, clear the flag, repeat. It returns when the worker
// detects the parent process has died (reparented to pid 1), per §4.1.
func (s *Server) Run() error {
	idle := time.Duration(0)
	for {
		if os.Getppid() == 1 {
			s.Log.Info("parent process died, worker exiting")
			return nil
		}

		task := s.Region.PollTask(s.WorkerID)
		if task == shm.TaskNone {
			idle += s.spinOnce()
			continue
		}
		idle = 0
		s.idleYield = 0

		if err := s.Dispatch(task); err != nil {
			s.Log.WithFields(logrus.Fields{"task": task.String(), "error": err}).Fatal("dispatch failed, terminating worker")
		}
		s.Region.ClearTask(s.WorkerID)
	}
}

// spinOnce yields briefly when idle, sleeping longer the longer the worker
// has been idle (capped at maxIdle), matching §4.1's 0s-to-3s backoff.
func (s *Server) spinOnce() time.Duration {
	if s.idleYield == 0 {
		s.idleYield = time.Microsecond
	} else if s.idleYield < s.maxIdle {
		s.idleYield *= 2
		if s.idleYield > s.maxIdle {
			s.idleYield = s.maxIdle
		}
	}
	time.Sleep(s.idleYield)
	return s.idleYield
}

// Close releases the worker's mailbox mapping and stops its thread pool.
func (s *Server) Close() {
	s.Pool.Close()
	s.Region.Close()
}
