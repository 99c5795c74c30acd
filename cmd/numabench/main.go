// Command numabench exercises the quantized-linear and attention kernels
// directly against synthetic tensors, bypassing the mailbox entirely, for
// local profiling.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fastllm-numa/numacore/attention"
	"github.com/fastllm-numa/numacore/dtype"
	"github.com/fastllm-numa/numacore/kernel"
	"github.com/fastllm-numa/numacore/tensor"
	"github.com/fastllm-numa/numacore/weights"
)

var (
	n, m, k   int
	iters     int
	benchKind string
)

var rootCmd = &cobra.Command{
	Use:   "numabench",
	Short: "Benchmark the quantized-linear and attention kernels in isolation",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logrus.New()
		switch benchKind {
		case "linear":
			return benchLinear(log)
		case "attention":
			return benchAttention(log)
		default:
			return fmt.Errorf("unknown bench kind %q (want linear or attention)", benchKind)
		}
	},
}

func randomF32(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rand.Float32()*2 - 1
	}
	return out
}

func benchLinear(log *logrus.Logger) error {
	d := tensor.NewDense(dtype.F32, []int{k, m})
	w := &weights.Weight{Name: "bench", FullK: k, FullM: m, LocalK: k, LocalM: m, Shard: d}
	input := randomF32(n * m)

	start := time.Now()
	for i := 0; i < iters; i++ {
		if _, err := kernel.RunLinear(input, n, m, w, nil, dtype.ActNone); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	log.WithFields(logrus.Fields{
		"n": n, "m": m, "k": k, "iters": iters,
		"total_ms": elapsed.Milliseconds(),
		"per_iter_us": elapsed.Microseconds() / int64(iters),
	}).Info("linear kernel bench complete")
	return nil
}

func benchAttention(log *logrus.Logger) error {
	dim := 64
	q := randomF32(n * dim)
	kv := randomF32(n * dim)
	v := randomF32(n * dim)
	out := make([]float32, n*dim)
	scale := float32(1.0 / 8.0)

	start := time.Now()
	for i := 0; i < iters; i++ {
		attention.CausalHead(q, kv, v, n, n, dim, scale, out)
	}
	elapsed := time.Since(start)
	log.WithFields(logrus.Fields{
		"l_q": n, "dim": dim, "iters": iters,
		"total_ms": elapsed.Milliseconds(),
	}).Info("attention kernel bench complete")
	return nil
}

func init() {
	rootCmd.Flags().StringVar(&benchKind, "kind", "linear", "bench to run: linear or attention")
	rootCmd.Flags().IntVar(&n, "n", 1, "activation row count")
	rootCmd.Flags().IntVar(&m, "m", 4096, "input channel count")
	rootCmd.Flags().IntVar(&k, "k", 4096, "output channel count (linear bench only)")
	rootCmd.Flags().IntVar(&iters, "iters", 100, "number of repetitions")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
