// Package numapin pins a worker process to the logical CPUs of one NUMA
// node, per §3's one-process-per-node deployment model, and reports the
// CPU features a worker's kernel dispatch should pick, adapted from the
// teacher's diagnostic tool.
package numapin

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"
	"golang.org/x/sys/unix"

	"github.com/fastllm-numa/numacore/errs"
)

// Pin restricts the calling process's scheduling affinity to the given
// logical CPU IDs, so the Go runtime's OS threads stay local to one NUMA
// node for the lifetime of a worker process.
func Pin(cpuIDs []int) error {
	if len(cpuIDs) == 0 {
		return fmt.Errorf("%w: no CPU IDs given to pin to", errs.ErrConfiguration)
	}
	var set unix.CPUSet
	set.Zero()
	for _, id := range cpuIDs {
		set.Set(id)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("%w: sched_setaffinity: %v", errs.ErrResource, err)
	}
	return nil
}

// Info reports the CPU feature set a worker's kernel dispatch decisions can
// rely on, mirroring what the Highway diagnostic CLI prints, minus the
// tool's own stdout formatting.
type Info struct {
	GOARCH string
	NumCPU int
	HasAVX2,
	HasAVX512F,
	HasFMA,
	HasNEON,
	HasSVE bool
}

// Diagnose gathers the current process's runtime and CPU-feature info, the
// facts `numactl --describe-topology` and internal/cpuinfo print.
func Diagnose() Info {
	info := Info{GOARCH: runtime.GOARCH, NumCPU: runtime.NumCPU()}
	switch runtime.GOARCH {
	case "amd64":
		info.HasAVX2 = cpu.X86.HasAVX2
		info.HasAVX512F = cpu.X86.HasAVX512F
		info.HasFMA = cpu.X86.HasFMA
	case "arm64":
		info.HasNEON = cpu.ARM64.HasASIMD
		info.HasSVE = cpu.ARM64.HasSVE
	}
	return info
}
