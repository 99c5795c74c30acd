package numapin

import (
	"errors"
	"runtime"
	"testing"

	"github.com/fastllm-numa/numacore/errs"
)

func TestPinRejectsEmptyCPUList(t *testing.T) {
	if err := Pin(nil); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("Pin(nil) error = %v, want wrapping ErrConfiguration", err)
	}
}

func TestPinToCurrentCPUSucceeds(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("sched_setaffinity is Linux-only")
	}
	if err := Pin([]int{0}); err != nil {
		t.Errorf("Pin([0]) = %v, want nil on a system with a CPU 0", err)
	}
}

func TestDiagnoseReportsArchAndCPUCount(t *testing.T) {
	info := Diagnose()
	if info.GOARCH != runtime.GOARCH {
		t.Errorf("GOARCH = %q, want %q", info.GOARCH, runtime.GOARCH)
	}
	if info.NumCPU <= 0 {
		t.Errorf("NumCPU = %d, want > 0", info.NumCPU)
	}
}
