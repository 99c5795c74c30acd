// Package shm implements the POSIX shared-memory mailbox the client and
// worker processes use as their control and data plane, per §3: a single
// fixed-size region split into an input window, an output window, and a
// bank of per-worker flag pages.
package shm

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fastllm-numa/numacore/errs"
)

const (
	// DDRLen is the total size of the mailbox region.
	DDRLen = 256 << 20
	// OutputOffset is where the output window begins.
	OutputOffset = 128 << 20
	// FlagOffset is where the per-worker flag-page bank begins.
	FlagOffset = 255 << 20
	// Page is the size of one worker's flag page within the flag bank.
	Page = 64 << 10
	// MaxWorkers is the number of flag pages the bank holds.
	MaxWorkers = (DDRLen - FlagOffset) / Page
)

// Region is one process's mapping of the shared mailbox.
type Region struct {
	data []byte
	path string
}

// Create opens (or truncates and reuses) a /dev/shm-backed region named
// name, sized to DDRLen, and maps it MAP_SHARED so writes are visible to
// every process holding the same mapping.
func Create(name string) (*Region, error) {
	path := "/dev/shm/" + name
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open shm backing file %s: %v", errs.ErrResource, path, err)
	}
	defer f.Close()

	if err := f.Truncate(DDRLen); err != nil {
		return nil, fmt.Errorf("%w: truncate shm backing file %s: %v", errs.ErrResource, path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, DDRLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap shm region %s: %v", errs.ErrResource, path, err)
	}
	return &Region{data: data, path: path}, nil
}

// Open maps the region by name for the worker side. It shares Create's
// path, so it also creates and sizes the backing file if it does not exist.
func Open(name string) (*Region, error) {
	return Create(name) // O_CREATE is a no-op against an existing file of the right size
}

// Close unmaps the region. The backing file is left in /dev/shm for the
// client to remove once every worker has exited.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

// Remove deletes the backing file, performed by the client after every
// worker has shut down.
func Remove(name string) error {
	return os.Remove("/dev/shm/" + name)
}

// Input returns the full input window, [0, OutputOffset).
func (r *Region) Input() []byte {
	return r.data[0:OutputOffset]
}

// Output returns the full output window, [OutputOffset, FlagOffset).
func (r *Region) Output() []byte {
	return r.data[OutputOffset:FlagOffset]
}

// FlagPage returns worker workerID's 64KiB flag page.
func (r *Region) FlagPage(workerID int) []byte {
	start := FlagOffset + workerID*Page
	return r.data[start : start+Page]
}

// flagWord reinterprets the first 4 bytes of a flag page as an atomically
// accessed uint32. Go's memory model ties happens-before ordering to
// atomic operations rather than free-standing fences, so every flag
// read/write in this package goes through atomic.LoadUint32/StoreUint32
// instead of a plain load/store plus a manual fence.
func flagWord(page []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&page[0]))
}

// SetTask publishes task as worker workerID's pending task code. The
// atomic store is the release operation: any writes to the input window
// made before this call are guaranteed visible to the worker once it
// observes the new task code.
func (r *Region) SetTask(workerID int, task TaskCode) {
	atomic.StoreUint32(flagWord(r.FlagPage(workerID)), uint32(task))
}

// PollTask is the worker-side acquire read: it observes the task code the
// client most recently published, synchronizing-with the matching SetTask.
func (r *Region) PollTask(workerID int) TaskCode {
	return TaskCode(atomic.LoadUint32(flagWord(r.FlagPage(workerID))))
}

// ClearTask resets a worker's flag page to TaskNone once it has finished
// the op, signaling completion back to the client.
func (r *Region) ClearTask(workerID int) {
	atomic.StoreUint32(flagWord(r.FlagPage(workerID)), uint32(TaskNone))
}
