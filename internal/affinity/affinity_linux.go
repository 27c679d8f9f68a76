//go:build linux

package affinity

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore pins the current OS thread to a specific CPU core.
// Must be called after runtime.LockOSThread().
//
// cpuID is taken modulo the number of logical CPUs so worker ids beyond
// NumCPU wrap around instead of failing.
func pinToCore(cpuID int) (uintptr, error) {
	numCPU := runtime.NumCPU()
	if cpuID < 0 || cpuID >= numCPU {
		cpuID = cpuID % numCPU
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)

	if err := unix.SchedSetaffinity(0, &mask); err != nil { // 0 = current thread
		return 0, err
	}

	return uintptr(cpuID), nil
}

// NumCPU returns the number of logical CPUs available, used to derive the
// dispatcher's worker upper bound.
func NumCPU() int {
	return runtime.NumCPU()
}

// Pin locks the calling goroutine to its OS thread and pins that thread to
// the core identified by workerID. The returned function undoes the thread
// lock and should be deferred by the worker loop for as long as it runs.
func Pin(workerID int) func() {
	runtime.LockOSThread()
	_, _ = pinToCore(workerID)

	return func() {
		runtime.UnlockOSThread()
	}
}
