//go:build darwin

package affinity

import "runtime"

// NumCPU returns the number of logical CPUs available.
func NumCPU() int {
	return runtime.NumCPU()
}

// Pin locks the calling goroutine to its OS thread. Core-level pinning is
// not exposed by the Darwin scheduler, so this only isolates the thread.
func Pin(workerID int) func() {
	runtime.LockOSThread()

	return func() {
		runtime.UnlockOSThread()
	}
}
