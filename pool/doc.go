// Package pool implements an in-process worker pool that dispatches
// submitted callables across a bounded set of goroutine-backed workers.
//
// # Basic usage
//
//	d := pool.New[int](pool.WithWorkers(4))
//	defer d.Shutdown(5 * time.Second)
//
//	fut, err := d.Submit(func() (int, error) { return 21 * 2, nil })
//	if err != nil {
//		log.Fatal(err)
//	}
//	v, err := fut.Get()
//
// # Queue discipline
//
// A dispatcher is constructed in either FIFO or PRIORITY mode. FIFO mode
// dequeues in submission order; PRIORITY mode dequeues the pending task with
// the greatest priority, breaking ties by retries remaining. Only PRIORITY
// mode accepts per-task priority and retry parameters at submit time —
// attaching them under FIFO mode returns ErrUnsupportedOption.
//
// # Retries
//
// A task submitted with retries > 0 is re-enqueued at its original priority
// on failure, up to retries+1 total attempts. Once exhausted, the failure is
// delivered through the task's Future and logged to the configured error
// sink.
//
// # Adaptive sizing
//
// When constructed with a nonzero tick, a background controller grows the
// worker set on backlog and retires idle workers under light load, within
// [floor, upper bound]. A tick of zero disables the controller and fixes the
// worker count for the dispatcher's lifetime.
//
// # Rate limiting
//
// WithRateLimit throttles Submit using a token bucket so callers cannot
// outrun a downstream dependency the tasks themselves call into.
package pool
