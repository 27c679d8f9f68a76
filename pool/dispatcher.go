package pool

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/harborq/taskpool/internal/affinity"
)

// SubmitOptions attaches per-task parameters at submission time. It
// replaces the auto-submitting fluent builder of the source this package
// was reimplemented from with an explicit record passed by value: there is
// nothing to commit, nothing held open across a destructor.
//
// Priority and Retries are only meaningful, and only accepted, under a
// Dispatcher constructed with Priority mode; attaching either under FIFO
// mode returns ErrUnsupportedOption.
type SubmitOptions struct {
	Priority uint16
	Retries  uint8
}

type workerHandle struct {
	id   int64
	stop chan struct{}
	done chan struct{}
}

// Dispatcher owns a bounded set of worker goroutines, the task queue they
// drain, and the protocol for submission, retry, and graceful shutdown.
// Workers are identified by a monotonically assigned id so the sizing
// controller can target specific idle ones for retirement.
type Dispatcher[T any] struct {
	cfg config

	q *taskQueue[T]

	// workers and idle are guarded by q.mu, the same lock that serializes
	// queue access — so "idle" always implies "blocked on q.cond" (§5).
	workers map[int64]*workerHandle
	idle    map[int64]struct{}

	nextID  atomic.Int64
	stopped atomic.Bool

	upperBound int
	limiter    *rate.Limiter
	errWriter  io.Writer

	spawnErr atomic.Pointer[error]
	spawnFn  func(id int64) error // overridable in tests to simulate ResourceExhausted

	counters counters
	sizing   *sizingController[T]

	eg           errgroup.Group // joins every worker goroutine at shutdown
	shutdownOnce sync.Once
}

// New constructs a Dispatcher. requested worker count is clamped to
// [1, upperBound] where upperBound = max(1, number of logical CPUs).
// A nonzero tick (WithTick) starts the adaptive sizing controller.
func New[T any](opts ...Option) *Dispatcher[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	upperBound := cfg.upperFn()
	if upperBound < 1 {
		upperBound = 1
	}
	workers := cfg.workers
	if workers < 1 {
		workers = 1
	}
	if workers > upperBound {
		workers = upperBound
	}
	cfg.workers = workers

	d := &Dispatcher[T]{
		cfg:        *cfg,
		q:          newTaskQueue[T](cfg.mode),
		workers:    make(map[int64]*workerHandle, workers),
		idle:       make(map[int64]struct{}, workers),
		upperBound: upperBound,
		errWriter:  cfg.errSink,
	}
	if d.errWriter == nil {
		d.errWriter = os.Stderr
	}
	d.limiter = cfg.limiter
	d.spawnFn = d.defaultSpawn

	for i := 0; i < workers; i++ {
		if err := d.spawnWorker(); err != nil {
			d.recordSpawnFailure(err)
		}
	}

	if cfg.tick > 0 {
		d.sizing = newSizingController(d, cfg.tick, upperBound)
		d.sizing.start()
	}

	return d
}

// Submit places callable in the queue under FIFO mode, with zero priority
// and no retries, and returns the receiver side of its result.
func (d *Dispatcher[T]) Submit(callable func() (T, error)) (*Future[T], error) {
	return d.submit(callable, SubmitOptions{})
}

// SubmitWithOptions attaches priority and retry parameters to the task.
// Only valid under a Dispatcher constructed with Priority mode.
func (d *Dispatcher[T]) SubmitWithOptions(callable func() (T, error), opts SubmitOptions) (*Future[T], error) {
	if d.cfg.mode == FIFO && (opts.Priority != 0 || opts.Retries != 0) {
		return nil, ErrUnsupportedOption
	}
	return d.submit(callable, opts)
}

func (d *Dispatcher[T]) submit(callable func() (T, error), opts SubmitOptions) (*Future[T], error) {
	if d.stopped.Load() {
		return nil, ErrShutdown
	}

	if p := d.spawnErr.Swap(nil); p != nil && *p != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceExhausted, *p)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(context.Background()); err != nil {
			return nil, err
		}
	}

	rec, fut := newTaskRecord[T](callable, opts.Priority, opts.Retries)
	d.q.push(rec)
	return fut, nil
}

// QueuedSize reports the current queue depth. A snapshot, no transactional
// guarantee.
func (d *Dispatcher[T]) QueuedSize() int {
	return d.q.size()
}

// WorkersSize reports the current worker count. A snapshot, no
// transactional guarantee.
func (d *Dispatcher[T]) WorkersSize() int {
	d.q.mu.Lock()
	defer d.q.mu.Unlock()
	return len(d.workers)
}

// Stats returns the lifetime diagnostic counters.
func (d *Dispatcher[T]) Stats() Stats {
	return d.counters.snapshot()
}

func (d *Dispatcher[T]) defaultSpawn(int64) error { return nil }

// spawnWorker allocates a worker id, starts its goroutine, and
// registers it in the worker set. Caller must not hold q.mu.
func (d *Dispatcher[T]) spawnWorker() error {
	id := d.nextID.Add(1) - 1

	if err := d.spawnFn(id); err != nil {
		return err
	}

	h := &workerHandle{id: id, stop: make(chan struct{}), done: make(chan struct{})}
	d.q.mu.Lock()
	d.workers[id] = h
	d.q.mu.Unlock()

	d.eg.Go(func() error {
		d.runWorker(h)
		return nil
	})
	return nil
}

func (d *Dispatcher[T]) recordSpawnFailure(err error) {
	wrapped := err
	d.spawnErr.Store(&wrapped)
}

func (d *Dispatcher[T]) runWorker(h *workerHandle) {
	defer close(h.done)

	var unpin func()
	if d.cfg.pinCPU {
		unpin = affinity.Pin(int(h.id))
		defer unpin()
	}

	for {
		rec, ok := d.popForWorker(h.id, h.stop)
		if !ok {
			return
		}
		d.execute(rec)
	}
}

// popForWorker implements the worker loop's steps 1-4 (§4.3): register in
// the idle set immediately before waiting, deregister immediately after
// waking, and exit only once both this worker and the queue have nothing
// left to do. The wait itself is taskQueue's own pop_blocking operation
// (§4.2); stopCh lets the sizing controller retire this one worker without
// touching any other.
func (d *Dispatcher[T]) popForWorker(id int64, stopCh <-chan struct{}) (*TaskRecord[T], bool) {
	var onWait func(bool)
	if d.cfg.tick > 0 {
		onWait = func(waiting bool) {
			if waiting {
				d.idle[id] = struct{}{}
			} else {
				delete(d.idle, id)
			}
		}
	}
	return d.q.popBlocking(stopCh, onWait)
}

func closedCh(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// execute runs rec.TryExecute and applies the retry policy (§4.3) on
// failure: decrement retries and re-enqueue, or fulfil the future with the
// terminal error and emit a diagnostic line once the budget is spent.
func (d *Dispatcher[T]) execute(rec *TaskRecord[T]) {
	ok, err := rec.TryExecute()
	if ok {
		d.counters.completed.Add(1)
		return
	}

	if rec.RetriesRemaining() > 0 {
		rec.DecrementRetries()

		if d.stopped.Load() {
			var zero T
			rec.Fulfill(zero, err)
			return
		}

		d.counters.retried.Add(1)
		d.q.push(rec)
		return
	}

	d.counters.failed.Add(1)
	terminal := &TaskError{Attempts: rec.Attempts(), Err: err}
	var zero T
	rec.Fulfill(zero, fmt.Errorf("%w: %w", ErrRetryExhausted, terminal))
	fmt.Fprintf(d.errWriter, "taskpool: task failed after %d attempt(s), retries exhausted: %v\n", rec.Attempts(), err)
}

// Shutdown drains the queue, stops the sizing controller, then stops and
// joins every worker. No submitted task is abandoned mid-execution: the
// call blocks until the currently running task on every worker returns.
// Returns ErrShutdownTimeout if the drain and join do not complete within
// timeout.
func (d *Dispatcher[T]) Shutdown(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		d.shutdownOnce.Do(func() { d.shutdownNow() })
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (d *Dispatcher[T]) shutdownNow() {
	// Step 1: drain. Wait until the queue is empty before requesting any
	// worker to stop, so no queued record is ever dropped by shutdown.
	d.q.waitEmpty()

	// Step 2: stop and join the sizing controller, if any.
	if d.sizing != nil {
		d.sizing.stop()
	}

	// Mark the dispatcher stopped so submit/execute see it immediately, then
	// stop the queue so every blocked worker wakes regardless of whether the
	// sizing controller ever ran — a worker must never miss this signal just
	// because adaptive sizing was disabled.
	d.stopped.Store(true)
	d.q.stop()

	// Every worker goroutine was registered with d.eg.Go at spawn time; Wait
	// joins all of them, surfacing the first non-nil error if runWorker ever
	// returns one.
	_ = d.eg.Wait()
}
