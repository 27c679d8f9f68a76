package pool

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the kinds in the error taxonomy. Callers
// match with errors.Is. A terminal task failure is delivered as
// ErrRetryExhausted wrapped together with a *TaskError, so the underlying
// callable error survives alongside it; the task-failure kind has no
// sentinel of its own.
var (
	// ErrShutdown is returned by Submit once Shutdown has drained the queue
	// and marked the dispatcher stopped. Submit calls made while the drain
	// is still in progress are not rejected.
	ErrShutdown = errors.New("pool: dispatcher is shutting down")

	// ErrAlreadyRetrieved is returned by TaskRecord.RetrieveFuture on the
	// second and subsequent calls. Future.Get never returns it: repeat reads
	// return the memoized outcome.
	ErrAlreadyRetrieved = errors.New("pool: result already retrieved")

	// ErrResourceExhausted is surfaced on the next Submit after a worker
	// spawn attempt failed.
	ErrResourceExhausted = errors.New("pool: worker spawn failed")

	// ErrRetryExhausted wraps a task's final failure once its retry
	// budget is spent.
	ErrRetryExhausted = errors.New("pool: retries exhausted")

	// ErrUnsupportedOption is returned when a PRIORITY-only submit
	// parameter (priority, retries) is attached under FIFO mode.
	ErrUnsupportedOption = errors.New("pool: option not supported in this mode")

	// ErrShutdownTimeout is returned by Shutdown when the drain does not
	// complete within the supplied timeout.
	ErrShutdownTimeout = errors.New("pool: shutdown timed out")
)

// TaskError wraps a failure that occurred while executing a submitted
// callable, identifying how many attempts were made before it surfaced.
type TaskError struct {
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("pool: task failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
