package pool

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

type taskState int32

const (
	statePending taskState = iota
	stateCompleted
	stateRetrieved
)

// TaskRecord is one submitted unit of work: the callable, its ordering
// parameters, its retry budget, and the one-shot Future the caller reads
// the outcome from. A TaskRecord is owned by exactly one component at a
// time — the submitter during construction, the queue while enqueued, a
// worker while executing, or the dispatcher while re-enqueuing for retry.
type TaskRecord[T any] struct {
	callable func() (T, error)

	priority uint32 // holds a uint16; atomic ops need 32-bit alignment on some archs
	retries  uint32 // holds a uint8

	state    atomic.Int32
	future   *Future[T]
	acquired atomic.Bool
	attempts atomic.Int32
}

// newTaskRecord builds a pending record and returns it alongside the
// caller's end of the result channel.
func newTaskRecord[T any](callable func() (T, error), priority uint16, retries uint8) (*TaskRecord[T], *Future[T]) {
	rec := &TaskRecord[T]{
		callable: callable,
		priority: uint32(priority),
		retries:  uint32(retries),
		future:   newFuture[T](),
	}
	rec.state.Store(int32(statePending))
	return rec, rec.future
}

// RetrieveFuture hands back the record's result channel. It may only
// succeed once; every call after the first returns ErrAlreadyRetrieved.
func (t *TaskRecord[T]) RetrieveFuture() (*Future[T], error) {
	if !t.acquired.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRetrieved
	}
	return t.future, nil
}

// TryExecute runs the callable exactly once. On success it fulfills the
// future, transitions PENDING -> COMPLETED, and returns (true, nil).
// On failure — either a returned error or a recovered panic — it leaves
// the record in PENDING and returns (false, err); the caller (the
// dispatcher's worker loop) decides whether to retry or fulfill the
// future with the terminal failure.
//
// Calling TryExecute on a record that is not PENDING is a programming
// error and panics.
func (t *TaskRecord[T]) TryExecute() (ok bool, err error) {
	if taskState(t.state.Load()) != statePending {
		panic("pool: TryExecute called on a non-pending TaskRecord")
	}
	t.attempts.Add(1)

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("pool: task panicked: %v\n%s", r, buf[:n])
			ok = false
		}
	}()

	v, callErr := t.callable()
	if callErr != nil {
		return false, callErr
	}

	t.state.Store(int32(stateCompleted))
	t.future.fulfill(v, nil)
	return true, nil
}

// Attempts reports how many times TryExecute has run for this record.
func (t *TaskRecord[T]) Attempts() int {
	return int(t.attempts.Load())
}

// Fulfill delivers a value through the record's future without running the
// callable again; used by the worker loop once execution has already
// resolved the outcome to a terminal failure (retries exhausted, or a
// retry re-enqueue failed because the dispatcher had already stopped).
func (t *TaskRecord[T]) Fulfill(v T, err error) {
	t.state.Store(int32(stateCompleted))
	t.future.fulfill(v, err)
}

// MarkRetrieved transitions a completed record to RETRIEVED. Nothing in
// this package calls it: reading the Future does not move the record out
// of COMPLETED.
func (t *TaskRecord[T]) MarkRetrieved() {
	t.state.CompareAndSwap(int32(stateCompleted), int32(stateRetrieved))
}

// IsDone reports whether the record has completed execution or has already
// been retrieved.
func (t *TaskRecord[T]) IsDone() bool {
	s := taskState(t.state.Load())
	return s == stateCompleted || s == stateRetrieved
}

// Priority returns the record's current priority.
func (t *TaskRecord[T]) Priority() uint16 {
	return uint16(atomic.LoadUint32(&t.priority))
}

// RetriesRemaining returns the number of additional attempts permitted.
func (t *TaskRecord[T]) RetriesRemaining() uint8 {
	return uint8(atomic.LoadUint32(&t.retries))
}

// IncrementPriority raises priority by amount, saturating at the uint16 max.
func (t *TaskRecord[T]) IncrementPriority(amount uint16) {
	for {
		cur := atomic.LoadUint32(&t.priority)
		next := uint32(cur) + uint32(amount)
		if next > uint32(^uint16(0)) {
			next = uint32(^uint16(0))
		}
		if atomic.CompareAndSwapUint32(&t.priority, cur, next) {
			return
		}
	}
}

// DecrementPriority lowers priority by amount, saturating at zero.
func (t *TaskRecord[T]) DecrementPriority(amount uint16) {
	for {
		cur := atomic.LoadUint32(&t.priority)
		var next uint32
		if uint32(amount) < cur {
			next = cur - uint32(amount)
		}
		if atomic.CompareAndSwapUint32(&t.priority, cur, next) {
			return
		}
	}
}

// IncrementRetries raises the retry budget by amount, saturating at the
// uint8 max.
func (t *TaskRecord[T]) IncrementRetries(amount uint8) {
	for {
		cur := atomic.LoadUint32(&t.retries)
		next := cur + uint32(amount)
		if next > uint32(^uint8(0)) {
			next = uint32(^uint8(0))
		}
		if atomic.CompareAndSwapUint32(&t.retries, cur, next) {
			return
		}
	}
}

// DecrementRetries lowers the retry budget by one, saturating at zero.
func (t *TaskRecord[T]) DecrementRetries() {
	for {
		cur := atomic.LoadUint32(&t.retries)
		next := cur
		if cur > 0 {
			next = cur - 1
		}
		if atomic.CompareAndSwapUint32(&t.retries, cur, next) {
			return
		}
	}
}

// less implements the priority order from §4.1: a < b iff priority(a) <
// priority(b), or equal priority and retries_remaining(a) < retries_remaining(b).
func less[T any](a, b *TaskRecord[T]) bool {
	pa, pb := a.Priority(), b.Priority()
	if pa != pb {
		return pa < pb
	}
	return a.RetriesRemaining() < b.RetriesRemaining()
}
