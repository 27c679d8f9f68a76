package pool

import (
	"container/heap"
	"sync"
)

// Mode selects the TaskQueue's removal discipline.
type Mode int

const (
	// FIFO removes the oldest inserted record first.
	FIFO Mode = iota
	// Priority removes the record with the greatest ordering (§4.1):
	// highest priority first, ties broken by more retries remaining.
	Priority
)

// taskQueue is a synchronized container of TaskRecords offering either FIFO
// or max-priority-heap removal. It carries no state of its own besides the
// records and the discipline chosen at construction.
type taskQueue[T any] struct {
	mode Mode

	mu      sync.Mutex
	cond    *sync.Cond
	fifo    []*TaskRecord[T]
	heap    priorityHeap[T]
	stopped bool
}

func newTaskQueue[T any](mode Mode) *taskQueue[T] {
	q := &taskQueue[T]{mode: mode}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends rec under the queue's discipline and wakes one waiter.
func (q *taskQueue[T]) push(rec *TaskRecord[T]) {
	q.mu.Lock()
	if q.mode == FIFO {
		q.fifo = append(q.fifo, rec)
	} else {
		heap.Push(&q.heap, rec)
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// popBlocking blocks until a record is available, the queue is stopped, or
// extraStop is closed — the last lets an individual caller (a worker being
// retired by the sizing controller) wake without affecting anyone else
// blocked on the same queue. onWait, if non-nil, runs with q.mu held,
// once with true immediately before blocking and once with false
// immediately after waking, so a caller can track its own idle windows.
func (q *taskQueue[T]) popBlocking(extraStop <-chan struct{}, onWait func(waiting bool)) (*TaskRecord[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.stopped && q.len() == 0 && !closedCh(extraStop) {
		if onWait != nil {
			onWait(true)
		}
		q.cond.Wait()
		if onWait != nil {
			onWait(false)
		}
	}
	if q.len() == 0 {
		return nil, false
	}
	return q.popLocked(), true
}

// tryPop is the non-blocking variant used by tests and diagnostics.
func (q *taskQueue[T]) tryPop() (*TaskRecord[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.len() == 0 {
		return nil, false
	}
	return q.popLocked(), true
}

// popLocked removes and returns one record; q.mu must be held. If the
// queue becomes empty, it broadcasts so a goroutine waiting in waitEmpty
// (the dispatcher's shutdown drain) can re-check its predicate.
func (q *taskQueue[T]) popLocked() *TaskRecord[T] {
	var rec *TaskRecord[T]
	if q.mode == FIFO {
		rec = q.fifo[0]
		q.fifo = q.fifo[1:]
	} else {
		rec = heap.Pop(&q.heap).(*TaskRecord[T])
	}
	if q.len() == 0 {
		q.cond.Broadcast()
	}
	return rec
}

// waitEmpty blocks until the queue has no pending records.
func (q *taskQueue[T]) waitEmpty() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.len() > 0 {
		q.cond.Wait()
	}
}

// size reports the current depth.
func (q *taskQueue[T]) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

func (q *taskQueue[T]) len() int {
	if q.mode == FIFO {
		return len(q.fifo)
	}
	return len(q.heap)
}

// reserve is a capacity hint; it is a no-op on the heap-backed priority
// discipline and best-effort on the slice-backed FIFO discipline.
func (q *taskQueue[T]) reserve(n int) {
	if q.mode != FIFO {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if cap(q.fifo)-len(q.fifo) < n {
		grown := make([]*TaskRecord[T], len(q.fifo), len(q.fifo)+n)
		copy(grown, q.fifo)
		q.fifo = grown
	}
}

// purgeFinished drops every record whose IsDone is true, restoring the heap
// invariant in priority mode. This is defensive hygiene the sizing
// controller runs before each tick so a record that completed without being
// retrieved does not skew queue-depth observations.
func (q *taskQueue[T]) purgeFinished() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.mode == FIFO {
		kept := q.fifo[:0]
		for _, rec := range q.fifo {
			if !rec.IsDone() {
				kept = append(kept, rec)
			}
		}
		q.fifo = kept
		return
	}

	kept := q.heap[:0]
	for _, rec := range q.heap {
		if !rec.IsDone() {
			kept = append(kept, rec)
		}
	}
	q.heap = kept
	heap.Init(&q.heap)
}

// stop marks the queue stopped and wakes every blocked popper so they can
// observe the stop flag and exit.
func (q *taskQueue[T]) stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// priorityHeap implements container/heap.Interface as a max-heap on the
// §4.1 ordering (highest priority, then most retries remaining, popped
// first).
type priorityHeap[T any] []*TaskRecord[T]

func (h priorityHeap[T]) Len() int { return len(h) }

func (h priorityHeap[T]) Less(i, j int) bool {
	// container/heap is a min-heap; inverting the comparator yields a
	// max-heap on the §4.1 ordering.
	return less(h[j], h[i])
}

func (h priorityHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap[T]) Push(x any) {
	*h = append(*h, x.(*TaskRecord[T]))
}

func (h *priorityHeap[T]) Pop() any {
	old := *h
	n := len(old)
	rec := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return rec
}
