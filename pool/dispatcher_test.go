package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcher_FIFOSum(t *testing.T) {
	d := New[int](WithWorkers(4))
	defer d.Shutdown(5 * time.Second)

	futures := make([]*Future[int], 0, 10)
	for i := 1; i <= 10; i++ {
		n := i
		fut, err := d.Submit(func() (int, error) { return n, nil })
		if err != nil {
			t.Fatalf("submit %d: %v", n, err)
		}
		futures = append(futures, fut)
	}

	sum := 0
	for _, fut := range futures {
		v, err := fut.Get()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sum += v
	}
	if sum != 55 {
		t.Errorf("expected sum 55, got %d", sum)
	}
}

func TestDispatcher_PriorityOrder(t *testing.T) {
	d := New[int](WithWorkers(1), WithMode(Priority))
	defer d.Shutdown(5 * time.Second)

	var mu sync.Mutex
	var order []uint16

	gate := make(chan struct{})
	first, err := d.SubmitWithOptions(func() (int, error) {
		<-gate
		return 0, nil
	}, SubmitOptions{Priority: 100})
	if err != nil {
		t.Fatal(err)
	}

	futures := make([]*Future[int], 0, 10)
	for p := 0; p < 10; p++ {
		prio := uint16(p)
		fut, err := d.SubmitWithOptions(func() (int, error) {
			mu.Lock()
			order = append(order, prio)
			mu.Unlock()
			return int(prio), nil
		}, SubmitOptions{Priority: prio})
		if err != nil {
			t.Fatal(err)
		}
		futures = append(futures, fut)
	}

	close(gate)
	if _, err := first.Get(); err != nil {
		t.Fatal(err)
	}
	for _, fut := range futures {
		fut.Get()
	}

	want := []uint16{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	mu.Lock()
	got := append([]uint16(nil), order...)
	mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: want %d, got %d", i, want[i], got[i])
		}
	}
}

func TestDispatcher_RetryConvergence(t *testing.T) {
	d := New[int](WithWorkers(1), WithMode(Priority))
	defer d.Shutdown(5 * time.Second)

	var attempts atomic.Int32
	fut, err := d.SubmitWithOptions(func() (int, error) {
		n := attempts.Add(1)
		if n < 4 {
			return 0, errors.New("not yet")
		}
		return int(n), nil
	}, SubmitOptions{Retries: 5})
	if err != nil {
		t.Fatal(err)
	}

	v, err := fut.Get()
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if v != 4 {
		t.Errorf("expected convergence at attempt 4, got %d", v)
	}
}

func TestDispatcher_RetryExhaustion(t *testing.T) {
	d := New[int](WithWorkers(1), WithMode(Priority))
	defer d.Shutdown(5 * time.Second)

	wantErr := errors.New("permanent")
	fut, err := d.SubmitWithOptions(func() (int, error) {
		return 0, wantErr
	}, SubmitOptions{Retries: 2})
	if err != nil {
		t.Fatal(err)
	}

	_, gotErr := fut.Get()
	if !errors.Is(gotErr, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", gotErr)
	}
	stats := d.Stats()
	if stats.Failed != 1 {
		t.Errorf("expected Failed=1, got %d", stats.Failed)
	}
	if stats.Retried != 2 {
		t.Errorf("expected Retried=2, got %d", stats.Retried)
	}
}

func TestDispatcher_DrainOnShutdown(t *testing.T) {
	d := New[int](WithWorkers(8))

	const n = 2000
	futures := make([]*Future[int], 0, n)
	for i := 0; i < n; i++ {
		v := i
		fut, err := d.Submit(func() (int, error) { return v, nil })
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		futures = append(futures, fut)
	}

	if err := d.Shutdown(10 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	for i, fut := range futures {
		if !fut.IsReady() {
			t.Fatalf("future %d not resolved after shutdown", i)
		}
	}
	if d.Stats().Completed != n {
		t.Errorf("expected %d completed, got %d", n, d.Stats().Completed)
	}
}

func TestDispatcher_SubmitAfterShutdown(t *testing.T) {
	d := New[int](WithWorkers(1))
	if err := d.Shutdown(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Submit(func() (int, error) { return 0, nil }); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown, got %v", err)
	}
}

func TestDispatcher_FIFORejectsPriorityOptions(t *testing.T) {
	d := New[int](WithWorkers(1))
	defer d.Shutdown(5 * time.Second)

	_, err := d.SubmitWithOptions(func() (int, error) { return 0, nil }, SubmitOptions{Priority: 1})
	if !errors.Is(err, ErrUnsupportedOption) {
		t.Errorf("expected ErrUnsupportedOption, got %v", err)
	}
}

func TestDispatcher_WorkerCountClamped(t *testing.T) {
	d := New[int](WithWorkers(0))
	defer d.Shutdown(5 * time.Second)
	if d.WorkersSize() < 1 {
		t.Error("expected at least one worker when 0 was requested")
	}

	big := New[int](WithWorkers(1 << 20))
	defer big.Shutdown(5 * time.Second)
	if big.WorkersSize() > big.upperBound {
		t.Errorf("expected worker count clamped to upperBound %d, got %d", big.upperBound, big.WorkersSize())
	}
}

func TestDispatcher_AdaptiveGrowth(t *testing.T) {
	d := New[int](WithWorkers(1), WithTick(5*time.Millisecond))
	defer d.Shutdown(5 * time.Second)

	// A grow step spawns at most queued-minus-workers new workers, so the
	// backlog must exceed upperBound for the pool to reach it.
	tasks := 20
	if tasks < d.upperBound+1 {
		tasks = d.upperBound + 1
	}
	gate := make(chan struct{})
	for i := 0; i < tasks; i++ {
		_, err := d.Submit(func() (int, error) {
			<-gate
			return 0, nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(2 * time.Second)
	for d.WorkersSize() < d.upperBound {
		select {
		case <-deadline:
			t.Fatalf("worker count did not reach upper bound %d, stuck at %d", d.upperBound, d.WorkersSize())
		case <-time.After(10 * time.Millisecond):
		}
	}
	close(gate)
}

func TestDispatcher_AdaptiveShrinkRespectsFloor(t *testing.T) {
	d := New[int](WithWorkers(10), WithTick(5*time.Millisecond))
	defer d.Shutdown(5 * time.Second)

	// floor = ceil(upperBound * 0.2), clamped to at least 1; upperBound is
	// itself clamped to the host's logical CPU count, so derive the
	// expectation from the constructed dispatcher rather than assuming a
	// specific core count.
	wantFloor := (d.upperBound + 4) / 5
	if wantFloor < 1 {
		wantFloor = 1
	}
	deadline := time.After(2 * time.Second)
	for d.WorkersSize() > wantFloor {
		select {
		case <-deadline:
			t.Fatalf("worker count did not settle at floor %d, stuck at %d", wantFloor, d.WorkersSize())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if d.WorkersSize() < wantFloor {
		t.Errorf("shrink went below floor %d: got %d", wantFloor, d.WorkersSize())
	}
}

func TestDispatcher_ResourceExhaustedSurfacesOnSubmit(t *testing.T) {
	d := New[int](WithWorkers(1))
	defer d.Shutdown(5 * time.Second)

	wantErr := errors.New("no more threads")
	d.spawnFn = func(int64) error { return wantErr }
	d.recordSpawnFailure(wantErr)

	_, err := d.Submit(func() (int, error) { return 0, nil })
	if !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("expected ErrResourceExhausted, got %v", err)
	}

	// The error is consumed on the first Submit after it was recorded; a
	// second Submit should succeed.
	if _, err := d.Submit(func() (int, error) { return 0, nil }); err != nil {
		t.Errorf("expected the second submit to succeed, got %v", err)
	}
}
