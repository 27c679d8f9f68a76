package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/harborq/taskpool/internal/algorithms"
)

func TestSizingController_FloorComputation(t *testing.T) {
	cases := []struct {
		upperBound int
		wantFloor  int
	}{
		{upperBound: 1, wantFloor: 1},
		{upperBound: 4, wantFloor: 1},
		{upperBound: 5, wantFloor: 1},
		{upperBound: 10, wantFloor: 2},
		{upperBound: 100, wantFloor: 20},
	}

	for _, tc := range cases {
		d := &Dispatcher[int]{}
		s := newSizingController(d, time.Second, tc.upperBound)
		if s.floor != tc.wantFloor {
			t.Errorf("upperBound=%d: want floor %d, got %d", tc.upperBound, tc.wantFloor, s.floor)
		}
	}
}

func TestSizingController_MaybeGrowRetriesSpawnFailures(t *testing.T) {
	d := New[int](WithWorkers(1))
	defer d.Shutdown(5 * time.Second)

	var attempts int
	wantErr := errors.New("transient")
	d.spawnFn = func(int64) error {
		attempts++
		if attempts < 2 {
			return wantErr
		}
		return nil
	}

	s := newSizingController(d, time.Hour, 4)
	s.maybeGrow(3, 1)

	if attempts < 2 {
		t.Errorf("expected maybeGrow to retry a transient spawn failure, attempts=%d", attempts)
	}
	if d.WorkersSize() < 2 {
		t.Errorf("expected worker count to grow past the transient failure, got %d", d.WorkersSize())
	}
}

func TestSizingController_MaybeGrowGivesUpAfterRepeatedFailure(t *testing.T) {
	d := New[int](WithWorkers(1))
	defer d.Shutdown(5 * time.Second)

	wantErr := errors.New("permanent")
	d.spawnFn = func(int64) error { return wantErr }

	s := newSizingController(d, time.Hour, 4)
	before := d.WorkersSize()
	s.maybeGrow(3, 1)

	if d.WorkersSize() != before {
		t.Errorf("expected no growth on permanent spawn failure, went from %d to %d", before, d.WorkersSize())
	}
	if _, err := d.Submit(func() (int, error) { return 0, nil }); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("expected the recorded spawn failure to surface as ErrResourceExhausted, got %v", err)
	}
}

func TestSizingController_SpawnBackoffIsConfigurable(t *testing.T) {
	cases := []algorithms.BackoffType{
		algorithms.BackoffExponential,
		algorithms.BackoffJittered,
		algorithms.BackoffDecorrelated,
	}

	for _, bt := range cases {
		d := New[int](WithWorkers(1), WithSpawnBackoff(bt, time.Millisecond, 10*time.Millisecond, 0.5))

		var attempts int
		wantErr := errors.New("transient")
		d.spawnFn = func(int64) error {
			attempts++
			if attempts < 2 {
				return wantErr
			}
			return nil
		}

		s := newSizingController(d, time.Hour, 4)
		s.maybeGrow(3, 1)

		if attempts < 2 {
			t.Errorf("backoff type %v: expected a retry past the transient failure, attempts=%d", bt, attempts)
		}
		if d.WorkersSize() < 2 {
			t.Errorf("backoff type %v: expected worker count to grow, got %d", bt, d.WorkersSize())
		}
		d.Shutdown(5 * time.Second)
	}
}
