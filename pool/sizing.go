package pool

import (
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harborq/taskpool/internal/algorithms"
)

// sizingController is the background supervisor that grows the worker set
// on backlog and retires idle workers under light load, within
// [floor, upperBound]. Configured with a wake period (the "tick") at
// Dispatcher construction; a zero tick means no controller is created at
// all (see New).
type sizingController[T any] struct {
	d          *Dispatcher[T]
	tick       time.Duration
	upperBound int
	floor      int

	stopCh chan struct{}
	eg     errgroup.Group
	once   sync.Once

	// spawnBackoff spaces out repeated spawn attempts within a single grow
	// step when the runtime is refusing new OS threads (ResourceExhausted),
	// instead of burning the tick immediately.
	spawnBackoff algorithms.BackoffStrategy
}

func newSizingController[T any](d *Dispatcher[T], tick time.Duration, upperBound int) *sizingController[T] {
	floor := int(math.Ceil(float64(upperBound) * 0.2))
	if floor < 1 {
		floor = 1
	}
	return &sizingController[T]{
		d:          d,
		tick:       tick,
		upperBound: upperBound,
		floor:      floor,
		stopCh:     make(chan struct{}),
		spawnBackoff: algorithms.NewBackoffStrategy(
			d.cfg.backoffType, d.cfg.backoffInitial, d.cfg.backoffMax, d.cfg.backoffJitter,
		),
	}
}

func (s *sizingController[T]) start() {
	s.eg.Go(func() error {
		s.run()
		return nil
	})
}

func (s *sizingController[T]) stop() {
	s.once.Do(func() { close(s.stopCh) })
	_ = s.eg.Wait()
}

func (s *sizingController[T]) run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.evaluate()
		}
	}
}

// evaluate runs one tick of §4.4: purge stale records, then apply the
// shrink rule, then the grow rule.
func (s *sizingController[T]) evaluate() {
	d := s.d
	d.q.purgeFinished()

	queued := d.q.size()
	workers := d.WorkersSize()

	s.maybeShrink(queued, workers)
	s.maybeGrow(queued, d.WorkersSize())
}

// maybeShrink retires exactly one idle worker when the pool is
// over-provisioned relative to backlog, never collapsing below floor.
func (s *sizingController[T]) maybeShrink(queued, workers int) {
	d := s.d
	if !(workers > queued && workers > s.floor) {
		return
	}

	d.q.mu.Lock()
	var victim *workerHandle
	for id := range d.idle {
		if h, ok := d.workers[id]; ok {
			victim = h
		}
		break
	}
	d.q.mu.Unlock()

	if victim == nil {
		return
	}

	close(victim.stop)

	d.q.mu.Lock()
	d.q.cond.Broadcast()
	d.q.mu.Unlock()

	<-victim.done

	d.q.mu.Lock()
	delete(d.workers, victim.id)
	delete(d.idle, victim.id)
	d.q.mu.Unlock()
}

// maybeGrow spawns enough workers to close the backlog gap, never exceeding
// upperBound. A spawn failure (ResourceExhausted) is retried a few times
// with backoff before this tick gives up and records the failure for the
// next Submit to surface.
const maxSpawnAttempts = 3

func (s *sizingController[T]) maybeGrow(queued, workers int) {
	d := s.d
	if !(queued > workers && workers < s.upperBound) {
		return
	}

	toSpawn := queued - workers
	if room := s.upperBound - workers; toSpawn > room {
		toSpawn = room
	}

	for i := 0; i < toSpawn; i++ {
		var err error
		for attempt := 0; attempt < maxSpawnAttempts; attempt++ {
			if err = d.spawnWorker(); err == nil {
				s.spawnBackoff.Reset()
				break
			}
			select {
			case <-time.After(s.spawnBackoff.NextDelay(attempt, err)):
			case <-s.stopCh:
				return
			}
		}
		if err != nil {
			d.recordSpawnFailure(err)
			return
		}
	}
}
