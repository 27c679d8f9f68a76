package pool

import "sync/atomic"

// Stats is a snapshot of the dispatcher's lifetime diagnostic counters.
// These never reset across the dispatcher's life and carry no
// transactional guarantee relative to one another.
type Stats struct {
	Completed int64
	Retried   int64
	Failed    int64
}

type counters struct {
	completed atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Completed: c.completed.Load(),
		Retried:   c.retried.Load(),
		Failed:    c.failed.Load(),
	}
}
