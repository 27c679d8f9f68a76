package pool

import (
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/harborq/taskpool/internal/affinity"
	"github.com/harborq/taskpool/internal/algorithms"
)

// Option configures a Dispatcher at construction time.
type Option func(*config)

type config struct {
	workers  int
	mode     Mode
	tick     time.Duration
	errSink  io.Writer
	limiter  *rate.Limiter
	pinCPU   bool
	upperFn  func() int // overridable in tests; defaults to affinity.NumCPU

	backoffType    algorithms.BackoffType
	backoffInitial time.Duration
	backoffMax     time.Duration
	backoffJitter  float64
}

func defaultConfig() *config {
	return &config{
		workers:        affinity.NumCPU(),
		mode:           FIFO,
		tick:           0,
		upperFn:        affinity.NumCPU,
		backoffType:    algorithms.BackoffExponential,
		backoffInitial: 2 * time.Millisecond,
		backoffMax:     50 * time.Millisecond,
	}
}

// WithWorkers requests a starting worker count. It is clamped to
// [1, upperBound] at construction (New), so 0 or negative values reach that
// clamp and yield a single worker rather than falling back to the default.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithMode selects FIFO or Priority queue discipline.
func WithMode(m Mode) Option {
	return func(c *config) { c.mode = m }
}

// WithTick sets the adaptive-sizing wake period. A zero tick (the default)
// disables the sizing controller entirely, leaving a fixed worker set for
// the dispatcher's lifetime.
func WithTick(tick time.Duration) Option {
	return func(c *config) { c.tick = tick }
}

// WithErrorSink overrides the diagnostic sink that receives one line per
// terminally failed task. Defaults to os.Stderr.
func WithErrorSink(w io.Writer) Option {
	return func(c *config) { c.errSink = w }
}

// WithRateLimit throttles Submit to tasksPerSecond with the given burst,
// using a token bucket. Useful when tasks call into a rate-limited
// downstream dependency. Unset by default (no throttling).
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(c *config) {
		if tasksPerSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithCPUAffinity pins each worker's OS thread, when it starts, to the
// logical CPU numbered by its worker id modulo the CPU count. Ids are never
// reused, so after the sizing controller retires and spawns workers two
// live workers can share a CPU. Has no effect on platforms without core-pinning support
// (affinity.Pin degrades to a thread lock there).
func WithCPUAffinity(enabled bool) Option {
	return func(c *config) { c.pinCPU = enabled }
}

// WithSpawnBackoff selects the backoff strategy the sizing controller uses
// to space out repeated worker-spawn failures within a single grow step,
// before giving up and recording ResourceExhausted for the next Submit to
// surface. Has no effect unless WithTick is also set. Defaults to
// algorithms.BackoffExponential with a 2ms initial delay and a 50ms cap.
func WithSpawnBackoff(backoffType algorithms.BackoffType, initialDelay, maxDelay time.Duration, jitterFactor float64) Option {
	return func(c *config) {
		c.backoffType = backoffType
		c.backoffInitial = initialDelay
		c.backoffMax = maxDelay
		c.backoffJitter = jitterFactor
	}
}
