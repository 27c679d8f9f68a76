// Package manager provides a process-wide Dispatcher registry, one
// instance per result type, each lazily constructed on first use and
// reconfigurable only before that. It never mutates an already-constructed
// Dispatcher; it only selects which options govern the one Get constructs.
package manager

import (
	"errors"
	"os"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/harborq/taskpool/pool"
)

// ErrAlreadyConstructed is returned by Configure once any Get call has
// already constructed a Dispatcher.
var ErrAlreadyConstructed = errors.New("manager: a dispatcher has already been constructed; Configure must run first")

var (
	mu        sync.Mutex
	baseOpts  []pool.Option
	locked    bool
	instances = map[reflect.Type]any{}
)

// Configure sets the options used to lazily construct dispatchers on the
// next Get call for each result type. It fails with ErrAlreadyConstructed
// once any Get has already run, since the manager must not reach into a
// live Dispatcher and change its settings.
func Configure(opts ...pool.Option) error {
	mu.Lock()
	defer mu.Unlock()
	if locked {
		return ErrAlreadyConstructed
	}
	baseOpts = append([]pool.Option(nil), opts...)
	return nil
}

// Get returns the process-wide Dispatcher for result type T, constructing
// it on first call. Precedence, highest first: environment variables
// (TASKPOOL_WORKERS, TASKPOOL_TICK_NS), then options passed to Configure,
// then pool.New's defaults.
func Get[T any]() *pool.Dispatcher[T] {
	mu.Lock()
	defer mu.Unlock()
	locked = true

	var zero T
	typ := reflect.TypeOf(&zero).Elem()

	if existing, ok := instances[typ]; ok {
		return existing.(*pool.Dispatcher[T])
	}

	opts := append([]pool.Option(nil), baseOpts...)
	opts = append(opts, envOverrides()...)

	d := pool.New[T](opts...)
	instances[typ] = d
	return d
}

func envOverrides() []pool.Option {
	var opts []pool.Option

	if v := os.Getenv("TASKPOOL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts = append(opts, pool.WithWorkers(n))
		}
	}

	if v := os.Getenv("TASKPOOL_TICK_NS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts = append(opts, pool.WithTick(time.Duration(n)))
		}
	}

	return opts
}

// reset clears the manager's state. Test-only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	baseOpts = nil
	locked = false
	instances = map[reflect.Type]any{}
}
