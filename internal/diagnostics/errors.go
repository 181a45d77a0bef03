package diagnostics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Sentinel errors for the taxonomy described in the concurrency spec's error
// handling design: stale-handle/absent is never one of these (it is modeled
// as a zero value / false ok, never an error); these cover the remaining
// capacity, misuse, task-failure and fatal categories.
var (
	// ErrQueueFull is returned when a bounded queue (e.g. the script action
	// queue) is at capacity. The caller owns freeing any payload it already
	// allocated.
	ErrQueueFull = errors.New("diagnostics: queue full")

	// ErrPoolStopped is returned by a thread pool that has begun or finished
	// shutdown when new work is submitted.
	ErrPoolStopped = errors.New("diagnostics: pool stopped")

	// ErrUnregisteredComponent is a misuse error: a caller asked for a
	// component storage that was never registered with the world.
	ErrUnregisteredComponent = errors.New("diagnostics: unregistered component type")

	// ErrCycleDetected marks a transform-hierarchy (or similar) cycle found
	// during an iteration-bounded traversal.
	ErrCycleDetected = errors.New("diagnostics: cycle detected")

	// ErrGuardMisuse covers double-release or use-after-release of a storage
	// guard.
	ErrGuardMisuse = errors.New("diagnostics: guard misuse")

	// ErrJobFailed marks a job's run function as having signaled failure.
	ErrJobFailed = errors.New("diagnostics: job failed")
)

// Wrap attaches context to err using %w so errors.Is/As keep working.
func Wrap(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// counterMap tallies misuse-class diagnostics per kind, so release builds can
// turn a misuse into a no-op-and-count instead of aborting.
type counterMap struct {
	mu sync.Mutex
	m  map[string]*int64
}

func (s *counterMap) add(key string, delta int64) {
	s.mu.Lock()
	if s.m == nil {
		s.m = make(map[string]*int64)
	}
	p, ok := s.m[key]
	if !ok {
		var zero int64
		p = &zero
		s.m[key] = p
	}
	s.mu.Unlock()
	atomic.AddInt64(p, delta)
}

func (s *counterMap) get(key string) int64 {
	s.mu.Lock()
	p, ok := s.m[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

var misuseCounters = &counterMap{}

// ReportMisuse logs a misuse diagnostic and increments its counter. It never
// panics; callers that want a hard stop in debug builds pair this with a
// caller-local assertion.
func ReportMisuse(kind string, err error, fields ...Field) {
	misuseCounters.add(kind, 1)
	global.Warn("misuse: "+kind, append(fields, Err(err))...)
}

// MisuseCount returns how many times ReportMisuse(kind, ...) has fired.
func MisuseCount(kind string) int64 {
	return misuseCounters.get(kind)
}
