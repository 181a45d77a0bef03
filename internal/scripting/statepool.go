// Package scripting implements component E: a pooled interpreter-state
// multiplexer, a script runner that submits work through internal/threadpool,
// a bounded MPSC action queue, and a main-thread dispatcher that drains it.
//
// Grounded on the teacher's wasm/executor.go (a wasmer-go sandbox call) for
// the interpreter itself, and on kernel/threads/foundation/message_queue.go's
// bounded-queue-with-drop-stats discipline for the action queue.
package scripting

import (
	"context"
	"sync"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
)

// StatePool is a fixed-capacity multiplexer over interpreter states of type
// T: Acquire blocks until a state is available, Release returns it. States
// are single-thread-use only — a caller must not retain one across an
// Acquire/Release pair held by another goroutine.
//
// States are created eagerly to capacity by factory and destroyed by
// finalizer on Shutdown, per §4.E.1. Sizing target is (pool-workers + 1): one
// spare so a worker never blocks waiting on a state another worker is about
// to release in the same instant.
type StatePool[T any] struct {
	states    chan T
	finalizer func(T)
	logger    *diagnostics.Logger

	mu     sync.Mutex
	closed bool
}

// NewStatePool eagerly constructs capacity states via factory. capacity must
// be at least 1.
func NewStatePool[T any](capacity int, factory func() T, finalizer func(T)) *StatePool[T] {
	if capacity < 1 {
		capacity = 1
	}
	p := &StatePool[T]{
		states:    make(chan T, capacity),
		finalizer: finalizer,
		logger:    diagnostics.Default("scripting.statepool"),
	}
	for i := 0; i < capacity; i++ {
		p.states <- factory()
	}
	return p
}

// Acquire blocks until a state is available or ctx is done.
func (p *StatePool[T]) Acquire(ctx context.Context) (T, error) {
	select {
	case s := <-p.states:
		return s, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Release returns a state to the pool. It is a no-op (and the state is
// finalized instead) once the pool has begun Shutdown.
func (p *StatePool[T]) Release(s T) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		if p.finalizer != nil {
			p.finalizer(s)
		}
		return
	}
	p.states <- s
}

// Shutdown drains every currently-idle state and finalizes it, then marks
// the pool closed so any subsequent Release finalizes instead of recycling.
// It does not wait for states currently leased; callers must ensure no
// worker is mid-Acquire/Release when calling this (e.g. via the thread
// pool's own shutdown, which joins workers first).
func (p *StatePool[T]) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	finalized := 0
	for {
		select {
		case s := <-p.states:
			if p.finalizer != nil {
				p.finalizer(s)
			}
			finalized++
		default:
			p.logger.Debug("state pool shut down", diagnostics.Int("finalized", finalized))
			return
		}
	}
}

// Len reports how many states are currently idle in the pool (diagnostic
// use only).
func (p *StatePool[T]) Len() int { return len(p.states) }
