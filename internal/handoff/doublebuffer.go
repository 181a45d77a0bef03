// Package handoff implements the three lock-free handoff patterns of
// component C: an atomic double-buffer for SPSC/MPSC batch handoff, a
// per-job atomic slot array for many-producers-one-consumer result
// collection, and a CAS-based singly linked list for retirement queues.
//
// The double-buffer and slot-array patterns are grounded on the teacher's
// foundation/epoch.go (atomic index plus acquire/release handshake and a
// notify-on-change channel set) and foundation/message_queue.go (atomic
// head/tail discipline for a bounded ring), generalized from raw
// SharedArrayBuffer byte offsets to typed Go values via generics.
package handoff

import (
	"sync"
	"sync/atomic"
)

// DoubleBuffer is an SPSC/MPSC-to-SPSC handoff: any number of producers
// append to the write-side buffer under a short append mutex; Flip
// atomically swaps which buffer is the read side via a release-store, and a
// single consumer calls Drain to take ownership of everything published
// before that flip.
//
// Every item appended before a Flip call happens-before the consumer's next
// Drain observing that flip, and is observed exactly once.
type DoubleBuffer[T any] struct {
	buffers [2][]T
	mu      [2]sync.Mutex
	read    atomic.Uint32 // index of the read-side buffer: 0 or 1
}

// NewDoubleBuffer creates an empty double-buffer.
func NewDoubleBuffer[T any]() *DoubleBuffer[T] {
	return &DoubleBuffer[T]{}
}

// Append adds an item to the current write side. Safe for concurrent callers
// (multi-producer).
func (d *DoubleBuffer[T]) Append(item T) {
	w := 1 - d.read.Load()
	d.mu[w].Lock()
	d.buffers[w] = append(d.buffers[w], item)
	d.mu[w].Unlock()
}

// Flip publishes the current write side as the new read side. It must only
// be called by the single orchestrating thread (the frame loop), never
// concurrently with itself, and only once every producer of the prior write
// side has quiesced (e.g. the stage's jobs have all completed) — the double
// buffer guarantees visibility of completed appends across a flip, not
// safety against a flip racing a still-running Append.
func (d *DoubleBuffer[T]) Flip() {
	cur := d.read.Load()
	d.read.Store(1 - cur) // release: all prior Appends to the new read side are visible to the next Drain's acquire load
}

// Drain returns everything published on the current read side and clears it
// for reuse as the next write side. Must be called by the single consumer
// thread.
func (d *DoubleBuffer[T]) Drain() []T {
	r := d.read.Load() // acquire
	d.mu[r].Lock()
	items := d.buffers[r]
	d.buffers[r] = nil
	d.mu[r].Unlock()
	return items
}

// Len reports the number of items currently pending on the write side
// (diagnostic use only; not part of the handoff contract).
func (d *DoubleBuffer[T]) Len() int {
	w := 1 - d.read.Load()
	d.mu[w].Lock()
	defer d.mu[w].Unlock()
	return len(d.buffers[w])
}
