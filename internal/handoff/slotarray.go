package handoff

import "sync/atomic"

// SlotArray is the per-job atomic slot array pattern of §4.C.2: a fixed-size
// array of result pointers filled by N producers at job-local indices,
// observed once by a single consumer once filled reaches expected. No locks,
// no unbounded growth.
type SlotArray[T any] struct {
	slots    []atomic.Pointer[T]
	expected uint32
	filled   atomic.Uint32
}

// NewSlotArray allocates a slot array sized for expected producers.
func NewSlotArray[T any](expected uint32) *SlotArray[T] {
	return &SlotArray[T]{
		slots:    make([]atomic.Pointer[T], expected),
		expected: expected,
	}
}

// Expected returns the number of producer slots.
func (s *SlotArray[T]) Expected() uint32 { return s.expected }

// Filled returns how many slots have been written so far.
func (s *SlotArray[T]) Filled() uint32 { return s.filled.Load() }

// Set writes result into slot idx and marks one more slot filled. idx must
// be the producer's job-local identity (e.g. its index among required
// inputs); out-of-range indices are ignored.
func (s *SlotArray[T]) Set(idx uint32, result *T) {
	if idx >= uint32(len(s.slots)) {
		return
	}
	s.slots[idx].Store(result) // release
	s.filled.Add(1)            // acq_rel
}

// Ready reports whether every expected slot has been filled.
func (s *SlotArray[T]) Ready() bool {
	return s.filled.Load() >= s.expected
}

// Get returns the result for idx (nil if that slot has not been Set, or was
// Set with nil, as TLASWorker does for a failed BLAS build). Safe to call
// once Ready() is true; acquire-ordered with respect to the corresponding
// Set.
func (s *SlotArray[T]) Get(idx uint32) *T {
	if idx >= uint32(len(s.slots)) {
		return nil
	}
	return s.slots[idx].Load() // acquire
}

// All returns every slot's current value in index order. Intended to be
// called once Ready() is true.
func (s *SlotArray[T]) All() []*T {
	out := make([]*T, len(s.slots))
	for i := range s.slots {
		out[i] = s.slots[i].Load()
	}
	return out
}
