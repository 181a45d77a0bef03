// Package ecs implements component D: sparse/dense component storage with
// read/write guards, an entity registry with generational ids, a staged
// scheduler with chunked parallel dispatch, and the hierarchical transform
// system.
//
// Grounded on kernel/threads/supervisor/region_guard.go's policy-gated guard
// acquire/release and kernel/threads/sab/guard.go's access-mode model,
// generalized from SharedArrayBuffer region ownership to in-process component
// storage locking.
package ecs

import "sync"

// EntityID is a generational entity reference: Index names a slot in the
// entity table, Generation distinguishes successive occupants of that slot.
type EntityID struct {
	Index      uint32
	Generation uint32
}

// ComponentType names a registered component kind.
type ComponentType string

const sentinel = ^uint32(0)

// SparseSet is the canonical sparse/dense component store: a dense array of
// components in insertion order, a parallel entity-id array, and a sparse
// index mapping entity index to dense slot (or sentinel). Removal is
// swap-erase: the last dense element moves into the removed slot and the
// sparse entry of the moved entity is updated.
type SparseSet[T any] struct {
	mu         sync.RWMutex
	sparse     []uint32
	dense      []T
	entities   []EntityID
	destructor func(*T)
}

// NewSparseSet creates an empty storage. destructor, if non-nil, runs on the
// contained value exactly once when its entity is removed or destroyed.
func NewSparseSet[T any](destructor func(*T)) *SparseSet[T] {
	return &SparseSet[T]{destructor: destructor}
}

func (s *SparseSet[T]) ensureSparse(idx uint32) {
	if idx < uint32(len(s.sparse)) {
		return
	}
	grown := make([]uint32, idx+1)
	copy(grown, s.sparse)
	for i := len(s.sparse); i <= int(idx); i++ {
		grown[i] = sentinel
	}
	s.sparse = grown
}

func (s *SparseSet[T]) putLocked(id EntityID, value T) bool {
	s.ensureSparse(id.Index)
	if slot := s.sparse[id.Index]; slot != sentinel {
		s.dense[slot] = value
		s.entities[slot] = id
		return false
	}
	slot := uint32(len(s.dense))
	s.dense = append(s.dense, value)
	s.entities = append(s.entities, id)
	s.sparse[id.Index] = slot
	return true
}

func (s *SparseSet[T]) removeLocked(id EntityID) {
	if id.Index >= uint32(len(s.sparse)) {
		return
	}
	slot := s.sparse[id.Index]
	if slot == sentinel {
		return
	}
	if s.destructor != nil {
		s.destructor(&s.dense[slot])
	}
	last := uint32(len(s.dense)) - 1
	if slot != last {
		s.dense[slot] = s.dense[last]
		s.entities[slot] = s.entities[last]
		s.sparse[s.entities[slot].Index] = slot
	}
	s.dense = s.dense[:last]
	s.entities = s.entities[:last]
	s.sparse[id.Index] = sentinel
}

// Put inserts or overwrites id's component. Returns true if a new dense slot
// was created (false on overwrite of an existing component).
func (s *SparseSet[T]) Put(id EntityID, value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(id, value)
}

// Remove swap-erases id's component, if present.
func (s *SparseSet[T]) Remove(id EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Has reports whether id currently has a component in this storage.
func (s *SparseSet[T]) Has(id EntityID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id.Index < uint32(len(s.sparse)) && s.sparse[id.Index] != sentinel
}

// removeEntity implements registeredStorage for World.DestroyEntity.
func (s *SparseSet[T]) removeEntity(id EntityID) { s.Remove(id) }

// ReadGuard holds a shared lock on a storage and exposes indexed read access.
type ReadGuard[T any] struct{ s *SparseSet[T] }

// AcquireRead locks the storage for shared (read) access. The caller must
// call Release exactly once.
func (s *SparseSet[T]) AcquireRead() *ReadGuard[T] {
	s.mu.RLock()
	return &ReadGuard[T]{s: s}
}

func (g *ReadGuard[T]) Release() { g.s.mu.RUnlock() }
func (g *ReadGuard[T]) Len() int { return len(g.s.dense) }
func (g *ReadGuard[T]) ItemAt(i int) T { return g.s.dense[i] }
func (g *ReadGuard[T]) EntityAt(i int) EntityID { return g.s.entities[i] }

// Get returns id's component and whether it is present.
func (g *ReadGuard[T]) Get(id EntityID) (T, bool) {
	var zero T
	if id.Index >= uint32(len(g.s.sparse)) {
		return zero, false
	}
	slot := g.s.sparse[id.Index]
	if slot == sentinel {
		return zero, false
	}
	return g.s.dense[slot], true
}

// WriteGuard holds an exclusive lock and additionally exposes mutable slot
// access and put/remove.
type WriteGuard[T any] struct{ s *SparseSet[T] }

// AcquireWrite locks the storage for exclusive access. The caller must call
// Release exactly once.
func (s *SparseSet[T]) AcquireWrite() *WriteGuard[T] {
	s.mu.Lock()
	return &WriteGuard[T]{s: s}
}

func (g *WriteGuard[T]) Release()                       { g.s.mu.Unlock() }
func (g *WriteGuard[T]) Len() int                        { return len(g.s.dense) }
func (g *WriteGuard[T]) ItemAt(i int) T                  { return g.s.dense[i] }
func (g *WriteGuard[T]) ItemAtPtr(i int) *T              { return &g.s.dense[i] }
func (g *WriteGuard[T]) EntityAt(i int) EntityID         { return g.s.entities[i] }
func (g *WriteGuard[T]) Put(id EntityID, v T) bool       { return g.s.putLocked(id, v) }
func (g *WriteGuard[T]) Remove(id EntityID)              { g.s.removeLocked(id) }

// ForEach2 implements §4.D.1's `for_each({T1, T2, …}, ctx, fn)` for the
// common two-storage case: it acquires read guards on both a and b,
// iterates whichever is smaller (smallest-storage-first join), and invokes
// fn for every entity present in both. Go's lack of variadic type
// parameters rules out an arbitrary-arity for_each without code
// generation; callers needing three or more storages compose ForEach2 with
// an extra Get inside fn, or nest ForEach2 calls.
func ForEach2[A, B any](a *SparseSet[A], b *SparseSet[B], fn func(id EntityID, va *A, vb *B)) {
	ga := a.AcquireRead()
	defer ga.Release()
	gb := b.AcquireRead()
	defer gb.Release()

	if gb.Len() < ga.Len() {
		for i := 0; i < gb.Len(); i++ {
			id := gb.EntityAt(i)
			vb := gb.ItemAt(i)
			if va, ok := ga.Get(id); ok {
				fn(id, &va, &vb)
			}
		}
		return
	}
	for i := 0; i < ga.Len(); i++ {
		id := ga.EntityAt(i)
		va := ga.ItemAt(i)
		if vb, ok := gb.Get(id); ok {
			fn(id, &va, &vb)
		}
	}
}
