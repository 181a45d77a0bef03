// Package accel implements component F: a per-geometry BLAS registry with
// atomic publish-replace and growth-under-mutex, and a TLAS worker that
// collects N BLAS results through a handoff.SlotArray and publishes the
// built TLAS via an atomic pointer swap.
//
// Grounded on the teacher's kernel/threads/registry/loader.go
// atomic-swap-plus-growth-mutex module table (generalized from named modules
// to geometry-id-indexed BLAS slots) and on kernel/core/mesh/dht.go's
// single-coordinator-collects-N-peer-results shape for the TLAS worker.
package accel

import (
	"sync"
	"sync/atomic"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
	"github.com/Kinubi/zephyr-engine/internal/handoff"
)

// GeometryID names one piece of scene geometry with a bottom-level
// acceleration structure.
type GeometryID uint32

// BLASRecord is the opaque GPU resource §3.6 describes: a device address
// plus whatever bookkeeping the renderer needs to rebuild or free it. The
// renderer's concrete resource type is out of scope (§1); Bookkeeping
// carries it as an opaque value.
type BLASRecord struct {
	DeviceAddress uint64
	Generation    uint64
	Bookkeeping   interface{}
}

// BLASRegistry is an array of atomic pointers keyed by geometry id. Publish
// (replacing an existing slot) is lock-free; growing the array to
// accommodate a new geometry id serializes under a short mutex, per §9's
// open question on registry growth policy.
type BLASRegistry struct {
	growMu sync.Mutex
	slots  atomic.Pointer[[]atomic.Pointer[BLASRecord]]

	retirement *handoff.RetirementList[BLASRecord]
	logger     *diagnostics.Logger
}

// NewBLASRegistry creates an empty registry.
func NewBLASRegistry() *BLASRegistry {
	r := &BLASRegistry{
		retirement: handoff.NewRetirementList[BLASRecord](),
		logger:     diagnostics.Default("accel.blas"),
	}
	empty := make([]atomic.Pointer[BLASRecord], 0)
	r.slots.Store(&empty)
	return r
}

// Reserve grows the registry, if needed, so geometry ids up to id are
// addressable. Safe for concurrent callers; growth is serialized by growMu,
// replacement elsewhere in the registry is never blocked by a concurrent
// Reserve of a different id.
func (r *BLASRegistry) Reserve(id GeometryID) {
	if int(id) < len(*r.slots.Load()) {
		return
	}
	r.growMu.Lock()
	defer r.growMu.Unlock()
	cur := *r.slots.Load()
	if int(id) < len(cur) {
		return
	}
	grown := make([]atomic.Pointer[BLASRecord], id+1)
	for i := range cur {
		grown[i].Store(cur[i].Load())
	}
	r.slots.Store(&grown)
	r.logger.Debug("BLAS registry grown", diagnostics.Uint32("capacity", uint32(len(grown))))
}

// Load returns the current BLAS record for id, or nil if none has been
// published (or id has never been reserved).
func (r *BLASRegistry) Load(id GeometryID) *BLASRecord {
	slots := *r.slots.Load()
	if int(id) >= len(slots) {
		return nil
	}
	return slots[id].Load()
}

// Publish atomically swaps record into geometry id's slot, growing the
// registry first if needed, and retires the previous record (if any) onto
// the BLAS retirement list for later draining at a safe frame boundary.
func (r *BLASRegistry) Publish(id GeometryID, record *BLASRecord) {
	r.Reserve(id)
	slots := *r.slots.Load()
	old := slots[id].Swap(record) // release
	if old != nil {
		r.retirement.Push(*old)
	}
}

// DrainRetired takes ownership of every BLAS record retired since the last
// call, for freeing at a safe frame boundary (§4.F.4).
func (r *BLASRegistry) DrainRetired() []BLASRecord {
	return r.retirement.Drain()
}
