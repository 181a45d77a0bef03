package accel

import (
	"sync/atomic"
	"time"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
	"github.com/Kinubi/zephyr-engine/internal/handoff"
	"github.com/Kinubi/zephyr-engine/internal/threadpool"
)

// TLASRecord is the published top-level acceleration structure: a device
// address, a strictly-increasing generation, and the set of BLAS geometry
// ids it currently references.
type TLASRecord struct {
	DeviceAddress  uint64
	Generation     uint64
	ReferencedBLAS []GeometryID
}

// TLASRegistry holds a single atomic pointer to the currently-published
// TLAS record, per §3.6.
type TLASRegistry struct {
	current atomic.Pointer[TLASRecord]
}

// NewTLASRegistry creates an empty registry (Current returns nil until the
// first publish).
func NewTLASRegistry() *TLASRegistry { return &TLASRegistry{} }

// Current returns the currently-published TLAS record, or nil before the
// first build completes.
func (r *TLASRegistry) Current() *TLASRecord { return r.current.Load() }

// BuildBLASFunc builds (or rebuilds) the bottom-level acceleration structure
// for one geometry. This is the renderer's concern (§1 scopes the actual GPU
// build out of the core); the worker only orchestrates when and in what
// order it runs.
type BuildBLASFunc func(GeometryID) (*BLASRecord, error)

// BuildTLASFunc builds the top-level acceleration structure from the
// resolved per-geometry BLAS records and whatever current instance
// transforms the caller closes over. Also a renderer concern.
type BuildTLASFunc func(resolved map[GeometryID]*BLASRecord) (*TLASRecord, error)

// maxSpinIterations bounds TLASWorker's wait for SlotArray.Ready, per §4.F.2
// step 3's "spin ... short bounded sleep if needed" — never an unbounded
// hot-poll.
const maxSpinIterations = 10000

const spinSleep = 50 * time.Microsecond

// TLASWorker orchestrates one TLAS (re)build, per §4.F.2: triggered once per
// rebuild request, it resolves required BLAS records (spawning BLAS-build
// jobs for any not already in the registry), waits for all of them via a
// handoff.SlotArray, builds the TLAS, and publishes it.
type TLASWorker struct {
	pool       *threadpool.Pool
	blas       *BLASRegistry
	tlas       *TLASRegistry
	retirement *handoff.RetirementList[TLASRecord]
	buildBLAS  BuildBLASFunc
	buildTLAS  BuildTLASFunc
	logger     *diagnostics.Logger

	generation atomic.Uint64
}

// NewTLASWorker wires a worker to the shared BLAS/TLAS registries and the
// renderer-supplied build functions, and registers the "accel" subsystem
// with pool.
func NewTLASWorker(pool *threadpool.Pool, blas *BLASRegistry, tlas *TLASRegistry, buildBLAS BuildBLASFunc, buildTLAS BuildTLASFunc, minWorkers, maxWorkers int) *TLASWorker {
	pool.RegisterSubsystem(threadpool.SubsystemConfig{
		Name:            "accel",
		MinWorkers:      minWorkers,
		MaxWorkers:      maxWorkers,
		DefaultPriority: threadpool.High,
		Kind:            "bvh-build",
	})
	return &TLASWorker{
		pool:       pool,
		blas:       blas,
		tlas:       tlas,
		retirement: handoff.NewRetirementList[TLASRecord](),
		buildBLAS:  buildBLAS,
		buildTLAS:  buildTLAS,
		logger:     diagnostics.Default("accel.tlas"),
	}
}

// Retirement returns the per-frame TLAS retirement list; the main thread
// drains it at a safe frame boundary (§4.F.4) and frees the returned
// records.
func (w *TLASWorker) Retirement() *handoff.RetirementList[TLASRecord] { return w.retirement }

// Submit triggers exactly one TLAS (re)build for requiredGeometry, per
// §4.F.2/§4.F.3 (a transform-only rebuild takes the same path; every id is
// already present in the registry so step 2 observes completion
// immediately and the spin in step 3 is a no-op). It is submitted once as a
// high-priority work item; Submit itself returns as soon as the job is
// queued, not once the build completes — callers that need completion
// should poll TLASRegistry.Current().Generation or pass their own
// completion channel via onComplete.
func (w *TLASWorker) Submit(requiredGeometry []GeometryID, onComplete func(*TLASRecord, error)) error {
	return w.pool.Submit(threadpool.WorkItem{
		Priority:  threadpool.High,
		Subsystem: "accel",
		Run: func(threadpool.WorkerContext) error {
			record, err := w.runBuild(requiredGeometry)
			if onComplete != nil {
				onComplete(record, err)
			}
			if err != nil {
				return err
			}
			return nil
		},
	})
}

func (w *TLASWorker) runBuild(requiredGeometry []GeometryID) (*TLASRecord, error) {
	slots := handoff.NewSlotArray[BLASRecord](uint32(len(requiredGeometry)))

	for i, id := range requiredGeometry {
		idx := uint32(i)
		geomID := id
		if rec := w.blas.Load(geomID); rec != nil {
			slots.Set(idx, rec)
			continue
		}
		// Missing BLAS: spawn a build job for it and leave the slot null
		// until it completes (§4.F.2 step 2).
		err := w.pool.Submit(threadpool.WorkItem{
			Priority:  threadpool.High,
			Subsystem: "accel",
			Run: func(threadpool.WorkerContext) error {
				rec, err := w.buildBLAS(geomID)
				if err != nil {
					w.logger.Warn("BLAS build failed",
						diagnostics.Err(err), diagnostics.Uint32("geometry", uint32(geomID)))
					// §7: a failing BLAS build results in the TLAS omitting
					// that instance for the frame — fill the slot with nil so
					// the wait below still completes and the id is skipped.
					slots.Set(idx, nil)
					return err
				}
				w.blas.Publish(geomID, rec)
				slots.Set(idx, rec)
				return nil
			},
		})
		if err != nil {
			w.logger.Error("BLAS build job rejected", diagnostics.Err(err))
		}
	}

	for iter := 0; !slots.Ready() && iter < maxSpinIterations; iter++ {
		time.Sleep(spinSleep)
	}

	resolved := make(map[GeometryID]*BLASRecord, len(requiredGeometry))
	for i, id := range requiredGeometry {
		if rec := slots.Get(uint32(i)); rec != nil {
			resolved[id] = rec
		}
	}

	tlasRecord, err := w.buildTLAS(resolved)
	if err != nil {
		return nil, err
	}
	tlasRecord.Generation = w.generation.Add(1)

	old := w.tlas.current.Swap(tlasRecord) // release
	if old != nil {
		w.retirement.Push(*old)
	}
	return tlasRecord, nil
}
