// Package engine wires components A-F into the per-frame data flow §2
// describes: BeginFrame, run the scheduler's stages, extract and publish a
// snapshot, and expose the renderer-facing surfaces of §6.1 as an
// injectable interface so a real Vulkan renderer can be plugged in without
// this package depending on one.
//
// Grounded on the teacher's cmd/inos-node/main.go wiring style (construct
// every subsystem, thread them through one top-level struct, expose a small
// number of lifecycle methods) and kernel/utils/graceful.go's
// shutdown-signal-then-drain idiom (internal/diagnostics.Shutdown).
package engine

import (
	"context"
	"time"

	"github.com/Kinubi/zephyr-engine/internal/accel"
	"github.com/Kinubi/zephyr-engine/internal/config"
	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
	"github.com/Kinubi/zephyr-engine/internal/ecs"
	"github.com/Kinubi/zephyr-engine/internal/handoff"
	"github.com/Kinubi/zephyr-engine/internal/scripting"
	"github.com/Kinubi/zephyr-engine/internal/threadpool"
)

// SecondaryCmdBuffer is an opaque handle to a recorded secondary command
// buffer. Its concrete representation belongs to the renderer (§1 scopes
// the GPU API out of this core); the engine only shuttles it between a
// worker and the render thread.
type SecondaryCmdBuffer interface{}

// Renderer is the minimal surface §6.1 requires of the (out-of-scope)
// renderer: per-worker secondary command buffer recording.
type Renderer interface {
	BeginWorkerSecondaryCmdBuffer(workerID int) (SecondaryCmdBuffer, error)
	EndWorkerSecondaryCmdBuffer(handle SecondaryCmdBuffer)
}

// Runtime composes every component of the concurrent runtime core: the
// thread pool (B), the ECS world and scheduler (D), the scripting runtime
// (E), and the acceleration-structure orchestrator (F), glued together by
// the handoff fabric (C). Component A (internal/registry) is not used by
// Runtime or by the components it composes; Runtime does not own a
// registry of engine resources beyond what ecs/accel/scripting already
// expose.
type Runtime struct {
	cfg    config.Runtime
	logger *diagnostics.Logger

	pool *threadpool.Pool

	world     *ecs.World
	scheduler *ecs.Scheduler

	pendingCmdBuffers   *handoff.DoubleBuffer[SecondaryCmdBuffer]
	submittedCmdBuffers *handoff.DoubleBuffer[SecondaryCmdBuffer]

	scriptStates *scripting.StatePool[*scripting.WasmerState]
	actions      *scripting.ActionQueue
	cvars        *scripting.CVarRegistry
	runner       *scripting.Runner[*scripting.WasmerState]
	dispatcher   *scripting.Dispatcher[*scripting.WasmerState]

	blas       *accel.BLASRegistry
	tlas       *accel.TLASRegistry
	tlasWorker *accel.TLASWorker

	shutdown *diagnostics.Shutdown

	frameIndex uint64
}

// New constructs a Runtime from cfg. buildBLAS/buildTLAS are the
// renderer-supplied acceleration-structure build functions (§1 scopes the
// actual GPU work out of this core; the orchestrator just needs something
// to call).
func New(cfg config.Runtime, buildBLAS accel.BuildBLASFunc, buildTLAS accel.BuildTLASFunc) *Runtime {
	logger := diagnostics.Default("engine")

	pool := threadpool.New(threadpool.Config{
		MaxWorkers:  cfg.MaxWorkers,
		IdleTimeout: cfg.IdleTimeout,
		Logger:      logger.With("threadpool"),
	})
	for _, sub := range cfg.Subsystems {
		pool.RegisterSubsystem(threadpool.SubsystemConfig{
			Name:       sub.Name,
			MinWorkers: sub.MinWorkers,
			MaxWorkers: sub.MaxWorkers,
			Kind:       sub.Name,
		})
	}

	world := ecs.NewWorld()
	scheduler := ecs.NewScheduler(pool, world)

	scriptStates := scripting.NewWasmerStatePool(cfg.ScriptingWorkers + 1)
	actions := scripting.NewActionQueue(cfg.ActionQueueCapacity)
	cvars := scripting.NewCVarRegistry()
	runner := scripting.NewWasmerRunner(pool, scriptStates, actions, 1, cfg.ScriptingWorkers)
	dispatcher := scripting.NewDispatcher(actions, cvars, scriptStates)

	blas := accel.NewBLASRegistry()
	tlas := accel.NewTLASRegistry()
	tlasWorker := accel.NewTLASWorker(pool, blas, tlas, buildBLAS, buildTLAS, 1, cfg.BLASWorkers)

	rt := &Runtime{
		cfg:                 cfg,
		logger:              logger,
		pool:                pool,
		world:               world,
		scheduler:           scheduler,
		pendingCmdBuffers:   handoff.NewDoubleBuffer[SecondaryCmdBuffer](),
		submittedCmdBuffers: handoff.NewDoubleBuffer[SecondaryCmdBuffer](),
		scriptStates:        scriptStates,
		actions:             actions,
		cvars:               cvars,
		runner:              runner,
		dispatcher:          dispatcher,
		blas:                blas,
		tlas:                tlas,
		tlasWorker:          tlasWorker,
		shutdown:            diagnostics.NewShutdown(10*time.Second, logger.With("shutdown")),
	}

	rt.shutdown.Register(func() error { scriptStates.Shutdown(); return nil })
	rt.shutdown.Register(func() error { return pool.Shutdown(context.Background()) })

	return rt
}

func (rt *Runtime) World() *ecs.World                                          { return rt.world }
func (rt *Runtime) Scheduler() *ecs.Scheduler                                  { return rt.scheduler }
func (rt *Runtime) Pool() *threadpool.Pool                                    { return rt.pool }
func (rt *Runtime) Scripting() *scripting.Runner[*scripting.WasmerState]      { return rt.runner }
func (rt *Runtime) Dispatcher() *scripting.Dispatcher[*scripting.WasmerState] { return rt.dispatcher }
func (rt *Runtime) CVars() *scripting.CVarRegistry                            { return rt.cvars }
func (rt *Runtime) BLAS() *accel.BLASRegistry                                 { return rt.blas }
func (rt *Runtime) TLAS() *accel.TLASRegistry                                 { return rt.tlas }

// BeginFrame advances frame bookkeeping and resets the world's per-frame
// state, per §4.D.1. Must be called once per frame before RunStages.
func (rt *Runtime) BeginFrame(dt float64) {
	rt.frameIndex++
	rt.world.BeginFrame(rt.frameIndex, dt)
}

// RunStages runs every registered scheduler stage in order, per §4.D.3.
func (rt *Runtime) RunStages() error {
	return rt.scheduler.Run()
}

// RequestTLASRebuild triggers one TLAS (re)build for requiredGeometry, per
// §4.F.2. Each call queues one rebuild, which publishes a TLAS with a new
// generation; transform-only rebuilds take the same path per §4.F.3.
func (rt *Runtime) RequestTLASRebuild(requiredGeometry []accel.GeometryID, onComplete func(*accel.TLASRecord, error)) error {
	return rt.tlasWorker.Submit(requiredGeometry, onComplete)
}

// ExtractAndPublish flips the world's extraction double-buffer, publishing
// this frame's extracted instances to the render thread, per §4.D.6/§4.C.1.
// Must be called after the render_extraction stage's jobs have completed
// (RunStages already waited for that) and before the next stage's jobs
// begin appending.
func (rt *Runtime) ExtractAndPublish() {
	rt.world.Extraction().Flip()
}

// BeginWorkerSecondaryCmdBuffer is the §6.1 hook a chunked render-extraction
// job calls to get a thread-local recorder from the renderer.
func (rt *Runtime) BeginWorkerSecondaryCmdBuffer(renderer Renderer, workerID int) (SecondaryCmdBuffer, error) {
	return renderer.BeginWorkerSecondaryCmdBuffer(workerID)
}

// EndWorkerSecondaryCmdBuffer pushes a recorded secondary command buffer
// onto the pending double-buffer for the render thread to pick up, per
// §6.1/§4.C.1.
func (rt *Runtime) EndWorkerSecondaryCmdBuffer(handle SecondaryCmdBuffer) {
	rt.pendingCmdBuffers.Append(handle)
}

// FlipPendingCmdBuffers publishes everything appended via
// EndWorkerSecondaryCmdBuffer so far; the render thread then calls
// DrainPendingCmdBuffers to take ownership of them.
func (rt *Runtime) FlipPendingCmdBuffers() { rt.pendingCmdBuffers.Flip() }

// DrainPendingCmdBuffers is called by the render thread: it takes ownership
// of every secondary command buffer published since the last flip, executes
// them, and the caller is expected to move them onto submittedCmdBuffers via
// MarkSubmitted once done.
func (rt *Runtime) DrainPendingCmdBuffers() []SecondaryCmdBuffer {
	return rt.pendingCmdBuffers.Drain()
}

// MarkSubmitted records that handle has been executed and can move to the
// single-producer cleanup pass's double-buffer.
func (rt *Runtime) MarkSubmitted(handle SecondaryCmdBuffer) {
	rt.submittedCmdBuffers.Append(handle)
}

// FlipSubmittedCmdBuffers and DrainSubmittedCmdBuffers expose the
// single-producer -> cleanup-pass double-buffer named in §4.C.1.
func (rt *Runtime) FlipSubmittedCmdBuffers() { rt.submittedCmdBuffers.Flip() }
func (rt *Runtime) DrainSubmittedCmdBuffers() []SecondaryCmdBuffer {
	return rt.submittedCmdBuffers.Drain()
}

// DrainRetirement drains the BLAS and TLAS retirement lists at a safe frame
// boundary (§4.F.4: after the render thread has finished consuming the
// previous frame's snapshot) and frees the returned records by simply
// discarding them; callers that need a renderer-side free hook can iterate
// the returned slices themselves.
func (rt *Runtime) DrainRetirement() (blas []accel.BLASRecord, tlas []accel.TLASRecord) {
	return rt.blas.DrainRetired(), rt.tlasWorker.Retirement().Drain()
}

// Shutdown drains and stops the thread pool and scripting state pool, in
// dependency order, bounded by ctx (via the Shutdown coordinator's own
// timeout).
func (rt *Runtime) Shutdown(ctx context.Context) error {
	return rt.shutdown.Run(ctx)
}
