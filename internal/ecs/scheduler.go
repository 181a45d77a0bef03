package ecs

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
	"github.com/Kinubi/zephyr-engine/internal/threadpool"
)

// DefaultChunkSize is the default chunk granularity for SpawnChunked, per
// §4.D.4's canonical chunked job pattern.
const DefaultChunkSize = 256

// DefaultStageNames are the leaves-first default frame stages, pre-registered
// in this order by NewScheduler.
var DefaultStageNames = []string{
	"asset_resolve",
	"input_script",
	"physics_animation",
	"visibility",
	"render_extraction",
	"presentation",
}

// StageIndex names a stage by its position in execution order.
type StageIndex int

// JobFunc is one unit of chunked work, spawned by a system's Prepare.
type JobFunc func()

type jobDesc struct {
	run JobFunc
}

// JobBuilder collects the jobs a system's Prepare function spawns for the
// current stage run.
type JobBuilder struct {
	jobs []jobDesc
}

// Spawn records one job to run during this stage's dispatch.
func (b *JobBuilder) Spawn(run JobFunc) {
	b.jobs = append(b.jobs, jobDesc{run: run})
}

// PrepareFunc builds zero or more jobs for one system's contribution to a
// stage run. It must not block on thread-pool completion itself; waiting is
// the scheduler's job.
type PrepareFunc func(w *World, b *JobBuilder)

// System is a named unit of work attached to one stage.
type System struct {
	Name    string
	Prepare PrepareFunc
}

// Stage is one ordered phase of per-frame work. Stages never overlap.
type Stage struct {
	Name      string
	systems   []System
	lastJobs  int
	lastNanos int64
}

func (s *Stage) LastJobCount() int               { return s.lastJobs }
func (s *Stage) LastDuration() time.Duration      { return time.Duration(s.lastNanos) }

// Scheduler runs stages in registration order, dispatching each stage's
// systems' jobs to the shared thread pool and waiting for all of them to
// complete before advancing to the next stage.
//
// Grounded on the teacher's phased child-supervisor dispatch in
// kernel/threads/supervisor/unified.go (run stage, wait for its workers, only
// then start the next), generalized from a fixed actor hierarchy to
// data-driven stages and systems.
type Scheduler struct {
	pool          *threadpool.Pool
	world         *World
	subsystemName string
	stages        []*Stage
	logger        *diagnostics.Logger
}

// NewScheduler creates a scheduler with the default stages pre-registered and
// an "ecs" subsystem reserved on pool.
func NewScheduler(pool *threadpool.Pool, world *World) *Scheduler {
	pool.RegisterSubsystem(threadpool.SubsystemConfig{
		Name:            "ecs",
		MinWorkers:      1,
		MaxWorkers:      8,
		DefaultPriority: threadpool.Normal,
		Kind:            "ecs",
	})
	sc := &Scheduler{
		pool:          pool,
		world:         world,
		subsystemName: "ecs",
		logger:        diagnostics.Default("ecs.scheduler"),
	}
	for _, name := range DefaultStageNames {
		sc.AddStage(name)
	}
	return sc
}

// AddStage appends a new stage at the end; order of addition is execution
// order.
func (sc *Scheduler) AddStage(name string) StageIndex {
	sc.stages = append(sc.stages, &Stage{Name: name})
	return StageIndex(len(sc.stages) - 1)
}

// AddSystem attaches sys to stage.
func (sc *Scheduler) AddSystem(stage StageIndex, sys System) {
	sc.stages[stage].systems = append(sc.stages[stage].systems, sys)
}

// Stage returns the named stage, if registered.
func (sc *Scheduler) Stage(name string) (*Stage, bool) {
	for _, s := range sc.stages {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Run executes every stage in order. For each stage it resets the job
// builder, invokes every system's Prepare, submits all spawned jobs to the
// thread pool, and waits for them all to complete before recording stage
// metrics and moving to the next stage.
func (sc *Scheduler) Run() error {
	for _, stage := range sc.stages {
		start := time.Now()
		var builder JobBuilder
		for _, sys := range stage.systems {
			sys.Prepare(sc.world, &builder)
		}

		n := len(builder.jobs)
		stage.lastJobs = n
		if n == 0 {
			stage.lastNanos = time.Since(start).Nanoseconds()
			continue
		}

		var wg sync.WaitGroup
		wg.Add(n)
		for _, j := range builder.jobs {
			j := j
			err := sc.pool.Submit(threadpool.WorkItem{
				Priority:  threadpool.Normal,
				Subsystem: sc.subsystemName,
				Run: func(threadpool.WorkerContext) error {
					defer wg.Done()
					j.run()
					return nil
				},
			})
			if err != nil {
				sc.logger.Error("stage job rejected", diagnostics.String("stage", stage.Name), diagnostics.Err(err))
				wg.Done()
			}
		}
		wg.Wait()
		stage.lastNanos = time.Since(start).Nanoseconds()
	}
	return nil
}

// SpawnChunked implements the canonical chunked job pattern of §4.D.4: it
// partitions [0, n) into chunks of chunkSize, spawns one job per chunk
// through b, and calls release exactly once — from whichever chunk finishes
// last — once every chunk has completed. If n is zero, release runs
// immediately and no jobs are spawned. If n fits in a single chunk, work runs
// inline (still exactly once) and release runs immediately; no thread-pool
// job is spawned for it.
func SpawnChunked(b *JobBuilder, n, chunkSize int, work func(start, end int), release func()) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if n == 0 {
		if release != nil {
			release()
		}
		return
	}
	chunks := (n + chunkSize - 1) / chunkSize
	if chunks <= 1 {
		work(0, n)
		if release != nil {
			release()
		}
		return
	}

	remaining := &atomic.Uint32{}
	remaining.Store(uint32(chunks))
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		start, end := start, end
		b.Spawn(func() {
			work(start, end)
			if remaining.Add(^uint32(0)) == 0 { // fetch_sub(1, acq_rel) == 1
				if release != nil {
					release()
				}
			}
		})
	}
}
