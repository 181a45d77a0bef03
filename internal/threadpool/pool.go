// Package threadpool implements the demand-driven worker pool of component B:
// priority FIFO queues, per-subsystem worker budgeting, and up/down scaling
// driven by queue pressure and explicit demand hints.
//
// Grounded on the teacher's kernel/threads/supervisor.go child-supervisor
// bookkeeping (named, restartable workers owned by one coordinator) and on
// the go-highway workerpool.Pool idiom of a small, persistent set of
// goroutines draining a shared work channel instead of spawning per task.
package threadpool

import (
	"context"
	"sync"
	"time"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
)

// Priority orders work items; lower numeric value runs first.
type Priority int

const (
	Critical Priority = iota
	High
	Normal
	Low
	numPriorities
)

// WorkerContext is threaded into every work item's Run function so a
// subsystem can stash per-worker resources (a GPU command pool, a scripting
// interpreter state) behind a thread-local-style hook keyed by WorkerID.
type WorkerContext struct {
	WorkerID int
	Kind     string
}

// WorkItem is one unit of dispatched work.
type WorkItem struct {
	Priority Priority
	Subsystem string
	Run       func(WorkerContext) error
}

// SubsystemConfig registers a named workload with the pool.
type SubsystemConfig struct {
	Name            string
	MinWorkers      int
	MaxWorkers      int
	DefaultPriority Priority
	Kind            string
}

type subsystemState struct {
	cfg     SubsystemConfig
	workers int // per-subsystem worker count; nothing in the pool updates it, so it stays zero
}

// Config configures a Pool at construction time.
type Config struct {
	MaxWorkers  int
	IdleTimeout time.Duration
	Logger      *diagnostics.Logger
}

// Pool is a demand-driven, priority-scheduling worker pool.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queues  [numPriorities][]WorkItem
	subsys  map[string]*subsystemState
	workers int // live goroutine count

	globalMax   int
	idleTimeout time.Duration
	logger      *diagnostics.Logger

	stopped   bool
	wg        sync.WaitGroup
	nextID    int
	taskFails int64
}

// New constructs a pool. Workers are spawned on demand, not eagerly; call
// RegisterSubsystem to establish a minimum worker floor.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = diagnostics.Default("threadpool")
	}
	p := &Pool{
		subsys:      make(map[string]*subsystemState),
		globalMax:   cfg.MaxWorkers,
		idleTimeout: cfg.IdleTimeout,
		logger:      cfg.Logger,
	}
	p.cond = sync.NewCond(&p.mu)
	go p.idleTicker()
	return p
}

// idleTicker periodically broadcasts so idle workers blocked in cond.Wait
// re-check whether they've been idle past the timeout. sync.Cond has no
// native wait-with-timeout; this is the simplest correct substitute.
func (p *Pool) idleTicker() {
	ticker := time.NewTicker(p.idleTimeout / 2)
	defer ticker.Stop()
	for range ticker.C {
		p.mu.Lock()
		stopped := p.stopped
		p.mu.Unlock()
		if stopped {
			return
		}
		p.cond.Broadcast()
	}
}

// RegisterSubsystem records (or, if the name already exists, returns) a
// subsystem's configuration. A freshly registered subsystem with Min > 0
// ensures the pool has at least that many additional workers above the
// current aggregate minimum.
func (p *Pool) RegisterSubsystem(cfg SubsystemConfig) SubsystemConfig {
	p.mu.Lock()
	if existing, ok := p.subsys[cfg.Name]; ok {
		p.mu.Unlock()
		return existing.cfg
	}
	p.subsys[cfg.Name] = &subsystemState{cfg: cfg}
	aggregateMin := p.aggregateMinLocked()
	p.mu.Unlock()

	if cfg.MinWorkers > 0 {
		p.ensureWorkers(aggregateMin)
	}
	return cfg
}

func (p *Pool) aggregateMinLocked() int {
	total := 0
	for _, s := range p.subsys {
		total += s.cfg.MinWorkers
	}
	return total
}

// RequestWorkers hints that kind could use desired concurrent workers. It
// spawns workers up to the kind's registered max and the pool's global max,
// and returns the number actually granted (best-effort, may be less than
// desired).
func (p *Pool) RequestWorkers(kind string, desired int) int {
	p.mu.Lock()
	max := p.globalMax
	for _, s := range p.subsys {
		if s.cfg.Kind == kind && s.cfg.MaxWorkers > 0 && s.cfg.MaxWorkers < max {
			max = s.cfg.MaxWorkers
		}
	}
	target := p.workers
	if desired > target {
		target = desired
	}
	if target > max {
		target = max
	}
	toSpawn := target - p.workers
	p.mu.Unlock()

	if toSpawn > 0 {
		p.spawnWorkers(toSpawn, kind)
	}

	p.mu.Lock()
	granted := p.workers
	if granted > desired {
		granted = desired
	}
	p.mu.Unlock()
	return granted
}

func (p *Pool) ensureWorkers(target int) {
	p.mu.Lock()
	if target > p.globalMax {
		target = p.globalMax
	}
	toSpawn := target - p.workers
	p.mu.Unlock()
	if toSpawn > 0 {
		p.spawnWorkers(toSpawn, "")
	}
}

func (p *Pool) spawnWorkers(n int, kind string) {
	for i := 0; i < n; i++ {
		p.mu.Lock()
		if p.stopped || p.workers >= p.globalMax {
			p.mu.Unlock()
			return
		}
		p.workers++
		id := p.nextID
		p.nextID++
		p.mu.Unlock()

		p.wg.Add(1)
		go p.workerLoop(id, kind)
	}
}

// Submit enqueues item under its priority class. Critical items run before
// High before Normal before Low; items at the same priority run FIFO. If
// queue pressure crosses the scale-up threshold, one additional worker is
// spawned, up to the pool's global max; the submitting subsystem's
// MaxWorkers is not checked here.
func (p *Pool) Submit(item WorkItem) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return diagnostics.ErrPoolStopped
	}
	p.queues[item.Priority] = append(p.queues[item.Priority], item)
	queued := p.queuedLocked()
	workers := p.workers
	p.mu.Unlock()
	p.cond.Signal()

	if workers == 0 {
		p.spawnWorkers(1, item.Subsystem)
	} else if float64(queued) > 0.8*float64(workers) {
		p.spawnWorkers(1, item.Subsystem)
	}
	return nil
}

func (p *Pool) queuedLocked() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

// popLocked returns the next work item in priority order, or false if every
// queue is empty. Caller holds p.mu.
func (p *Pool) popLocked() (WorkItem, bool) {
	for pr := Priority(0); pr < numPriorities; pr++ {
		if len(p.queues[pr]) > 0 {
			item := p.queues[pr][0]
			p.queues[pr] = p.queues[pr][1:]
			return item, true
		}
	}
	return WorkItem{}, false
}

func (p *Pool) workerLoop(id int, kind string) {
	defer p.wg.Done()
	wctx := WorkerContext{WorkerID: id, Kind: kind}
	var idleSince time.Time

	for {
		p.mu.Lock()
		item, ok := p.popLocked()
		if !ok {
			if p.stopped {
				p.mu.Unlock()
				return
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
			} else if time.Since(idleSince) > p.idleTimeout && p.workers > p.aggregateMinLocked() {
				p.workers--
				p.mu.Unlock()
				return
			}
			p.cond.Wait()
			p.mu.Unlock()
			continue
		}
		idleSince = time.Time{}
		p.mu.Unlock()

		if err := item.Run(wctx); err != nil {
			p.logger.Error("work item failed", diagnostics.String("subsystem", item.Subsystem), diagnostics.Err(err))
			p.mu.Lock()
			p.taskFails++
			p.mu.Unlock()
		}
	}
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers      int
	Queued       int
	TaskFailures int64
}

// Stats returns a snapshot of current pool activity.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Workers: p.workers, Queued: p.queuedLocked(), TaskFailures: p.taskFails}
}

// Shutdown signals stop, drains remaining queued items (workers finish
// in-flight tasks, then exit once queues are empty), and joins every worker
// goroutine, bounded by ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
