// Package config holds the single configuration record the engine core
// consumes, per §6.3: thread-pool sizing, per-subsystem worker budgets,
// action-queue capacity, and interpreter-state pool sizing. CLI/file parsing
// is out of scope for the core; callers build a Runtime value however they
// like and pass it to internal/engine.
package config

import "time"

// SubsystemBudget is one entry of the thread pool's per-subsystem worker
// budget table.
type SubsystemBudget struct {
	Name       string
	MinWorkers int
	MaxWorkers int
}

// Runtime is the configuration record consumed by internal/engine.Runtime.
type Runtime struct {
	// ThreadPool sizing.
	MaxWorkers  int
	IdleTimeout time.Duration
	Subsystems  []SubsystemBudget

	// ECS chunk size for chunked dispatch (§4.D.4).
	ECSChunkSize int

	// Scripting.
	ScriptingWorkers    int
	ActionQueueCapacity int

	// BLAS/TLAS.
	BLASWorkers int
}

// Default returns a Runtime config with the sizes used by the spec's seed
// scenarios and sensible defaults elsewhere.
func Default() Runtime {
	return Runtime{
		MaxWorkers:  8,
		IdleTimeout: 5 * time.Second,
		Subsystems: []SubsystemBudget{
			{Name: "ecs", MinWorkers: 1, MaxWorkers: 8},
			{Name: "scripting", MinWorkers: 1, MaxWorkers: 4},
			{Name: "accel", MinWorkers: 1, MaxWorkers: 4},
		},
		ECSChunkSize:        256,
		ScriptingWorkers:    4,
		ActionQueueCapacity: 256,
		BLASWorkers:         4,
	}
}
