package scripting

import (
	"context"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
	"github.com/Kinubi/zephyr-engine/internal/ecs"
	"github.com/Kinubi/zephyr-engine/internal/threadpool"
)

// ExecuteResult is the outcome of running one script, per §8's invariant 8:
// Message is either empty or a buffer owned by the caller (here, simply a
// Go string, so ownership is GC's — the "owning allocator" language in the
// spec maps to "the action queue's payload", which Runner copies Message
// into before it's released back to script code).
type ExecuteResult struct {
	Success bool
	Message string
}

// ScriptJob is one unit of script work, per §3.5.
type ScriptJob struct {
	Bytes      []byte
	Owner      *ecs.EntityID
	UserCtx    interface{}
	OnComplete func(ExecuteResult)
}

// ExecuteFunc runs scriptBytes against one interpreter state and returns its
// raw output. Injected rather than hardcoded so Runner is agnostic to what
// kind of interpreter state S actually is, per §4.E.1's "opaque per-worker
// context".
type ExecuteFunc[S any] func(state S, scriptBytes, input []byte) ([]byte, error)

// Runner is the script execution front-end of §4.E.2: EnqueueScript submits
// a normal-priority work item of kind "script" to the shared thread pool;
// the worker acquires a state, executes, pushes a script-result action, and
// releases the state.
type Runner[S any] struct {
	pool          *threadpool.Pool
	states        *StatePool[S]
	actions       *ActionQueue
	execute       ExecuteFunc[S]
	subsystemName string
	logger        *diagnostics.Logger
}

// NewRunner wires a Runner to pool, states and actions, and registers the
// "scripting" subsystem with pool (idempotent per §4.B).
func NewRunner[S any](pool *threadpool.Pool, states *StatePool[S], actions *ActionQueue, execute ExecuteFunc[S], minWorkers, maxWorkers int) *Runner[S] {
	pool.RegisterSubsystem(threadpool.SubsystemConfig{
		Name:            "scripting",
		MinWorkers:      minWorkers,
		MaxWorkers:      maxWorkers,
		DefaultPriority: threadpool.Normal,
		Kind:            "script",
	})
	return &Runner[S]{
		pool:          pool,
		states:        states,
		actions:       actions,
		execute:       execute,
		subsystemName: "scripting",
		logger:        diagnostics.Default("scripting.runner"),
	}
}

// NewWasmerRunner is the concrete wiring used by the rest of the engine: a
// Runner whose interpreter state is a pooled wasmer.Store wrapper.
func NewWasmerRunner(pool *threadpool.Pool, states *StatePool[*WasmerState], actions *ActionQueue, minWorkers, maxWorkers int) *Runner[*WasmerState] {
	return NewRunner(pool, states, actions, func(s *WasmerState, scriptBytes, input []byte) ([]byte, error) {
		return s.Execute(scriptBytes, input)
	}, minWorkers, maxWorkers)
}

// EnqueueScript submits job to the thread pool at normal priority and
// returns immediately; the script itself runs asynchronously on a worker,
// per §4.E.2.
func (r *Runner[S]) EnqueueScript(job ScriptJob) error {
	return r.pool.Submit(threadpool.WorkItem{
		Priority:  threadpool.Normal,
		Subsystem: r.subsystemName,
		Run: func(threadpool.WorkerContext) error {
			result := r.runJob(context.Background(), job)
			if job.OnComplete != nil {
				// Runs on the worker thread; per §4.E.2 it must not mutate
				// engine state directly.
				job.OnComplete(result)
			}
			if !result.Success {
				return diagnostics.ErrJobFailed
			}
			return nil
		},
	})
}

// runJob acquires a state, runs job.Bytes, pushes a script-result action
// carrying the result message, and releases the state. It never returns an
// error itself — script failure is reported via ExecuteResult.Success and
// the pushed action, per §7's "failing script produces a diagnostic in the
// action stream rather than aborting".
func (r *Runner[S]) runJob(ctx context.Context, job ScriptJob) ExecuteResult {
	state, err := r.states.Acquire(ctx)
	if err != nil {
		return ExecuteResult{Success: false, Message: err.Error()}
	}
	defer r.states.Release(state)

	var input []byte
	if job.UserCtx != nil {
		if b, ok := job.UserCtx.([]byte); ok {
			input = b
		}
	}

	out, runErr := r.execute(state, job.Bytes, input)
	result := ExecuteResult{Success: runErr == nil, Message: string(out)}
	if runErr != nil {
		result.Message = runErr.Error()
	}

	if pushErr := r.actions.Push(Action{Kind: ScriptResult, Payload: []byte(result.Message)}); pushErr != nil {
		r.logger.Warn("script-result action dropped", diagnostics.Err(pushErr))
	}
	return result
}

// ExecuteSync runs a short buffer on the calling (main) thread without going
// through the thread pool or action queue, per §4.E.5. It must only be used
// for scripts known to complete in sub-millisecond time; anything that can
// block or do I/O belongs on EnqueueScript.
func (r *Runner[S]) ExecuteSync(ctx context.Context, scriptBytes, input []byte) (ExecuteResult, error) {
	state, err := r.states.Acquire(ctx)
	if err != nil {
		return ExecuteResult{}, err
	}
	defer r.states.Release(state)

	out, runErr := r.execute(state, scriptBytes, input)
	if runErr != nil {
		return ExecuteResult{Success: false, Message: runErr.Error()}, nil
	}
	return ExecuteResult{Success: true, Message: string(out)}, nil
}
