package ecs

import "github.com/Kinubi/zephyr-engine/internal/handoff"

// ExtractedInstance is one render-relevant snapshot written by an extraction
// system in the render_extraction stage.
type ExtractedInstance struct {
	Entity EntityID
	World  Mat4
}

// ExtractionBuffers is the world-owned contiguous array that extraction
// systems write and the render thread reads after a flip, per §4.C.1's
// double-buffer handoff.
type ExtractionBuffers struct {
	instances *handoff.DoubleBuffer[ExtractedInstance]
}

// NewExtractionBuffers creates empty extraction buffers.
func NewExtractionBuffers() *ExtractionBuffers {
	return &ExtractionBuffers{instances: handoff.NewDoubleBuffer[ExtractedInstance]()}
}

// Reset is called once per frame by World.BeginFrame. The double buffer
// manages its own write-side lifecycle across Flip/Drain, so this is a no-op
// kept for symmetry with the spec's "clears extraction buffers" wording.
func (e *ExtractionBuffers) Reset() {}

// Write appends one extracted instance. Safe for concurrent callers from
// chunked extraction jobs.
func (e *ExtractionBuffers) Write(inst ExtractedInstance) { e.instances.Append(inst) }

// Flip publishes everything written so far to the render thread. Must be
// called once per frame, after the render_extraction stage completes and
// before the next stage's jobs begin appending.
func (e *ExtractionBuffers) Flip() { e.instances.Flip() }

// Drain takes ownership of the current read side; intended for the render
// thread, not for engine-internal callers.
func (e *ExtractionBuffers) Drain() []ExtractedInstance { return e.instances.Drain() }
