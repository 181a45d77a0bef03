// Command zephyrd demonstrates the concurrent runtime core end-to-end for
// one frame: entity creation, a chunked ECS stage, an acceleration-structure
// rebuild, a script enqueue, and snapshot extraction — mirroring the
// teacher's cmd/inos-node/main.go demonstration-style main rather than a
// long-running CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Kinubi/zephyr-engine/internal/accel"
	"github.com/Kinubi/zephyr-engine/internal/config"
	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
	"github.com/Kinubi/zephyr-engine/internal/ecs"
	"github.com/Kinubi/zephyr-engine/internal/engine"
	"github.com/Kinubi/zephyr-engine/internal/scripting"
)

// buildBLAS and buildTLAS stand in for the out-of-scope renderer's actual
// GPU acceleration-structure build; the core only needs something that
// produces a device address per §1/§4.F.
func buildBLAS(id accel.GeometryID) (*accel.BLASRecord, error) {
	return &accel.BLASRecord{DeviceAddress: 0x1000 + uint64(id)}, nil
}

func buildTLAS(resolved map[accel.GeometryID]*accel.BLASRecord) (*accel.TLASRecord, error) {
	ids := make([]accel.GeometryID, 0, len(resolved))
	for id := range resolved {
		ids = append(ids, id)
	}
	return &accel.TLASRecord{DeviceAddress: 0xFACE, ReferencedBLAS: ids}, nil
}

func main() {
	logger := diagnostics.Default("zephyrd")
	logger.Info("zephyr engine runtime core starting")

	cfg := config.Default()
	rt := engine.New(cfg, buildBLAS, buildTLAS)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	velocities := ecs.RegisterComponent[ecs.Velocity](rt.World(), "Velocity", nil)
	transforms := ecs.RegisterComponent[ecs.Transform](rt.World(), "Transform", nil)

	stage := rt.Scheduler().AddStage("simulation")
	rt.Scheduler().AddSystem(stage, ecs.NewVelocityIntegrationSystem(velocities, transforms, cfg.ECSChunkSize))

	const entityCount = 10000
	for i := 0; i < entityCount; i++ {
		id := rt.World().CreateEntity()
		velocities.Put(id, ecs.Velocity{X: 1, Y: 0, Z: 0})
		transforms.Put(id, ecs.NewTransform())
	}

	rt.Dispatcher().OnLog(func(success bool, message string) {
		logger.Info("script result", diagnostics.Bool("success", success), diagnostics.String("message", message))
	})

	if err := rt.Scripting().EnqueueScript(scripting.ScriptJob{
		Bytes: []byte("(wasm binary placeholder)"),
	}); err != nil {
		logger.Error("script enqueue failed", diagnostics.Err(err))
	}

	rt.BeginFrame(0.016)

	if err := rt.RunStages(); err != nil {
		logger.Error("stage run failed", diagnostics.Err(err))
		os.Exit(1)
	}
	if s, ok := rt.Scheduler().Stage("simulation"); ok {
		logger.Info("stage complete",
			diagnostics.String("stage", "simulation"),
			diagnostics.Int("jobs", s.LastJobCount()),
			diagnostics.Duration("duration", s.LastDuration()))
	}

	accelDone := make(chan struct{})
	if err := rt.RequestTLASRebuild([]accel.GeometryID{1, 2, 3}, func(r *accel.TLASRecord, err error) {
		defer close(accelDone)
		if err != nil {
			logger.Error("TLAS build failed", diagnostics.Err(err))
			return
		}
		logger.Info("TLAS published", diagnostics.Uint64("generation", r.Generation))
	}); err != nil {
		logger.Error("TLAS submit failed", diagnostics.Err(err))
	}

	select {
	case <-accelDone:
	case <-ctx.Done():
		logger.Warn("TLAS build did not complete before shutdown deadline")
	}

	rt.ExtractAndPublish()
	instances := rt.World().Extraction().Drain()
	logger.Info("extraction snapshot published", diagnostics.Int("instances", len(instances)))

	for i := 0; i < 5; i++ {
		rt.Dispatcher().Tick(ctx)
		time.Sleep(10 * time.Millisecond)
	}

	if err := rt.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", diagnostics.Err(err))
		os.Exit(1)
	}
	fmt.Println("zephyrd: one frame complete, shut down cleanly")
}
