package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kinubi/zephyr-engine/internal/accel"
	"github.com/Kinubi/zephyr-engine/internal/config"
	"github.com/Kinubi/zephyr-engine/internal/ecs"
)

func testConfig() config.Runtime {
	cfg := config.Default()
	cfg.MaxWorkers = 4
	cfg.IdleTimeout = time.Second
	cfg.ScriptingWorkers = 2
	cfg.BLASWorkers = 2
	return cfg
}

func stubAccelFuncs() (accel.BuildBLASFunc, accel.BuildTLASFunc) {
	buildBLAS := func(id accel.GeometryID) (*accel.BLASRecord, error) {
		return &accel.BLASRecord{DeviceAddress: uint64(id)}, nil
	}
	buildTLAS := func(resolved map[accel.GeometryID]*accel.BLASRecord) (*accel.TLASRecord, error) {
		var ids []accel.GeometryID
		for id := range resolved {
			ids = append(ids, id)
		}
		return &accel.TLASRecord{ReferencedBLAS: ids}, nil
	}
	return buildBLAS, buildTLAS
}

func TestRuntime_OneFrameEndToEnd(t *testing.T) {
	buildBLAS, buildTLAS := stubAccelFuncs()
	rt := New(testConfig(), buildBLAS, buildTLAS)
	defer rt.Shutdown(context.Background())

	velocities := ecs.RegisterComponent[ecs.Velocity](rt.World(), "Velocity", nil)
	transforms := ecs.RegisterComponent[ecs.Transform](rt.World(), "Transform", nil)

	stage := rt.Scheduler().AddStage("simulation")
	rt.Scheduler().AddSystem(stage, ecs.NewVelocityIntegrationSystem(velocities, transforms, ecs.DefaultChunkSize))

	const n = 600
	for i := 0; i < n; i++ {
		id := rt.World().CreateEntity()
		velocities.Put(id, ecs.Velocity{X: 1})
		transforms.Put(id, ecs.NewTransform())
	}

	rt.BeginFrame(0.016)
	require.NoError(t, rt.RunStages())
	rt.ExtractAndPublish()

	simStage, ok := rt.Scheduler().Stage("simulation")
	require.True(t, ok)
	assert.Equal(t, 3, simStage.LastJobCount()) // 600 entities / chunk 256 -> 3 chunks

	done := make(chan *accel.TLASRecord, 1)
	require.NoError(t, rt.RequestTLASRebuild([]accel.GeometryID{1, 2, 3}, func(r *accel.TLASRecord, err error) {
		require.NoError(t, err)
		done <- r
	}))

	select {
	case r := <-done:
		assert.Len(t, r.ReferencedBLAS, 3)
		assert.Equal(t, r, rt.TLAS().Current())
	case <-time.After(2 * time.Second):
		t.Fatal("TLAS rebuild never completed")
	}
}

func TestRuntime_SecondaryCmdBufferHandoff(t *testing.T) {
	buildBLAS, buildTLAS := stubAccelFuncs()
	rt := New(testConfig(), buildBLAS, buildTLAS)
	defer rt.Shutdown(context.Background())

	rt.EndWorkerSecondaryCmdBuffer("cmdbuf-1")
	rt.EndWorkerSecondaryCmdBuffer("cmdbuf-2")
	rt.FlipPendingCmdBuffers()

	pending := rt.DrainPendingCmdBuffers()
	assert.ElementsMatch(t, []SecondaryCmdBuffer{"cmdbuf-1", "cmdbuf-2"}, pending)

	for _, h := range pending {
		rt.MarkSubmitted(h)
	}
	rt.FlipSubmittedCmdBuffers()
	assert.ElementsMatch(t, []SecondaryCmdBuffer{"cmdbuf-1", "cmdbuf-2"}, rt.DrainSubmittedCmdBuffers())
}

func TestRuntime_CVarDispatchTick(t *testing.T) {
	buildBLAS, buildTLAS := stubAccelFuncs()
	rt := New(testConfig(), buildBLAS, buildTLAS)
	defer rt.Shutdown(context.Background())

	var gotOld, gotNew string
	rt.Dispatcher().RegisterCVarHandler("OnFovChanged", func(name, oldValue, newValue string) {
		gotOld, gotNew = oldValue, newValue
	})
	rt.CVars().Register("fov", "60", "OnFovChanged")
	rt.CVars().Set("fov", "90")

	rt.Dispatcher().Tick(context.Background())

	assert.Equal(t, "60", gotOld)
	assert.Equal(t, "90", gotNew)
}
