package ecs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kinubi/zephyr-engine/internal/threadpool"
)

// TestScheduler_ChunkedVelocityIntegration is seed scenario S1: 10,000
// entities with Velocity and Transform, one frame at dt=0.016, chunk size
// 256. Stage "simulation" must report last_job_count=40, every translation
// must have advanced by velocity*dt, and every world matrix's dirty flag
// must be clear afterward.
func TestScheduler_ChunkedVelocityIntegration(t *testing.T) {
	pool := threadpool.New(threadpool.Config{MaxWorkers: 8, IdleTimeout: time.Second})
	defer pool.Shutdown(context.Background())

	world := NewWorld()
	velocities := RegisterComponent[Velocity](world, "Velocity", nil)
	transforms := RegisterComponent[Transform](world, "Transform", nil)

	const n = 10000
	for i := 0; i < n; i++ {
		id := world.CreateEntity()
		velocities.Put(id, Velocity{X: 1, Y: 2, Z: 3})
		transforms.Put(id, NewTransform())
	}

	sc := NewScheduler(pool, world)
	simStage := sc.AddStage("simulation")
	sc.AddSystem(simStage, NewVelocityIntegrationSystem(velocities, transforms, DefaultChunkSize))

	world.BeginFrame(1, 0.016)
	require.NoError(t, sc.Run())

	stage, ok := sc.Stage("simulation")
	require.True(t, ok)
	assert.Equal(t, 40, stage.LastJobCount())

	g := transforms.AcquireRead()
	defer g.Release()
	assert.Equal(t, n, g.Len())
	for i := 0; i < g.Len(); i++ {
		tr := g.ItemAt(i)
		assert.InDelta(t, float32(0.016), tr.Translation.X, 1e-6)
		assert.InDelta(t, float32(0.032), tr.Translation.Y, 1e-6)
		assert.InDelta(t, float32(0.048), tr.Translation.Z, 1e-6)
		assert.False(t, tr.Dirty)
	}
}

func TestWorld_DestroyEntityInvokesDestructorOnce(t *testing.T) {
	world := NewWorld()
	var destroyed int
	positions := RegisterComponent[Vec3](world, "Position", func(*Vec3) { destroyed++ })

	id := world.CreateEntity()
	positions.Put(id, Vec3{X: 1})

	world.DestroyEntity(id)
	assert.Equal(t, 1, destroyed)
	assert.False(t, positions.Has(id))

	// Destroying an already-destroyed (stale-generation) handle is a no-op.
	world.DestroyEntity(id)
	assert.Equal(t, 1, destroyed)
}

func TestWorld_CreateEntityReusesFreedSlotWithBumpedGeneration(t *testing.T) {
	world := NewWorld()
	id1 := world.CreateEntity()
	world.DestroyEntity(id1)
	id2 := world.CreateEntity()

	assert.Equal(t, id1.Index, id2.Index)
	assert.Greater(t, id2.Generation, id1.Generation)
	assert.False(t, world.IsAlive(id1))
	assert.True(t, world.IsAlive(id2))
}

func TestSparseSet_RemoveSwapErasePreservesOtherEntities(t *testing.T) {
	s := NewSparseSet[int](nil)
	a := EntityID{Index: 0}
	b := EntityID{Index: 1}
	c := EntityID{Index: 2}

	s.Put(a, 1)
	s.Put(b, 2)
	s.Put(c, 3)

	s.Remove(a)

	assert.False(t, s.Has(a))
	require.True(t, s.Has(b))
	require.True(t, s.Has(c))

	g := s.AcquireRead()
	defer g.Release()
	vb, _ := g.Get(b)
	vc, _ := g.Get(c)
	assert.Equal(t, 2, vb)
	assert.Equal(t, 3, vc)
}

func TestPropagateTransforms_ParentBeforeChild(t *testing.T) {
	transforms := NewSparseSet[Transform](nil)
	parent := EntityID{Index: 0}
	child := EntityID{Index: 1}

	pt := NewTransform()
	pt.Translation = Vec3{X: 10}
	transforms.Put(parent, pt)

	ct := NewTransform()
	ct.Translation = Vec3{X: 1}
	ct.Parent = &parent
	transforms.Put(child, ct)

	g := transforms.AcquireWrite()
	PropagateTransforms(g)
	g.Release()

	rg := transforms.AcquireRead()
	defer rg.Release()
	childWorld, ok := rg.Get(child)
	require.True(t, ok)
	assert.False(t, childWorld.Dirty)
	assert.InDelta(t, float32(11), childWorld.World[12], 1e-6)
}

func TestForEach2_JoinsOnlyEntitiesPresentInBothStorages(t *testing.T) {
	velocities := NewSparseSet[Velocity](nil)
	names := NewSparseSet[string](nil)

	both := EntityID{Index: 0}
	velocityOnly := EntityID{Index: 1}
	nameOnly := EntityID{Index: 2}

	velocities.Put(both, Velocity{X: 1})
	names.Put(both, "both")
	velocities.Put(velocityOnly, Velocity{X: 2})
	names.Put(nameOnly, "name-only")

	var matched []EntityID
	ForEach2(velocities, names, func(id EntityID, v *Velocity, n *string) {
		matched = append(matched, id)
		assert.Equal(t, "both", *n)
		assert.Equal(t, float32(1), v.X)
	})

	require.Len(t, matched, 1)
	assert.Equal(t, both, matched[0])
}

func TestPropagateTransforms_DetectsCycleWithoutHanging(t *testing.T) {
	transforms := NewSparseSet[Transform](nil)
	a := EntityID{Index: 0}
	b := EntityID{Index: 1}

	ta := NewTransform()
	ta.Parent = &b
	transforms.Put(a, ta)

	tb := NewTransform()
	tb.Parent = &a
	transforms.Put(b, tb)

	done := make(chan struct{})
	go func() {
		g := transforms.AcquireWrite()
		PropagateTransforms(g)
		g.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("PropagateTransforms did not return: cyclic hierarchy was not bounded")
	}
}
