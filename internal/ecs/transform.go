package ecs

import "github.com/Kinubi/zephyr-engine/internal/diagnostics"

// Vec3 is a plain 3-component vector, used for translation, scale, and the
// velocity component.
type Vec3 struct{ X, Y, Z float32 }

// Quat is a plain quaternion rotation.
type Quat struct{ X, Y, Z, W float32 }

// Mat4 is a column-major 4x4 matrix.
type Mat4 [16]float32

// Identity4 is the identity matrix.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// MulMat4 returns a*b (column-major).
func MulMat4(a, b Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// Velocity is the canonical component driving the velocity-integration
// scenario of §8's S1.
type Velocity struct{ X, Y, Z float32 }

// Transform is the canonical hierarchical transform component: local
// translation/rotation/scale, an optional parent, a cached world matrix, and
// a dirty flag cleared once the world matrix has been recomputed.
type Transform struct {
	Translation Vec3
	Rotation    Quat
	Scale       Vec3
	Parent      *EntityID
	World       Mat4
	Dirty       bool
}

// NewTransform returns an identity transform with no parent, already marked
// dirty so its first propagation computes a world matrix.
func NewTransform() Transform {
	return Transform{
		Scale: Vec3{X: 1, Y: 1, Z: 1},
		World: Identity4(),
		Dirty: true,
	}
}

func localMatrix(t *Transform) Mat4 {
	m := Identity4()
	m[12], m[13], m[14] = t.Translation.X, t.Translation.Y, t.Translation.Z
	m[0] *= t.Scale.X
	m[5] *= t.Scale.Y
	m[10] *= t.Scale.Z
	return m
}

// maxHierarchyIterations bounds the parent-first propagation pass; a
// hierarchy deeper than this is treated as a cycle, per §9's
// "implementation must detect a cycle as a run-level iteration bound"
// requirement.
const maxHierarchyIterations = 4096

// PropagateTransforms runs pass 2 of §4.D.5's hierarchical transform system:
// for entities whose parent, if any, is already resolved this run, multiply
// parent-world by local-matrix into world and clear dirty. It iterates until
// no dirty entry makes progress; an entry still unresolved after
// maxHierarchyIterations passes is a cycle and is isolated (left dirty,
// skipped, reported) rather than looped on forever.
func PropagateTransforms(g *WriteGuard[Transform]) {
	n := g.Len()
	resolved := make(map[uint32]bool, n)
	for i := 0; i < n; i++ {
		t := g.ItemAtPtr(i)
		if !t.Dirty {
			resolved[g.EntityAt(i).Index] = true
		}
	}

	pending := n
	for iter := 0; pending > 0 && iter < maxHierarchyIterations; iter++ {
		progressed := false
		for i := 0; i < n; i++ {
			id := g.EntityAt(i)
			t := g.ItemAtPtr(i)
			if !t.Dirty {
				continue
			}
			if t.Parent == nil {
				t.World = localMatrix(t)
				t.Dirty = false
				resolved[id.Index] = true
				progressed = true
				pending--
				continue
			}
			if resolved[t.Parent.Index] {
				parentWorld, ok := parentWorldOf(g, *t.Parent)
				if !ok {
					// Parent has no transform of its own (or was removed);
					// treat as root.
					t.World = localMatrix(t)
				} else {
					t.World = MulMat4(parentWorld, localMatrix(t))
				}
				t.Dirty = false
				resolved[id.Index] = true
				progressed = true
				pending--
			}
		}
		if !progressed {
			break
		}
	}

	if pending > 0 {
		for i := 0; i < n; i++ {
			t := g.ItemAtPtr(i)
			if t.Dirty {
				diagnostics.ReportMisuse("transform-hierarchy-cycle", diagnostics.ErrCycleDetected,
					diagnostics.Uint32("entity_index", g.EntityAt(i).Index))
			}
		}
	}
}

func parentWorldOf(g *WriteGuard[Transform], parent EntityID) (Mat4, bool) {
	if parent.Index >= uint32(len(g.s.sparse)) {
		return Mat4{}, false
	}
	slot := g.s.sparse[parent.Index]
	if slot == sentinel {
		return Mat4{}, false
	}
	return g.s.dense[slot].World, true
}

// NewVelocityIntegrationSystem builds the canonical system of §4.D.5/S1: it
// advances each entity's translation by velocity*dt, marks it dirty, and
// (once every chunk has completed) runs the parent-first world-matrix
// propagation pass over the whole storage — all counted as the chunked jobs
// of this single system, so propagation itself spawns no additional
// thread-pool work.
func NewVelocityIntegrationSystem(velocities *SparseSet[Velocity], transforms *SparseSet[Transform], chunkSize int) System {
	return System{
		Name: "transform_integrate",
		Prepare: func(w *World, b *JobBuilder) {
			vg := velocities.AcquireRead()
			tg := transforms.AcquireWrite()
			dt := float32(w.DeltaTime())
			n := tg.Len()

			release := func() {
				PropagateTransforms(tg)
				tg.Release()
				vg.Release()
			}

			SpawnChunked(b, n, chunkSize, func(start, end int) {
				for i := start; i < end; i++ {
					id := tg.EntityAt(i)
					v, ok := vg.Get(id)
					if !ok {
						continue
					}
					t := tg.ItemAtPtr(i)
					t.Translation.X += dt * v.X
					t.Translation.Y += dt * v.Y
					t.Translation.Z += dt * v.Z
					t.Dirty = true
				}
			}, release)
		},
	}
}
