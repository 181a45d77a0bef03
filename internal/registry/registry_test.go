package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateGetDestroy(t *testing.T) {
	r := New[string]()

	h := r.Create("alpha")
	v, ok := r.Get(h)
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	r.Destroy(h)

	_, ok = r.Get(h)
	assert.False(t, ok)
}

func TestRegistry_GenerationalUseAfterFree(t *testing.T) {
	r := New[int]()

	h1 := r.Create(42)
	r.Destroy(h1)

	_, ok := r.Get(h1)
	require.False(t, ok)

	h2 := r.Create(7)
	assert.Equal(t, h1.Index, h2.Index, "freed slot should be reused")
	assert.Greater(t, h2.Generation, h1.Generation, "generation must be strictly monotonic")

	_, ok = r.Get(h1)
	assert.False(t, ok, "stale handle must never resolve after slot reuse")

	v2, ok := r.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 7, v2)
}

func TestRegistry_AddRefRemoveRefRoundTrip(t *testing.T) {
	r := New[int]()
	h := r.Create(1)

	require.True(t, r.AddRef(h))
	require.True(t, r.RemoveRef(h))

	v, ok := r.Get(h)
	require.True(t, ok, "refcount should be back to 1, handle still live")
	assert.Equal(t, 1, v)
}

func TestRegistry_DestroyToleratesStaleHandle(t *testing.T) {
	r := New[int]()
	h := r.Create(1)
	r.Destroy(h)

	assert.NotPanics(t, func() {
		r.Destroy(h)
	})
}

func TestRegistry_StatsTrackPeakActive(t *testing.T) {
	r := New[int]()
	var handles []Handle
	for i := 0; i < 5; i++ {
		handles = append(handles, r.Create(i))
	}
	for _, h := range handles[:3] {
		r.Destroy(h)
	}

	stats := r.Stats()
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 5, stats.PeakActive)
	assert.EqualValues(t, 5, stats.TotalRefs)
}

func TestRegistry_ConcurrentAddRemoveRef(t *testing.T) {
	r := New[int]()
	h := r.Create(100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddRef(h)
			r.RemoveRef(h)
		}()
	}
	wg.Wait()

	v, ok := r.Get(h)
	require.True(t, ok)
	assert.Equal(t, 100, v)
}
