package handoff

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDoubleBuffer_FourProducersTwoFlips is seed scenario S2: four producers
// each push 1,000 handles, the consumer flips once, drains all 4,000, then
// flips again and drains the (empty) remainder.
func TestDoubleBuffer_FourProducersTwoFlips(t *testing.T) {
	db := NewDoubleBuffer[string]()

	const producers = 4
	const perProducer = 1000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				db.Append(fmt.Sprintf("p%d-h%d", p, i))
			}
		}(p)
	}
	wg.Wait()

	db.Flip()
	first := db.Drain()
	assert.Len(t, first, producers*perProducer)

	seen := make(map[string]bool, len(first))
	for _, h := range first {
		require.False(t, seen[h], "handle observed twice: %s", h)
		seen[h] = true
	}
	assert.Len(t, seen, producers*perProducer)

	db.Flip()
	second := db.Drain()
	assert.Empty(t, second, "nothing appended after the first flip")
}

func TestDoubleBuffer_ItemsAfterFlipNotInFirstDrain(t *testing.T) {
	db := NewDoubleBuffer[int]()
	db.Append(1)
	db.Flip()
	db.Append(2) // lands on the new write side, after the flip

	first := db.Drain()
	assert.Equal(t, []int{1}, first)

	db.Flip()
	second := db.Drain()
	assert.Equal(t, []int{2}, second)
}

func TestSlotArray_FilledReachesExpectedExactlyOnce(t *testing.T) {
	const expected = 3
	sa := NewSlotArray[int](expected)

	var wg sync.WaitGroup
	for i := 0; i < expected; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := i * 10
			sa.Set(uint32(i), &v)
		}(i)
	}
	wg.Wait()

	require.True(t, sa.Ready())
	assert.EqualValues(t, expected, sa.Filled())

	for i := 0; i < expected; i++ {
		got := sa.Get(uint32(i))
		require.NotNil(t, got)
		assert.Equal(t, i*10, *got)
	}
}

func TestSlotArray_PartiallyFilledIsNotReady(t *testing.T) {
	sa := NewSlotArray[string](3)
	v := "a"
	sa.Set(0, &v)
	assert.False(t, sa.Ready())
	assert.Nil(t, sa.Get(1))
}

func TestRetirementList_DrainSeesAllPushes(t *testing.T) {
	rl := NewRetirementList[int]()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rl.Push(i)
		}(i)
	}
	wg.Wait()

	drained := rl.Drain()
	assert.Len(t, drained, 100)

	sum := 0
	for _, v := range drained {
		sum += v
	}
	assert.Equal(t, (99*100)/2, sum)

	assert.Empty(t, rl.Drain(), "second drain of an untouched list is empty")
}
