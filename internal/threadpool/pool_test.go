package threadpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
)

func TestPool_SubmitRunsWork(t *testing.T) {
	p := New(Config{MaxWorkers: 4, IdleTimeout: 50 * time.Millisecond})
	defer p.Shutdown(context.Background())

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	err := p.Submit(WorkItem{
		Priority:  Normal,
		Subsystem: "test",
		Run: func(WorkerContext) error {
			defer wg.Done()
			ran.Store(true)
			return nil
		},
	})
	require.NoError(t, err)

	wg.Wait()
	assert.True(t, ran.Load())
}

func TestPool_PriorityOrderingWithinSharedWorker(t *testing.T) {
	p := New(Config{MaxWorkers: 1, IdleTimeout: time.Second})
	defer p.Shutdown(context.Background())

	// Block the single worker until every item is enqueued, so the next pop
	// is guaranteed to choose among all of them by priority.
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	require.NoError(t, p.Submit(WorkItem{
		Priority: Critical, Subsystem: "gate",
		Run: func(WorkerContext) error {
			started.Done()
			<-release
			return nil
		},
	}))
	started.Wait()

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(3)
	submit := func(pr Priority, name string) {
		require.NoError(t, p.Submit(WorkItem{
			Priority: pr, Subsystem: "ordered",
			Run: func(WorkerContext) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				wg.Done()
				return nil
			},
		}))
	}
	submit(Low, "low")
	submit(Critical, "critical")
	submit(Normal, "normal")

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"critical", "normal", "low"}, order)
}

func TestPool_RegisterSubsystemIsIdempotent(t *testing.T) {
	p := New(Config{MaxWorkers: 4, IdleTimeout: time.Second})
	defer p.Shutdown(context.Background())

	cfg := SubsystemConfig{Name: "render", MinWorkers: 1, MaxWorkers: 2, Kind: "render"}
	got1 := p.RegisterSubsystem(cfg)
	assert.Equal(t, cfg, got1)

	different := SubsystemConfig{Name: "render", MinWorkers: 99, MaxWorkers: 99, Kind: "ignored"}
	got2 := p.RegisterSubsystem(different)
	assert.Equal(t, cfg, got2, "second registration of an existing name returns the original config, not the new one")
}

func TestPool_SubmitAfterShutdownFails(t *testing.T) {
	p := New(Config{MaxWorkers: 2, IdleTimeout: time.Second})
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(WorkItem{Priority: Normal, Run: func(WorkerContext) error { return nil }})
	assert.ErrorIs(t, err, diagnostics.ErrPoolStopped)
}

func TestPool_ShutdownDrainsQueuedWork(t *testing.T) {
	p := New(Config{MaxWorkers: 2, IdleTimeout: time.Second})

	const n = 20
	var completed atomic.Int64
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(WorkItem{
			Priority: Normal,
			Run: func(WorkerContext) error {
				completed.Add(1)
				return nil
			},
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	assert.EqualValues(t, n, completed.Load())
}

func TestPool_TaskFailuresAreCounted(t *testing.T) {
	p := New(Config{MaxWorkers: 2, IdleTimeout: time.Second})
	defer p.Shutdown(context.Background())

	boom := errors.New("boom")
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(WorkItem{
		Priority: Normal,
		Run: func(WorkerContext) error {
			defer wg.Done()
			return boom
		},
	}))
	wg.Wait()

	require.Eventually(t, func() bool {
		return p.Stats().TaskFailures == 1
	}, time.Second, time.Millisecond)
}

func TestPool_RequestWorkersRespectsSubsystemMax(t *testing.T) {
	p := New(Config{MaxWorkers: 8, IdleTimeout: time.Second})
	defer p.Shutdown(context.Background())

	p.RegisterSubsystem(SubsystemConfig{Name: "scripting", MinWorkers: 0, MaxWorkers: 2, Kind: "scripting"})

	granted := p.RequestWorkers("scripting", 5)
	assert.LessOrEqual(t, granted, 2)
	assert.LessOrEqual(t, p.Stats().Workers, 2)
}
