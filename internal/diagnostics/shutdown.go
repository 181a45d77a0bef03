package diagnostics

import (
	"context"
	"sync"
	"time"
)

// Shutdown coordinates an orderly, timed-out shutdown across independently
// owned components (thread pool, state pool, action queue, ...). Components
// register a stop function; Run executes them in reverse registration order
// (LIFO, so the last-started dependency stops first) and bounds the whole
// sequence with a timeout.
type Shutdown struct {
	mu      sync.Mutex
	fns     []func() error
	timeout time.Duration
	logger  *Logger
}

// NewShutdown creates a shutdown coordinator bounded by timeout.
func NewShutdown(timeout time.Duration, logger *Logger) *Shutdown {
	if logger == nil {
		logger = Default("shutdown")
	}
	return &Shutdown{timeout: timeout, logger: logger}
}

// Register adds a stop function to the sequence.
func (s *Shutdown) Register(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
}

// Run executes the registered stop functions one after another in reverse
// registration order, and waits for the sequence to finish or for the
// timeout, whichever comes first.
func (s *Shutdown) Run(ctx context.Context) error {
	s.mu.Lock()
	fns := append([]func() error(nil), s.fns...)
	s.mu.Unlock()

	s.logger.Info("shutdown starting", Int("components", len(fns)))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var firstErr error

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i](); err != nil {
				s.logger.Error("component shutdown failed", Int("index", i), Err(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}()

	select {
	case <-done:
		s.logger.Info("shutdown complete")
		return firstErr
	case <-shutdownCtx.Done():
		s.logger.Warn("shutdown timed out")
		return shutdownCtx.Err()
	}
}
