package dagexec

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// WorkerPool is the scoped task set named in the source's re-architecture
// notes: a bounded pool whose lifetime is tied to a single preparer's
// Finish call, always drained or cancelled on every exit path. It
// replaces the source's ad-hoc thread pool plus a bare
// threadPool.shutdown() that could leave tasks running past a failed
// preparation.
type WorkerPool struct {
	runID   uuid.UUID
	sem     chan struct{}
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	errs    []error
	closed  bool
}

// NewWorkerPool creates a pool bounded to n concurrent tasks, scoped to
// parent's lifetime. n is clamped to at least 1.
func NewWorkerPool(parent context.Context, n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &WorkerPool{
		runID:  uuid.New(),
		sem:    make(chan struct{}, n),
		cancel: cancel,
		ctx:    ctx,
	}
}

// RunID identifies this pool's invocation for log correlation. It has
// no bearing on fold assignment, group identity, or any other
// deterministic computation in the module.
func (p *WorkerPool) RunID() uuid.UUID { return p.runID }

// Submit schedules fn to run, blocking only if the pool is already at
// capacity. fn observes cancellation via the context it receives.
func (p *WorkerPool) Submit(fn func(ctx context.Context) error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.wg.Add(1)
	p.sem <- struct{}{}
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()

		if err := fn(p.ctx); err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	}()
}

// Shutdown waits for all submitted tasks to complete and returns every
// error observed, in the order the failing tasks finished. It does not cancel outstanding
// tasks; call ShutdownNow first on an error path.
func (p *WorkerPool) Shutdown() []error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.errs
}

// ShutdownNow cancels the pool's context so outstanding tasks observe
// cancellation at their next suspension point, then waits for them to
// exit. This is the resolution to the source's Open Question: the
// error path must use shutdownNow(), not a passive shutdown().
func (p *WorkerPool) ShutdownNow() []error {
	p.cancel()
	return p.Shutdown()
}
