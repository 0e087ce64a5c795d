package worker

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Task is a unit of background work. The context is cancelled only when Stop
// gives up waiting for the queue to drain.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
// Submit never blocks; a full queue is reported to the caller.
type Pool struct {
	name    string
	workers int
	queue   chan Task
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     *pool.Pool

	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a pool with the given number of workers and queue capacity
func NewPool(name string, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:    name,
		workers: workers,
		queue:   make(chan Task, queueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.wg = pool.New().WithMaxGoroutines(p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Go(p.run)
	}
	p.logger.Info("Worker pool started",
		zap.String("pool", p.name),
		zap.Int("workers", p.workers),
		zap.Int("queue_size", cap(p.queue)),
	)
}

func (p *Pool) run() {
	for task := range p.queue {
		var catcher panics.Catcher
		catcher.Try(func() { task(p.ctx) })
		if r := catcher.Recovered(); r != nil {
			p.logger.Error("Worker task panicked",
				zap.String("pool", p.name),
				zap.Any("panic", r.Value),
				zap.ByteString("stack", r.Stack),
			)
		}
	}
}

// Submit queues task. It returns false when the queue is full or the pool
// has been stopped.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.queue <- task:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for queued tasks to finish. When ctx ends
// first, running tasks are cancelled and Stop returns ctx's error.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if p.wg != nil {
			p.wg.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Worker pool drained", zap.String("pool", p.name))
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("Worker pool stopped before draining", zap.String("pool", p.name))
		return ctx.Err()
	}
}
