package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
)

// PoolConfig sizes the pool.
type PoolConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

type task struct {
	name string
	fn   func(ctx context.Context)
}

// Pool runs detached tasks on a fixed set of goroutines. Tasks get a context
// derived from the pool, not from whoever submitted them, so they outlive the
// HTTP request that triggered them.
type Pool struct {
	config PoolConfig
	logger *zap.Logger
	tasks  chan task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

// NewPool creates a pool. Call Start before relying on tasks running.
func NewPool(cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config: cfg,
		logger: logger,
		tasks:  make(chan task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}

	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize),
	)
}

// Submit queues fn without blocking. It returns false when the queue is full
// or the pool is stopping; the task is then dropped.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("task submitted after shutdown", zap.String("task", name))
		metrics.RecordTaskDropped()
		return false
	}

	select {
	case p.tasks <- task{name: name, fn: fn}:
		return true
	default:
		p.logger.Warn("task queue full, dropping task",
			zap.String("task", name),
			zap.Int("queue_size", p.config.QueueSize),
		)
		metrics.RecordTaskDropped()
		return false
	}
}

// Stop refuses new tasks and waits for queued ones to finish. If ctx expires
// first, running tasks are cancelled and ctx's error is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("worker pool stop: %w", ctx.Err())
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.String("task", t.name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	t.fn(ctx)
}
