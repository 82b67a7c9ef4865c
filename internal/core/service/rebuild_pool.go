package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/observability"
)

var (
	ErrPoolFull   = errors.New("rebuild pool queue full")
	ErrPoolClosed = errors.New("rebuild pool closed")
)

// RebuildTask refreshes one cache entry. Cleanup always runs after Run, even if Run panics.
type RebuildTask struct {
	Key     string
	Run     func(ctx context.Context) error
	Cleanup func()
}

// RebuildPool is a fixed set of workers draining a bounded task queue.
type RebuildPool struct {
	tasks   chan RebuildTask
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewRebuildPool(workers, queueSize int, timeout time.Duration, logger *zap.Logger) *RebuildPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &RebuildPool{
		tasks:   make(chan RebuildTask, queueSize),
		timeout: timeout,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(id)
		}(i)
	}
	return p
}

// Submit enqueues t without blocking.
func (p *RebuildPool) Submit(t RebuildTask) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- t:
		observability.RebuildQueueDepth.Inc()
		return nil
	default:
		return ErrPoolFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *RebuildPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *RebuildPool) workerLoop(id int) {
	for t := range p.tasks {
		observability.RebuildQueueDepth.Dec()
		if err := p.execute(t); err != nil {
			p.logger.Warn("cache rebuild failed", zap.Int("worker", id), zap.String("key", t.Key), zap.Error(err))
		} else {
			p.logger.Debug("cache rebuilt", zap.Int("worker", id), zap.String("key", t.Key))
		}
	}
}

func (p *RebuildPool) execute(t RebuildTask) (err error) {
	defer func() {
		if t.Cleanup != nil {
			t.Cleanup()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rebuild panicked: %v", r)
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.CacheRebuildsTotal.WithLabelValues(status).Inc()
	}()

	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return t.Run(ctx)
}
