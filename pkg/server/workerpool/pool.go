// Package workerpool runs source calls on a fixed set of goroutines fed by
// a bounded queue, so a burst of requests cannot spawn unbounded work.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
)

var (
	// ErrPoolClosed indicates Submit was called after Close.
	ErrPoolClosed = errors.New("worker pool closed")
)

// Task is one unit of work.
type Task func()

// Pool is a fixed-size worker pool.
type Pool struct {
	workers int
	queue   chan Task
	logger  *logging.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts workers goroutines reading from a queue of queueSize tasks.
func New(workers, queueSize int, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	p := &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
		logger:  logger,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.workerLoop(i)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues task, blocking while the queue is full. It gives up when
// ctx ends first.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit: %w", ctx.Err())
	}
}

// Close stops accepting tasks, drains the queue and waits for the workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker task panicked", "worker", id, "panic", fmt.Sprint(r))
		}
	}()
	task()
}
