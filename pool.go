package promptcache

import (
	"sync"
	"sync/atomic"
	"time"
)

// RefreshPool runs background refresh tasks on a fixed set of workers with a
// bounded queue. Background refresh is best-effort: when every worker is
// busy and the queue is full, Submit drops the task instead of blocking the
// read path or queuing unboundedly.
type RefreshPool struct {
	tasks  chan func()
	quit   chan struct{}
	logger Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  atomic.Bool
}

// Default pool sizing. Single-digit worker counts are plenty: refreshes are
// I/O bound and deduplicated per key upstream of the pool.
const (
	DefaultRefreshWorkers   = 4
	DefaultRefreshQueueSize = 64
)

// NewRefreshPool starts workers immediately so bursts don't pay a cold-start
// penalty.
func NewRefreshPool(workers, queueSize int, logger Logger) *RefreshPool {
	if workers <= 0 {
		workers = DefaultRefreshWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultRefreshQueueSize
	}

	p := &RefreshPool{
		tasks:  make(chan func(), queueSize),
		quit:   make(chan struct{}),
		logger: logger.Named("refresh_pool"),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a task for background execution. Returns false when the
// task was dropped (queue full or pool stopped); the caller treats that as a
// no-op, never an error. Safe to call on a nil pool.
func (p *RefreshPool) Submit(task func()) bool {
	if p == nil || task == nil || p.stopped.Load() {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

func (p *RefreshPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			p.run(task)
		}
	}
}

// run executes a task with panic containment so a misbehaving fetch function
// cannot kill a worker.
func (p *RefreshPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in background refresh task",
				Any("panic", r))
		}
	}()
	task()
}

// Shutdown stops accepting new tasks, waits up to waitTimeout for in-flight
// work, then abandons whatever remains queued. Idempotent and safe on a nil
// pool.
func (p *RefreshPool) Shutdown(waitTimeout time.Duration) {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.quit)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		p.logger.Warn("refresh pool shutdown timed out with tasks still running",
			Duration("wait_timeout", waitTimeout))
	}
}
