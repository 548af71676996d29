package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const statsInterval = 30 * time.Second

var (
	ErrQueueFull  = errors.New("worker queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Task is a unit of background work. It receives the pool context, which is
// cancelled only if shutdown gives up waiting.
type Task func(ctx context.Context)

// Pool is a fixed-size task executor fed by a bounded queue. Submit never
// blocks: a full queue is reported to the caller.
type Pool struct {
	log *logrus.Entry

	queue      chan Task
	workerPool chan chan Task
	workers    []*poolWorker

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
	wg      sync.WaitGroup

	processedCount int64
	activeWorkers  int64
}

type poolWorker struct {
	id         int
	pool       *Pool
	jobChannel chan Task
	quit       chan struct{}
}

func NewPool(size, queueSize int, log *logrus.Entry) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		log:        log,
		queue:      make(chan Task, queueSize),
		workerPool: make(chan chan Task, size),
		workers:    make([]*poolWorker, size),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		p.workers[i] = &poolWorker{
			id:         i,
			pool:       p,
			jobChannel: make(chan Task),
			quit:       make(chan struct{}),
		}
	}

	return p
}

// Start launches the workers and the dispatcher. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.log.Infof("Starting worker pool with %d workers", len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		w.start()
	}
	go p.dispatch()
	go p.reportMetrics()
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) dispatch() {
	defer close(p.done)

	for task := range p.queue {
		jobChannel := <-p.workerPool
		jobChannel <- task
	}

	for _, w := range p.workers {
		close(w.quit)
	}
}

func (w *poolWorker) start() {
	go func() {
		defer w.pool.wg.Done()
		for {
			// Register this worker in the pool
			w.pool.workerPool <- w.jobChannel

			select {
			case job := <-w.jobChannel:
				w.run(job)
			case <-w.quit:
				return
			}
		}
	}()
}

func (w *poolWorker) run(job Task) {
	atomic.AddInt64(&w.pool.activeWorkers, 1)
	defer func() {
		if r := recover(); r != nil {
			w.pool.log.Errorf("Worker %d recovered from panic: %v", w.id, r)
		}
		atomic.AddInt64(&w.pool.processedCount, 1)
		atomic.AddInt64(&w.pool.activeWorkers, -1)
	}()

	job(w.pool.ctx)
}

// Shutdown stops accepting tasks, drains the queue and waits for running
// tasks. If ctx expires first the pool context is cancelled and ctx.Err()
// is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.queue)
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}

	finished := make(chan struct{})
	go func() {
		<-p.done
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.log.Info("All workers finished gracefully")
		p.cancel()
		return nil
	case <-ctx.Done():
		p.log.Warn("Shutdown timeout reached, cancelling running tasks")
		p.cancel()
		return ctx.Err()
	}
}

// Stats reports completed tasks and tasks currently running.
func (p *Pool) Stats() (processed, active int64) {
	return atomic.LoadInt64(&p.processedCount), atomic.LoadInt64(&p.activeWorkers)
}

// reportMetrics logs pool throughput until the dispatcher exits
func (p *Pool) reportMetrics() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			processed, active := p.Stats()
			p.log.Infof("Worker Pool Metrics - Processed: %d, Active: %d, Queued: %d", processed, active, len(p.queue))
		}
	}
}
