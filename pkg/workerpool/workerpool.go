package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/andrej220/ansirun/pkg/lg"
)

const TotalMaxWorkers = 10

var ErrPoolStopped = errors.New("worker pool is shutting down")

type JobFunc[T any] func(context.Context, T) error

type Job[T any] struct {
	Payload     T
	Fn          JobFunc[T]
	Ctx         context.Context
	CleanupFunc func()
}

// Pool runs submitted jobs on at most maxWorkers goroutines.
type Pool[T any] struct {
	jobs          chan Job[T]
	activeWorkers int32
	wg            sync.WaitGroup
	mu            sync.RWMutex // held for reading while a Submit may send on jobs
	quit          chan struct{}
	stopOnce      sync.Once
	maxWorkers    int
}

func NewPool[T any](maxWorkers int) *Pool[T] {
	if maxWorkers <= 0 {
		maxWorkers = TotalMaxWorkers
	}
	pool := &Pool[T]{
		jobs:       make(chan Job[T], maxWorkers),
		quit:       make(chan struct{}),
		maxWorkers: maxWorkers,
	}
	pool.wg.Add(maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		go pool.worker()
	}
	return pool
}

// Stop rejects new jobs and waits until queued and running jobs are done.
func (p *Pool[T]) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.mu.Lock()
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// Submit queues job. It blocks while the queue is full and fails when the pool
// is stopping or the job context is done.
func (p *Pool[T]) Submit(job Job[T]) error {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}
	logger := lg.FromContext(job.Ctx)
	select {
	case p.jobs <- job:
		logger.Debug("Job submitted", lg.Any("job", job.Payload))
		return nil
	case <-p.quit:
		logger.Info("Worker pool is shutting down, job rejected", lg.Any("job", job.Payload))
		return ErrPoolStopped
	case <-job.Ctx.Done():
		return job.Ctx.Err()
	}
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool[T]) run(job Job[T]) {
	active := atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)
	if job.CleanupFunc != nil {
		defer job.CleanupFunc()
	}

	logger := lg.FromContext(job.Ctx).With(lg.Any("job", job.Payload))
	logger.Debug("Worker started", lg.Int("workers", int(active)))

	if err := job.Ctx.Err(); err != nil {
		logger.Info("Job canceled before start", lg.Err(err))
		return
	}
	if err := job.Fn(job.Ctx, job.Payload); err != nil {
		logger.Info("Worker error", lg.Err(err))
		return
	}
	logger.Debug("Worker finished", lg.Int("workers", int(atomic.LoadInt32(&p.activeWorkers))))
}

func (p *Pool[T]) ActiveWorkers() int32 {
	return atomic.LoadInt32(&p.activeWorkers)
}
