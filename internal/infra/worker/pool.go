// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"newspay-l402/internal/infra/metrics"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrNilTask     = errors.New("nil task")
	ErrPoolStopped = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

// Pool is a small fixed-size worker pool. Submit never blocks: when the queue
// is saturated the task is dropped and the caller is told so.
type Pool struct {
	name    string
	wg      sync.WaitGroup
	jobs    chan Task
	quit    chan struct{}
	mu      sync.RWMutex // guards stopped against Submit
	stopped bool
	n       int
	log     *zerolog.Logger
}

func NewPool(name string, workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "WorkerPool").Str("pool", name).Logger()
	return &Pool{
		name: name,
		jobs: make(chan Task, workers*4),
		quit: make(chan struct{}),
		n:    workers,
		log:  &l,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if err := task(ctx); err != nil {
						metrics.IncWorkerJob(p.name, "error")
						p.log.Warn().Err(err).Int("worker", id).Msg("task failed")
						continue
					}
					metrics.IncWorkerJob(p.name, "ok")
				}
			}
		}(i)
	}
}

// Stop signals the workers and waits for in-flight tasks. Tasks still queued
// then run with a cancelled context, so whatever they defer still happens.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
	p.drain()
}

func (p *Pool) drain() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := 0
	for {
		select {
		case task := <-p.jobs:
			_ = task(ctx)
			metrics.IncWorkerJob(p.name, "cancelled")
			n++
		default:
			if n > 0 {
				p.log.Warn().Int("tasks", n).Msg("queued tasks cancelled on stop")
			}
			return
		}
	}
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		metrics.IncWorkerJob(p.name, "dropped")
		return ErrQueueFull
	}
}
