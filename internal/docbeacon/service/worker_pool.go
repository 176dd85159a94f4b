package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/docbeacon/internal/metrics"
)

// Job is one unit of background tracking work.
type Job func(ctx context.Context)

// Executor accepts jobs for background execution. Submit reports whether
// the job was accepted; a rejected job is never run.
type Executor interface {
	Submit(job Job) bool
}

type PoolConfig struct {
	QueueSize      int           // default 256
	Workers        int           // default 4
	EnqueueTimeout time.Duration // default 100ms
	JobTimeout     time.Duration // default 60s
}

// WorkerPool is a bounded queue drained by a fixed set of goroutines. It
// implements suture.Service: workers run while Serve runs. Jobs still
// queued when Serve returns are abandoned.
type WorkerPool struct {
	queue          chan Job
	workers        int
	enqueueTimeout time.Duration
	jobTimeout     time.Duration
	logger         zerolog.Logger
}

func NewWorkerPool(cfg PoolConfig, logger zerolog.Logger) *WorkerPool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 100 * time.Millisecond
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 60 * time.Second
	}
	return &WorkerPool{
		queue:          make(chan Job, cfg.QueueSize),
		workers:        cfg.Workers,
		enqueueTimeout: cfg.EnqueueTimeout,
		jobTimeout:     cfg.JobTimeout,
		logger:         logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Submit enqueues job, waiting at most the enqueue timeout for space.
func (p *WorkerPool) Submit(job Job) bool {
	select {
	case p.queue <- job:
		metrics.TrackingQueueDepth.Set(float64(len(p.queue)))
		return true
	default:
	}

	timer := time.NewTimer(p.enqueueTimeout)
	defer timer.Stop()

	select {
	case p.queue <- job:
		metrics.TrackingQueueDepth.Set(float64(len(p.queue)))
		return true
	case <-timer.C:
		metrics.TrackingJobsDropped.Inc()
		p.logger.Warn().Int("queue_size", cap(p.queue)).Msg("tracking queue full, job dropped")
		return false
	}
}

// Pending returns the number of queued jobs.
func (p *WorkerPool) Pending() int {
	return len(p.queue)
}

func (p *WorkerPool) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, worker)
		}(i)
	}

	p.logger.Info().Int("workers", p.workers).Int("queue_size", cap(p.queue)).Msg("tracking worker pool started")
	wg.Wait()

	if n := len(p.queue); n > 0 {
		p.logger.Warn().Int("abandoned", n).Msg("tracking worker pool stopped with queued jobs")
	}
	return ctx.Err()
}

func (p *WorkerPool) String() string {
	return "tracking-worker-pool"
}

func (p *WorkerPool) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			metrics.TrackingQueueDepth.Set(float64(len(p.queue)))
			p.run(ctx, worker, job)
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, worker int, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("worker", worker).Interface("panic", r).Msg("tracking job panicked")
		}
	}()

	job(jobCtx)
}

// InlineExecutor runs each job synchronously in Submit. Used by tests and
// tools that need the pipeline to finish before the request returns.
type InlineExecutor struct {
	Timeout time.Duration
}

func (e InlineExecutor) Submit(job Job) bool {
	ctx := context.Background()
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	job(ctx)
	return true
}
