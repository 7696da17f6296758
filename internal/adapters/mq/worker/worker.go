// Package worker runs background jobs (orphan sweeps, deferred resolution,
// goal re-evaluation) off the job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/scorepipe/internal/adapters/mq/queue"
	"github.com/okian/scorepipe/pkg/logger"
	"github.com/okian/scorepipe/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// ErrNoHandler is returned for jobs whose kind has no registered handler.
var ErrNoHandler = errors.New("no handler for job kind")

// Handler processes one job.
type Handler func(ctx context.Context, job queue.Job) error

// Handlers maps job kinds to their handler.
type Handlers map[queue.JobKind]Handler

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs using the registered handlers.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing jobs.
type InMemoryWorker struct {
	queue    Queue
	handlers Handlers
	name     string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	processed *atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, handlers Handlers, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		handlers:  handlers,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		processed: &atomic.Int64{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing job",
					logger.String("jobID", job.ID),
					logger.String("kind", string(job.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs the handler for job. A panicking handler fails the job, not
// the worker.
func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) (err error) { //nolint:gocritic // hugeParam: Job is received by value
	kind := string(job.Kind)
	h, ok := w.handlers[job.Kind]
	if !ok {
		metrics.RecordJobError(kind)
		return fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
		if err != nil {
			metrics.RecordJobError(kind)
			return
		}
		w.processed.Add(1)
		metrics.RecordJobProcessed(kind)
	}()

	start := time.Now()
	err = h(ctx, job)
	w.logger.Debug(ctx, "job finished",
		logger.String("jobID", job.ID),
		logger.String("kind", kind),
		logger.Duration("took", time.Since(start)),
	)
	return err
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed *atomic.Int64

	logger logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 picks a default based on
// the number of CPUs.
func NewPool(workerCount int, q Queue, handlers Handlers) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     q,
		processed: &atomic.Int64{},
		logger:    logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(q, handlers, WithName("worker-"+strconv.Itoa(i)))
		w.processed = pool.processed
		pool.workers[i] = w
	}
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Processed returns how many jobs the pool completed without error.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Shutdown closes the queue, then waits for every worker to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
