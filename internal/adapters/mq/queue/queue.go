// Package queue holds the two queues of the pipeline: the per-import score
// InsertQueue and the bounded in-memory queue of background jobs.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/scorepipe/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// JobKind names a background job.
type JobKind string

// Background job kinds.
const (
	JobDeorphan     JobKind = "deorphan"
	JobResolveChart JobKind = "resolve-chart"
	JobFolderGoals  JobKind = "folder-goals"
	JobUserGoals    JobKind = "user-goals"
)

// Job is one unit of background work.
type Job struct {
	ID       string
	Kind     JobKind
	Args     map[string]string
	Enqueued time.Time
}

// NewJob builds a job with a fresh ID.
func NewJob(kind JobKind, args map[string]string) Job {
	return Job{ID: uuid.NewString(), Kind: kind, Args: args, Enqueued: time.Now()}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns a channel that receives jobs as they become available.
	// The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs       chan Job
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.bufferSize)

	metrics.UpdateJobQueueCapacity(q.capacity)
	metrics.UpdateJobQueueSize(0)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool { //nolint:gocritic // hugeParam: Job is sent by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordJobEnqueueError("closed")
		return false
	}
	if len(q.jobs) >= q.capacity {
		metrics.RecordJobEnqueueError("capacity_exceeded")
		return false
	}

	select {
	case q.jobs <- j:
		metrics.UpdateJobQueueSize(len(q.jobs))
		return true
	case <-ctx.Done():
		metrics.RecordJobEnqueueError("context_cancelled")
		return false
	default:
		metrics.RecordJobEnqueueError("queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.UpdateJobQueueSize(len(q.jobs))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.jobs)
	metrics.UpdateJobQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
