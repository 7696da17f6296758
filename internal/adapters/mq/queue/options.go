package queue

import "github.com/okian/scorepipe/pkg/logger"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size for the jobs channel.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}

// InsertOption applies a configuration option to the InsertQueue.
type InsertOption func(*InsertQueue)

// WithBatchSize sets how many documents are buffered before an automatic flush.
func WithBatchSize(n int) InsertOption {
	return func(q *InsertQueue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

// WithLogger sets a custom logger for the insert queue.
func WithLogger(l logger.Logger) InsertOption {
	return func(q *InsertQueue) {
		if l != nil {
			q.logger = l
		}
	}
}
