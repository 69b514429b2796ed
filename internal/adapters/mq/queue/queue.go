// Package queue defines the contract for enqueuing and consuming chunks.
//
// The in-memory implementation is a bounded buffered channel; a full
// queue rejects work instead of blocking the producer.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Chunk represents the payload type flowing through the queue.
type Chunk = model.Chunk

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a chunk to the queue.
	// Returns ErrFull or ErrClosed when the chunk was not enqueued.
	Enqueue(ctx context.Context, c Chunk) error

	// Dequeue returns a channel that will receive chunks as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Chunk

	// Len returns the current number of queued chunks.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, no new chunks can be enqueued.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	chunks   chan Chunk
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.chunks = make(chan Chunk, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Capacity returns the maximum number of queued chunks.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds a chunk to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c Chunk) error { //nolint:gocritic // hugeParam: Chunk is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	if c.Enqueued.IsZero() {
		c.Enqueued = time.Now()
	}
	select {
	case q.chunks <- c:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive chunks as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-q.chunks:
				if !ok {
					return
				}
				select {
				case out <- c:
					metrics.RecordQueueDequeue()
					metrics.RecordQueueProcessingLatency(float64(time.Since(c.Enqueued).Milliseconds()))
					q.observe()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued chunks.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.observe()
	return len(q.chunks)
}

func (q *InMemoryQueue) observe() {
	size := len(q.chunks)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close gracefully shuts down the queue. Queued chunks are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.chunks)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
