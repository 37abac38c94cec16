// Package queue buffers points awards between the HTTP intake and the workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/metrics"
)

const defaultCapacity = 10000

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds an award. It never blocks: a full queue returns ErrFull.
	Enqueue(ctx context.Context, a model.PointsAward) error

	// Dequeue returns the receive side. It is closed by Close once drained.
	Dequeue() <-chan model.PointsAward

	// Len returns the number of pending awards.
	Len() int

	// Close stops intake. Pending awards remain readable.
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	awards   chan model.PointsAward
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.awards = make(chan model.PointsAward, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.publish()
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, a model.PointsAward) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}

	select {
	case q.awards <- a:
		metrics.RecordQueueEnqueue()
		q.publish()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue() <-chan model.PointsAward {
	return q.awards
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	q.publish()
	return len(q.awards)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close implements Queue. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.awards)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) publish() {
	n := len(q.awards)
	metrics.UpdateQueueSize(n)
	metrics.UpdateQueueUtilization(float64(n) / float64(q.capacity))
}
