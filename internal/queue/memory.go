package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
)

// MemoryQueue is an in-process queue for single-instance deployments and
// tests. Jobs do not survive a restart.
type MemoryQueue struct {
	jobs      chan domain.CampaignJob
	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemoryQueue creates a queue holding up to size pending jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 100
	}
	return &MemoryQueue{
		jobs:   make(chan domain.CampaignJob, size),
		closed: make(chan struct{}),
	}
}

// Enqueue blocks while the queue is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *domain.CampaignJob) error {
	stamp(job)
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.jobs <- *job:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case job := <-q.jobs:
		return &Delivery{Job: job}, nil
	case <-timer.C:
		return nil, nil
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Heartbeat(context.Context, *Delivery) error { return nil }

func (q *MemoryQueue) Ack(context.Context, *Delivery) error { return nil }

func (q *MemoryQueue) Recover(context.Context) (int, error) { return 0, nil }

// Len reports the number of pending jobs.
func (q *MemoryQueue) Len() int { return len(q.jobs) }

// Close stops accepting jobs and wakes blocked callers.
func (q *MemoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
