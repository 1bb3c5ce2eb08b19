// Package queue holds pending campaign jobs between the web handlers that
// accept them and the workers that run them.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailtrack/internal/domain"
)

// ErrClosed is returned by a MemoryQueue after Close.
var ErrClosed = errors.New("queue: closed")

// Delivery is a dequeued job. It must be acknowledged once the job has run.
type Delivery struct {
	Job domain.CampaignJob
	raw string
}

// Queue is a FIFO of campaign jobs.
type Queue interface {
	// Enqueue stores job, assigning an ID and enqueue time when missing.
	Enqueue(ctx context.Context, job *domain.CampaignJob) error
	// Dequeue waits up to timeout for a job. It returns nil, nil when none
	// arrived in time.
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	// Heartbeat tells the queue a dequeued job is still running.
	Heartbeat(ctx context.Context, d *Delivery) error
	// Ack removes a finished job from the in-flight set.
	Ack(ctx context.Context, d *Delivery) error
	// Recover returns in-flight jobs whose worker stopped heartbeating to
	// the pending list and reports how many were moved. Jobs that are
	// still being heartbeated are left alone.
	Recover(ctx context.Context) (int, error)
}

func stamp(job *domain.CampaignJob) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
}
