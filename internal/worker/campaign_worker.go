package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/distlock"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/queue"
	"github.com/ignite/mailtrack/internal/service/campaign"
)

// JobRunner executes one campaign job.
type JobRunner interface {
	Run(ctx context.Context, job domain.CampaignJob) (*campaign.Report, error)
}

// CampaignWorkerConfig holds worker pool settings.
type CampaignWorkerConfig struct {
	NumWorkers  int
	PollTimeout time.Duration
	// HeartbeatInterval must stay well under the queue's stale age.
	HeartbeatInterval time.Duration
	// RecoveryInterval is how often stale in-flight jobs are reclaimed.
	RecoveryInterval time.Duration
}

// DefaultCampaignWorkerConfig returns default configuration
func DefaultCampaignWorkerConfig() CampaignWorkerConfig {
	return CampaignWorkerConfig{
		NumWorkers:        2,
		PollTimeout:       5 * time.Second,
		HeartbeatInterval: time.Minute,
		RecoveryInterval:  2 * time.Minute,
	}
}

// CampaignWorker pulls campaign jobs off a queue and runs them. Each job is
// guarded by a lock keyed on its ID so a job recovered after a crash never
// runs twice at the same time.
type CampaignWorker struct {
	queue  queue.Queue
	runner JobRunner
	locks  distlock.Factory

	workerID          string
	numWorkers        int
	pollTimeout       time.Duration
	heartbeatInterval time.Duration
	recoveryInterval  time.Duration

	// Stats
	jobsDone       int64
	jobsFailed     int64
	jobsSkipped    int64
	messagesSent   int64
	messagesFailed int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewCampaignWorker creates a worker pool. A nil locks factory uses
// process-local locks.
func NewCampaignWorker(q queue.Queue, runner JobRunner, locks distlock.Factory, config CampaignWorkerConfig) *CampaignWorker {
	def := DefaultCampaignWorkerConfig()
	if config.NumWorkers <= 0 {
		config.NumWorkers = def.NumWorkers
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = def.PollTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = def.HeartbeatInterval
	}
	if config.RecoveryInterval <= 0 {
		config.RecoveryInterval = def.RecoveryInterval
	}
	if locks == nil {
		locks = func(key string) distlock.DistLock { return distlock.NewLocalLock(key) }
	}
	return &CampaignWorker{
		queue:       q,
		runner:      runner,
		locks:       locks,
		workerID:    fmt.Sprintf("campaign-worker-%s", uuid.New().String()[:8]),
		numWorkers:        config.NumWorkers,
		pollTimeout:       config.PollTimeout,
		heartbeatInterval: config.HeartbeatInterval,
		recoveryInterval:  config.RecoveryInterval,
	}
}

// Start recovers jobs abandoned by a dead process, starts the workers and
// keeps recovering on RecoveryInterval.
func (w *CampaignWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("campaign worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	w.recoverStale()

	logger.Info("worker: starting", "worker_id", w.workerID, "workers", w.numWorkers)
	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
	w.wg.Add(1)
	go w.recoveryLoop()
	return nil
}

func (w *CampaignWorker) recoverStale() {
	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()
	if _, err := w.queue.Recover(ctx); err != nil && w.ctx.Err() == nil {
		logger.Warn("worker: recover jobs failed", "worker_id", w.workerID, "error", err)
	}
}

func (w *CampaignWorker) recoveryLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.recoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.recoverStale()
		}
	}
}

// heartbeat refreshes d's claim until stop is closed.
func (w *CampaignWorker) heartbeat(ctx context.Context, d *queue.Delivery, stop <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, d); err != nil {
				logger.Warn("worker: heartbeat failed", "job_id", d.Job.ID, "error", err)
			}
		}
	}
}

// Stop stops polling and waits for running jobs to finish.
func (w *CampaignWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("worker: stopped", "worker_id", w.workerID,
		"jobs_done", atomic.LoadInt64(&w.jobsDone),
		"jobs_failed", atomic.LoadInt64(&w.jobsFailed),
		"messages_sent", atomic.LoadInt64(&w.messagesSent))
}

// Stats returns current processing statistics
func (w *CampaignWorker) Stats() map[string]int64 {
	return map[string]int64{
		"jobs_done":       atomic.LoadInt64(&w.jobsDone),
		"jobs_failed":     atomic.LoadInt64(&w.jobsFailed),
		"jobs_skipped":    atomic.LoadInt64(&w.jobsSkipped),
		"messages_sent":   atomic.LoadInt64(&w.messagesSent),
		"messages_failed": atomic.LoadInt64(&w.messagesFailed),
	}
}

func (w *CampaignWorker) loop(n int) {
	defer w.wg.Done()
	for {
		if w.ctx.Err() != nil {
			return
		}
		d, err := w.queue.Dequeue(w.ctx, w.pollTimeout)
		if err != nil {
			if w.ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Warn("worker: dequeue failed", "worker", n, "error", err)
			select {
			case <-time.After(time.Second):
			case <-w.ctx.Done():
				return
			}
			continue
		}
		if d == nil {
			continue
		}
		w.process(w.ctx, d)
	}
}

// process runs one delivery to completion. Shutdown does not interrupt a
// job that has started: cancelling mid-send would leave recipients
// half-processed and the job would be sent again on recovery.
func (w *CampaignWorker) process(parent context.Context, d *queue.Delivery) {
	ctx := context.WithoutCancel(parent)
	job := d.Job
	log := logger.With("worker_id", w.workerID, "job_id", job.ID)

	lock := w.locks("campaign-job:" + job.ID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		// Left in flight; the next Recover hands it out again.
		log.Error("worker: acquire job lock failed", "error", err)
		return
	}
	if !acquired {
		log.Info("worker: job already running elsewhere")
		atomic.AddInt64(&w.jobsSkipped, 1)
		w.ack(ctx, d)
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			log.Warn("worker: release job lock failed", "error", err)
		}
	}()

	stop := make(chan struct{})
	beating := make(chan struct{})
	go func() {
		defer close(beating)
		w.heartbeat(ctx, d, stop)
	}()

	start := time.Now()
	report, err := w.runner.Run(ctx, job)
	close(stop)
	<-beating
	if err != nil {
		atomic.AddInt64(&w.jobsFailed, 1)
		log.Error("worker: job failed", "template", job.Template, "error", err)
	} else {
		atomic.AddInt64(&w.jobsDone, 1)
		atomic.AddInt64(&w.messagesSent, int64(report.Sent))
		atomic.AddInt64(&w.messagesFailed, int64(report.Failed))
		log.Info("worker: job done",
			"sent", report.Sent, "failed", report.Failed, "duration", time.Since(start).String())
	}
	w.ack(ctx, d)
}

func (w *CampaignWorker) ack(ctx context.Context, d *queue.Delivery) {
	if err := w.queue.Ack(ctx, d); err != nil {
		logger.Error("worker: ack failed", "job_id", d.Job.ID, "error", err)
	}
}
