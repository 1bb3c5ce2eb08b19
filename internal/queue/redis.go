package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// DefaultStaleAge is how long an in-flight job may go without a heartbeat
// before Recover treats its worker as dead.
const DefaultStaleAge = 5 * time.Minute

// recoverScript moves one processing entry back to pending when its claim
// is older than the cutoff. An entry without a claim was just dequeued;
// it gets one now so a later pass can judge it.
//
// KEYS: processing, pending, claims. ARGV: payload, cutoff ms, now ms.
var recoverScript = redis.NewScript(`
local claimed = redis.call("HGET", KEYS[3], ARGV[1])
if not claimed then
	redis.call("HSET", KEYS[3], ARGV[1], ARGV[3])
	return 0
end
if tonumber(claimed) > tonumber(ARGV[2]) then
	return 0
end
redis.call("HDEL", KEYS[3], ARGV[1])
if redis.call("LREM", KEYS[1], 1, ARGV[1]) == 0 then
	return 0
end
redis.call("RPUSH", KEYS[2], ARGV[1])
return 1
`)

// RedisQueue is a reliable queue on two Redis lists plus a hash of claim
// times. Dequeue atomically moves a job from pending to processing and
// claims it; Heartbeat refreshes the claim; Ack removes the job. Recover
// only returns jobs whose claim went stale, so it is safe to call while
// other replicas are running jobs.
type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
	claims     string
	staleAge   time.Duration
	now        func() time.Time
}

// NewRedisQueue creates a queue whose keys start with prefix.
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "mailtrack"
	}
	return &RedisQueue{
		client:     client,
		pending:    prefix + ":campaign:pending",
		processing: prefix + ":campaign:processing",
		claims:     prefix + ":campaign:claims",
		staleAge:   DefaultStaleAge,
		now:        time.Now,
	}
}

// WithStaleAge overrides DefaultStaleAge. Non-positive values are ignored.
func (q *RedisQueue) WithStaleAge(d time.Duration) *RedisQueue {
	if d > 0 {
		q.staleAge = d
	}
	return q
}

// WithClock replaces time.Now for claim stamps.
func (q *RedisQueue) WithClock(now func() time.Time) *RedisQueue {
	q.now = now
	return q
}

// StaleAge reports the heartbeat deadline for in-flight jobs.
func (q *RedisQueue) StaleAge() time.Duration { return q.staleAge }

func (q *RedisQueue) Enqueue(ctx context.Context, job *domain.CampaignJob) error {
	stamp(job)
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, data).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}

	d := &Delivery{raw: raw}
	if err := json.Unmarshal([]byte(raw), &d.Job); err != nil {
		// A payload we cannot read would be recovered forever; drop it.
		logger.Error("queue: dropping malformed job", "error", err)
		q.client.LRem(ctx, q.processing, 1, raw)
		return nil, nil
	}
	if err := q.claim(ctx, raw); err != nil {
		// Recover stamps unclaimed entries, so the job is still safe.
		logger.Warn("queue: claim job failed", "job_id", d.Job.ID, "error", err)
	}
	return d, nil
}

// Heartbeat marks d as still running.
func (q *RedisQueue) Heartbeat(ctx context.Context, d *Delivery) error {
	if err := q.claim(ctx, d.raw); err != nil {
		return fmt.Errorf("heartbeat job %s: %w", d.Job.ID, err)
	}
	return nil
}

func (q *RedisQueue) claim(ctx context.Context, raw string) error {
	return q.client.HSet(ctx, q.claims, raw, strconv.FormatInt(q.now().UnixMilli(), 10)).Err()
}

// Ack drops d from processing and its claim. It also removes d from
// pending in case a recovery pass already put it back, so a finished job
// is never handed out again.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.raw)
		pipe.LRem(ctx, q.pending, 1, d.raw)
		pipe.HDel(ctx, q.claims, d.raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack job %s: %w", d.Job.ID, err)
	}
	return nil
}

// Recover returns jobs whose claim is older than the stale age to the
// front of pending, oldest first.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	entries, err := q.client.LRange(ctx, q.processing, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list in-flight jobs: %w", err)
	}

	now := q.now()
	cutoff := strconv.FormatInt(now.Add(-q.staleAge).UnixMilli(), 10)
	nowMS := strconv.FormatInt(now.UnixMilli(), 10)
	keys := []string{q.processing, q.pending, q.claims}

	// processing is newest-first; pushing in that order leaves the oldest
	// job at the dequeue end of pending.
	n := 0
	for _, raw := range entries {
		moved, err := recoverScript.Run(ctx, q.client, keys, raw, cutoff, nowMS).Int()
		if err != nil {
			return n, fmt.Errorf("recover jobs: %w", err)
		}
		n += moved
	}
	if n > 0 {
		logger.Info("queue: recovered stale jobs", "count", n, "stale_age", q.staleAge.String())
	}
	return n, nil
}

// Len reports the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pending).Result()
}
