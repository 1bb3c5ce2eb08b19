package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/service/ledger"
)

// Consumer drains open events from SQS into the ledger.
type Consumer struct {
	client    SQSAPI
	queueURL  string
	marker    OpenMarker
	waitTime  int32
	errorWait time.Duration
	done      chan struct{}
	stopped   chan struct{}

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewConsumer creates a consumer applying events through marker.
func NewConsumer(client SQSAPI, queueURL string, marker OpenMarker) *Consumer {
	return &Consumer{
		client:    client,
		queueURL:  queueURL,
		marker:    marker,
		waitTime:  20,
		errorWait: 5 * time.Second,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start begins long-polling in the background. Calls after the first are
// ignored.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	pollCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	logger.Info("tracking: sqs consumer started", "queue", c.queueURL)
	go c.poll(pollCtx, context.WithoutCancel(ctx))
}

// Stop cuts the current long poll short and waits for the batch in hand to
// be applied. It is safe to call more than once, or without Start.
func (c *Consumer) Stop() {
	c.mu.Lock()
	started := c.started
	c.stopOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
	c.mu.Unlock()
	if started {
		<-c.stopped
	}
}

// poll receives on ctx and applies messages on work, so a stop never
// abandons a batch halfway.
func (c *Consumer) poll(ctx, work context.Context) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     c.waitTime,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("tracking: sqs receive failed", "error", err)
			select {
			case <-time.After(c.errorWait):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
			continue
		}

		for _, msg := range out.Messages {
			if c.handle(work, msg) {
				c.deleteMessage(work, msg.ReceiptHandle)
			}
		}
	}
}

// handle applies one message and reports whether it can be deleted.
// Failures other than an unknown token leave the message for redelivery.
func (c *Consumer) handle(ctx context.Context, msg sqstypes.Message) bool {
	var evt domain.OpenEvent
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
		logger.Warn("tracking: dropping malformed sqs message", "error", err)
		return true
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	_, err := c.marker.MarkOpened(ctx, evt.Token, evt.At)
	switch {
	case err == nil:
		logger.Debug("tracking: open applied", "token", evt.Token)
		return true
	case errors.Is(err, ledger.ErrNotFound):
		logger.Debug("tracking: open for unknown token", "token", evt.Token)
		return true
	default:
		logger.Warn("tracking: apply open failed", "token", evt.Token, "error", err)
		return false
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Warn("tracking: sqs delete failed", "error", err)
	}
}
