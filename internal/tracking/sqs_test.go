package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/service/ledger"
)

// fakeSQS is an in-memory queue. Received messages stay in flight until
// deleted.
type fakeSQS struct {
	mu       sync.Mutex
	pending  []sqstypes.Message
	deleted  []string
	sent     []string
	sendErr  error
	nextID   int
	received chan struct{}
}

func newFakeSQS() *fakeSQS {
	return &fakeSQS{received: make(chan struct{}, 100)}
}

func (f *fakeSQS) push(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	handle := "rh-" + string(rune('a'+f.nextID))
	f.pending = append(f.pending, sqstypes.Message{Body: aws.String(body), ReceiptHandle: aws.String(handle)})
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	msgs := f.pending
	f.pending = nil
	f.mu.Unlock()

	if len(msgs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	f.received <- struct{}{}
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type markerFunc func(ctx context.Context, token string, at time.Time) (time.Time, error)

func (f markerFunc) MarkOpened(ctx context.Context, token string, at time.Time) (time.Time, error) {
	return f(ctx, token, at)
}

func TestPublisher_SendsEvent(t *testing.T) {
	fake := newFakeSQS()
	pub := NewPublisher(fake, "https://sqs.local/q")

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := pub.RecordOpen(context.Background(), domain.OpenEvent{Token: "tok", At: at}); err != nil {
		t.Fatal(err)
	}
	pub.Close()

	if len(fake.sent) != 1 {
		t.Fatalf("sent = %d messages", len(fake.sent))
	}
	var evt domain.OpenEvent
	if err := json.Unmarshal([]byte(fake.sent[0]), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Token != "tok" || !evt.At.Equal(at) {
		t.Errorf("event = %+v", evt)
	}
}

func TestPublisher_SendFailureIsNotReturned(t *testing.T) {
	fake := newFakeSQS()
	fake.sendErr = errors.New("throttled")
	pub := NewPublisher(fake, "q")
	if err := pub.RecordOpen(context.Background(), domain.OpenEvent{Token: "tok"}); err != nil {
		t.Fatalf("RecordOpen should not surface async errors: %v", err)
	}
	pub.Close()
}

func TestConsumer_AppliesAndDeletes(t *testing.T) {
	fake := newFakeSQS()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	good, _ := json.Marshal(domain.OpenEvent{Token: "known", At: at})
	unknown, _ := json.Marshal(domain.OpenEvent{Token: "unknown", At: at})
	failing, _ := json.Marshal(domain.OpenEvent{Token: "db-down", At: at})
	fake.push(string(good))
	fake.push(string(unknown))
	fake.push(string(failing))
	fake.push("{not json")

	var mu sync.Mutex
	applied := map[string]time.Time{}
	marker := markerFunc(func(_ context.Context, token string, at time.Time) (time.Time, error) {
		switch token {
		case "known":
			mu.Lock()
			applied[token] = at
			mu.Unlock()
			return at, nil
		case "unknown":
			return time.Time{}, ledger.ErrNotFound
		default:
			return time.Time{}, errors.New("connection refused")
		}
	})

	c := NewConsumer(fake, "q", marker)
	c.errorWait = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	// First receive returns the batch; wait for the one after it so the
	// batch has been fully handled.
	<-fake.received
	<-fake.received
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !applied["known"].Equal(at) {
		t.Errorf("known event not applied with its timestamp: %v", applied)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.deleted) != 3 {
		t.Errorf("deleted = %v, want known, unknown and malformed", fake.deleted)
	}
}

// longPollSQS holds every receive open until its context ends, like an
// empty queue with a 20 second wait.
type longPollSQS struct {
	*fakeSQS
	polling chan struct{}
}

func (f *longPollSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	select {
	case f.polling <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestConsumer_StopInterruptsLongPoll(t *testing.T) {
	fake := &longPollSQS{fakeSQS: newFakeSQS(), polling: make(chan struct{}, 1)}
	c := NewConsumer(fake, "q", markerFunc(func(_ context.Context, _ string, at time.Time) (time.Time, error) {
		return at, nil
	}))
	c.Start(context.Background())
	<-fake.polling

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop waited for the long poll to time out")
	}

	// A second Stop must not panic or block.
	c.Stop()
}

func TestConsumer_StopWithoutStart(t *testing.T) {
	c := NewConsumer(newFakeSQS(), "q", nil)
	done := make(chan struct{})
	go func() {
		c.Stop()
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a consumer that never started")
	}
}
