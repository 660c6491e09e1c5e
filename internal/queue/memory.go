package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultVisibility = 30 * time.Second

// MemoryQueue is a Client backed by an in-memory buffered channel. Received
// messages stay invisible until deleted; an undeleted message returns to the
// queue once its visibility timeout lapses, so a failed consumer sees it
// again just like with SQS.
type MemoryQueue struct {
	ch         chan Message
	visibility time.Duration

	mu       sync.Mutex
	inflight map[string]inflightMessage
}

type inflightMessage struct {
	msg      Message
	deadline time.Time
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch:         make(chan Message, buffer),
		visibility: defaultVisibility,
		inflight:   make(map[string]inflightMessage),
	}
}

// WithVisibilityTimeout overrides how long a received message stays hidden
// before it is redelivered.
func (q *MemoryQueue) WithVisibilityTimeout(d time.Duration) *MemoryQueue {
	if d > 0 {
		q.visibility = d
	}
	return q
}

var _ Client = (*MemoryQueue)(nil)

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := Message{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}

	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	q.redeliverExpired()

	var timer *time.Timer
	if waitSeconds > 0 {
		timer = time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
	}

	if timer == nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg := <-q.ch:
			return q.track(q.collect(ctx, msg, maxMessages)), nil
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case msg := <-q.ch:
		return q.track(q.collect(ctx, msg, maxMessages)), nil
	}
}

// Delete acknowledges a received message so it is never redelivered.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	delete(q.inflight, receiptHandle)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) collect(ctx context.Context, first Message, max int) []Message {
	messages := make([]Message, 0, max)
	messages = append(messages, first)

	for len(messages) < max {
		select {
		case <-ctx.Done():
			return messages
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}

func (q *MemoryQueue) track(msgs []Message) []Message {
	deadline := time.Now().Add(q.visibility)
	q.mu.Lock()
	for _, m := range msgs {
		q.inflight[m.ReceiptHandle] = inflightMessage{msg: m, deadline: deadline}
	}
	q.mu.Unlock()
	return msgs
}

// redeliverExpired moves timed-out in-flight messages back onto the channel.
func (q *MemoryQueue) redeliverExpired() {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	for handle, entry := range q.inflight {
		if now.Before(entry.deadline) {
			continue
		}
		select {
		case q.ch <- entry.msg:
			delete(q.inflight, handle)
		default:
			// channel full; retried on the next receive
		}
	}
}
