package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Sender is the transport side of delivery, satisfied by queue clients.
type Sender interface {
	Send(ctx context.Context, body string) error
}

// QueuePublisher delivers outbox envelopes onto a queue as JSON.
type QueuePublisher struct {
	sender Sender
}

func NewQueuePublisher(sender Sender) *QueuePublisher {
	if sender == nil {
		panic("events: sender required")
	}
	return &QueuePublisher{sender: sender}
}

var _ DeliveryHandler = (*QueuePublisher)(nil)

func (p *QueuePublisher) Handle(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	return p.sender.Send(ctx, string(body))
}
