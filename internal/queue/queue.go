// Package queue abstracts the outcome-event transport between dispatch
// workers and the status reconciler: AWS SQS in production, an in-memory
// buffered channel for single-process and test runs.
package queue

import "context"

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Client is the transport surface consumed by the reconciler and fed by the
// outbox deliverer.
type Client interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}
