// Package queue provides named durable queues with delayed enqueue,
// visibility-timeout based receive, and receipt-token acknowledgment.
// Delivery is at-least-once: a message that is not deleted before its
// visibility deadline becomes eligible for redelivery.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrReceiptMismatch is returned when a delete or visibility extension
	// carries a receipt token from a superseded delivery.
	ErrReceiptMismatch = errors.New("receipt token does not match current delivery")

	// ErrMessageNotFound is returned when the message no longer exists.
	ErrMessageNotFound = errors.New("message not found")
)

// Message is a single delivery of a queued payload.
type Message struct {
	ID       string
	Payload  []byte
	Receipt  string
	Attempts int
}

// EnqueueOptions controls message placement.
type EnqueueOptions struct {
	// Delay keeps the message invisible for the given duration before it
	// becomes eligible for delivery.
	Delay time.Duration
	// TTL discards the message if it has not been consumed within the
	// duration. Zero means no expiry.
	TTL time.Duration
}

// ReceiveOptions controls a batched receive.
type ReceiveOptions struct {
	MaxMessages       int
	VisibilityTimeout time.Duration
}

// Service is the durable queue contract shared by all pipeline components.
type Service interface {
	Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (string, error)
	Receive(ctx context.Context, queue string, opts ReceiveOptions) ([]Message, error)
	Delete(ctx context.Context, queue, messageID, receipt string) error
	ExtendVisibility(ctx context.Context, queue, messageID, receipt string, timeout time.Duration) error
	Length(ctx context.Context, queue string) (int64, error)
}
