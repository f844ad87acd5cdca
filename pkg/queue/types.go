// Package queue provides the per-channel work queue, message lease
// (visibility) management, and the worker pool that drives the channel
// processor.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for queue operations.
var (
	// ErrNoMessages indicates no visible messages are in the queue.
	ErrNoMessages = errors.New("no messages available")

	// ErrReceiptNotFound indicates the receipt handle no longer identifies an
	// in-flight message (lease expired and re-claimed, or message deleted).
	ErrReceiptNotFound = errors.New("receipt handle not found")
)

// Attributes are the optional message attributes used for consumer-side
// filtering and telemetry.
type Attributes struct {
	CompanyID     string
	ProjectID     string
	ChannelMethod string
}

// Message is one delivery of a queue message. ReceiveCount is the
// approximate number of times the message has been delivered, this delivery
// included.
type Message struct {
	ID            uuid.UUID
	Queue         string
	Body          []byte
	Attributes    Attributes
	ReceiptHandle uuid.UUID
	ReceiveCount  int
	EnqueuedAt    time.Time
}

// Queue is the at-least-once work queue contract. Receivers hold a lease
// (visibility timeout) on delivered messages; an expired lease makes the
// message deliverable again, and a message delivered more than the
// configured maximum lands in the dead-letter companion instead.
type Queue interface {
	Enqueue(ctx context.Context, queue string, body []byte, attrs Attributes) (uuid.UUID, error)
	Receive(ctx context.Context, queue string) (*Message, error)
	Delete(ctx context.Context, receipt uuid.UUID) error
	Release(ctx context.Context, receipt uuid.UUID, reason string) error
	ExtendLease(ctx context.Context, receipt uuid.UUID, extension time.Duration) error
	Depth(ctx context.Context, queue string) (int, error)
	DeadDepth(ctx context.Context, queue string) (int, error)
}

// LeaseExtender is the subset of Queue the heartbeat needs.
type LeaseExtender interface {
	ExtendLease(ctx context.Context, receipt uuid.UUID, extension time.Duration) error
}

// Outcome is the per-message processing result. Success deletes the message;
// failure releases it for redelivery (eventually to the dead-letter queue).
type Outcome struct {
	Success bool
	Reason  string
}

// MessageProcessor takes one delivered message through the processing
// pipeline. Messages are processed independently; an error on one must not
// affect siblings.
type MessageProcessor interface {
	Process(ctx context.Context, msg *Message) Outcome
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepths   map[string]int `json:"queue_depths"`
	DeadDepths    map[string]int `json:"dead_depths"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Queue             string    `json:"queue"`
	Status            string    `json:"status"` // "idle" or "working"
	CurrentMessageID  string    `json:"current_message_id,omitempty"`
	MessagesProcessed int       `json:"messages_processed"`
	LastActivity      time.Time `json:"last_activity"`
}
