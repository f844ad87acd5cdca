package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGQueue is the PostgreSQL-backed work queue. Logical queues share one
// table, keyed by queue name; claiming uses FOR UPDATE SKIP LOCKED so
// concurrent receivers never contend on the same row.
type PGQueue struct {
	pool              *pgxpool.Pool
	visibilityTimeout time.Duration
	maxReceiveCount   int
}

// NewPGQueue creates a queue with the given lease and dead-letter settings.
func NewPGQueue(pool *pgxpool.Pool, visibilityTimeout time.Duration, maxReceiveCount int) *PGQueue {
	return &PGQueue{
		pool:              pool,
		visibilityTimeout: visibilityTimeout,
		maxReceiveCount:   maxReceiveCount,
	}
}

// Enqueue appends a message to the named queue, immediately visible.
func (q *PGQueue) Enqueue(ctx context.Context, queue string, body []byte, attrs Attributes) (uuid.UUID, error) {
	id := uuid.New()
	const stmt = `
		INSERT INTO queue_messages (id, queue, body, company_id, project_id, channel_method)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := q.pool.Exec(ctx, stmt, id, queue, body,
		attrs.CompanyID, attrs.ProjectID, attrs.ChannelMethod)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueueing message on %q: %w", queue, err)
	}
	return id, nil
}

// Receive claims the oldest visible message: it increments the receive
// count, grants a fresh receipt handle, and pushes visible_at forward by the
// visibility timeout. A message whose receive count would exceed the maximum
// is moved to the dead-letter table instead, and the next candidate is
// claimed. Returns ErrNoMessages when the queue has nothing visible.
func (q *PGQueue) Receive(ctx context.Context, queue string) (*Message, error) {
	for {
		msg, deadLettered, err := q.claimOne(ctx, queue)
		if err != nil {
			return nil, err
		}
		if deadLettered {
			continue
		}
		return msg, nil
	}
}

// claimOne runs one claim transaction. deadLettered=true means the candidate
// was moved to the dead table and the caller should try again.
func (q *PGQueue) claimOne(ctx context.Context, queue string) (msg *Message, deadLettered bool, err error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("starting claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const selectStmt = `
		SELECT id, body, company_id, project_id, channel_method,
		       receive_count, last_error, enqueued_at
		FROM queue_messages
		WHERE queue = $1 AND visible_at <= now()
		ORDER BY enqueued_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var (
		m         Message
		lastError *string
	)
	m.Queue = queue
	err = tx.QueryRow(ctx, selectStmt, queue).Scan(
		&m.ID, &m.Body, &m.Attributes.CompanyID, &m.Attributes.ProjectID,
		&m.Attributes.ChannelMethod, &m.ReceiveCount, &lastError, &m.EnqueuedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, ErrNoMessages
		}
		return nil, false, fmt.Errorf("querying visible message: %w", err)
	}

	m.ReceiveCount++
	if m.ReceiveCount > q.maxReceiveCount {
		if err := q.moveToDead(ctx, tx, &m, lastError); err != nil {
			return nil, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("committing dead-letter move: %w", err)
		}
		return nil, true, nil
	}

	m.ReceiptHandle = uuid.New()
	const claimStmt = `
		UPDATE queue_messages
		SET receipt_handle = $2, visible_at = now() + make_interval(secs => $3), receive_count = $4
		WHERE id = $1`
	if _, err := tx.Exec(ctx, claimStmt, m.ID, m.ReceiptHandle, q.visibilityTimeout.Seconds(), m.ReceiveCount); err != nil {
		return nil, false, fmt.Errorf("claiming message %s: %w", m.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing claim: %w", err)
	}
	return &m, false, nil
}

// moveToDead copies the message into the dead-letter table and removes it
// from the live queue within the caller's transaction.
func (q *PGQueue) moveToDead(ctx context.Context, tx pgx.Tx, m *Message, lastError *string) error {
	const insertStmt = `
		INSERT INTO queue_messages_dead
			(id, queue, body, company_id, project_id, channel_method,
			 receive_count, enqueued_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.Exec(ctx, insertStmt, m.ID, m.Queue, m.Body,
		m.Attributes.CompanyID, m.Attributes.ProjectID, m.Attributes.ChannelMethod,
		m.ReceiveCount-1, m.EnqueuedAt, lastError); err != nil {
		return fmt.Errorf("dead-lettering message %s: %w", m.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM queue_messages WHERE id = $1`, m.ID); err != nil {
		return fmt.Errorf("removing dead-lettered message %s: %w", m.ID, err)
	}
	return nil
}

// Delete removes an in-flight message by its receipt handle.
func (q *PGQueue) Delete(ctx context.Context, receipt uuid.UUID) error {
	tag, err := q.pool.Exec(ctx, `DELETE FROM queue_messages WHERE receipt_handle = $1`, receipt)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

// Release returns an in-flight message to the queue for immediate
// redelivery, recording the failure reason. Dead-lettering happens on the
// claim path once the receive count is exhausted.
func (q *PGQueue) Release(ctx context.Context, receipt uuid.UUID, reason string) error {
	const stmt = `
		UPDATE queue_messages
		SET receipt_handle = NULL, visible_at = now(), last_error = NULLIF($2, '')
		WHERE receipt_handle = $1`
	tag, err := q.pool.Exec(ctx, stmt, receipt, reason)
	if err != nil {
		return fmt.Errorf("releasing message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

// ExtendLease pushes the visibility horizon of an in-flight message forward.
// Called by the heartbeat while processing outlasts the initial lease.
func (q *PGQueue) ExtendLease(ctx context.Context, receipt uuid.UUID, extension time.Duration) error {
	const stmt = `
		UPDATE queue_messages
		SET visible_at = now() + make_interval(secs => $2)
		WHERE receipt_handle = $1`
	tag, err := q.pool.Exec(ctx, stmt, receipt, extension.Seconds())
	if err != nil {
		return fmt.Errorf("extending lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

// Depth returns the number of messages in the named queue (visible or not).
func (q *PGQueue) Depth(ctx context.Context, queue string) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx,
		`SELECT count(*) FROM queue_messages WHERE queue = $1`, queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying depth of %q: %w", queue, err)
	}
	return n, nil
}

// DeadDepth returns the number of dead-lettered messages for the named queue.
func (q *PGQueue) DeadDepth(ctx context.Context, queue string) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx,
		`SELECT count(*) FROM queue_messages_dead WHERE queue = $1`, queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying dead depth of %q: %w", queue, err)
	}
	return n, nil
}
