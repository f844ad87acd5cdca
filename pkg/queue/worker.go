package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/heraldhq/herald/pkg/config"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker polls one channel queue and drives claimed messages through the
// processor. The worker owns claim, heartbeat, and disposition (delete or
// release); the processor owns the pipeline.
type Worker struct {
	id        string
	queueName string
	queue     Queue
	cfg       config.QueueConfig
	processor MessageProcessor
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Health tracking
	mu                sync.RWMutex
	status            WorkerStatus
	currentMessageID  string
	messagesProcessed int
	lastActivity      time.Time
}

// NewWorker creates a queue worker bound to one logical queue.
func NewWorker(id, queueName string, q Queue, cfg config.QueueConfig, processor MessageProcessor) *Worker {
	return &Worker{
		id:        id,
		queueName: queueName,
		queue:     q,
		cfg:       cfg,
		processor: processor,
		stopCh:    make(chan struct{}),
		status:    WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// message. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Queue:             w.queueName,
		Status:            string(w.status),
		CurrentMessageID:  w.currentMessageID,
		MessagesProcessed: w.messagesProcessed,
		LastActivity:      w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "queue", w.queueName)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoMessages) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing message", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one message, runs the pipeline under the handler
// budget with an active heartbeat, and settles the message.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	msg, err := w.queue.Receive(ctx, w.queueName)
	if err != nil {
		return err
	}

	log := slog.With("message_id", msg.ID, "worker_id", w.id,
		"receive_count", msg.ReceiveCount)
	log.Info("Message claimed")

	w.setStatus(WorkerStatusWorking, msg.ID.String())
	defer w.setStatus(WorkerStatusIdle, "")

	// Heartbeat keeps the lease alive for the duration of the pipeline.
	hb := StartHeartbeat(w.queue, msg.ReceiptHandle, w.cfg.HeartbeatInterval, w.cfg.LeaseExtension)

	procCtx, cancel := context.WithTimeout(ctx, w.cfg.HandlerTimeout)
	outcome := w.processor.Process(procCtx, msg)
	cancel()

	// Stop before settling: an extension racing the delete would resurrect
	// the lease on a row that no longer exists.
	hb.Stop()
	if hbErr := hb.LastError(); hbErr != nil {
		// A dead heartbeat on a successful message is only worth a warning;
		// on a failing message the release below redelivers anyway.
		log.Warn("Heartbeat recorded an error", "error", hbErr)
	}

	// Settle with a background context: the processing context may already
	// be cancelled, and an unsettled success would cause a duplicate send
	// on redelivery.
	settleCtx, settleCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer settleCancel()

	if outcome.Success {
		if err := w.queue.Delete(settleCtx, msg.ReceiptHandle); err != nil {
			log.Error("Failed to delete settled message", "error", err)
			return err
		}
	} else {
		log.Warn("Message failed, releasing for redelivery", "reason", outcome.Reason)
		if err := w.queue.Release(settleCtx, msg.ReceiptHandle, outcome.Reason); err != nil {
			log.Error("Failed to release message", "error", err)
			return err
		}
	}

	w.mu.Lock()
	w.messagesProcessed++
	w.mu.Unlock()

	log.Info("Message processing complete", "success", outcome.Success)
	return nil
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, messageID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentMessageID = messageID
	w.lastActivity = time.Now()
}
