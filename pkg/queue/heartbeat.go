package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Heartbeat periodically extends the lease of a single in-flight message so
// that long pipeline steps (LLM polling in particular) do not outlast the
// visibility timeout. One heartbeat per message; it holds only the receipt
// handle, never pipeline state.
//
// The first extension error is captured and the loop self-terminates; the
// caller decides via LastError whether that matters (a heartbeat error never
// fails a message that otherwise succeeded).
type Heartbeat struct {
	extender  LeaseExtender
	receipt   uuid.UUID
	interval  time.Duration
	extension time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

// StartHeartbeat launches the lease-extension loop. interval must be
// strictly less than extension (enforced at config load).
func StartHeartbeat(extender LeaseExtender, receipt uuid.UUID, interval, extension time.Duration) *Heartbeat {
	h := &Heartbeat{
		extender:  extender,
		receipt:   receipt,
		interval:  interval,
		extension: extension,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Stop signals the loop to terminate and blocks until it has exited.
// Safe to call multiple times.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.doneCh
}

// LastError returns the first extension error encountered, if any.
func (h *Heartbeat) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Heartbeat) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.interval)
			err := h.extender.ExtendLease(ctx, h.receipt, h.extension)
			cancel()
			if err != nil {
				h.mu.Lock()
				h.err = err
				h.mu.Unlock()
				slog.Warn("Heartbeat lease extension failed, stopping",
					"receipt_handle", h.receipt, "error", err)
				return
			}
		}
	}
}
