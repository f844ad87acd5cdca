package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/heraldhq/herald/pkg/config"
	"github.com/heraldhq/herald/pkg/models"
)

// WorkerPool manages the workers for every configured channel queue.
type WorkerPool struct {
	queue     Queue
	cfg       config.QueueConfig
	processor MessageProcessor
	workers   []*Worker
	started   bool
}

// NewWorkerPool creates a pool with cfg.WorkerCount workers per channel.
func NewWorkerPool(q Queue, cfg config.QueueConfig, processor MessageProcessor) *WorkerPool {
	return &WorkerPool{
		queue:     q,
		cfg:       cfg,
		processor: processor,
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	for _, channel := range models.AllChannels {
		queueName, ok := p.cfg.QueueFor(channel)
		if !ok {
			continue
		}
		for i := 0; i < p.cfg.WorkerCount; i++ {
			workerID := fmt.Sprintf("%s-worker-%d", channel, i)
			worker := NewWorker(workerID, queueName, p.queue, p.cfg, p.processor)
			p.workers = append(p.workers, worker)
			worker.Start(ctx)
		}
	}

	if len(p.workers) == 0 {
		return fmt.Errorf("no channel queues configured")
	}

	slog.Info("Worker pool started", "workers", len(p.workers))
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current messages (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	var wg sync.WaitGroup
	for _, worker := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}
	wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	depths := make(map[string]int)
	deadDepths := make(map[string]int)
	healthy := len(p.workers) > 0
	for _, channel := range models.AllChannels {
		queueName, ok := p.cfg.QueueFor(channel)
		if !ok {
			continue
		}
		depth, err := p.queue.Depth(ctx, queueName)
		if err != nil {
			slog.Error("Failed to query queue depth", "queue", queueName, "error", err)
			healthy = false
			continue
		}
		depths[queueName] = depth

		dead, err := p.queue.DeadDepth(ctx, queueName)
		if err != nil {
			slog.Error("Failed to query dead-letter depth", "queue", queueName, "error", err)
			healthy = false
			continue
		}
		deadDepths[queueName] = dead
	}

	return &PoolHealth{
		IsHealthy:     healthy,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		QueueDepths:   depths,
		DeadDepths:    deadDepths,
		WorkerStats:   workerStats,
	}
}
