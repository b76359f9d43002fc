package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

// PollWorker asks vendors for SMS codes on orders still waiting for one.
type PollWorker struct {
	orders    *service.OrderService
	interval  time.Duration
	batchSize int32
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewPollWorker constructs a worker with a default five-second cadence.
func NewPollWorker(orders *service.OrderService) *PollWorker {
	return &PollWorker{
		orders:    orders,
		interval:  5 * time.Second,
		batchSize: 25,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the polling cadence.
func (w *PollWorker) WithInterval(interval time.Duration) *PollWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize caps how many waiting orders a single pass polls.
func (w *PollWorker) WithBatchSize(size int32) *PollWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and polls at the configured cadence.
func (w *PollWorker) Start(ctx context.Context) {
	zap.L().Info("poll worker starting",
		zap.Duration("interval", w.interval),
		zap.Int32("batch_size", w.batchSize))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("poll worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("poll worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *PollWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *PollWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *PollWorker) runOnce(ctx context.Context) {
	completed, err := w.orders.PollAwaitingOrders(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("poll", "failed")
		zap.L().Error("sms poll pass failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("poll", "success")
	if completed > 0 {
		zap.L().Info("completed orders from poll pass", zap.Int("count", completed))
	}
}
