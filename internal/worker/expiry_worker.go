package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

// ExpiryWorker refunds orders whose number reservation window has lapsed.
// Safe to run alongside lazy expiry on status reads; both paths take the
// order row lock and check the state before refunding.
type ExpiryWorker struct {
	orders    *service.OrderService
	interval  time.Duration
	batchSize int32
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewExpiryWorker constructs a worker with a default one-minute sweep.
func NewExpiryWorker(orders *service.OrderService) *ExpiryWorker {
	return &ExpiryWorker{
		orders:    orders,
		interval:  time.Minute,
		batchSize: 50,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *ExpiryWorker) WithInterval(interval time.Duration) *ExpiryWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize caps how many overdue orders a single sweep handles.
func (w *ExpiryWorker) WithBatchSize(size int32) *ExpiryWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *ExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("expiry worker starting",
		zap.Duration("interval", w.interval),
		zap.Int32("batch_size", w.batchSize))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("expiry worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("expiry worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ExpiryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ExpiryWorker) runOnce(ctx context.Context) {
	expired, err := w.orders.ExpireOverdueOrders(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("expiry", "failed")
		zap.L().Error("expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("expiry", "success")
	if expired > 0 {
		zap.L().Info("expired overdue orders", zap.Int("count", expired))
	}
}
