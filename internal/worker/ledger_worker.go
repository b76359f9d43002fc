package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/idempotency"
	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

// LedgerWorker runs periodic ledger chain verification and purges expired
// idempotency keys on the same schedule.
type LedgerWorker struct {
	ledger      *service.LedgerService
	idempotency *idempotency.Store
	retention   time.Duration
	interval    time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewLedgerWorker constructs a worker with a default hourly interval.
// idem may be nil when idempotency storage is not configured.
func NewLedgerWorker(ledger *service.LedgerService, idem *idempotency.Store) *LedgerWorker {
	return &LedgerWorker{
		ledger:      ledger,
		idempotency: idem,
		retention:   24 * time.Hour,
		interval:    time.Hour,
		stopCh:      make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *LedgerWorker) WithInterval(interval time.Duration) *LedgerWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithRetention updates how long finalized idempotency keys are kept.
func (w *LedgerWorker) WithRetention(retention time.Duration) *LedgerWorker {
	if retention > 0 {
		w.retention = retention
	}
	return w
}

// Start blocks and runs verification at the configured interval.
func (w *LedgerWorker) Start(ctx context.Context) {
	zap.L().Info("ledger worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Verify once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("ledger worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("ledger worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *LedgerWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *LedgerWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *LedgerWorker) runOnce(ctx context.Context) {
	breaks, err := w.ledger.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("ledger", "failed")
		zap.L().Error("ledger verification failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("ledger", "success")
	if len(breaks) > 0 {
		zap.L().Error("ledger verification found broken chains", zap.Int("count", len(breaks)))
	}

	if w.idempotency != nil {
		purged, err := w.idempotency.Purge(ctx, w.retention)
		if err != nil {
			zap.L().Error("idempotency purge failed", zap.Error(err))
		} else if purged > 0 {
			zap.L().Info("purged expired idempotency keys", zap.Int64("count", purged))
		}
	}
}
