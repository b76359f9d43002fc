package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

// HealthWorker pings every registered vendor and records status changes.
type HealthWorker struct {
	health   *service.ProviderHealthService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHealthWorker constructs a worker with a default thirty-second interval.
func NewHealthWorker(health *service.ProviderHealthService) *HealthWorker {
	return &HealthWorker{
		health:   health,
		interval: 30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the check interval.
func (w *HealthWorker) WithInterval(interval time.Duration) *HealthWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs health checks at the configured interval.
func (w *HealthWorker) Start(ctx context.Context) {
	zap.L().Info("provider health worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Establish initial health before the first tick.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("provider health worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("provider health worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *HealthWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *HealthWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *HealthWorker) runOnce(ctx context.Context) {
	if err := w.health.Run(ctx); err != nil {
		observability.IncrementWorkerRun("provider_health", "failed")
		zap.L().Error("provider health check failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("provider_health", "success")
}
