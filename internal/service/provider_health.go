package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
	"github.com/enobongmedem-code/darnumber-sub000/internal/provider"
)

const healthPingTimeout = 5 * time.Second

// ProviderHealthService pings each registered vendor and records the result
// on the providers table, which gates order routing. One failed ping
// degrades a provider; a second consecutive failure takes it out of rotation
// entirely until a ping succeeds again.
type ProviderHealthService struct {
	store    QueryStore
	registry *provider.Registry

	mu       sync.Mutex
	failures map[string]int
}

func NewProviderHealthService(store QueryStore, registry *provider.Registry) *ProviderHealthService {
	return &ProviderHealthService{
		store:    store,
		registry: registry,
		failures: make(map[string]int),
	}
}

// Run checks every active provider once.
func (s *ProviderHealthService) Run(ctx context.Context) error {
	queries := s.store.Queries()
	rows, err := queries.ListProviders(ctx)
	if err != nil {
		return err
	}

	for i := range rows {
		row := &rows[i]
		if !row.IsActive {
			continue
		}
		adapter, err := s.registry.Get(row.Name)
		if err != nil {
			// Configured in the database but not wired in this deployment.
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		pingErr := adapter.Ping(pingCtx)
		cancel()

		next := s.nextStatus(row.Name, pingErr)
		observability.SetProviderHealth(row.Name, next)
		if next == row.HealthStatus {
			continue
		}
		if _, err := queries.UpdateProviderHealth(ctx, row.ID, next); err != nil {
			zap.L().Error("recording provider health failed",
				zap.String("provider", row.Name), zap.Error(err))
			continue
		}
		zap.L().Info("provider health changed",
			zap.String("provider", row.Name),
			zap.String("from", row.HealthStatus),
			zap.String("to", next),
			zap.Error(pingErr),
		)
	}
	return nil
}

func (s *ProviderHealthService) nextStatus(name string, pingErr error) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pingErr == nil {
		s.failures[name] = 0
		return domain.HealthStatusHealthy
	}
	s.failures[name]++
	if s.failures[name] >= 2 {
		return domain.HealthStatusDown
	}
	return domain.HealthStatusDegraded
}
