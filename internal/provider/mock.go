package provider

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockAdapter simulates an upstream vendor for local development and tests.
// Reservations succeed unless FailureRate triggers; a code "arrives" after
// CodeDelay has elapsed since the reservation.
type MockAdapter struct {
	// AdapterName defaults to "mock".
	AdapterName string
	// FailureRate is the probability (0.0 to 1.0) that RequestNumber fails.
	FailureRate float64
	// CodeDelay is how long after reservation PollForCode starts returning a code.
	CodeDelay time.Duration
	// CostMicros is the base cost reported for every supported pair.
	CostMicros int64

	mu       sync.Mutex
	reserved map[string]time.Time
	seq      int
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		AdapterName: "mock",
		CodeDelay:   5 * time.Second,
		CostMicros:  250_000,
		reserved:    make(map[string]time.Time),
	}
}

func (m *MockAdapter) Name() string {
	if m.AdapterName == "" {
		return "mock"
	}
	return m.AdapterName
}

func (m *MockAdapter) Supports(serviceCode, country string) bool {
	return serviceCode != "" && country != ""
}

func (m *MockAdapter) ServiceCost(serviceCode, country string) (int64, error) {
	if !m.Supports(serviceCode, country) {
		return 0, ErrServiceNotSupported
	}
	return m.CostMicros, nil
}

func (m *MockAdapter) RequestNumber(ctx context.Context, serviceCode, country string) (*Reservation, error) {
	if !m.Supports(serviceCode, country) {
		return nil, ErrServiceNotSupported
	}
	if m.FailureRate > 0 && rand.Float64() < m.FailureRate {
		return nil, fmt.Errorf("%w: mock failure", ErrProviderUnavailable)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	externalID := fmt.Sprintf("mock-%d", m.seq)
	m.reserved[externalID] = time.Now()

	return &Reservation{
		ExternalID:  externalID,
		PhoneNumber: fmt.Sprintf("+1555%07d", rand.Intn(10_000_000)),
		CostMicros:  m.CostMicros,
	}, nil
}

func (m *MockAdapter) CancelNumber(ctx context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, externalID)
	return nil
}

func (m *MockAdapter) PollForCode(ctx context.Context, externalID string) (*Code, error) {
	m.mu.Lock()
	reservedAt, ok := m.reserved[externalID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown reservation %s", ErrProviderUnavailable, externalID)
	}
	if time.Since(reservedAt) < m.CodeDelay {
		return nil, nil
	}
	code := fmt.Sprintf("%06d", rand.Intn(1_000_000))
	return &Code{
		Code:    code,
		Message: "Your verification code is " + code,
		State:   "received",
	}, nil
}

func (m *MockAdapter) Ping(ctx context.Context) error { return nil }
