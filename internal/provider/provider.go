package provider

import (
	"context"
	"errors"
)

// Failure classes shared by all adapters. Callers distinguish them with
// errors.Is; everything else coming out of an adapter is wrapped transport
// detail.
var (
	// ErrProviderUnavailable covers non-2xx responses, malformed bodies and
	// exhausted retries on transient network failures.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrServiceNotSupported means the vendor has no mapping for the
	// requested service/country pair.
	ErrServiceNotSupported = errors.New("service not supported by provider")
	// ErrRateLimited means the vendor kept answering 429 after backoff.
	ErrRateLimited = errors.New("provider rate limited")
)

// Reservation is a successfully reserved phone number. ExternalID is the
// vendor's opaque handle for the reservation; depending on the vendor it may
// be a plain request id or a full resource URL.
type Reservation struct {
	ExternalID  string
	PhoneNumber string
	CostMicros  int64
}

// Code is a verification code delivered by the vendor.
type Code struct {
	Code    string
	Message string
	State   string
}

// Adapter is the uniform interface to one upstream SMS vendor.
type Adapter interface {
	// Name returns the stable provider name used in Provider rows and the
	// registry, e.g. "smsman".
	Name() string

	// Supports reports whether the vendor has a mapping for the pair.
	Supports(serviceCode, country string) bool

	// ServiceCost returns the vendor's base cost in micros for the pair, or
	// ErrServiceNotSupported.
	ServiceCost(serviceCode, country string) (int64, error)

	// RequestNumber reserves a phone number for the pair.
	RequestNumber(ctx context.Context, serviceCode, country string) (*Reservation, error)

	// CancelNumber releases a reservation. Best-effort: callers log failures
	// and move on, a failed cancellation must never block a refund.
	CancelNumber(ctx context.Context, externalID string) error

	// PollForCode fetches the verification state. It returns (nil, nil)
	// while no code has arrived yet; that is the expected common case.
	PollForCode(ctx context.Context, externalID string) (*Code, error)

	// Ping performs a cheap authenticated call for health checking.
	Ping(ctx context.Context) error
}
