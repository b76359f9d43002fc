package models

import "errors"

// Typed failures surfaced by the order and wallet services. Handlers map
// these to HTTP statuses; none of them warrant a retry by the caller.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserSuspended       = errors.New("user suspended")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrOrderNotCancellable = errors.New("order not cancellable")
	ErrProviderRequest     = errors.New("provider request failed")
)
