package services

import "errors"

// Error taxonomy shared across the Router, Scheduler, Gateway, and
// Component services. Recoverable failures (Timeout, Unavailable,
// ProviderError) are the ones Router.Route converts into a simplified
// result rather than propagating.
var (
	ErrNotFound      = errors.New("services: not found")
	ErrInvalid       = errors.New("services: invalid request")
	ErrTimeout       = errors.New("services: timed out")
	ErrUnavailable   = errors.New("services: provider unavailable")
	ErrProviderError = errors.New("services: provider error")
	ErrCancelled     = errors.New("services: cancelled")
)
