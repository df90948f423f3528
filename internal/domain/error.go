package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Delivery errors. ErrAuth is fatal for a channel and is never retried;
	// ErrTransport is recovered locally (poll fallback or reconnect) and only
	// surfaced once retries exhaust.
	ErrAuth            = errors.New("missing or invalid channel credential")
	ErrTransport       = errors.New("transport failure")
	ErrDeliveryTimeout = errors.New("polling exhausted without a terminal status")
	ErrScopeMismatch   = errors.New("terminal event outside the active conversation")
	ErrJobNotActive    = errors.New("job is not in the active set")
	ErrSessionClosed   = errors.New("delivery registry is closed")
)
