// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client, transport and backend layers.
var (
	// ErrUnauthorized indicates bad credentials or a missing/expired session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates input rejected before (or by) the backend, e.g. an empty message.
	ErrValidation = errors.New("validation")

	// ErrNetwork indicates a connectivity or server-side failure of a transport call.
	ErrNetwork = errors.New("network")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")
)
