package model

import "errors"

// Error taxonomy for the boundary operations. Callers match with errors.Is;
// the concrete cause is carried in the wrapped message.
var (
	// ErrInvalidEvent marks a malformed or unenumerated ingest payload.
	// The producer must correct the event before retrying.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidParameter marks a bad query argument.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrStoreUnavailable marks a transient persistence failure. Reads may be
	// retried as-is; writes are retried by the producer, which may duplicate.
	ErrStoreUnavailable = errors.New("store unavailable")
)
