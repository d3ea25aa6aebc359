// Package common defines shared constants and sentinel errors used across
// the note service layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Ingestion / admission errors.
	ErrValidation    = errors.New("validation error")
	ErrQuotaExceeded = errors.New("active job quota exceeded")
	ErrQueueBusy     = errors.New("processing queue is full")

	// Job state machine errors.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// Collaborator errors.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
