package tracking

import "errors"

// Failure taxonomy for the tracking read path. The session path is fatal
// to a read; coordinate failures are absorbed by the assembler.
var (
	ErrMissingToken       = errors.New("tracking token is required")
	ErrSessionNotFound    = errors.New("tracking session not found or expired")
	ErrSessionExpired     = errors.New("tracking session has expired")
	ErrBackendUnavailable = errors.New("failed to fetch tracking session")
)
