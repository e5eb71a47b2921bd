package driven

import (
	"errors"
	"fmt"
)

// Provider error taxonomy. Adapters wrap provider failures in a ProviderError
// whose Kind is one of these sentinels, so callers match with errors.Is.
var (
	// ErrAuthentication indicates a rejected or expired token (401/403).
	ErrAuthentication = errors.New("authentication failed")

	// ErrConnection indicates the provider could not be reached.
	ErrConnection = errors.New("connection failed")

	// ErrNotFound indicates the requested provider resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimit indicates the provider quota is exhausted. It is retryable
	// by the caller but never retried by this system.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrValidation indicates malformed input or configuration.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates the destination already holds a resource with the
	// requested name.
	ErrConflict = errors.New("conflict")
)

// ProviderError describes a failed call to a source or destination provider.
type ProviderError struct {
	Kind       error  // One of the taxonomy sentinels.
	Op         string // e.g. "list starred repositories".
	StatusCode int    // Zero when no HTTP response was received.
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Retryable reports whether a later attempt may succeed without user action.
func (e *ProviderError) Retryable() bool {
	return errors.Is(e.Kind, ErrRateLimit) || errors.Is(e.Kind, ErrConnection)
}

// IsRetryable reports whether err carries a retryable provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
