package providers

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error taxonomy for provider calls. The fallback orchestration catches all
// of these and only lets ExhaustedError escape to interactive callers.
// -----------------------------------------------------------------------------

// ErrQuotaExceeded marks a provider skipped because its local quota window
// is exhausted. Not a provider failure; no call slot was consumed.
var ErrQuotaExceeded = errors.New("quota exceeded")

// -----------------------------------------------------------------------------

// ShapeError means the response parsed but is missing the expected
// structure. Logged distinctly because it can indicate an upstream API
// contract change rather than transient unavailability.
type ShapeError struct {
	Provider string
	Detail   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape: %s", e.Provider, e.Detail)
}

// -----------------------------------------------------------------------------

// RateLimitError means the provider itself said no: either an HTTP 429 or
// a rate-limit notice embedded in an otherwise well-formed payload.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: upstream rate limit: %s", e.Provider, e.Message)
}

// -----------------------------------------------------------------------------

// TransportError wraps network and timeout failures.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------

// ExhaustedError aggregates a fan-out where every enabled provider was
// skipped or failed. Carries the last underlying cause.
type ExhaustedError struct {
	Symbol     string
	UpdateType string
	Last       error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("all providers exhausted for %s %s update", e.Symbol, e.UpdateType)
	}
	return fmt.Sprintf("all providers exhausted for %s %s update, last error: %v", e.Symbol, e.UpdateType, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
