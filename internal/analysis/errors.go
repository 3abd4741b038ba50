package analysis

import "errors"

// ProviderError wraps a failure from the LLM backend. Transient failures
// (timeouts, rate limits, 5xx) are retried with backoff; permanent ones
// (bad credentials, malformed requests) surface immediately.
type ProviderError struct {
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Transient {
		return "transient provider error: " + e.Err.Error()
	}
	return "permanent provider error: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}
