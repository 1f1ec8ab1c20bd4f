package fetch

import (
	"fmt"
	"time"
)

// NetworkError covers DNS, connect, TLS, and timeout failures. Retryable.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx, non-304 response. RetryAfter is non-zero when
// the server sent a usable Retry-After header.
type UpstreamError struct {
	URL        string
	Status     int
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fetching %s: upstream returned %d", e.URL, e.Status)
}
