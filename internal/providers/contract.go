package providers

import (
	"fmt"
	"strconv"
)

// StatusError captures a non-200 HTTP response from a provider. Drivers
// inspect it to classify the failure.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// ParseRetryAfter records a Retry-After header value given in seconds.
// Invalid or empty values are ignored.
func (e *StatusError) ParseRetryAfter(v string) {
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		e.RetryAfterSecs = secs
	}
}
