package resilience

import (
	"errors"
	"strings"
)

// rateLimitMarkers are substrings that identify throttling responses from
// upstream APIs that don't expose a typed error.
var rateLimitMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"ratelimit",
	"quota exceeded",
	"resource exhausted",
}

// RateLimitError marks an error as throttling so it is retried with backoff.
type RateLimitError struct {
	Err        error
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return e.Err.Error()
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError wraps err as a rate-limit error.
func NewRateLimitError(err error, statusCode int) *RateLimitError {
	return &RateLimitError{Err: err, StatusCode: statusCode}
}

// IsRateLimited reports whether err (or anything in its chain) is a
// RateLimitError or its message carries one of the rate-limit markers.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
