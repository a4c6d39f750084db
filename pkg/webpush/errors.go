package webpush

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConfigured = errors.New("webpush VAPID keys are not configured")
	ErrSendFailed    = errors.New("webpush send failed")
)

// SendError is a structured transport failure carrying the push service's
// HTTP status code. It is returned, not panicked, so callers classify it with
// errors.As and the helpers below.
type SendError struct {
	StatusCode int
	Message    string
	// Headers holds selected response headers (e.g. Retry-After) for the
	// delivery audit trail.
	Headers map[string]string
}

func (e *SendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("push service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned status %d: %s", e.StatusCode, e.Message)
}

// Code returns the status code as a string suitable for the delivery
// error_code field, or "UNKNOWN" for errors without a status code.
func Code(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return fmt.Sprintf("%d", se.StatusCode)
	}
	return "UNKNOWN"
}

// IsGone reports whether the push service declared the endpoint permanently
// gone (410). A gone endpoint is never retried and its subscription must be
// deactivated.
func IsGone(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.StatusCode == http.StatusGone
}

// IsRetryable classifies a transport failure for retry purposes.
//
// Retryable: network errors (no status code), 5xx, 408 and 429. The push
// protocol uses 429 for rate limiting that resolves on its own, so it is
// treated as transient here; 410 and the remaining 4xx codes indicate a
// request that will not succeed by repeating it.
func IsRetryable(err error) bool {
	var se *SendError
	if !errors.As(err, &se) {
		// Network error, timeout or unknown failure.
		return true
	}

	switch {
	case se.StatusCode == http.StatusGone:
		return false
	case se.StatusCode == http.StatusRequestTimeout, se.StatusCode == http.StatusTooManyRequests:
		return true
	case se.StatusCode >= 400 && se.StatusCode < 500:
		return false
	default:
		return true
	}
}
