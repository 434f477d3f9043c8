// Package reliability classifies transient sidecar failures and paces
// the retries around them.
package reliability

import "time"

// RetryableStatus reports whether an HTTP status from the engine or
// recognizer sidecar is worth retrying. 4xx responses other than 429
// are contract errors and never recover on their own.
func RetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Backoff computes a deterministic capped exponential backoff for the
// given attempt, starting at base for attempt zero.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
