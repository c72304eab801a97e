package retry

import "time"

// ExponentialBackoff returns the delay before the next attempt.
// The delay doubles with each attempt: base * 2^attempt.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	return base * (1 << attempt)
}

// CappedBackoff is ExponentialBackoff bounded by max, which keeps long
// retry chains from sleeping past the caller's deadline.
func CappedBackoff(attempt int, base, max time.Duration) time.Duration {
	d := ExponentialBackoff(attempt, base)
	if max > 0 && d > max {
		return max
	}
	return d
}
