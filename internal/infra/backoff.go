package infra

import "time"

const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 10 * time.Second
)

// CalculateBackoff returns the exponential delay before retry number attempt
// (0-based), capped at backoffMax.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		return backoffMax
	}
	d := backoffBase << uint(attempt)
	if d > backoffMax {
		return backoffMax
	}
	return d
}
