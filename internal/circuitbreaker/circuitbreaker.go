// Package circuitbreaker wraps sony/gobreaker/v2 with the defaults and
// naming convention used across the codebase's fallback paths.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// DefaultConfig returns a gobreaker.Settings tuned for an I/O fallback path:
// a dependency that trips after 5 consecutive failures and gets a single
// trial request every 30s while open.
func DefaultConfig(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// New constructs a generic circuit breaker for calls returning a T.
func New[T any](settings gobreaker.Settings) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](settings)
}
