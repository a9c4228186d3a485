package events

import (
	"time"

	"github.com/sony/gobreaker"
)

const (
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
	breakerInterval = time.Minute
)

// NewBreaker returns a circuit breaker that opens after consecutive
// failures and probes again after breakerTimeout.
func NewBreaker(name string, logger Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = noopLogger{}
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: breakerInterval,
		Timeout:  breakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
