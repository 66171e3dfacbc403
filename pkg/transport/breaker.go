package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	DefaultBreakerFailures    uint32        = 3
	DefaultBreakerOpenTimeout time.Duration = 30 * time.Second
)

// BreakerConfig configures the dial circuit breaker.
type BreakerConfig struct {
	// Failures is the number of consecutive dial failures before the circuit opens.
	Failures uint32

	// OpenTimeout is how long the circuit stays open before a probe is allowed.
	OpenTimeout time.Duration
}

// newDialBreaker builds the breaker guarding gateway dials. While open, a
// dial fails immediately, which the supervisor treats as an ordinary failed
// attempt.
func newDialBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[net.Conn] {
	failures := cfg.Failures
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultBreakerOpenTimeout
	}

	return gobreaker.NewCircuitBreaker[net.Conn](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one probe in half-open state
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
		},
		IsSuccessful: func(err error) bool {
			// An abandoned dial says nothing about the gateway.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// isBreakerRejection reports whether err came from the breaker itself.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
