package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the circuit breaker is in open state
// and rejects requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds the configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the protected provider in state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required in half-open
	// state to close the circuit again.
	// Default: 2
	HalfOpenMaxSuccesses uint32

	// OnStateChange is called after every transition, if set.
	OnStateChange func(name, from, to string)
}

// CircuitBreaker wraps gobreaker to protect provider calls from cascading failures.
//
// When closed, requests pass through. After MaxFailures consecutive failures
// the circuit opens and rejects every request with ErrCircuitOpen until
// Timeout elapses; it then lets HalfOpenMaxSuccesses probe requests through
// before closing again. The breaker never retries: a failed call fails.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	config  CircuitBreakerConfig
}

// NewCircuitBreaker creates a new circuit breaker with default configuration:
// 3 failures to trip, 30 second open timeout, 2 successes to close.
func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		Name:                 "llm",
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	})
}

// NewCircuitBreakerWithConfig creates a new circuit breaker with custom configuration.
func NewCircuitBreakerWithConfig(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "llm"
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}

	cb := &CircuitBreaker{
		config: config,
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if config.OnStateChange != nil {
				config.OnStateChange(name, stateName(from), stateName(to))
			}
		},
	}

	cb.breaker = gobreaker.NewCircuitBreaker(settings)
	return cb
}

// Execute runs fn through the circuit breaker.
// If the circuit is open, it returns ErrCircuitOpen immediately.
// A context that is already done returns its error and fn is not called.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := cb.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		return fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}

	return result, err
}

// executeTyped is Execute with a typed result.
func executeTyped[T any](ctx context.Context, cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(ctx, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, errors.New("circuit breaker: unexpected result type")
	}
	return typed, nil
}

// State returns the current state of the circuit breaker.
// Possible values: "closed", "open", "half-open"
func (cb *CircuitBreaker) State() string {
	return stateName(cb.breaker.State())
}

func stateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// newProviderBreaker returns the breaker every provider client uses. State
// transitions are logged; an opening circuit is a warning.
func newProviderBreaker(name string, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		Name:                 name,
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
		OnStateChange: func(name, from, to string) {
			log := logger.Info
			if to == "open" {
				log = logger.Warn
			}
			log("circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from),
				zap.String("to", to))
		},
	})
}
