package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/pmdispatch/internal/dispatch"
)

// RetryConfig configures exponential backoff retry of failed dispatches.
// Retry is off while MaxRetries is zero.
type RetryConfig struct {
	MaxRetries          uint64        // Retries after the first attempt
	InitialInterval     time.Duration // Initial retry interval (default 2s)
	MaxInterval         time.Duration // Maximum retry interval (default 30s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 15min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the retry configuration used for --retries.
func DefaultRetryConfig(maxRetries uint64) RetryConfig {
	return RetryConfig{
		MaxRetries:          maxRetries,
		InitialInterval:     2 * time.Second,
		MaxInterval:         30 * time.Second,
		MaxElapsedTime:      15 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// CircuitBreakerRegistry manages per-provider circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry() *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given provider, creating it on first use.
func (r *CircuitBreakerRegistry) Get(provider string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[provider]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			// Only stream failures say something about the provider.
			var f *dispatch.Failure
			if errors.As(err, &f) {
				return !f.Retryable()
			}
			return false
		},
	})

	r.breakers[provider] = cb
	return cb
}

// dispatchWithRetry runs one pair, retrying retryable failures with
// exponential backoff behind the provider's circuit breaker. It returns the
// outcome of the last attempt.
func dispatchWithRetry(ctx context.Context, d Dispatcher, p Pair, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) dispatch.Outcome {
	var (
		out      dispatch.Outcome
		attempts int
	)

	operation := func() error {
		_, err := cb.Execute(func() (interface{}, error) {
			attempts++
			out = d.Dispatch(ctx, p.Agent, p.Task, dispatch.Options{})
			if out.Success {
				return nil, nil
			}
			return nil, out.Failure
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			if attempts == 0 {
				out = rejectedOutcome(p, err)
			}
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil || !out.Failure.Retryable() {
			return backoff.Permanent(err)
		}

		log.Printf("WARNING: dispatch %s failed (attempt %d), retrying: %v", p, attempts, err)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = retryCfg.MaxElapsedTime
	policy.Multiplier = retryCfg.Multiplier
	policy.RandomizationFactor = retryCfg.RandomizationFactor

	_ = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retryCfg.MaxRetries), ctx))
	return out
}

// rejectedOutcome stands in for a dispatch the open breaker never let through.
func rejectedOutcome(p Pair, err error) dispatch.Outcome {
	return dispatch.Outcome{
		Task:  p.Task,
		Agent: p.Agent,
		State: dispatch.StateFailed,
		Failure: &dispatch.Failure{
			Kind: dispatch.KindEngineStream,
			Err:  fmt.Errorf("%w: %w", dispatch.ErrEngineStream, err),
		},
	}
}
