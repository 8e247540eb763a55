package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/aristath/pmdispatch/internal/config"
	"github.com/aristath/pmdispatch/internal/dispatch"
)

// TestDispatchWithRetry_TransientThenSuccess verifies stream failures are retried.
func TestDispatchWithRetry_TransientThenSuccess(t *testing.T) {
	d := newScripted(func(_ string, n int) dispatch.Outcome {
		if n < 3 {
			return streamFailure()
		}
		return succeeded(0.3)
	})

	cb := NewCircuitBreakerRegistry().Get("claude")
	out := dispatchWithRetry(context.Background(), d, pair("fe-implementor", "fe-task-001"), cb, fastRetry(3))

	if !out.Success {
		t.Fatalf("expected success after retries, got %v", out.Failure)
	}
	if got := d.count("fe-implementor"); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

// TestDispatchWithRetry_NonRetryable verifies that only stream failures are retried.
func TestDispatchWithRetry_NonRetryable(t *testing.T) {
	kinds := []dispatch.ErrorKind{dispatch.KindUnknownAgent, dispatch.KindTaskNotFound, dispatch.KindEngineSetup, dispatch.KindCanceled}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			d := newScripted(func(string, int) dispatch.Outcome {
				return failed(kind, errors.New("nope"))
			})

			cb := NewCircuitBreakerRegistry().Get("claude")
			out := dispatchWithRetry(context.Background(), d, pair("fe-implementor", "fe-task-001"), cb, fastRetry(5))

			if out.Success {
				t.Fatal("expected failure")
			}
			if out.Failure.Kind != kind {
				t.Errorf("expected kind %s, got %s", kind, out.Failure.Kind)
			}
			if got := d.count("fe-implementor"); got != 1 {
				t.Errorf("expected 1 attempt, got %d", got)
			}
			if cb.State() != gobreaker.StateClosed {
				t.Errorf("breaker should ignore %s failures, state %s", kind, cb.State())
			}
		})
	}
}

// TestDispatchWithRetry_MaxRetries verifies the last outcome is returned once retries run out.
func TestDispatchWithRetry_MaxRetries(t *testing.T) {
	d := newScripted(func(string, int) dispatch.Outcome { return streamFailure() })

	cb := NewCircuitBreakerRegistry().Get("claude")
	out := dispatchWithRetry(context.Background(), d, pair("be-implementor", "be-task-001"), cb, fastRetry(2))

	if out.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Failure, errBrokenPipe) {
		t.Errorf("expected last stream error, got %v", out.Failure)
	}
	if got := d.count("be-implementor"); got != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d", got)
	}
}

// TestCircuitBreaker_TripsAfterConsecutiveFailures verifies the breaker opens
// after five stream failures and then rejects without dispatching.
func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	d := newScripted(func(string, int) dispatch.Outcome { return streamFailure() })
	c := NewCoordinator(Config{
		Dispatcher: d,
		Retry:      fastRetry(10),
		Registry:   config.DefaultConfig(),
	})

	res, err := c.Run(context.Background(), []Pair{pair("fe-implementor", "fe-task-001")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.count("fe-implementor"); got != 5 {
		t.Errorf("expected breaker to stop after 5 attempts, got %d", got)
	}
	if res.Clean() {
		t.Error("expected failed batch")
	}

	// be-implementor shares the claude provider and therefore the open breaker.
	res, err = c.Run(context.Background(), []Pair{pair("be-implementor", "be-task-001")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.count("be-implementor"); got != 0 {
		t.Errorf("open breaker should reject without dispatching, got %d attempts", got)
	}
	out := res.Outcomes[0]
	if out.Failure == nil || out.Failure.Kind != dispatch.KindEngineStream {
		t.Fatalf("expected engine_stream failure, got %+v", out.Failure)
	}
	if !errors.Is(out.Failure, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", out.Failure)
	}
	if out.Agent != "be-implementor" || out.Task.ID != "be-task-001" {
		t.Errorf("rejected outcome lost its pair: %+v", out)
	}
}

// TestCircuitBreakerRegistry_Get verifies breakers are created once per provider.
func TestCircuitBreakerRegistry_Get(t *testing.T) {
	r := NewCircuitBreakerRegistry()
	if r.Get("claude") != r.Get("claude") {
		t.Error("expected the same breaker for the same provider")
	}
	if r.Get("claude") == r.Get("codex") {
		t.Error("expected distinct breakers per provider")
	}
}

// TestCircuitBreaker_CancellationNotCounted verifies context errors don't trip the breaker.
func TestCircuitBreaker_CancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreakerRegistry().Get("claude")
	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, context.Canceled
		})
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %s", cb.State())
	}
}
