// Package batch runs many dispatches concurrently and aggregates their outcomes.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/pmdispatch/internal/config"
	"github.com/aristath/pmdispatch/internal/dispatch"
	"github.com/aristath/pmdispatch/internal/events"
	"github.com/aristath/pmdispatch/internal/taskdoc"
)

// Dispatcher is the part of dispatch.Dispatcher the coordinator drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, agent string, ref taskdoc.Ref, opts dispatch.Options) dispatch.Outcome
}

// Config configures a Coordinator.
type Config struct {
	Dispatcher Dispatcher
	Events     events.Publisher // optional
	Clock      func() time.Time // optional

	// Retry is applied to retryable failures when MaxRetries > 0.
	Retry RetryConfig
	// Registry maps agents to providers for the circuit breakers; when nil
	// each agent gets its own breaker.
	Registry *config.Config
	Breakers *CircuitBreakerRegistry // optional, created on demand
}

// Coordinator runs batches. A coordinator may run several batches over its
// lifetime; breaker state is shared between them.
type Coordinator struct {
	cfg Config
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Breakers == nil {
		cfg.Breakers = NewCircuitBreakerRegistry()
	}
	return &Coordinator{cfg: cfg}
}

// Run dispatches every pair at once and waits for all of them. A failing
// dispatch never cancels the others. The returned error is non-nil only when
// the batch was rejected before anything was dispatched.
func (c *Coordinator) Run(ctx context.Context, pairs []Pair) (Result, error) {
	if err := Validate(pairs); err != nil {
		return Result{}, err
	}

	res := Result{
		BatchID:  uuid.NewString(),
		Outcomes: make([]dispatch.Outcome, len(pairs)),
	}
	start := c.cfg.Clock()

	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = p.String()
	}
	c.cfg.Events.Publish(events.BatchStartedEvent{
		BatchID:   res.BatchID,
		Pairs:     names,
		Timestamp: start,
	})

	progress := &tally{total: len(pairs)}

	// Each member writes only its own slot and always returns nil, so Wait
	// is a plain join.
	var g errgroup.Group
	for i, p := range pairs {
		g.Go(func() error {
			out := c.dispatch(ctx, p)
			res.Outcomes[i] = out

			ev := progress.record(out)
			ev.BatchID = res.BatchID
			ev.Timestamp = c.cfg.Clock()
			ev.Elapsed = ev.Timestamp.Sub(start)
			c.cfg.Events.Publish(ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("batch %s: %w", res.BatchID, err)
	}

	res.Elapsed = c.cfg.Clock().Sub(start)
	return res, nil
}

func (c *Coordinator) dispatch(ctx context.Context, p Pair) dispatch.Outcome {
	if c.cfg.Retry.MaxRetries == 0 {
		return c.cfg.Dispatcher.Dispatch(ctx, p.Agent, p.Task, dispatch.Options{})
	}
	return dispatchWithRetry(ctx, c.cfg.Dispatcher, p, c.cfg.Breakers.Get(c.providerOf(p.Agent)), c.cfg.Retry)
}

func (c *Coordinator) providerOf(agent string) string {
	if c.cfg.Registry != nil {
		if a, ok := c.cfg.Registry.Agent(agent); ok && a.Provider != "" {
			return a.Provider
		}
	}
	return agent
}

// tally counts terminal outcomes as they arrive.
type tally struct {
	mu        sync.Mutex
	total     int
	succeeded int
	failed    int
	cost      float64
}

func (t *tally) record(out dispatch.Outcome) events.BatchProgressEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	if out.Success {
		t.succeeded++
		t.cost += out.CostUSD
	} else {
		t.failed++
	}
	return events.BatchProgressEvent{
		Total:     t.total,
		Succeeded: t.succeeded,
		Failed:    t.failed,
		CostUSD:   t.cost,
	}
}
