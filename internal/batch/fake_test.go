package batch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/aristath/pmdispatch/internal/dispatch"
	"github.com/aristath/pmdispatch/internal/taskdoc"
)

// scriptedDispatcher answers each agent with a canned outcome after a short
// random delay, so completion order differs from submission order.
type scriptedDispatcher struct {
	mu    sync.Mutex
	calls map[string]int
	// respond builds the outcome for the nth call (1-based) of an agent.
	respond func(agent string, n int) dispatch.Outcome
}

func newScripted(respond func(agent string, n int) dispatch.Outcome) *scriptedDispatcher {
	return &scriptedDispatcher{calls: make(map[string]int), respond: respond}
}

func (s *scriptedDispatcher) Dispatch(ctx context.Context, agent string, ref taskdoc.Ref, _ dispatch.Options) dispatch.Outcome {
	s.mu.Lock()
	s.calls[agent]++
	n := s.calls[agent]
	s.mu.Unlock()

	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)

	out := s.respond(agent, n)
	out.Agent = agent
	out.Task = ref
	if ctx.Err() != nil {
		return failed(dispatch.KindCanceled, ctx.Err())
	}
	return out
}

func (s *scriptedDispatcher) count(agent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[agent]
}

func succeeded(cost float64) dispatch.Outcome {
	return dispatch.Outcome{Success: true, State: dispatch.StateSucceeded, CostUSD: cost}
}

func failed(kind dispatch.ErrorKind, err error) dispatch.Outcome {
	return dispatch.Outcome{
		State:   dispatch.StateFailed,
		Failure: &dispatch.Failure{Kind: kind, Err: err},
	}
}

var errBrokenPipe = errors.New("broken pipe")

func streamFailure() dispatch.Outcome {
	return failed(dispatch.KindEngineStream, errBrokenPipe)
}

func pair(agent, id string) Pair {
	return Pair{Agent: agent, Task: taskdoc.Ref{Date: "2025-10-22", ID: id}}
}

func fastRetry(n uint64) RetryConfig {
	return RetryConfig{
		MaxRetries:      n,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  5 * time.Second,
		Multiplier:      2.0,
	}
}
