// Package engine adapts external agent-execution CLIs to a stream of typed events.
package engine

import (
	"context"
	"fmt"
)

// Engine starts agent invocations.
type Engine interface {
	// Name identifies the adapter (e.g. "claude").
	Name() string

	// Start launches an invocation and returns its event stream.
	Start(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events in arrival order.
type Stream interface {
	// Recv returns the next event. It returns io.EOF once the engine exited
	// cleanly after its last event, and any other error if the transport failed.
	Recv() (Event, error)

	// Close releases the invocation, terminating it if it is still running.
	Close() error
}

// New creates an engine adapter based on cfg.Type.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func New(cfg Config, pm *ProcessManager) (Engine, error) {
	switch cfg.Type {
	case "claude":
		return NewClaudeEngine(cfg, pm), nil
	case "codex":
		return NewCodexEngine(cfg, pm), nil
	default:
		return nil, fmt.Errorf("unknown engine type: %s", cfg.Type)
	}
}
