package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAgent is returned when the agent identity is not registered.
	ErrUnknownAgent = errors.New("unknown agent identity")

	// ErrEngineStream wraps every failure raised by, or reported through, the engine's event stream.
	ErrEngineStream = errors.New("engine stream error")

	// ErrEngineUnavailable is returned when no engine is configured for an agent's provider.
	ErrEngineUnavailable = errors.New("no engine for provider")

	// ErrNoResult is returned when the stream ended without a terminal result event.
	ErrNoResult = errors.New("stream ended without a result event")
)

// ErrorKind classifies a failed dispatch.
type ErrorKind string

const (
	KindUnknownAgent ErrorKind = "unknown_agent"
	KindTaskNotFound ErrorKind = "task_not_found"
	KindEngineStream ErrorKind = "engine_stream"
	KindEngineSetup  ErrorKind = "engine_unavailable" // configuration, never retried
	KindSessionStore ErrorKind = "session_store"
	KindReportWrite  ErrorKind = "report_write"
	KindCanceled     ErrorKind = "canceled"
)

// Failure is the error detail of a failed outcome.
type Failure struct {
	Kind ErrorKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether a later attempt could succeed without operator action.
func (f *Failure) Retryable() bool {
	return f != nil && f.Kind == KindEngineStream
}
