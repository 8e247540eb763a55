package events

import (
	"time"
)

// Event is the base interface for all dispatch lifecycle events.
type Event interface {
	Topic() string
	EventType() string
	DispatchID() string
}

// Topic constants
const (
	TopicDispatch = "dispatch"
	TopicBatch    = "batch"
)

// Event type constants
const (
	EventTypeDispatchStarted    = "dispatch.started"
	EventTypeDispatchNarration  = "dispatch.narration"
	EventTypeDispatchCompaction = "dispatch.compaction"
	EventTypeDispatchSucceeded  = "dispatch.succeeded"
	EventTypeDispatchFailed     = "dispatch.failed"
	EventTypeBatchStarted       = "batch.started"
	EventTypeBatchProgress      = "batch.progress"
)

// DispatchStartedEvent is published once the engine accepted the request.
type DispatchStartedEvent struct {
	ID        string
	Agent     string
	Task      string
	Resumed   bool // a resumption token was attached
	Timestamp time.Time
}

func (e DispatchStartedEvent) Topic() string      { return TopicDispatch }
func (e DispatchStartedEvent) EventType() string  { return EventTypeDispatchStarted }
func (e DispatchStartedEvent) DispatchID() string { return e.ID }

// NarrationEvent carries assistant text and tool-invocation notices.
// Observability only; nothing acts on it.
type NarrationEvent struct {
	ID        string
	Agent     string
	Text      string
	Tools     []string
	Timestamp time.Time
}

func (e NarrationEvent) Topic() string      { return TopicDispatch }
func (e NarrationEvent) EventType() string  { return EventTypeDispatchNarration }
func (e NarrationEvent) DispatchID() string { return e.ID }

// CompactionEvent is published when the engine compacted the agent's context.
type CompactionEvent struct {
	ID        string
	Agent     string
	Timestamp time.Time
}

func (e CompactionEvent) Topic() string      { return TopicDispatch }
func (e CompactionEvent) EventType() string  { return EventTypeDispatchCompaction }
func (e CompactionEvent) DispatchID() string { return e.ID }

// DispatchSucceededEvent is published when a dispatch reached Succeeded.
type DispatchSucceededEvent struct {
	ID        string
	Agent     string
	Task      string
	CostUSD   float64
	Duration  time.Duration // engine-reported
	Elapsed   time.Duration // wall clock
	Timestamp time.Time
}

func (e DispatchSucceededEvent) Topic() string      { return TopicDispatch }
func (e DispatchSucceededEvent) EventType() string  { return EventTypeDispatchSucceeded }
func (e DispatchSucceededEvent) DispatchID() string { return e.ID }

// DispatchFailedEvent is published when a dispatch reached Failed.
type DispatchFailedEvent struct {
	ID        string
	Agent     string
	Task      string
	Kind      string
	Err       error
	Elapsed   time.Duration
	Timestamp time.Time
}

func (e DispatchFailedEvent) Topic() string      { return TopicDispatch }
func (e DispatchFailedEvent) EventType() string  { return EventTypeDispatchFailed }
func (e DispatchFailedEvent) DispatchID() string { return e.ID }

// BatchStartedEvent lists every dispatch a batch submitted.
type BatchStartedEvent struct {
	BatchID   string
	Pairs     []string // "agent task" per dispatch, in submission order
	Timestamp time.Time
}

func (e BatchStartedEvent) Topic() string      { return TopicBatch }
func (e BatchStartedEvent) EventType() string  { return EventTypeBatchStarted }
func (e BatchStartedEvent) DispatchID() string { return "" }

// BatchProgressEvent is published whenever a member dispatch reaches a terminal state.
type BatchProgressEvent struct {
	BatchID   string
	Total     int
	Succeeded int
	Failed    int
	CostUSD   float64 // over succeeded dispatches only
	Elapsed   time.Duration
	Timestamp time.Time
}

// Running is the number of dispatches not yet terminal.
func (e BatchProgressEvent) Running() int { return e.Total - e.Succeeded - e.Failed }

func (e BatchProgressEvent) Topic() string      { return TopicBatch }
func (e BatchProgressEvent) EventType() string  { return EventTypeBatchProgress }
func (e BatchProgressEvent) DispatchID() string { return "" }
