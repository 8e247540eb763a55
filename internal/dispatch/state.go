package dispatch

import "fmt"

// State is the lifecycle position of one dispatch.
type State int

const (
	StateIdle State = iota
	StateRequested
	StateStreaming
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	case StateStreaming:
		return "streaming"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// transitions lists the legal successors of each state. Failed is reachable
// from every non-terminal state.
var transitions = map[State][]State{
	StateIdle:      {StateRequested, StateFailed},
	StateRequested: {StateStreaming, StateFailed},
	StateStreaming: {StateSucceeded, StateFailed},
}

// machine tracks one dispatch. A new dispatch is a new machine.
type machine struct {
	state State
}

func (m *machine) advance(to State) error {
	for _, next := range transitions[m.state] {
		if next == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal dispatch transition %s -> %s", m.state, to)
}
