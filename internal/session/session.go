// Package session persists, per agent identity, the engine's resumption
// token and usage counters so an agent can be resumed across invocations.
package session

import (
	"context"
	"time"
)

// Record is the session state of one agent identity.
type Record struct {
	Agent          string    `json:"agent"`
	Token          string    `json:"sessionId"`
	Started        time.Time `json:"started"`
	LastResumed    time.Time `json:"lastResumed"`
	TasksCompleted int       `json:"tasksCompleted"`
	LastTask       string    `json:"lastTask,omitempty"`
}

// Registry stores at most one Record per agent identity.
//
// Save replaces the record for rec.Agent; records of other identities are
// preserved. Two concurrent dispatches for the same identity race on its
// record and the last Save wins.
type Registry interface {
	Get(ctx context.Context, agent string) (Record, bool, error)
	Save(ctx context.Context, rec Record) error
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, agent string) (bool, error)
	Close() error
}

// Advance returns the record that follows prev after a successful dispatch
// of agent against task which yielded token. prev may be nil for an
// identity's first dispatch.
func Advance(prev *Record, agent, token, task string, now time.Time) Record {
	rec := Record{
		Agent:          agent,
		Token:          token,
		Started:        now,
		LastResumed:    now,
		TasksCompleted: 1,
		LastTask:       task,
	}
	if prev != nil {
		if !prev.Started.IsZero() {
			rec.Started = prev.Started
		}
		rec.TasksCompleted = prev.TasksCompleted + 1
	}
	return rec
}
