package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/pmdispatch/internal/taskdoc"
)

// ErrConflictingPairs is returned when two pairs of one batch share an agent
// identity or a task document.
var ErrConflictingPairs = errors.New("conflicting batch pairs")

// Pair is one unit of batch work.
type Pair struct {
	Agent string
	Task  taskdoc.Ref
}

func (p Pair) String() string {
	return p.Agent + " " + p.Task.String()
}

// Validate rejects a batch in which two pairs would race on the same session
// record or the same task document. Every conflict is listed.
func Validate(pairs []Pair) error {
	agents := make(map[string]int, len(pairs))
	tasks := make(map[taskdoc.Ref]int, len(pairs))

	var conflicts []string
	for i, p := range pairs {
		if j, seen := agents[p.Agent]; seen {
			conflicts = append(conflicts, fmt.Sprintf("agent %q in pairs %d and %d", p.Agent, j+1, i+1))
		} else {
			agents[p.Agent] = i
		}
		if j, seen := tasks[p.Task]; seen {
			conflicts = append(conflicts, fmt.Sprintf("task %s in pairs %d and %d", p.Task, j+1, i+1))
		} else {
			tasks[p.Task] = i
		}
	}

	if len(conflicts) > 0 {
		return fmt.Errorf("%w: %s", ErrConflictingPairs, strings.Join(conflicts, "; "))
	}
	return nil
}
