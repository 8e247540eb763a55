package workflow

import (
	"context"
	"fmt"

	"github.com/aristath/pmdispatch/internal/batch"
	"github.com/aristath/pmdispatch/internal/dispatch"
	"github.com/aristath/pmdispatch/internal/taskdoc"
)

// BatchRunner runs one wave. *batch.Coordinator satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, pairs []batch.Pair) (batch.Result, error)
}

// StepResult holds the outcomes of one step across all tasks that reached it.
type StepResult struct {
	Step     Step
	Outcomes []dispatch.Outcome
}

// Result is the record of one workflow run.
type Result struct {
	Plan      Plan
	Waves     []batch.Result
	Steps     []StepResult  // in plan order
	Completed []taskdoc.Ref // tasks that passed every step
	Dropped   []taskdoc.Ref // tasks that failed a step, in failure order
}

// Clean reports whether every task passed every step.
func (r Result) Clean() bool {
	return len(r.Dropped) == 0
}

// TotalCost sums the successful dispatch cost of every wave.
func (r Result) TotalCost() float64 {
	var total float64
	for _, w := range r.Waves {
		total += w.TotalCost()
	}
	return total
}

// Run pushes tasks through the plan as a pipeline. Wave w runs step s on task
// w-s, so the same agent never works two tasks at once and a task's steps run
// in plan order. A task that fails a step leaves the pipeline.
//
// The error is non-nil when a wave is rejected or ctx is done between waves;
// the partial result is returned with it.
func Run(ctx context.Context, runner BatchRunner, plan Plan, tasks []taskdoc.Ref) (Result, error) {
	res := Result{Plan: plan, Steps: make([]StepResult, len(plan.Steps))}
	for i, s := range plan.Steps {
		res.Steps[i].Step = s
	}

	seen := make(map[taskdoc.Ref]bool, len(tasks))
	for _, t := range tasks {
		if seen[t] {
			return res, fmt.Errorf("%w: task %s listed twice", batch.ErrConflictingPairs, t)
		}
		seen[t] = true
	}

	alive := make([]bool, len(tasks))
	for i := range alive {
		alive[i] = true
	}

	type slot struct{ step, task int }
	waves := len(tasks) + len(plan.Steps) - 1
	for w := 0; w < waves; w++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var (
			pairs []batch.Pair
			slots []slot
		)
		for s, step := range plan.Steps {
			t := w - s
			if t < 0 || t >= len(tasks) || !alive[t] {
				continue
			}
			pairs = append(pairs, batch.Pair{Agent: step.Agent, Task: tasks[t]})
			slots = append(slots, slot{step: s, task: t})
		}
		if len(pairs) == 0 {
			continue
		}

		wave, err := runner.Run(ctx, pairs)
		if err != nil {
			return res, fmt.Errorf("wave %d: %w", w+1, err)
		}
		res.Waves = append(res.Waves, wave)

		for i, out := range wave.Outcomes {
			sl := slots[i]
			res.Steps[sl.step].Outcomes = append(res.Steps[sl.step].Outcomes, out)
			if !out.Success {
				alive[sl.task] = false
				res.Dropped = append(res.Dropped, tasks[sl.task])
			}
		}
	}

	for i, t := range tasks {
		if alive[i] {
			res.Completed = append(res.Completed, t)
		}
	}
	return res, nil
}
