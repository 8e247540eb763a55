// Package workflow runs named multi-step pipelines (implement, then audit)
// over a list of tasks, one batch per wave.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/pmdispatch/internal/config"
)

var (
	// ErrUnknownWorkflow is returned for a workflow name not in the registry.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrCycle is returned when step dependencies form a cycle.
	ErrCycle = errors.New("workflow steps form a cycle")

	// ErrInvalidPlan covers every other malformed workflow definition.
	ErrInvalidPlan = errors.New("invalid workflow")
)

// Step is one stage of a plan.
type Step struct {
	Name  string
	Agent string
	After []string
}

// Plan is a workflow with its steps in execution order.
type Plan struct {
	Name  string
	Steps []Step
}

// Agents lists the agent of each step in order.
func (p Plan) Agents() []string {
	agents := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		agents[i] = s.Agent
	}
	return agents
}

// PlanFor resolves a named workflow from the registry.
func PlanFor(cfg *config.Config, name string) (Plan, error) {
	wf, ok := cfg.Workflows[name]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
	return NewPlan(name, wf)
}

// NewPlan orders a workflow's steps topologically. A step without an explicit
// after list runs after the step declared before it. Unnamed steps are named
// after their agent.
func NewPlan(name string, wf config.WorkflowConfig) (Plan, error) {
	if len(wf.Steps) == 0 {
		return Plan{}, fmt.Errorf("%w: %q has no steps", ErrInvalidPlan, name)
	}

	steps := make(map[string]Step, len(wf.Steps))
	agents := make(map[string]string, len(wf.Steps))
	var declared []string

	for i, sc := range wf.Steps {
		s := Step{Name: sc.Name, Agent: sc.Agent, After: sc.After}
		if s.Name == "" {
			s.Name = s.Agent
		}
		if s.Agent == "" {
			return Plan{}, fmt.Errorf("%w: %q step %q has no agent", ErrInvalidPlan, name, s.Name)
		}
		if _, dup := steps[s.Name]; dup {
			return Plan{}, fmt.Errorf("%w: %q declares step %q twice", ErrInvalidPlan, name, s.Name)
		}
		// Waves run different steps concurrently, so one agent per step.
		if other, dup := agents[s.Agent]; dup {
			return Plan{}, fmt.Errorf("%w: %q steps %q and %q share agent %q", ErrInvalidPlan, name, other, s.Name, s.Agent)
		}
		if s.After == nil && i > 0 {
			s.After = []string{declared[i-1]}
		}

		steps[s.Name] = s
		agents[s.Agent] = s.Name
		declared = append(declared, s.Name)
	}

	var edges []toposort.Edge
	for _, n := range declared {
		s := steps[n]
		if len(s.After) == 0 {
			edges = append(edges, toposort.Edge{nil, n})
			continue
		}
		for _, dep := range s.After {
			if _, ok := steps[dep]; !ok {
				return Plan{}, fmt.Errorf("%w: %q step %q runs after unknown step %q", ErrInvalidPlan, name, n, dep)
			}
			edges = append(edges, toposort.Edge{dep, n})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %q: %v", ErrCycle, name, err)
	}

	plan := Plan{Name: name}
	for _, id := range sorted {
		if id != nil {
			plan.Steps = append(plan.Steps, steps[id.(string)])
		}
	}
	if len(plan.Steps) != len(declared) {
		var missing []string
		for _, n := range declared {
			if !planHas(plan, n) {
				missing = append(missing, n)
			}
		}
		return Plan{}, fmt.Errorf("%w: %q: unreachable steps %s", ErrCycle, name, strings.Join(missing, ", "))
	}
	return plan, nil
}

func planHas(p Plan, name string) bool {
	for _, s := range p.Steps {
		if s.Name == name {
			return true
		}
	}
	return false
}
