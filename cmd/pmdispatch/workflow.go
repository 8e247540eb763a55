package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/pmdispatch/internal/batch"
	"github.com/aristath/pmdispatch/internal/taskdoc"
	"github.com/aristath/pmdispatch/internal/workflow"
)

func newWorkflowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run multi-step agent pipelines",
	}

	cmd.AddCommand(
		newWorkflowListCmd(a),
		newWorkflowRunCmd(a),
	)

	return cmd
}

func newWorkflowListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.registry()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(cfg.Workflows))
			for name := range cfg.Workflows {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				plan, err := workflow.PlanFor(cfg, name)
				if err != nil {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid: %v\n", name, err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, strings.Join(plan.Agents(), " -> "))
			}
			return nil
		},
	}
}

func newWorkflowRunCmd(a *app) *cobra.Command {
	var (
		watchView bool
		retries   uint64
	)

	cmd := &cobra.Command{
		Use:   "run <name> <taskListFile>",
		Short: "Push every task of a task list through a workflow",
		Long:  "Runs each workflow step on each task in order. The task list's agentType fields are ignored.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.registry()
			if err != nil {
				return err
			}
			plan, err := workflow.PlanFor(cfg, args[0])
			if err != nil {
				return err
			}

			entries, err := batch.LoadTaskList(args[1])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("task list %s is empty", args[1])
			}
			tasks := make([]taskdoc.Ref, 0, len(entries))
			for i, e := range entries {
				ref := taskdoc.Ref{Date: e.TaskDate, ID: e.TaskID}
				if err := ref.Validate(); err != nil {
					return fmt.Errorf("task list entry %d: %w", i+1, err)
				}
				tasks = append(tasks, ref)
			}

			rt, err := a.runtime(cmd.Context(), plan.Agents())
			if err != nil {
				return err
			}
			defer rt.Close()

			coord := rt.coordinator(retries)
			var res workflow.Result
			work := func(ctx context.Context) error {
				var err error
				res, err = workflow.Run(ctx, coord, plan, tasks)
				return err
			}

			if watchView {
				err = watch(cmd, rt, work)
			} else {
				streamed(cmd, rt, func(ctx context.Context) { err = work(ctx) })
			}
			printWorkflow(cmd.OutOrStdout(), res)
			if err != nil {
				return err
			}
			if !res.Clean() {
				return fmt.Errorf("%w: %d of %d tasks did not pass every step", errDispatchFailed, len(res.Dropped), len(tasks))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watchView, "watch", false, "show a live view while the workflow runs")
	cmd.Flags().Uint64Var(&retries, "retries", 0, "retry engine stream failures up to n times with backoff")

	return cmd
}

func printWorkflow(w io.Writer, res workflow.Result) {
	fmt.Fprintf(w, "\nWorkflow %s: %d waves\n", res.Plan.Name, len(res.Waves))
	for _, s := range res.Steps {
		ok := 0
		for _, o := range s.Outcomes {
			if o.Success {
				ok++
			}
		}
		fmt.Fprintf(w, "  %s (%s): %d/%d succeeded\n", s.Step.Name, s.Step.Agent, ok, len(s.Outcomes))
		for _, o := range s.Outcomes {
			if !o.Success {
				fmt.Fprintf(w, "    ✗ %s  %v\n", o.Task, o.Failure)
			}
		}
	}
	for _, t := range res.Completed {
		fmt.Fprintf(w, "  ✓ %s\n", t)
	}
	fmt.Fprintf(w, "Total cost: $%.4f\n", res.TotalCost())
}
