package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/pmdispatch/internal/batch"
	"github.com/aristath/pmdispatch/internal/dispatch"
	"github.com/aristath/pmdispatch/internal/events"
	"github.com/aristath/pmdispatch/internal/taskdoc"
	"github.com/aristath/pmdispatch/internal/tui"
)

var errDispatchFailed = errors.New("dispatch failed")

func newDispatchOneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch-one <agentType> <date> <taskId>",
		Short: "Run one agent against one task document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := args[0]
			ref := taskdoc.Ref{Date: args[1], ID: args[2]}
			if err := ref.Validate(); err != nil {
				return err
			}

			rt, err := a.runtime(cmd.Context(), []string{agent})
			if err != nil {
				return err
			}
			defer rt.Close()

			var out dispatch.Outcome
			streamed(cmd, rt, func(ctx context.Context) {
				out = rt.dispatcher.Dispatch(ctx, agent, ref, dispatch.Options{RequireTask: true})
			})

			w := cmd.OutOrStdout()
			printOutcome(w, out, a.docs().RelPath(ref))
			if out.Failure != nil && out.Failure.Kind == dispatch.KindUnknownAgent {
				fmt.Fprintf(w, "  available agents: %s\n", strings.Join(rt.cfg.AgentNames(), ", "))
			}
			if !out.Success {
				return errDispatchFailed
			}
			return nil
		},
	}
}

func newDispatchBatchCmd(a *app) *cobra.Command {
	var (
		watchView bool
		retries   uint64
	)

	cmd := &cobra.Command{
		Use:   "dispatch-batch <taskListFile>",
		Short: "Run every agent/task pair of a task list concurrently",
		Long: "Task lists are JSON (a list of {agentType, taskDate, taskId}), YAML, or TOML ([[tasks]] tables). " +
			"Two pairs may not share an agent or a task document.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := loadPairs(args[0])
			if err != nil {
				return err
			}
			if err := batch.Validate(pairs); err != nil {
				return err
			}

			rt, err := a.runtime(cmd.Context(), pairAgents(pairs))
			if err != nil {
				return err
			}
			defer rt.Close()

			coord := rt.coordinator(retries)
			var res batch.Result
			work := func(ctx context.Context) error {
				var err error
				res, err = coord.Run(ctx, pairs)
				return err
			}

			if watchView {
				err = watch(cmd, rt, work)
			} else {
				streamed(cmd, rt, func(ctx context.Context) { err = work(ctx) })
			}
			if err != nil {
				return err
			}

			printBatch(cmd.OutOrStdout(), res)
			if !res.Clean() {
				return fmt.Errorf("%w: %d of %d dispatches failed", errDispatchFailed, len(res.Failed()), len(res.Outcomes))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watchView, "watch", false, "show a live view while the batch runs")
	cmd.Flags().Uint64Var(&retries, "retries", 0, "retry engine stream failures up to n times with backoff")

	return cmd
}

func loadPairs(path string) ([]batch.Pair, error) {
	entries, err := batch.LoadTaskList(path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("task list %s is empty", path)
	}
	return batch.Pairs(entries)
}

func pairAgents(pairs []batch.Pair) []string {
	seen := make(map[string]bool)
	var agents []string
	for _, p := range pairs {
		if !seen[p.Agent] {
			seen[p.Agent] = true
			agents = append(agents, p.Agent)
		}
	}
	sort.Strings(agents)
	return agents
}

// streamed runs work while narration is printed, and returns once both are done.
func streamed(cmd *cobra.Command, rt *runtime, work func(ctx context.Context)) {
	sub := rt.bus.Subscribe(events.TopicDispatch, 1024)
	done := make(chan struct{})
	go printEvents(cmd.OutOrStdout(), sub, done)

	work(cmd.Context())

	rt.bus.Close()
	<-done
}

// watch runs work under the live view. Quitting the view early cancels work.
func watch(cmd *cobra.Command, rt *runtime, work func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	p := tea.NewProgram(
		tui.New(rt.bus, rt.sessions),
		tea.WithAltScreen(),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)

	workErr := make(chan error, 1)
	go func() {
		err := work(ctx)
		p.Send(tui.DoneMsg{})
		workErr <- err
	}()

	_, runErr := p.Run()
	cancel()
	err := <-workErr
	if runErr != nil {
		return fmt.Errorf("live view: %w", runErr)
	}
	return err
}
