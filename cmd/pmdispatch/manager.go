package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/pmdispatch/internal/config"
	"github.com/aristath/pmdispatch/internal/dispatch"
)

func newManagerCmd(a *app) *cobra.Command {
	var (
		resume bool
		agent  string
	)

	cmd := &cobra.Command{
		Use:   "manager [--resume] <request...>",
		Short: "Run the manager agent on a free-form request",
		Long: "The manager reads NOW.md, creates tasks and dispatches agents through pmdispatch itself. " +
			"Each run starts a fresh engine session unless --resume is given; the recorded session " +
			"counts every successful run either way.",
		Example: `  pmdispatch manager "Start Week 1: user invitations"
  pmdispatch manager --resume "Continue Week 1 implementation"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.TrimSpace(strings.Join(args, " "))
			if request == "" {
				return fmt.Errorf("request is empty")
			}

			rt, err := a.runtime(cmd.Context(), []string{agent})
			if err != nil {
				return err
			}
			defer rt.Close()

			w := cmd.OutOrStdout()
			prev, found, err := rt.sessions.Get(cmd.Context(), agent)
			if err != nil {
				return fmt.Errorf("read %s session: %w", agent, err)
			}
			if resume && found {
				fmt.Fprintf(w, "Resuming session %s (started %s, tasks completed %d)\n",
					prev.Token, prev.Started.Format(time.RFC3339), prev.TasksCompleted)
			} else {
				fmt.Fprintf(w, "Starting new %s session\n", agent)
			}

			var out dispatch.Outcome
			streamed(cmd, rt, func(ctx context.Context) {
				out = rt.dispatcher.RunRequest(ctx, agent, request, dispatch.RequestOptions{Resume: resume})
			})

			printOutcome(w, out, "")
			if !out.Success {
				return errDispatchFailed
			}

			rec, ok, err := rt.sessions.Get(cmd.Context(), agent)
			if err == nil && ok && rec.Token == out.Token {
				fmt.Fprintf(w, "  session saved: %s (tasks completed %d)\n", rec.Token, rec.TasksCompleted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "continue the recorded manager session")
	cmd.Flags().StringVar(&agent, "agent", config.ManagerAgent, "agent identity to run as")

	return cmd
}
