package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and clear agent sessions",
	}

	cmd.AddCommand(
		newSessionListCmd(a),
		newSessionClearCmd(a),
	)

	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded agent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.registry()
			if err != nil {
				return err
			}
			reg, err := a.sessions(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer reg.Close()

			records, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AGENT\tSESSION\tTASKS\tLAST RESUMED\tLAST TASK")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.Agent, r.Token, r.TasksCompleted, r.LastResumed.UTC().Format(time.RFC3339), r.LastTask)
			}
			return tw.Flush()
		},
	}
}

func newSessionClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <agent>",
		Short: "Forget an agent's session so its next dispatch starts fresh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.registry()
			if err != nil {
				return err
			}
			reg, err := a.sessions(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer reg.Close()

			deleted, err := reg.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No session recorded for %s\n", args[0])
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared session for %s\n", args[0])
			return nil
		},
	}
}
