package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pmdispatch",
		Short: "Dispatch implementor and auditor agents against PM task documents",
		Long: "pmdispatch runs AI agent identities against task documents kept under a PM root, " +
			"resumes each identity's session across invocations, and runs batches of dispatches concurrently.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.pmRoot != "" {
				return nil
			}
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			a.pmRoot = wd
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.pmRoot, "pm-root", "", "PM root holding config.json and agents/ (default: current directory)")

	rootCmd.AddCommand(
		newInitCmd(a),
		newTaskCmd(a),
		newStatusCmd(a),
		newSessionCmd(a),
		newDispatchOneCmd(a),
		newDispatchBatchCmd(a),
		newWorkflowCmd(a),
		newManagerCmd(a),
	)

	return rootCmd
}
