package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Maintain the NOW.md project status log",
	}
	cmd.AddCommand(newStatusAppendCmd(a))
	return cmd
}

func newStatusAppendCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "append [text...]",
		Short: "Append a timestamped update to NOW.md",
		RunE: func(cmd *cobra.Command, args []string) error {
			update := strings.Join(args, " ")
			if update == "" {
				var err error
				if update, err = readBody(cmd, file); err != nil {
					return err
				}
			}
			if strings.TrimSpace(update) == "" {
				return errors.New("empty status update")
			}

			if err := a.docs().AppendStatus(update); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Status updated")
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the update from file when no text is given (default: stdin)")

	return cmd
}
