package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/pmdispatch/internal/config"
	"github.com/aristath/pmdispatch/internal/taskdoc"
)

var sectionLabels = map[string]string{
	"instructions": config.SectionInstructions,
	"report":       config.SectionAgentReport,
	"audit":        config.SectionAuditReport,
	"caselog":      config.SectionCaseLog,
}

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create and edit task documents",
	}

	cmd.AddCommand(
		newTaskCreateCmd(a),
		newTaskWriteSectionCmd(a),
		newTaskShowCmd(a),
	)

	return cmd
}

func newTaskCreateCmd(a *app) *cobra.Command {
	var (
		kind string
		file string
	)

	cmd := &cobra.Command{
		Use:   "create <date> <taskId>",
		Short: "Create a task document from the fe or be template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := taskdoc.Ref{Date: args[0], ID: args[1]}

			instructions, err := readBody(cmd, file)
			if err != nil {
				return err
			}

			path, err := a.docs().Create(ref, kind, instructions)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "type", "", "task type: fe or be")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read instructions from file (default: stdin)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newTaskWriteSectionCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "write-section <date> <taskId> <report|audit|caselog|instructions>",
		Short: "Replace one section of a task document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := taskdoc.Ref{Date: args[0], ID: args[1]}
			label, ok := sectionLabels[args[2]]
			if !ok {
				return fmt.Errorf("unknown section %q (want report, audit, caselog or instructions)", args[2])
			}

			body, err := readBody(cmd, file)
			if err != nil {
				return err
			}

			if err := a.docs().UpsertSection(ref, label, body); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated %s in %s\n", label, ref)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the section body from file (default: stdin)")

	return cmd
}

func newTaskShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <date> <taskId> [report|audit|caselog|instructions]",
		Short: "Print a task document or one of its sections",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := taskdoc.Ref{Date: args[0], ID: args[1]}
			if err := ref.Validate(); err != nil {
				return err
			}
			store := a.docs()

			if len(args) == 2 {
				doc, err := store.Read(ref)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), doc)
				return err
			}

			label, ok := sectionLabels[args[2]]
			if !ok {
				return fmt.Errorf("unknown section %q", args[2])
			}
			body, found, err := store.Section(ref, label)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s has no %s section", ref, label)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), body)
			return err
		},
	}
}

// readBody reads text from file, or from the command's stdin when file is
// empty or "-".
func readBody(cmd *cobra.Command, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
