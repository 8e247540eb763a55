package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/pmdispatch/internal/config"
)

var initDirs = []string{
	"agents/tasks",
	"agents/templates",
	"agents/onboarding",
}

func newInitCmd(a *app) *cobra.Command {
	var (
		name     string
		root     string
		frontend string
		backend  string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the project configuration under the PM root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(a.pmRoot, config.ProjectFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			absRoot, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(absRoot)
			}

			project := config.NewProject(name, absRoot, frontend, backend, a.pmRoot, a.now())
			if err := config.Save(project, path); err != nil {
				return fmt.Errorf("write project config: %w", err)
			}
			for _, dir := range initDirs {
				if err := os.MkdirAll(filepath.Join(a.pmRoot, dir), 0755); err != nil {
					return err
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s (project %q at %s)\n", path, name, absRoot)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "project name (default: base name of --project-root)")
	cmd.Flags().StringVar(&root, "project-root", "", "root of the project agents work in")
	cmd.Flags().StringVar(&frontend, "frontend", "", "frontend source path")
	cmd.Flags().StringVar(&backend, "backend", "", "backend source path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration")
	_ = cmd.MarkFlagRequired("project-root")

	return cmd
}
