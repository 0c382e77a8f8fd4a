package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/app"
	"github.com/taskdeck/taskdeck/internal/domain"
)

// newInitCommand creates the init command.
func newInitCommand(c *app.Container) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Register the current directory as a taskdeck project",
		Long: `Register the current directory as a taskdeck project.

This creates the project-local .taskdeck/ directory holding the board,
conversation logs, generated artifacts and log files, and records the
project in the registry so the daemon can resolve it by id. Running it
in an already registered directory is a no-op.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get current directory: %w", err)
			}

			if existing, err := findByPath(c.Projects, cwd); err != nil {
				return err
			} else if existing != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Already registered as %q (%s)\n", existing.Name, existing.ID)
				return nil
			}

			if err := os.MkdirAll(domain.DataDir(cwd), 0o750); err != nil {
				return fmt.Errorf("create project directory: %w", err)
			}
			// Materializes the board file with the default lanes.
			if err := c.Tasks.Mutate(cwd, func(*domain.Board) error { return nil }); err != nil {
				return fmt.Errorf("initialize board: %w", err)
			}

			if name == "" {
				name = filepath.Base(cwd)
			}
			project := &domain.Project{
				ID:        uuid.NewString(),
				Name:      name,
				Path:      cwd,
				CreatedAt: c.Clock.Now(),
			}
			if err := c.Projects.Save(project); err != nil {
				return fmt.Errorf("register project: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Registered project %q (%s)\n", project.Name, project.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project display name (defaults to the directory name)")
	return cmd
}

// findByPath scans the registry for a project rooted at path.
func findByPath(projects domain.ProjectRepository, path string) (*domain.Project, error) {
	all, err := projects.List()
	if err != nil {
		return nil, fmt.Errorf("read project registry: %w", err)
	}
	for _, p := range all {
		if p.Path == path {
			return p, nil
		}
	}
	return nil, nil
}
