// Package cli provides the command-line interface for taskdeck.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/taskdeck/taskdeck/internal/app"
)

// NewRootCommand creates the root command for taskdeck.
// It receives the container for dependency injection and version for display.
func NewRootCommand(c *app.Container, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskdeck",
		Short: "AI coding-agent task board daemon",
		Long: `taskdeck orchestrates AI coding-agent work sessions on a kanban board.
Each task moves through design, develop, test, pending-merge and an
archive lane; lane moves create isolated git worktrees and start, stop
or resume the agent session attached to the task. Clients connect over
a websocket to stream agent output and conversation turns live.`,
		Version: version,
		// Errors are printed once, in main.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitCommand(c),
		newServeCommand(c),
	)
	return root
}
