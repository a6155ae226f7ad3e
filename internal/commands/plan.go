package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/smithers/internal/loader"
)

// NewPlanCmd renders an agent file once against an empty state snapshot and
// prints the resulting tree, without touching the database or dispatching
// anything. Useful for validating a file's shape before `run`, and is
// exactly what `run --dry-run` does too.
func NewPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Render an agent file once and print its tree, without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			doc, err := loader.Load(path)
			if err != nil {
				return cmdErr(err)
			}
			return runDryRun(doc, path)
		},
	}
	return cmd
}
