package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dotcommander/smithers/internal/output"
)

const starterAgentFile = `type: ROOT
children:
  - type: claude
    key: draft
    prompt: |
      {{if eq .State.phase "revise"}}
      Revise the previous draft based on the feedback left in state.
      {{else}}
      Write a short draft for the task described in state.task.
      {{end}}
  - type: review
    key: check-draft
    target: draft
    prompt: Does this draft satisfy the task? Approve or request changes.
  {{if ge .Frame 2}}
  - type: smithers-stop
  {{end}}
`

// NewInitCmd scaffolds a starter agent file at the given path (default
// agent.yaml in the current directory).
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter agent file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "agent.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return cmdErr(fmt.Errorf("%s already exists", path))
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return cmdErr(err)
				}
			}
			if err := os.WriteFile(path, []byte(starterAgentFile), 0o644); err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Path string `json:"path"`
			}
			return output.PrintSuccess(resp{Path: path})
		},
	}
	return cmd
}
