package commands

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dotcommander/smithers/internal/output"
	"github.com/dotcommander/smithers/internal/store"
)

// executionView adds a human-readable age alongside the raw timestamps, for
// terminals displaying status output directly rather than piping it to jq.
type executionView struct {
	store.Execution
	Age string `json:"age"`
}

func newExecutionView(e store.Execution) executionView {
	return executionView{Execution: e, Age: humanize.Time(e.CreatedAt)}
}

// NewStatusCmd reports on past and in-progress executions: a recent list by
// default, or one execution's full agent history with --id.
func NewStatusCmd() *cobra.Command {
	var id string
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent executions, or one execution's agent history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				if id == "" {
					execs, err := store.ListExecutions(db, limit)
					if err != nil {
						return err
					}
					views := make([]executionView, len(execs))
					for i, e := range execs {
						views[i] = newExecutionView(e)
					}
					type resp struct {
						Executions []executionView `json:"executions"`
					}
					return output.PrintSuccess(resp{Executions: views})
				}

				exec, err := store.GetExecution(db, id)
				if err != nil {
					return err
				}
				agents, err := store.ListAgentsByExecution(db, id)
				if err != nil {
					return err
				}
				phases, err := store.ListPhases(db, id)
				if err != nil {
					return err
				}
				artifacts, err := store.ListArtifacts(db, id)
				if err != nil {
					return err
				}
				commits, err := store.ListCommits(db, id)
				if err != nil {
					return err
				}
				type resp struct {
					Execution executionView    `json:"execution"`
					Agents    []store.Agent    `json:"agents"`
					Phases    []store.Phase    `json:"phases"`
					Artifacts []store.Artifact `json:"artifacts"`
					Commits   []store.Commit   `json:"commits"`
				}
				return output.PrintSuccess(resp{Execution: newExecutionView(*exec), Agents: agents, Phases: phases, Artifacts: artifacts, Commits: commits})
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Execution ID to inspect")
	cmd.Flags().IntVar(&limit, "limit", 20, "How many recent executions to list")
	return cmd
}
