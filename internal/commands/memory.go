package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/smithers/internal/output"
	"github.com/dotcommander/smithers/internal/store"
)

// NewMemoryCmd manages the memories table: scoped key/value facts an agent
// chose to retain across executions, independent of any one run's state.
func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Set or list cross-execution scoped facts",
	}

	cmd.AddCommand(newMemorySetCmd())
	cmd.AddCommand(newMemoryListCmd())

	return cmd
}

func newMemorySetCmd() *cobra.Command {
	var scope, scopeID, key, value string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Upsert a memory value",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				id, err := store.UpsertMemory(db, scope, scopeID, key, value, confidence)
				if err != nil {
					return err
				}
				type resp struct {
					ID string `json:"id"`
				}
				return output.PrintSuccess(resp{ID: id})
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "global", "Scope (e.g. global, project)")
	cmd.Flags().StringVar(&scopeID, "scope-id", "", "Identifier within scope")
	cmd.Flags().StringVar(&key, "key", "", "Memory key (required)")
	cmd.Flags().StringVar(&value, "value", "", "Memory value (required)")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "Confidence in this value, 0-1")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func newMemoryListCmd() *cobra.Command {
	var scope, scopeID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every memory row for a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *DB) error {
				memories, err := store.ListMemories(db, scope, scopeID)
				if err != nil {
					return err
				}
				type resp struct {
					Memories []store.Memory `json:"memories"`
				}
				return output.PrintSuccess(resp{Memories: memories})
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "global", "Scope (e.g. global, project)")
	cmd.Flags().StringVar(&scopeID, "scope-id", "", "Identifier within scope")

	return cmd
}
