package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/smithers/internal/app"
	"github.com/dotcommander/smithers/internal/bridge"
	"github.com/dotcommander/smithers/internal/engine"
	"github.com/dotcommander/smithers/internal/loader"
	"github.com/dotcommander/smithers/internal/output"
	"github.com/dotcommander/smithers/internal/plan"
	"github.com/dotcommander/smithers/internal/store"
)

// renderData is what gets handed to an agent file's text/template pass each
// frame: the frame counter, the current state snapshot, and any caller
// props, so a document can write `{{.State.phase}}` / `{{.Frame}}` /
// `{{.Props.foo}}`.
type renderData struct {
	Frame int
	State map[string]string
	Props map[string]any
}

// NewRunCmd drives one agent file to completion (or to a human/review gate,
// or to its frame/timeout ceiling).
func NewRunCmd() *cobra.Command {
	var (
		maxFrames   int
		parallelism int
		model       string
		maxTokens   int
		timeout     time.Duration
		yes         bool
		dryRun      bool
		outputPath  string
		propsJSON   string
		mock        bool
		configPath  string
		noDesktop   bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run an agent file to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				app.SetConfigPathOverride(configPath)
			}

			props := map[string]any{}
			if propsJSON != "" {
				if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
					return cmdErr(fmt.Errorf("--props: invalid JSON: %w", err))
				}
			}

			path := args[0]
			doc, err := loader.Load(path)
			if err != nil {
				return cmdErr(err)
			}

			// --dry-run (and -y/--yes without it are unrelated: --yes only
			// skips a preflight confirmation, which this CLI's always-JSON,
			// non-interactive convention never shows in the first place) is
			// exactly the `plan` command's render-once-and-print behavior.
			if dryRun {
				return runDryRun(doc, path)
			}

			logger := slog.Default()
			if verbose {
				logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}

			return withDB(func(db *DB) error {
				exec, err := store.CreateExecution(db, path, path, propsJSON)
				if err != nil {
					return err
				}
				if err := store.StartExecution(db, exec.ID); err != nil {
					return err
				}

				w := buildEngine(db, logger, mock)

				if !noDesktop {
					if settings, err := app.LoadSettings(); err == nil && settings.DesktopBridgeURL != "" {
						if client, err := bridge.DialContext(cmd.Context(), settings.DesktopBridgeURL, logger); err == nil {
							defer func() { _ = client.Close() }()
							defer client.Subscribe(w.Bus)()
						}
					}
				}

				frame := 0
				render := func(ctx context.Context) (*plan.Node, error) {
					frame++
					snapshot, err := w.State.Snapshot()
					if err != nil {
						return nil, err
					}
					return doc.Render(renderData{Frame: frame, State: snapshot, Props: props})
				}

				result, err := w.Engine.ExecutePlan(cmd.Context(), render, engine.Options{
					ExecutionID: exec.ID,
					MaxFrames:   maxFrames,
					Timeout:     timeout,
					Parallelism: parallelism,
					Model:       model,
					MaxTokens:   maxTokens,
				})
				if err != nil {
					return err
				}

				if outputPath != "" {
					return writeResultToFile(outputPath, result)
				}
				return output.PrintSuccess(result)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Auto-approve the run (no-op: this CLI never prompts interactively)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render once and print the tree without dispatching (same as `plan`)")
	cmd.Flags().IntVar(&maxFrames, "max-frames", 0, "Frame ceiling (default 500)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall wall-clock budget for the run")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the JSON result to a file instead of stdout")
	cmd.Flags().StringVarP(&propsJSON, "props", "p", "", "JSON object merged into the agent file's template data as .Props")
	cmd.Flags().StringVar(&model, "model", "", "Default model for nodes that don't set their own")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Default max tokens for nodes that don't set their own")
	cmd.Flags().BoolVar(&mock, "mock", false, "Use the mock adapter for every node type instead of shelling out")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Explicit config file path, overriding the default lookup order")
	cmd.Flags().BoolVar(&noDesktop, "no-desktop", false, "Skip dialing the desktop bridge even if configured")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug-level structured logging to stderr")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Max concurrent dispatches per frame (default 3)")

	return cmd
}

func writeResultToFile(path string, result *engine.Result) error {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func runDryRun(doc *loader.Document, path string) error {
	tree, err := doc.Render(renderData{Frame: 0, State: map[string]string{}})
	if err != nil {
		return cmdErr(err)
	}
	if err := plan.ValidateTree(tree); err != nil {
		return cmdErr(err)
	}
	plan.DetectWarnings(tree)

	type resp struct {
		Path     string         `json:"path"`
		Tree     string         `json:"tree"`
		Hash     string         `json:"hash"`
		Warnings []plan.Warning `json:"warnings,omitempty"`
	}
	return output.PrintSuccess(resp{
		Path:     path,
		Tree:     plan.Serialize(tree),
		Hash:     plan.ContentHash(tree),
		Warnings: collectWarnings(tree),
	})
}

// collectWarnings flattens every node's Warnings across the tree, for a
// dry-run response to surface at the top level rather than requiring a
// caller to walk the tree itself.
func collectWarnings(n *plan.Node) []plan.Warning {
	if n == nil {
		return nil
	}
	var out []plan.Warning
	out = append(out, n.Warnings...)
	for _, c := range n.Children {
		out = append(out, collectWarnings(c)...)
	}
	return out
}
