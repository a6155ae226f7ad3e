package demo

// DemoContext holds shared state passed between steps.
type DemoContext struct {
	TempDir     string
	PlanHash    string
	ExecutionID string
}

// StepFunc is a function that runs a single demo step.
type StepFunc func(r *Runner, ctx *DemoContext) error

// Step represents a single named step within an act.
type Step struct {
	Name    string
	Fn      StepFunc
	Insight string
}

// Act represents a named act with narration and steps.
type Act struct {
	Number    int
	Name      string
	Narration []string
	Steps     []Step
}

// BuildActs returns the acts that walk through scaffolding, rendering, and
// running an agent file, then inspecting what the run left behind.
func BuildActs() []Act {
	return []Act{
		{
			Number: 1,
			Name:   "Scaffolding An Agent File",
			Narration: []string{
				"Every run starts from a single YAML document: a node tree, optionally",
				"templated, that the engine re-renders once per frame.",
				"`init` writes a small starter file; `plan` renders it once and prints the",
				"resulting tree and its content hash, without touching a database.",
			},
			Steps: []Step{
				{Name: "scaffold_agent_file", Fn: stepScaffoldAgentFile, Insight: "A two-node starter: a claude node that drafts or revises depending on state, followed by a review gate."},
				{Name: "render_plan", Fn: stepRenderPlan, Insight: "The hash is the engine's memoisation key — unchanged content across frames means a node is never redispatched."},
				{Name: "dry_run_matches_plan", Fn: stepDryRunMatchesPlan, Insight: "`run --dry-run` renders through the exact same path as `plan`; same file, same hash."},
			},
		},
		{
			Number: 2,
			Name:   "Running Against The Mock Adapter",
			Narration: []string{
				"`--mock` swaps every node type for a scripted adapter, so a full run",
				"completes in-process with no real agent CLI on PATH.",
				"The frame loop, the review gate, and persistence are all real; only the",
				"final model call is faked.",
			},
			Steps: []Step{
				{Name: "run_to_completion", Fn: stepRunToCompletion, Insight: "The run's own termination reason explains why the loop stopped, not just whether it succeeded."},
				{Name: "list_recent_executions", Fn: stepListRecentExecutions, Insight: "Every run is durable: `status` lists it back even in a fresh process against the same database."},
				{Name: "inspect_execution", Fn: stepInspectExecution, Insight: "The agent history shows each dispatched node's prompt, result, and content hash."},
			},
		},
		{
			Number: 3,
			Name:   "Tree Validation",
			Narration: []string{
				"A node tree has exactly one structural rule: sibling keys must be unique,",
				"so the engine can always tell the same node apart across frames.",
				"The validator catches a violation before any dispatch happens.",
			},
			Steps: []Step{
				{Name: "duplicate_key_rejected", Fn: stepDuplicateKeyRejected, Insight: "A duplicate key is caught at render time, before the engine ever reaches for an adapter."},
			},
		},
		{
			Number: 4,
			Name:   "Database Utilities",
			Narration: []string{
				"A couple of small operator conveniences round out the surface.",
			},
			Steps: []Step{
				{Name: "resolve_db_path", Fn: stepResolveDBPath, Insight: "Resolution order: --db-path flag, then SMITHERS_DB_PATH, then config file, then the default under ~/.config/smithers."},
			},
		},
	}
}
