package demo

import (
	"fmt"
	"os"
	"path/filepath"
)

const brokenAgentFile = `type: ROOT
children:
  - type: claude
    key: dup
    prompt: first
  - type: claude
    key: dup
    prompt: second
`

func stepScaffoldAgentFile(r *Runner, ctx *DemoContext) error {
	dir, err := os.MkdirTemp("", "smithers-demo-")
	if err != nil {
		return err
	}
	ctx.TempDir = dir

	m, raw, err := r.smithersWithDir(dir, "init", "agent.yaml")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	path := getStr(m, "data", "path")
	r.printDetail("wrote %s", filepath.Join(dir, path))
	return nil
}

func stepRenderPlan(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.smithersWithDir(ctx.TempDir, "plan", "agent.yaml")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	ctx.PlanHash = getStr(m, "data", "hash")
	if ctx.PlanHash == "" {
		return fmt.Errorf("plan did not report a content hash: %s", raw)
	}
	r.printDetail("hash %s", ctx.PlanHash)
	return nil
}

func stepDryRunMatchesPlan(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.smithersWithDir(ctx.TempDir, "run", "agent.yaml", "--dry-run")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	hash := getStr(m, "data", "hash")
	if hash != ctx.PlanHash {
		return fmt.Errorf("run --dry-run hash %q does not match plan hash %q", hash, ctx.PlanHash)
	}
	return nil
}

func stepRunToCompletion(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.smithersWithDir(ctx.TempDir, "run", "agent.yaml", "--mock", "--max-frames", "10", "--no-desktop")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	reason := getStr(m, "data", "Reason")
	if reason == "" {
		return fmt.Errorf("run did not report a termination reason: %s", raw)
	}
	r.printDetail("terminated: %s", reason)
	return nil
}

func stepListRecentExecutions(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.smithersWithDir(ctx.TempDir, "status", "--limit", "5")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}

	data, _ := m["data"].(map[string]any)
	execs, _ := data["executions"].([]any)
	if len(execs) == 0 {
		return fmt.Errorf("status reported no executions: %s", raw)
	}
	first, _ := execs[0].(map[string]any)
	id, _ := first["id"].(string)
	if id == "" {
		return fmt.Errorf("status's first execution had no id: %s", raw)
	}
	ctx.ExecutionID = id
	r.printDetail("%d recent execution(s), most recent %s", len(execs), id)
	return nil
}

func stepInspectExecution(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.smithersWithDir(ctx.TempDir, "status", "--id", ctx.ExecutionID)
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}

	data, _ := m["data"].(map[string]any)
	agents, _ := data["agents"].([]any)
	r.printDetail("%d dispatched node(s) recorded against %s", len(agents), ctx.ExecutionID)
	return nil
}

func stepDuplicateKeyRejected(r *Runner, ctx *DemoContext) error {
	path := filepath.Join(ctx.TempDir, "broken.yaml")
	if err := os.WriteFile(path, []byte(brokenAgentFile), 0o644); err != nil {
		return err
	}

	m, raw, err := r.smithersWithDir(ctx.TempDir, "plan", "broken.yaml")
	if err != nil {
		return err
	}
	if m != nil && m["success"] == true {
		return fmt.Errorf("expected a duplicate-key rejection, got success: %s", raw)
	}
	r.printDetail("rejected, two siblings keyed %q", "dup")
	return nil
}

func stepResolveDBPath(r *Runner, ctx *DemoContext) error {
	m, raw, err := r.smithersWithDir(ctx.TempDir, "db", "path")
	if err != nil {
		return err
	}
	if err := r.mustSuccess(m, raw); err != nil {
		return err
	}
	r.printDetail("%s (source: %s)", getStr(m, "data", "path"), getStr(m, "data", "source"))
	return nil
}
