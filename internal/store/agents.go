package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Agent is a single dispatched invocation of an executable node (one row
// per frame a given node key is actually run, not per node in the tree —
// memoised nodes whose content hash is unchanged produce no new row).
type Agent struct {
	ID               string     `json:"id"`
	ExecutionID      string     `json:"execution_id"`
	PhaseID          string     `json:"phase_id,omitempty"`
	NodeKey          string     `json:"node_key"`
	Model            string     `json:"model"`
	SystemPrompt     string     `json:"system_prompt,omitempty"`
	Prompt           string     `json:"prompt"`
	Status           string     `json:"status"`
	Result           string     `json:"result,omitempty"`
	ResultStructured string     `json:"result_structured,omitempty"`
	Error            string     `json:"error,omitempty"`
	ContentHash      string     `json:"content_hash,omitempty"`
	TokensIn         int        `json:"tokens_in"`
	TokensOut        int        `json:"tokens_out"`
	ToolCallsCount   int        `json:"tool_calls_count"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

const (
	AgentStatusPending   = "pending"
	AgentStatusRunning   = "running"
	AgentStatusCompleted = "completed"
	AgentStatusError     = "error"
)

// DispatchAgent inserts a new "running" agent row for a node about to be
// sent to an adapter. Idempotent on (agentName, requestID) so a retried
// dispatch after a crash replays rather than double-spawns.
func DispatchAgent(db *sql.DB, agentName, requestID, executionID, phaseID, nodeKey, model, systemPrompt, prompt, contentHash string) (string, error) {
	type idemResult struct {
		ID string `json:"id"`
	}
	r, err := RunIdempotent(db, agentName, requestID, "agents.dispatch", func(tx *sql.Tx) (idemResult, error) {
		id := generatePrefixedID("agent")
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO agents (id, execution_id, phase_id, node_key, model, system_prompt, prompt, status, content_hash, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, id, executionID, nullableString(phaseID), nodeKey, model, nullableString(systemPrompt), prompt, AgentStatusRunning, contentHash)
		if err != nil {
			return idemResult{}, fmt.Errorf("insert agent: %w", err)
		}
		return idemResult{ID: id}, nil
	})
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CompleteAgent records a successful completion: result text, optional
// structured JSON result, and token/tool-call counters.
func CompleteAgent(db *sql.DB, id, result, resultStructured string, tokensIn, tokensOut, toolCallsCount int) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE agents
			SET status = ?, result = ?, result_structured = ?, tokens_in = ?, tokens_out = ?,
				tool_calls_count = ?, finished_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, AgentStatusCompleted, result, nullableString(resultStructured), tokensIn, tokensOut, toolCallsCount, id)
		return err
	})
}

// FailAgent records a terminal failure.
func FailAgent(db *sql.DB, id, errMsg string) error {
	return TransactContext(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE agents SET status = ?, error = ?, finished_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, AgentStatusError, errMsg, id)
		return err
	})
}

// LatestAgentByNodeKey returns the most recent agent row dispatched for a
// node key within an execution, used by the engine's memoisation check to
// compare against the node's current content hash.
func LatestAgentByNodeKey(db *sql.DB, executionID, nodeKey string) (*Agent, error) {
	var a Agent
	var phaseID, systemPrompt, result, resultStructured, errMsg, contentHash sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := db.QueryRowContext(context.Background(), `
		SELECT id, execution_id, phase_id, node_key, model, system_prompt, prompt, status,
			result, result_structured, error, content_hash, tokens_in, tokens_out,
			tool_calls_count, started_at, finished_at, created_at
		FROM agents WHERE execution_id = ? AND node_key = ?
		ORDER BY created_at DESC LIMIT 1
	`, executionID, nodeKey).Scan(&a.ID, &a.ExecutionID, &phaseID, &a.NodeKey, &a.Model, &systemPrompt,
		&a.Prompt, &a.Status, &result, &resultStructured, &errMsg, &contentHash,
		&a.TokensIn, &a.TokensOut, &a.ToolCallsCount, &startedAt, &finishedAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest agent for node %s: %w", nodeKey, err)
	}
	a.PhaseID = phaseID.String
	a.SystemPrompt = systemPrompt.String
	a.Result = result.String
	a.ResultStructured = resultStructured.String
	a.Error = errMsg.String
	a.ContentHash = contentHash.String
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		a.FinishedAt = &finishedAt.Time
	}
	return &a, nil
}

// ListAgentsByExecution returns every agent row for an execution, oldest first.
func ListAgentsByExecution(db *sql.DB, executionID string) ([]Agent, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, node_key, model, status, tokens_in, tokens_out, tool_calls_count, created_at
		FROM agents WHERE execution_id = ? ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.NodeKey, &a.Model, &a.Status, &a.TokensIn, &a.TokensOut, &a.ToolCallsCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
