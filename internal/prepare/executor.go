package prepare

import (
	"context"
	"fmt"

	"github.com/agentuse/agentuse/internal/doomloop"
	"github.com/agentuse/agentuse/internal/engine"
	"github.com/agentuse/agentuse/internal/journal"
	"github.com/agentuse/agentuse/internal/storage"
	"github.com/agentuse/agentuse/internal/subagent"
)

// NestedExecutor implements subagent.Executor by running a full nested
// Prepare+Run cycle for the referenced document, the missing piece
// internal/subagent's own doc comment defers to this package: parse the
// child document, assemble its tool registry (itself, recursively, so a
// sub-agent's own declared sub-agents keep working), drive the engine, and
// journal the result under the parent's session tree.
type NestedExecutor struct {
	Journal          *journal.Journal
	Storage          *storage.Storage
	ProjectRoot      string
	WorkDir          string
	MaxSubagentDepth int
}

// RunSubagent satisfies subagent.Executor.
func (n *NestedExecutor) RunSubagent(ctx context.Context, req subagent.Request) (*subagent.Result, error) {
	prepared, err := Prepare(ctx, n.Journal, Options{
		AgentPath:        req.FilePath,
		ProjectRoot:      n.ProjectRoot,
		WorkDir:          n.WorkDir,
		ParentSessionID:  req.ParentSessionID,
		Chain:            req.Chain,
		MaxSubagentDepth: n.MaxSubagentDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("subagent %s: %w", req.AgentName, err)
	}

	prov, err := BuildProvider(ctx, prepared.Model)
	if err != nil {
		return nil, fmt.Errorf("subagent %s: %w", req.AgentName, err)
	}

	outcome, err := Run(ctx, n.Journal, prepared, engine.AdaptProvider(prov), RunOptions{
		UserPrompt: req.Prompt,
		Storage:    n.Storage,
		Executor:   n,
		DoomLoop:   doomloop.New(doomloop.ActionError),
	})
	if err != nil {
		return nil, fmt.Errorf("subagent %s: %w", req.AgentName, err)
	}

	tokens := 0
	if outcome.Usage != nil {
		tokens = outcome.Usage.Input + outcome.Usage.Output
	}
	return &subagent.Result{Text: outcome.Text, TokensUsed: tokens}, nil
}
