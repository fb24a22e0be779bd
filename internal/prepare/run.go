package prepare

import (
	"context"
	"errors"
	"time"

	"github.com/agentuse/agentuse/internal/codes"
	"github.com/agentuse/agentuse/internal/doomloop"
	"github.com/agentuse/agentuse/internal/engine"
	"github.com/agentuse/agentuse/internal/id"
	"github.com/agentuse/agentuse/internal/journal"
	"github.com/agentuse/agentuse/internal/permission"
	"github.com/agentuse/agentuse/internal/storage"
	"github.com/agentuse/agentuse/internal/store"
	"github.com/agentuse/agentuse/internal/subagent"
	"github.com/agentuse/agentuse/internal/tool"
	"github.com/cloudwego/eino/schema"
)

// BuildRegistry assembles one agent's full tool surface: the teacher's
// built-ins, the store_* family (when the document declares a store), the
// subagent__<name> tools for its resolved SubagentRefs, and any declared
// MCP servers' tools (already namespaced "<server>_<tool>"). Grounded on
// internal/tool/registry.go's DefaultRegistry plus the composition the
// "Tool registry" DESIGN.md entry describes as the caller's responsibility.
// Returns a cleanup func that disconnects any MCP servers it connected and
// releases the store's lock per spec §4.8's "prepared-execution cleanup";
// callers should defer it once the registry is no longer needed.
func BuildRegistry(ctx context.Context, p *Prepared, st *storage.Storage, exec subagent.Executor, chain []string, maxSubagentDepth int) (*tool.Registry, func()) {
	// This runtime drives every run to completion without a human present
	// to answer an approval prompt, so the document's declared permissions
	// must resolve fully via allow/deny: ResolveHeadless coerces any
	// ActionAsk (including the zero value) to a safe non-interactive
	// default instead of leaving it to block forever.
	checker := permission.NewChecker()
	perms := p.Document.Config.Permission.ResolveHeadless()
	r := tool.DefaultRegistry(p.AgentDir, st, checker, perms)

	var agentStore *store.Store
	if p.Document.Config.Store != nil {
		name := p.AgentID
		if s, ok := p.Document.Config.Store.(string); ok && s != "" {
			name = s
		}
		agentStore = store.Open(p.ProjectRoot, name, p.AgentID)
		r.RegisterStoreTools(agentStore, p.AgentID)
	}

	if len(p.SubagentRefs) > 0 && exec != nil {
		r.RegisterTools(subagent.CompileTools(p.SubagentRefs, exec, p.Session.ID, chain, maxSubagentDepth))
	}

	cleanupMCP := registerMCPTools(ctx, r, p.Document.Config.MCPServers)
	r.ApplyToolConfig(p.Document.Config.Tools)

	return r, func() {
		cleanupMCP()
		if agentStore != nil {
			agentStore.ReleaseLock()
		}
	}
}

// RunOptions are the extra inputs Run needs beyond what Prepare already
// resolved.
type RunOptions struct {
	UserPrompt string
	Storage    *storage.Storage
	Executor   subagent.Executor
	DoomLoop   *doomloop.Detector
	AbortCh    <-chan struct{}
}

// Run drives one prepared agent to completion against prov: it creates the
// user/assistant message pair, runs the step loop, drains its events into
// the journal, and marks the session completed or errored. prov is
// supplied rather than built internally so callers can inject a fake for
// tests, the same Provider-decoupling internal/engine itself uses. When
// p.Timeout is set, ctx is bounded by it so the engine's own ctx.Err()
// check ends the run with a TIMEOUT-classified error rather than running
// unbounded.
// Grounded on the bootstrap-plus-drive half of the teacher's
// internal/session/loop.go runLoop, split here from Prepare so a sub-agent
// invocation can call Prepare and Run independently of a top-level
// CLI/server caller.
func Run(ctx context.Context, j *journal.Journal, p *Prepared, prov engine.Provider, opts RunOptions) (Outcome, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	registry, cleanup := BuildRegistry(ctx, p, opts.Storage, opts.Executor, p.Chain, p.MaxSubagentDepth)
	defer cleanup()

	doomLoop := opts.DoomLoop
	if p.Document.Config.Permission.ResolveHeadless().DoomLoop == permission.ActionAllow {
		doomLoop = nil
	}

	subAgentNames := make(map[string]bool, len(p.SubagentRefs))
	for _, ref := range p.SubagentRefs {
		subAgentNames[ref.Name] = true
	}

	messageID := id.New()
	now := time.Now()
	if _, err := j.CreateMessage(ctx, p.Session.ID, &journal.Message{
		ID:        messageID,
		SessionID: p.Session.ID,
		Role:      "user",
		Time:      journal.MessageTime{Created: now.UnixMilli()},
		User:      &journal.MessageUser{Prompt: journal.MessagePrompt{Task: opts.UserPrompt}},
	}); err != nil {
		return Outcome{}, err
	}

	assistantMsgID := id.New()
	if _, err := j.CreateMessage(ctx, p.Session.ID, &journal.Message{
		ID:        assistantMsgID,
		SessionID: p.Session.ID,
		Role:      "assistant",
		Time:      journal.MessageTime{Created: time.Now().UnixMilli()},
		Assistant: &journal.MessageAssistant{
			ModelID:    p.Model.ModelID,
			ProviderID: p.Model.ProviderID,
			Path:       journal.MessagePath{Cwd: p.AgentDir, Root: p.AgentDir},
		},
	}); err != nil {
		return Outcome{}, err
	}

	messages := []*schema.Message{
		schema.SystemMessage(p.SystemPrompt),
		schema.UserMessage(opts.UserPrompt),
	}

	eng := engine.New(prov)
	events := eng.Run(ctx, engine.Input{
		SessionID:     p.Session.ID,
		Model:         p.Model.ModelID,
		Messages:      messages,
		Tools:         registry,
		MaxSteps:      p.MaxSteps,
		AbortCh:       opts.AbortCh,
		SubAgentNames: subAgentNames,
		ToolContext: &tool.Context{
			SessionID: p.Session.ID,
			MessageID: assistantMsgID,
			Agent:     p.AgentID,
			WorkDir:   p.AgentDir,
			AbortCh:   opts.AbortCh,
		},
		DoomLoop: doomLoop,
	})

	sp := newStreamProcessor(j, p.Session.ID, assistantMsgID)
	outcome := sp.Drain(ctx, events)

	completed := time.Now().UnixMilli()
	if outcome.Err != nil {
		kind := classifyOutcomeErr(outcome)
		_ = j.UpdateMessage(ctx, p.Session.ID, assistantMsgID, journal.MessagePatch{
			Time: &journal.MessageTimePatch{Completed: &completed},
			Assistant: &journal.MessageAssistantPatch{
				Error: &journal.AssistantError{Type: string(kind), Message: outcome.Err.Error()},
			},
		})
		_ = j.SetSessionError(ctx, p.Session.ID, string(kind), outcome.Err.Error())
		return outcome, outcome.Err
	}

	tokens := &journal.TokenUsage{}
	if outcome.Usage != nil {
		tokens.Input = outcome.Usage.Input
		tokens.Output = outcome.Usage.Output
		tokens.Reasoning = outcome.Usage.Reasoning
	}
	_ = j.UpdateMessage(ctx, p.Session.ID, assistantMsgID, journal.MessagePatch{
		Time:      &journal.MessageTimePatch{Completed: &completed},
		Assistant: &journal.MessageAssistantPatch{Tokens: tokens},
	})
	_ = j.SetSessionCompleted(ctx, p.Session.ID)

	return outcome, nil
}

// classifyOutcomeErr maps a run failure to the stable Kind vocabulary
// recorded on the session/message error fields.
func classifyOutcomeErr(o Outcome) codes.Kind {
	if o.AbortError {
		return codes.UserInterrupt
	}
	var ce *codes.Error
	if errors.As(o.Err, &ce) {
		return ce.Kind
	}
	kind, _ := codes.Classify(o.Err.Error())
	return kind
}
