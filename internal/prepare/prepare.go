// Package prepare is the core's single entry point for turning a parsed
// agent document into a ready-to-run session: it resolves the model
// spec and its credential environment variable, substitutes ${root}/
// ${agentDir}/${tmpDir} into the instructions, creates the session's
// journal row, and resolves the document's declared sub-agents into
// Refs a caller compiles into tools.
//
// Grounded on the teacher's internal/session/system.go (system prompt
// construction) and the bootstrapping half of internal/session/loop.go
// (session/message creation, tool resolution) — both unified here into
// one call instead of being scattered across runLoop's setup code.
package prepare

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/agentuse/agentuse/internal/agentdoc"
	"github.com/agentuse/agentuse/internal/engine"
	"github.com/agentuse/agentuse/internal/journal"
	"github.com/agentuse/agentuse/internal/subagent"
)

// Options are the caller-supplied inputs to Prepare.
type Options struct {
	// AgentPath is the absolute path to the ".agentuse" document.
	AgentPath string
	// ProjectRoot is the directory the session tree is keyed under
	// (journal.HashRoot(ProjectRoot)).
	ProjectRoot string
	// WorkDir is the process's current working directory, recorded on
	// the message path and used as a Substitute fallback for ${root}
	// when ProjectRoot is unset.
	WorkDir string
	// ParentSessionID is set when this run is a sub-agent invocation.
	ParentSessionID string
	// Chain is the resolved sub-agent call chain inherited from the
	// parent run (nil for a top-level run); threaded through so this
	// run's own subagent tools keep checking depth/cycles correctly.
	Chain []string
	// MaxSubagentDepth overrides MAX_SUBAGENT_DEPTH; <=0 uses that
	// environment variable when it holds a positive integer, else
	// subagent.DefaultMaxDepth.
	MaxSubagentDepth int
}

// Prepared is everything Prepare resolves: enough for a caller to finish
// assembling the tool registry (MCP servers, store, sub-agents) and call
// engine.Run.
type Prepared struct {
	Document *agentdoc.Document
	AgentID  string

	Session *journal.Session

	// Instructions is doc.Instructions after ${root}/${agentDir}/${tmpDir}
	// substitution.
	Instructions string
	// SystemPrompt is the full system prompt, instructions plus ambient
	// environment context.
	SystemPrompt string

	Model    ModelSpec
	MaxSteps int
	Timeout  time.Duration

	TmpDir      string
	AgentDir    string
	ProjectRoot string

	SubagentRefs []subagent.Ref
	// Chain is this run's own position in the sub-agent call chain (empty
	// for a top-level run), passed through from Options.Chain so this
	// run's own subagent tools keep checking depth/cycles against the
	// right ancestry.
	Chain []string
	// MaxSubagentDepth is Options.MaxSubagentDepth, resolved from
	// MAX_SUBAGENT_DEPTH and then subagent.DefaultMaxDepth when unset.
	MaxSubagentDepth int
}

// Prepare parses the agent document at opts.AgentPath, resolves its
// configuration, creates its journal session row, and returns everything
// needed to run it.
func Prepare(ctx context.Context, j *journal.Journal, opts Options) (*Prepared, error) {
	content, err := os.ReadFile(opts.AgentPath)
	if err != nil {
		return nil, fmt.Errorf("prepare: reading %s: %w", opts.AgentPath, err)
	}

	doc, err := agentdoc.Parse(string(content), opts.AgentPath)
	if err != nil {
		return nil, err
	}

	agentID := agentdoc.DeriveAgentID(opts.AgentPath, opts.ProjectRoot, doc.Name)

	modelSpecStr := doc.Config.Model
	if modelSpecStr == "" {
		return nil, fmt.Errorf("prepare: agent %s has no model configured", agentID)
	}
	model, err := ParseModelSpec(modelSpecStr)
	if err != nil {
		return nil, err
	}

	maxSteps := doc.Config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = engine.DefaultMaxSteps
	}

	var timeout time.Duration
	if doc.Config.Timeout > 0 {
		timeout = time.Duration(doc.Config.Timeout) * time.Second
	}

	agentDir := filepath.Dir(opts.AgentPath)
	projectRoot := opts.ProjectRoot
	if projectRoot == "" {
		projectRoot = opts.WorkDir
	}
	tmpDir := filepath.Join(os.TempDir(), "agentuse", agentdoc.Sanitise(agentID))

	instructions := SubstituteVars(doc.Instructions, projectRoot, agentDir, tmpDir)

	subagentDecls := make([]subagent.Declaration, 0, len(doc.Config.Subagents))
	for _, ref := range doc.Config.Subagents {
		subagentDecls = append(subagentDecls, subagent.Declaration{Path: ref.Path, Name: ref.Name})
	}
	subagentRefs := subagent.Resolve(subagentDecls, agentDir)

	mcpServerNames := make([]string, 0, len(doc.Config.MCPServers))
	for name := range doc.Config.MCPServers {
		mcpServerNames = append(mcpServerNames, name)
	}
	subagentNames := make([]string, 0, len(subagentRefs))
	for _, r := range subagentRefs {
		subagentNames = append(subagentNames, r.Name)
	}

	maxStepsPtr := &maxSteps
	var timeoutSecPtr *int
	if doc.Config.Timeout > 0 {
		t := doc.Config.Timeout
		timeoutSecPtr = &t
	}

	sess, err := j.CreateSession(ctx, journal.SessionInfo{
		Agent: journal.AgentRef{
			ID:          agentID,
			Name:        doc.Name,
			FilePath:    opts.AgentPath,
			Description: doc.Config.Description,
			IsSubAgent:  opts.ParentSessionID != "",
		},
		Model: model.String(),
		Config: journal.SessionConfig{
			Timeout:    timeoutSecPtr,
			MaxSteps:   maxStepsPtr,
			MCPServers: mcpServerNames,
			Subagents:  subagentNames,
		},
		Project: journal.SessionProject{
			Root: projectRoot,
			Cwd:  opts.WorkDir,
		},
		ParentSessionID: opts.ParentSessionID,
	})
	if err != nil {
		return nil, err
	}

	systemPrompt := buildSystemPrompt(instructions, opts.WorkDir)

	maxSubagentDepth := opts.MaxSubagentDepth
	if maxSubagentDepth <= 0 {
		if v, err := strconv.Atoi(os.Getenv("MAX_SUBAGENT_DEPTH")); err == nil && v > 0 {
			maxSubagentDepth = v
		} else {
			maxSubagentDepth = subagent.DefaultMaxDepth
		}
	}

	return &Prepared{
		Document:         doc,
		AgentID:          agentID,
		Session:          sess,
		Instructions:     instructions,
		SystemPrompt:     systemPrompt,
		Model:            model,
		MaxSteps:         maxSteps,
		Timeout:          timeout,
		TmpDir:           tmpDir,
		AgentDir:         agentDir,
		ProjectRoot:      projectRoot,
		SubagentRefs:     subagentRefs,
		Chain:            opts.Chain,
		MaxSubagentDepth: maxSubagentDepth,
	}, nil
}

// buildSystemPrompt assembles instructions plus an ambient environment
// block, trimmed from the teacher's internal/session/system.go: the
// canned per-provider/per-model blurbs there are dropped since an agent
// document's own instructions are the spec's sole source of behavioural
// guidance; only the environment facts (cwd, date, platform) survive as
// genuinely model-agnostic context.
func buildSystemPrompt(instructions, workDir string) string {
	var b strings.Builder
	if instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("# Environment\n")
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	fmt.Fprintf(&b, "Working Directory: %s\n", workDir)
	fmt.Fprintf(&b, "Current Date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return b.String()
}
