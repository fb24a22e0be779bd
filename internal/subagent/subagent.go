// Package subagent compiles an agent document's declared sub-agents into
// tools under the "subagent__<name>" namespace, per spec §4.4. It adds the
// depth counter and cycle detection the teacher's internal/executor.SubagentExecutor
// has no equivalent of: that executor happily runs a subagent of a
// subagent of a subagent with no bound, and would loop forever on a
// document that references itself.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentuse/agentuse/internal/codes"
	"github.com/agentuse/agentuse/internal/tool"
)

// DefaultMaxDepth is MAX_SUBAGENT_DEPTH's default.
const DefaultMaxDepth = 2

// Declaration is one entry of an agent document's "subagents" front-matter
// list.
type Declaration struct {
	Path string
	Name string
}

// Ref pairs a Declaration with its resolved absolute path and display
// name, ready to become a tool.
type Ref struct {
	Name     string
	FilePath string
}

// Resolve turns declared subagent references into Refs: relative paths
// are resolved against agentDir, and an unaliased reference takes its
// name from the file's base name with the extension stripped.
func Resolve(decls []Declaration, agentDir string) []Ref {
	refs := make([]Ref, 0, len(decls))
	for _, d := range decls {
		path := d.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(agentDir, path)
		}
		path = filepath.Clean(path)

		name := d.Name
		if name == "" {
			base := filepath.Base(path)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		refs = append(refs, Ref{Name: name, FilePath: path})
	}
	return refs
}

// CheckChain validates that resolvedPath can be appended to chain without
// exceeding maxDepth or closing a cycle, per spec §4.4. On success it
// returns the chain to hand to the child invocation (which will include
// resolvedPath itself, so a grandchild's CheckChain sees the whole
// ancestry). maxDepth<=0 falls back to DefaultMaxDepth.
func CheckChain(chain []string, resolvedPath string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if len(chain) >= maxDepth {
		return nil, codes.New(codes.DepthExceeded,
			fmt.Sprintf("sub-agent depth %d reached maximum %d", len(chain), maxDepth))
	}
	for _, p := range chain {
		if p == resolvedPath {
			full := append(append([]string{}, chain...), resolvedPath)
			return nil, codes.New(codes.CycleDetected,
				fmt.Sprintf("sub-agent cycle detected: %s", strings.Join(full, "→")))
		}
	}
	next := make([]string, 0, len(chain)+1)
	next = append(next, chain...)
	next = append(next, resolvedPath)
	return next, nil
}

// Request describes one subagent invocation handed to an Executor.
type Request struct {
	FilePath        string
	AgentName       string
	Prompt          string
	ParentSessionID string
	// Chain is the resolved call chain including this invocation's own
	// FilePath, to be threaded through to the child run so its own
	// sub-agent tools (if any) can keep checking depth/cycles.
	Chain []string
}

// Result is what an Executor returns after running a subagent to
// completion.
type Result struct {
	Text       string
	TokensUsed int
}

// Executor runs one subagent document to completion. Implementations
// typically wrap a nested prepare-and-run cycle (parse the document,
// assemble its own tools, drive internal/engine, journal the result);
// see internal/prepare.
type Executor interface {
	RunSubagent(ctx context.Context, req Request) (*Result, error)
}

// Tool adapts one resolved sub-agent Ref into a tool.Tool, enforcing
// depth/cycle limits before delegating to exec.
type Tool struct {
	ref             Ref
	exec            Executor
	parentSessionID string
	chain           []string
	maxDepth        int
}

// NewTool builds the tool for ref. chain is the call chain established by
// the parent run (not including ref.FilePath; Execute extends it).
func NewTool(ref Ref, exec Executor, parentSessionID string, chain []string, maxDepth int) *Tool {
	return &Tool{ref: ref, exec: exec, parentSessionID: parentSessionID, chain: chain, maxDepth: maxDepth}
}

// CompileTools builds one Tool per Ref, all sharing the same call chain
// (they are siblings, not ancestors of one another).
func CompileTools(refs []Ref, exec Executor, parentSessionID string, chain []string, maxDepth int) []tool.Tool {
	tools := make([]tool.Tool, 0, len(refs))
	for _, ref := range refs {
		tools = append(tools, NewTool(ref, exec, parentSessionID, chain, maxDepth))
	}
	return tools
}

func (t *Tool) ID() string { return "subagent__" + t.ref.Name }

func (t *Tool) Description() string {
	return fmt.Sprintf("Delegate a task to the '%s' sub-agent and return its final answer.", t.ref.Name)
}

func (t *Tool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {
				"type": "string",
				"description": "The task to hand to the sub-agent."
			}
		},
		"required": ["prompt"]
	}`)
}

type subagentInput struct {
	Prompt string `json:"prompt"`
}

// Execute checks the call chain, then delegates to the configured
// Executor. Depth/cycle failures are returned as a structured tool
// failure envelope rather than a Go error, so the model sees them as a
// retryable-or-not tool result per spec §7's propagation policy.
func (t *Tool) Execute(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
	var in subagentInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("subagent: invalid input: %w", err)
	}

	nextChain, err := CheckChain(t.chain, t.ref.FilePath, t.maxDepth)
	if err != nil {
		return &tool.Result{
			Title:  fmt.Sprintf("Sub-agent %s blocked", t.ref.Name),
			Output: codes.ToolFailureEnvelope(err.Error()),
			Error:  err,
		}, nil
	}

	parentSessionID := t.parentSessionID
	if toolCtx != nil && toolCtx.SessionID != "" {
		parentSessionID = toolCtx.SessionID
	}

	res, err := t.exec.RunSubagent(ctx, Request{
		FilePath:        t.ref.FilePath,
		AgentName:       t.ref.Name,
		Prompt:          in.Prompt,
		ParentSessionID: parentSessionID,
		Chain:           nextChain,
	})
	if err != nil {
		return &tool.Result{
			Title:  fmt.Sprintf("Sub-agent %s failed", t.ref.Name),
			Output: codes.ToolFailureEnvelope(err.Error()),
			Error:  err,
		}, nil
	}

	return &tool.Result{
		Title:  fmt.Sprintf("Sub-agent %s", t.ref.Name),
		Output: res.Text,
		Metadata: map[string]any{
			"tokensUsed": res.TokensUsed,
			"agent":      true,
		},
	}, nil
}

// EinoTool is unused by internal/engine, which builds schema.ToolInfo
// directly from Parameters()/Description(); returning nil keeps this type
// from depending on tool's unexported eino wrapper.
func (t *Tool) EinoTool() einotool.InvokableTool { return nil }
