package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/agentuse/agentuse/internal/codes"
	"github.com/agentuse/agentuse/internal/logging"
	"github.com/agentuse/agentuse/internal/provider"
	"github.com/agentuse/agentuse/internal/tool"
)

// errAbort is the internal sentinel drainStream returns when the abort
// channel fires mid-stream or ctx is Canceled; emitStreamFailure translates
// it into an error{AbortError} event per spec §4.2. A ctx deadline exceeded
// takes the separate, non-abort path below so it classifies as TIMEOUT
// rather than USER_INTERRUPT.
var errAbort = errors.New("engine: run aborted")

func isAbort(err error) bool {
	return errors.Is(err, errAbort) || errors.Is(err, context.Canceled)
}

// DefaultMaxSteps matches the teacher's MaxSteps constant in
// internal/session/loop.go; spec §6 exposes it as the MAX_STEPS env var.
const DefaultMaxSteps = 50

// stepWarnFraction is the fraction of maxSteps at which the engine emits a
// debug warning per spec §4.2 ("0.9·maxSteps").
const stepWarnFraction = 0.9

// MessageStream is the subset of *provider.CompletionStream the engine
// needs; a plain interface so tests can supply a canned stream without a
// live model backend.
type MessageStream interface {
	Recv() (*schema.Message, error)
	Close()
}

// Provider is the subset of provider.Provider the engine drives.
type Provider interface {
	CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (MessageStream, error)
}

// AdaptProvider wraps a real provider.Provider so it satisfies Provider.
func AdaptProvider(p provider.Provider) Provider { return providerAdapter{p} }

type providerAdapter struct{ p provider.Provider }

func (a providerAdapter) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (MessageStream, error) {
	return a.p.CreateCompletion(ctx, req)
}

// ToolResolver looks tools up by their registry ID. *tool.Registry already
// satisfies this.
type ToolResolver interface {
	Get(id string) (tool.Tool, bool)
	IDs() []string
}

// DoomLoopChecker matches doomloop.Detector's Check method.
type DoomLoopChecker interface {
	Check(sessionID, toolName string, input any) (bool, error)
}

// ToolCall is one LLM-requested tool invocation accumulated from a
// provider's streamed response.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// Input is everything one call to Run needs, per spec §4.2's contract
// "(agent, tools, {userMessage, systemMessages[], maxSteps, abortSignal?,
// subAgentNames})".
type Input struct {
	SessionID     string
	Model         string
	ModelInfo     *provider.CompletionRequest // reused for MaxTokens/Temperature/TopP defaults; Messages/Tools overwritten per call
	Messages      []*schema.Message
	Tools         ToolResolver
	MaxSteps      int
	AbortCh       <-chan struct{}
	SubAgentNames map[string]bool
	ToolContext   *tool.Context
	DoomLoop      DoomLoopChecker
}

// Engine drives the step loop against a Provider.
type Engine struct {
	provider Provider
}

// New creates an Engine bound to a Provider.
func New(p Provider) *Engine {
	return &Engine{provider: p}
}

// Run starts the step loop and returns a channel of events. The channel is
// closed when the run reaches a terminal state (FINISHED, ERRORED, or
// ABORTED per spec §4.2's state machine).
func (e *Engine) Run(ctx context.Context, in Input) <-chan Event {
	out := make(chan Event, 32)
	go e.run(ctx, in, out)
	return out
}

func (e *Engine) run(ctx context.Context, in Input, out chan<- Event) {
	defer close(out)

	maxSteps := in.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	warnAt := int(math.Ceil(stepWarnFraction * float64(maxSteps)))
	warned := false

	messages := append([]*schema.Message{}, in.Messages...)
	step := 0
	stepLimitNote := false

	base := &provider.CompletionRequest{}
	if in.ModelInfo != nil {
		base = in.ModelInfo
	}

	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				out <- Event{Type: EventError, Time: time.Now(), Err: err}
			} else {
				out <- Event{Type: EventError, Time: time.Now(), Err: context.Canceled, AbortError: true}
			}
			return
		}
		if aborted(in.AbortCh) {
			out <- Event{Type: EventError, Time: time.Now(), Err: context.Canceled, AbortError: true}
			return
		}

		out <- Event{Type: EventLLMStart, Time: time.Now(), Model: in.Model}

		req := &provider.CompletionRequest{
			Model:       in.Model,
			Messages:    messages,
			MaxTokens:   base.MaxTokens,
			Temperature: base.Temperature,
			TopP:        base.TopP,
		}
		if in.Tools != nil {
			req.Tools = toolInfos(in.Tools)
		}

		stream, err := e.provider.CreateCompletion(ctx, req)
		if err != nil {
			e.emitStreamFailure(out, err, step, maxSteps)
			return
		}

		reply, toolCalls, finishReason, usage, streamErr := e.drainStream(ctx, stream, out, in.AbortCh)
		stream.Close()

		if streamErr != nil {
			e.emitStreamFailure(out, streamErr, step, maxSteps)
			return
		}

		messages = append(messages, assistantMessage(reply, toolCalls))

		if len(toolCalls) == 0 {
			out <- Event{
				Type:          EventFinish,
				Time:          time.Now(),
				FinishReason:  normalizeFinishReason(finishReason),
				Usage:         usage,
				StepLimitNote: stepLimitNote,
			}
			return
		}

		for _, tc := range toolCalls {
			step++
			if !warned && step >= warnAt {
				warned = true
				logging.Logger.Debug().Int("step", step).Int("maxSteps", maxSteps).Msg("engine: approaching step limit")
			}

			if in.DoomLoop != nil {
				triggered, doomErr := in.DoomLoop.Check(in.SessionID, tc.Name, tc.Input)
				if triggered {
					out <- Event{Type: EventError, Time: time.Now(), Err: doomErr}
					return
				}
			}

			result := e.dispatchTool(ctx, tc, in, out)
			messages = append(messages, toolResultMessage(tc, result))

			if step >= maxSteps {
				stepLimitNote = true
			}
		}

		if stepLimitNote {
			out <- Event{
				Type:          EventFinish,
				Time:          time.Now(),
				FinishReason:  "stop",
				StepLimitNote: true,
			}
			return
		}
	}
}

func (e *Engine) emitStreamFailure(out chan<- Event, err error, step, maxSteps int) {
	if isAbort(err) {
		out <- Event{Type: EventError, Time: time.Now(), Err: err, AbortError: true}
		return
	}
	if kind, _ := codes.Classify(err.Error()); kind == codes.ContextOverflow {
		suggestion := "try compacting the conversation"
		if step == 0 {
			suggestion = "try a smaller sub-agent call"
		}
		out <- Event{Type: EventError, Time: time.Now(), Err: codes.Wrap(codes.ContextOverflow, suggestion, err)}
		return
	}
	out <- Event{Type: EventError, Time: time.Now(), Err: err}
}

// drainStream pulls chunks from the provider stream, emitting text/reasoning
// events and accumulating tool-call fragments by index, mirroring
// internal/session/stream.go's processMessageChunk.
func (e *Engine) drainStream(
	ctx context.Context,
	stream MessageStream,
	out chan<- Event,
	abortCh <-chan struct{},
) (content string, calls []ToolCall, finishReason string, usage *Usage, err error) {
	var sawFirstToken bool
	order := []int{}
	byIndex := map[int]*pending{}
	byID := map[string]*pending{}

	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return content, calls, finishReason, usage, err
			}
			return content, calls, finishReason, usage, errAbort
		}
		if aborted(abortCh) {
			return content, calls, finishReason, usage, errAbort
		}

		msg, recvErr := stream.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				break
			}
			return content, calls, finishReason, usage, recvErr
		}

		if msg.Content != "" {
			if !sawFirstToken {
				sawFirstToken = true
				out <- Event{Type: EventLLMFirstToken, Time: time.Now()}
			}
			content += msg.Content
			out <- Event{Type: EventText, Time: time.Now(), Text: msg.Content}
		}

		if msg.ReasoningContent != "" {
			out <- Event{Type: EventReasoning, Time: time.Now(), Text: msg.ReasoningContent}
		}

		for _, tc := range msg.ToolCalls {
			idx := -1
			if tc.Index != nil {
				idx = *tc.Index
			}

			var p *pending
			if idx >= 0 {
				var ok bool
				p, ok = byIndex[idx]
				if !ok {
					p = &pending{}
					byIndex[idx] = p
					order = append(order, idx)
				}
			} else if tc.ID != "" {
				var ok bool
				p, ok = byID[tc.ID]
				if !ok {
					p = &pending{}
					byID[tc.ID] = p
				}
			} else {
				continue
			}

			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				p.args.WriteString(tc.Function.Arguments)
			}
		}

		if msg.ResponseMeta != nil {
			if msg.ResponseMeta.Usage != nil {
				if usage == nil {
					usage = &Usage{}
				}
				usage.Input = msg.ResponseMeta.Usage.PromptTokens
				usage.Output = msg.ResponseMeta.Usage.CompletionTokens
			}
			if msg.ResponseMeta.FinishReason != "" {
				finishReason = msg.ResponseMeta.FinishReason
			}
		}
	}

	for _, idx := range order {
		p := byIndex[idx]
		calls = append(calls, toCall(p))
	}
	for _, p := range byID {
		calls = append(calls, toCall(p))
	}

	if finishReason == "" {
		if len(calls) > 0 {
			finishReason = "tool-calls"
		} else {
			finishReason = "stop"
		}
	}

	return content, calls, finishReason, usage, nil
}

func toCall(p *pending) ToolCall {
	var input map[string]any
	if p.args.Len() > 0 {
		_ = json.Unmarshal([]byte(p.args.String()), &input)
	}
	if input == nil {
		input = map[string]any{}
	}
	return ToolCall{ID: p.id, Name: p.name, Input: input}
}

type pending = struct {
	id, name string
	args     strings.Builder
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "tool_use":
		return "tool-calls"
	case "end_turn":
		return "stop"
	case "":
		return "stop"
	default:
		return reason
	}
}

// dispatchTool executes one tool call, normalising its result and handling
// the unknown-tool case per spec §4.2.
func (e *Engine) dispatchTool(ctx context.Context, tc ToolCall, in Input, out chan<- Event) Event {
	start := time.Now()
	isSubAgent := in.SubAgentNames != nil && in.SubAgentNames[tc.Name]

	out <- Event{
		Type:       EventToolCall,
		Time:       start,
		ToolName:   tc.Name,
		CallID:     tc.ID,
		Input:      tc.Input,
		IsSubAgent: isSubAgent,
	}

	t, ok := in.Tools.Get(tc.Name)
	if !ok {
		env := codes.UnknownToolEnvelope(tc.Name, in.Tools.IDs())
		ev := Event{
			Type:     EventToolResult,
			Time:     time.Now(),
			ToolName: tc.Name,
			CallID:   tc.ID,
			Output:   env,
			RawOutput: env,
			Duration: time.Since(start),
			Failed:   true,
		}
		out <- ev
		return ev
	}

	inputJSON, _ := json.Marshal(tc.Input)
	toolCtx := in.ToolContext
	if toolCtx != nil {
		clone := *toolCtx
		clone.CallID = tc.ID
		toolCtx = &clone
	}

	res, execErr := t.Execute(ctx, inputJSON, toolCtx)
	output, raw, failed := FromToolResult(res, execErr)

	ev := Event{
		Type:      EventToolResult,
		Time:      time.Now(),
		ToolName:  tc.Name,
		CallID:    tc.ID,
		Output:    output,
		RawOutput: raw,
		Duration:  time.Since(start),
		Failed:    failed,
	}
	out <- ev
	return ev
}

func toolInfos(tools ToolResolver) []*schema.ToolInfo {
	var infos []*schema.ToolInfo
	for _, id := range tools.IDs() {
		t, ok := tools.Get(id)
		if !ok {
			continue
		}
		var jsonSchema struct {
			Properties map[string]struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			} `json:"properties"`
			Required []string `json:"required"`
		}
		_ = json.Unmarshal(t.Parameters(), &jsonSchema)

		required := map[string]bool{}
		for _, r := range jsonSchema.Required {
			required[r] = true
		}
		params := map[string]*schema.ParameterInfo{}
		for name, prop := range jsonSchema.Properties {
			paramType := schema.String
			switch prop.Type {
			case "integer":
				paramType = schema.Integer
			case "number":
				paramType = schema.Number
			case "boolean":
				paramType = schema.Boolean
			case "array":
				paramType = schema.Array
			case "object":
				paramType = schema.Object
			}
			params[name] = &schema.ParameterInfo{Type: paramType, Desc: prop.Description, Required: required[name]}
		}

		infos = append(infos, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func assistantMessage(content string, calls []ToolCall) *schema.Message {
	msg := &schema.Message{Role: schema.Assistant, Content: content}
	for _, c := range calls {
		argsJSON, _ := json.Marshal(c.Input)
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
			ID:       c.ID,
			Function: schema.FunctionCall{Name: c.Name, Arguments: string(argsJSON)},
		})
	}
	return msg
}

func toolResultMessage(tc ToolCall, result Event) *schema.Message {
	content := result.Output
	if result.Failed && content == "" {
		content = fmt.Sprintf("tool %q failed", tc.Name)
	}
	return &schema.Message{
		Role:       schema.Tool,
		Content:    content,
		ToolCallID: tc.ID,
	}
}

func aborted(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
