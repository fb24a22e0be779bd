package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentuse/agentuse/internal/codes"
	"github.com/agentuse/agentuse/internal/tool"
)

// rawShape is whatever a tool call produced before normalisation: a plain
// string, an {output}/{result} envelope, or an MCP-style
// {content:[{type:"text",text},...]} array. FromToolResult and NormalizeRaw
// implement spec §4.2's tool-result normalisation.
type rawShape = any

// FromToolResult turns a built-in tool's structured Result (or its
// execution error) into the canonical (output, rawOutput, failed) triple
// the engine emits on a tool-result event.
func FromToolResult(res *tool.Result, execErr error) (output string, raw rawShape, failed bool) {
	if execErr != nil {
		env := codes.ToolFailureEnvelope(execErr.Error())
		return env, env, true
	}

	raw = rawOf(res)
	output, failed = NormalizeRaw(raw)

	if res.Error != nil {
		failed = true
		if output == "" {
			output = codes.ToolFailureEnvelope(res.Error.Error())
		}
	}
	return output, raw, failed
}

// rawOf extracts the shape to persist verbatim: a tool may stash its
// original untransformed response under Metadata["raw"] (MCP wrappers do
// this); otherwise the flattened Output string is the raw shape too.
func rawOf(res *tool.Result) rawShape {
	if res.Metadata != nil {
		if r, ok := res.Metadata["raw"]; ok {
			return r
		}
	}
	if res.Output != "" {
		return res.Output
	}
	return res
}

// NormalizeRaw unwraps one of the shapes spec §4.2 enumerates into a
// canonical display string, and reports whether the shape itself signals
// failure (success:false, an error field, or a non-zero exit code).
func NormalizeRaw(raw rawShape) (output string, failed bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, false
	case map[string]any:
		return normalizeObject(v)
	case *tool.Result:
		return v.Output, v.Error != nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), false
		}
		var obj map[string]any
		if err := json.Unmarshal(b, &obj); err == nil {
			return normalizeObject(obj)
		}
		return string(b), false
	}
}

func normalizeObject(obj map[string]any) (output string, failed bool) {
	if s, ok := obj["success"].(bool); ok && !s {
		failed = true
	}
	if errVal, ok := obj["error"]; ok && errVal != nil {
		failed = true
	}
	if meta, ok := obj["metadata"].(map[string]any); ok {
		if exitFailed(meta) {
			failed = true
		}
	}
	if exitFailed(obj) {
		failed = true
	}

	if s, ok := obj["output"].(string); ok {
		return s, failed
	}
	if s, ok := obj["result"].(string); ok {
		return s, failed
	}
	if content, ok := obj["content"].([]any); ok {
		return joinMCPContent(content), failed
	}
	if errVal, ok := obj["error"]; ok {
		if s, ok := errVal.(string); ok {
			return s, failed
		}
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Sprintf("%v", obj), failed
	}
	return string(b), failed
}

func exitFailed(m map[string]any) bool {
	for _, key := range []string{"exitCode", "exit"} {
		if n, ok := numeric(m[key]); ok && n != 0 {
			return true
		}
	}
	return false
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// joinMCPContent flattens an MCP {content:[{type:"text",text},...]} array
// into a single string, skipping non-text blocks.
func joinMCPContent(content []any) string {
	var parts []string
	for _, c := range content {
		block, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := block["type"].(string); t != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
