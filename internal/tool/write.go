package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/agentuse/agentuse/internal/event"
	"github.com/agentuse/agentuse/internal/permission"
)

const writeDescription = `Writes content to a file on the local filesystem.

Usage:
- The file_path parameter must be an absolute path
- This tool will overwrite existing files
- Parent directories will be created if they don't exist
- ALWAYS prefer editing existing files over creating new ones`

// WriteTool implements file writing.
type WriteTool struct {
	workDir     string
	permChecker *permission.Checker
	action      permission.PermissionAction
}

// WriteInput represents the input for the write tool.
// Uses camelCase field names for SDK/tool-schema compatibility.
type WriteInput struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// WriteToolOption configures the write tool's permission enforcement.
type WriteToolOption func(*WriteTool)

// WithWritePermissionChecker sets the permission checker consulted before
// every write.
func WithWritePermissionChecker(checker *permission.Checker) WriteToolOption {
	return func(t *WriteTool) { t.permChecker = checker }
}

// WithWriteAction sets the agent-declared action for permission.PermEdit.
// Defaults to permission.ActionAllow when never set.
func WithWriteAction(action permission.PermissionAction) WriteToolOption {
	return func(t *WriteTool) { t.action = action }
}

// NewWriteTool creates a new write tool.
func NewWriteTool(workDir string, opts ...WriteToolOption) *WriteTool {
	t := &WriteTool{workDir: workDir, action: permission.ActionAllow}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WriteTool) ID() string          { return "Write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to write"
			},
			"content": {
				"type": "string",
				"description": "The content to write to the file"
			}
		},
		"required": ["filePath", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if t.permChecker != nil {
		sessionID := ""
		if toolCtx != nil {
			sessionID = toolCtx.SessionID
		}
		if err := t.permChecker.Check(ctx, permission.Request{
			Type:      permission.PermEdit,
			SessionID: sessionID,
			Title:     fmt.Sprintf("Write %s", params.FilePath),
		}, t.action); err != nil {
			return nil, err
		}
	}

	// Best-effort: capture prior content for diff metadata. A missing file
	// (the common "create a new file" case) just means an empty before.
	before := ""
	if existing, err := os.ReadFile(params.FilePath); err == nil {
		before = string(existing)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(params.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Write file
	if err := os.WriteFile(params.FilePath, []byte(params.Content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	// Publish file edited event (SDK compatible: just file path)
	if toolCtx != nil && toolCtx.SessionID != "" {
		event.Publish(event.Event{
			Type: event.FileEdited,
			Data: event.FileEditedData{
				File: params.FilePath,
			},
		})
	}

	baseDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		baseDir = toolCtx.WorkDir
	}
	diffText, additions, deletions := buildDiffMetadata(params.FilePath, before, params.Content, baseDir)

	metadata := map[string]any{
		"file":  params.FilePath,
		"bytes": len(params.Content),
	}
	if diffText != "" {
		metadata["diff"] = diffText
		metadata["additions"] = additions
		metadata["deletions"] = deletions
	}

	return &Result{
		Title: fmt.Sprintf("Wrote %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Successfully wrote %d bytes to %s",
			len(params.Content), params.FilePath),
		Metadata: metadata,
	}, nil
}

func (t *WriteTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
