package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/agentuse/agentuse/internal/codes"
	"github.com/agentuse/agentuse/internal/store"
)

// storeCreateTool, storeGetTool, storeUpdateTool, storeDeleteTool, and
// storeListTool expose one opened *store.Store as the "store_*" tool
// family named in spec §4.5, grounded on this package's own
// TodoReadTool/TodoWriteTool pattern (a storage-backed tool pair kept
// thin, with all actual state handling delegated to the backing type).

type storeCreateTool struct {
	agent string
	st    *store.Store
}

// NewStoreCreateTool creates the "store_create" tool bound to st.
func NewStoreCreateTool(st *store.Store, agent string) Tool {
	return &storeCreateTool{agent: agent, st: st}
}

func (t *storeCreateTool) ID() string          { return "store_create" }
func (t *storeCreateTool) Description() string { return "Create a new item in the agent's persistent store." }

func (t *storeCreateTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"type": {"type": "string", "description": "Item type, e.g. 'task' or 'note'."},
			"title": {"type": "string", "description": "Short title."},
			"data": {"type": "object", "description": "Arbitrary structured payload."}
		},
		"required": ["type", "title"]
	}`)
}

type storeCreateInput struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Data  map[string]any `json:"data,omitempty"`
}

func (t *storeCreateTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var in storeCreateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("store_create: invalid input: %w", err)
	}
	item, err := t.st.Create(in.Type, in.Title, in.Data)
	if err != nil {
		return storeErrorResult("store_create", err), nil
	}
	return storeItemResult("Created "+item.ID, item), nil
}

func (t *storeCreateTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

type storeGetTool struct {
	st *store.Store
}

// NewStoreGetTool creates the "store_get" tool bound to st.
func NewStoreGetTool(st *store.Store) Tool { return &storeGetTool{st: st} }

func (t *storeGetTool) ID() string          { return "store_get" }
func (t *storeGetTool) Description() string { return "Fetch one item from the agent's persistent store by id." }

func (t *storeGetTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"id": {"type": "string"}},
		"required": ["id"]
	}`)
}

func (t *storeGetTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("store_get: invalid input: %w", err)
	}
	item, ok, err := t.st.Get(in.ID)
	if err != nil {
		return storeErrorResult("store_get", err), nil
	}
	if !ok {
		return storeErrorResult("store_get", fmt.Errorf("item %s not found", in.ID)), nil
	}
	return storeItemResult(item.Title, item), nil
}

func (t *storeGetTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

type storeUpdateTool struct {
	st *store.Store
}

// NewStoreUpdateTool creates the "store_update" tool bound to st.
func NewStoreUpdateTool(st *store.Store) Tool { return &storeUpdateTool{st: st} }

func (t *storeUpdateTool) ID() string          { return "store_update" }
func (t *storeUpdateTool) Description() string { return "Patch title/status/data/tags on an existing store item." }

func (t *storeUpdateTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"title": {"type": "string"},
			"status": {"type": "string"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"data": {"type": "object"}
		},
		"required": ["id"]
	}`)
}

type storeUpdateInput struct {
	ID     string         `json:"id"`
	Title  *string        `json:"title,omitempty"`
	Status *string        `json:"status,omitempty"`
	Tags   []string       `json:"tags,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

func (t *storeUpdateTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var in storeUpdateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("store_update: invalid input: %w", err)
	}
	item, err := t.st.Update(in.ID, func(it *store.Item) {
		if in.Title != nil {
			it.Title = *in.Title
		}
		if in.Status != nil {
			it.Status = *in.Status
		}
		if in.Tags != nil {
			it.Tags = in.Tags
		}
		if in.Data != nil {
			it.Data = in.Data
		}
	})
	if err != nil {
		return storeErrorResult("store_update", err), nil
	}
	return storeItemResult("Updated "+item.ID, item), nil
}

func (t *storeUpdateTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

type storeDeleteTool struct {
	st *store.Store
}

// NewStoreDeleteTool creates the "store_delete" tool bound to st.
func NewStoreDeleteTool(st *store.Store) Tool { return &storeDeleteTool{st: st} }

func (t *storeDeleteTool) ID() string          { return "store_delete" }
func (t *storeDeleteTool) Description() string { return "Delete an item from the agent's persistent store." }

func (t *storeDeleteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"id": {"type": "string"}},
		"required": ["id"]
	}`)
}

func (t *storeDeleteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("store_delete: invalid input: %w", err)
	}
	if err := t.st.Delete(in.ID); err != nil {
		return storeErrorResult("store_delete", err), nil
	}
	return &Result{Title: "Deleted " + in.ID, Output: `{"deleted":true}`}, nil
}

func (t *storeDeleteTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

type storeListTool struct {
	st *store.Store
}

// NewStoreListTool creates the "store_list" tool bound to st.
func NewStoreListTool(st *store.Store) Tool { return &storeListTool{st: st} }

func (t *storeListTool) ID() string          { return "store_list" }
func (t *storeListTool) Description() string { return "List items from the agent's persistent store, newest first." }

func (t *storeListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"type": {"type": "string"},
			"status": {"type": "string"},
			"parentId": {"type": "string"},
			"tag": {"type": "string"},
			"limit": {"type": "integer"},
			"offset": {"type": "integer"}
		},
		"required": []
	}`)
}

func (t *storeListTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var in struct {
		Type     string `json:"type"`
		Status   string `json:"status"`
		ParentID string `json:"parentId"`
		Tag      string `json:"tag"`
		Limit    int    `json:"limit"`
		Offset   int    `json:"offset"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("store_list: invalid input: %w", err)
	}
	items, err := t.st.List(store.ListQuery{
		Type: in.Type, Status: in.Status, ParentID: in.ParentID, Tag: in.Tag,
		Limit: in.Limit, Offset: in.Offset,
	})
	if err != nil {
		return storeErrorResult("store_list", err), nil
	}
	output, _ := json.MarshalIndent(items, "", "  ")
	return &Result{
		Title:    fmt.Sprintf("%d items", len(items)),
		Output:   string(output),
		Metadata: map[string]any{"count": len(items)},
	}, nil
}

func (t *storeListTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// NewStoreTools builds the full store_{create,get,update,delete,list}
// family bound to one opened store, per spec §4.5.
func NewStoreTools(st *store.Store, agent string) []Tool {
	return []Tool{
		NewStoreCreateTool(st, agent),
		NewStoreGetTool(st),
		NewStoreUpdateTool(st),
		NewStoreDeleteTool(st),
		NewStoreListTool(st),
	}
}

func storeItemResult(title string, item store.Item) *Result {
	output, _ := json.MarshalIndent(item, "", "  ")
	return &Result{Title: title, Output: string(output), Metadata: map[string]any{"id": item.ID}}
}

func storeErrorResult(op string, err error) *Result {
	return &Result{
		Title:  op + " failed",
		Output: codes.ToolFailureEnvelope(err.Error()),
		Error:  err,
	}
}
