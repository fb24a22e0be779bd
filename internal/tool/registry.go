package tool

import (
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/agentuse/agentuse/internal/logging"
	"github.com/agentuse/agentuse/internal/permission"
	"github.com/agentuse/agentuse/internal/storage"
	"github.com/agentuse/agentuse/internal/store"
)

// Registry manages tool registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	workDir string
	storage *storage.Storage
}

// NewRegistry creates a new tool registry.
func NewRegistry(workDir string, store *storage.Storage) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		workDir: workDir,
		storage: store,
	}
}

// Storage returns the storage instance.
func (r *Registry) Storage() *storage.Storage {
	return r.storage
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logging.Logger.Debug().Str("tool", tool.ID()).Msg("tool: registered")
	r.tools[tool.ID()] = tool
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[id]
	return tool, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}

// ApplyToolConfig enforces a document's declarative tools allow/deny map:
// an entry set to false removes that tool from the registry outright.
// Absent entries are left at their default (registered) state.
func (r *Registry) ApplyToolConfig(cfg map[string]bool) {
	if len(cfg) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, allowed := range cfg {
		if !allowed {
			delete(r.tools, id)
		}
	}
}

// IDs returns all tool IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}

// EinoTools returns Eino-compatible tools.
func (r *Registry) EinoTools() []einotool.BaseTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]einotool.BaseTool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t.EinoTool())
	}
	return tools
}

// ToolInfos returns Eino tool infos for all tools.
func (r *Registry) ToolInfos() ([]*schema.ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		params := parseJSONSchemaToParams(t.Parameters())
		infos = append(infos, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos, nil
}

// DefaultRegistry creates a registry with all built-in tools, enforcing
// perms (an agent document's already-resolved AgentPermissions — see
// permission.AgentPermissions.ResolveHeadless) through checker. Callers
// running headlessly must pass perms that resolved away ActionAsk, since
// nothing answers that prompt outside an interactive session.
func DefaultRegistry(workDir string, store *storage.Storage, checker *permission.Checker, perms permission.AgentPermissions) *Registry {
	r := NewRegistry(workDir, store)

	// Register core tools
	r.Register(NewReadTool(workDir))
	r.Register(NewWriteTool(workDir, WithWritePermissionChecker(checker), WithWriteAction(perms.Edit)))
	r.Register(NewEditTool(workDir, WithEditPermissionChecker(checker), WithEditAction(perms.Edit)))
	r.Register(NewBashTool(workDir,
		WithPermissionChecker(checker),
		WithBashPermissions(perms.Bash),
		WithExternalDirAction(perms.ExternalDir),
	))
	r.Register(NewGlobTool(workDir))
	r.Register(NewGrepTool(workDir))
	r.Register(NewListTool(workDir))
	r.Register(NewWebFetchTool(workDir, WithWebFetchPermissionChecker(checker), WithWebFetchAction(perms.WebFetch)))

	// Register todo tools
	r.Register(NewTodoWriteTool(workDir, store))
	r.Register(NewTodoReadTool(workDir, store))

	// Register batch tool for parallel execution
	r.Register(NewBatchTool(workDir, r))

	return r
}

// RegisterStoreTools registers the store_{create,get,update,delete,list}
// family bound to st, per spec §4.5 — called when an agent document
// declares a "store" (true for an isolated per-agent store, or a string
// naming a store shared across agents).
func (r *Registry) RegisterStoreTools(st *store.Store, agent string) {
	for _, t := range NewStoreTools(st, agent) {
		r.Register(t)
	}
}

// RegisterTools registers a batch of already-built tools, e.g. the
// subagent__<name> tools internal/subagent.CompileTools produces.
func (r *Registry) RegisterTools(tools []Tool) {
	for _, t := range tools {
		r.Register(t)
	}
}

