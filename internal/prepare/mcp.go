package prepare

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentuse/agentuse/internal/logging"
	"github.com/agentuse/agentuse/internal/mcp"
	"github.com/agentuse/agentuse/internal/tool"
)

// registerMCPTools connects every server in servers (agentdoc's raw
// "mcpServers" map, one entry per declared server) and registers its
// tools, already namespaced "<server>_<tool>" by mcp.Client.Tools(). A
// server that fails to connect is logged and skipped rather than failing
// the whole run, matching the teacher's own per-server isolation in
// internal/mcp/client.go's AddServer (a failed server is recorded with
// StatusFailed, not propagated as a fatal error).
//
// Returns a cleanup func that closes every connected client; callers
// should defer it once the registry is no longer needed.
func registerMCPTools(ctx context.Context, r *tool.Registry, servers map[string]any) func() {
	if len(servers) == 0 {
		return func() {}
	}

	client := mcp.NewClient()
	connected := false

	for name, raw := range servers {
		cfg, err := decodeMCPConfig(raw)
		if err != nil {
			logging.Logger.Warn().Str("server", name).Err(err).Msg("prepare: skipping malformed mcpServers entry")
			continue
		}
		if err := client.AddServer(ctx, name, cfg); err != nil {
			logging.Logger.Warn().Str("server", name).Err(err).Msg("prepare: mcp server failed to connect")
			continue
		}
		connected = true
	}

	if connected {
		for _, t := range client.Tools() {
			r.Register(mcp.NewMCPToolWrapper(t, client))
		}
	}

	return func() { _ = client.Close() }
}

// decodeMCPConfig converts one "mcpServers" entry (parsed by yaml.v3 into
// a generic map[string]any) into mcp.Config via a JSON round-trip, since
// yaml.v3's map[string]interface{} shape is already JSON-compatible.
func decodeMCPConfig(raw any) (*mcp.Config, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshalling mcp server config: %w", err)
	}
	cfg := &mcp.Config{Enabled: true}
	if err := json.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("decoding mcp server config: %w", err)
	}
	return cfg, nil
}
