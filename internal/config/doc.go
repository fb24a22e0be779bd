// Package config provides configuration loading, merging, and path management
// for the agent runtime.
//
// # Configuration Loading
//
// Load searches for and merges configuration from multiple sources in
// priority order, each overriding the last:
//
//  1. Global config (~/.config/agentuse/agentuse.json[c])
//  2. Project config (<directory>/.agentuse/agentuse.json[c])
//  3. Environment variables
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with comments) are accepted; JSONC files have
// their // and /* */ comments stripped before unmarshaling.
//
// # Configuration Merging
//
// The Provider map is merged key by key; Model and SmallModel are
// overwritten wholesale by the last non-empty source.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification (with HOME/APPDATA
// fallbacks on systems missing the XDG_* variables):
//   - Data: ~/.local/share/agentuse (XDG_DATA_HOME)
//   - Config: ~/.config/agentuse (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/agentuse (XDG_CACHE_HOME)
//   - State: ~/.local/state/agentuse (XDG_STATE_HOME)
//
// # Environment Variable Overrides
//
//   - AGENTUSE_MODEL - Override the default model
//   - AGENTUSE_SMALL_MODEL - Override the small model
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY / GOOGLE_API_KEY / AWS_ACCESS_KEY_ID -
//     fill in a provider's APIKey when the loaded config left it blank
//
// # Usage Example
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	paths := config.GetPaths()
//	if err := paths.EnsurePaths(); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := config.Save(cfg, config.GlobalConfigPath()); err != nil {
//	    log.Fatal(err)
//	}
package config
