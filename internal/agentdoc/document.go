// Package agentdoc parses self-contained ".agentuse" agent documents: a
// YAML preamble delimited by "---" lines followed by a markdown body that
// becomes the agent's instructions.
package agentdoc

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentuse/agentuse/internal/permission"
)

// SubagentRef declares one sub-agent available to the parent document.
type SubagentRef struct {
	Path string `yaml:"path"`
	Name string `yaml:"name,omitempty"`
}

// Learning declares whether an agent should apply and persist learned
// context back to a file.
type Learning struct {
	Apply bool   `yaml:"apply,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// Config is the parsed YAML preamble of an agent document.
type Config struct {
	Model       string                 `yaml:"model,omitempty"`
	Timeout     int                    `yaml:"timeout,omitempty"`
	MaxSteps    int                    `yaml:"maxSteps,omitempty"`
	MCPServers  map[string]any         `yaml:"mcpServers,omitempty"`
	Tools       map[string]bool        `yaml:"tools,omitempty"`
	Subagents   []SubagentRef          `yaml:"subagents,omitempty"`
	Schedule    string                 `yaml:"schedule,omitempty"`
	Store       any                    `yaml:"store,omitempty"` // bool or string
	Learning    *Learning              `yaml:"learning,omitempty"`
	Type        string                 `yaml:"type,omitempty"`
	Description string                 `yaml:"description,omitempty"`
	Permission  permission.AgentPermissions `yaml:"permission,omitempty"`
	Extra       map[string]any         `yaml:",inline"`
}

// Document is a fully parsed agent document: its static configuration plus
// the markdown body used as the system prompt's instructions.
type Document struct {
	// Name is the document's display name, taken from its file base name
	// when no explicit name is declared in front matter.
	Name string

	// AgentId is derived from FilePath relative to a project root; see
	// DeriveAgentID.
	AgentId string

	FilePath     string
	Instructions string
	Config       Config
}

var preambleDelim = regexp.MustCompile(`(?m)^---\s*$`)

// Parse parses raw agent document content. filePath is used only to derive
// Name and is not read; pass "" when parsing content not backed by a file.
func Parse(content string, filePath string) (*Document, error) {
	doc := &Document{FilePath: filePath}

	body := content
	if strings.HasPrefix(strings.TrimLeft(content, "\n"), "---") {
		trimmed := strings.TrimPrefix(content, "﻿")
		trimmed = strings.TrimLeft(trimmed, "\n")
		locs := preambleDelim.FindAllStringIndex(trimmed, 2)
		if len(locs) >= 2 {
			yamlBlock := trimmed[locs[0][1]:locs[1][0]]
			body = trimmed[locs[1][1]:]
			if err := yaml.Unmarshal([]byte(yamlBlock), &doc.Config); err != nil {
				return nil, fmt.Errorf("agentdoc: parsing front matter of %s: %w", displayName(filePath), err)
			}
		}
	}

	doc.Instructions = strings.TrimSpace(body)

	if name, ok := doc.Config.Extra["name"].(string); ok && name != "" {
		doc.Name = name
	}
	if doc.Name == "" {
		doc.Name = baseNameWithoutExt(filePath)
	}

	return doc, nil
}

// DeriveAgentID derives the AgentId for a document: the file path relative
// to root with the ".agentuse" suffix stripped, falling back to the
// document's display name when filePath is empty. A filePath outside root
// is used whole (suffix stripped) instead of relative to root.
func DeriveAgentID(filePath, root, fallbackName string) string {
	if filePath == "" {
		return fallbackName
	}
	rel, err := filepath.Rel(root, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filePath
	}
	rel = strings.TrimSuffix(rel, ".agentuse")
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return fallbackName
	}
	return rel
}

// Sanitise normalises an arbitrary AgentId into the directory-safe form
// used for on-disk naming: lower-cased, non [a-z0-9-_] runs collapsed to a
// single "-", leading/trailing "-" stripped; empty result maps to
// "default".
func Sanitise(agentID string) string {
	lower := strings.ToLower(agentID)
	var b strings.Builder
	lastDash := false
	for _, r := range lower {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
		if ok {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	if out == "" {
		return "default"
	}
	return out
}

func baseNameWithoutExt(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func displayName(path string) string {
	if path == "" {
		return "<inline>"
	}
	return path
}
