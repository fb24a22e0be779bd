package prepare

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentuse/agentuse/internal/journal"
	"github.com/agentuse/agentuse/internal/storage"
)

func writeAgentDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPrepareBuildsSessionAndSubstitutesVars(t *testing.T) {
	projectRoot := t.TempDir()
	agentDir := filepath.Join(projectRoot, "agents")
	require.NoError(t, os.MkdirAll(agentDir, 0o755))

	doc := `---
model: anthropic:claude-sonnet-4-20250514
maxSteps: 10
description: a test agent
subagents:
  - path: ./helper.agentuse
    name: helper
---
Work inside ${root} using files under ${agentDir}, scratch space at ${tmpDir}.
`
	agentPath := writeAgentDoc(t, agentDir, "main.agentuse", doc)

	st := storage.New(t.TempDir())
	j := journal.New(st)

	prepared, err := Prepare(context.Background(), j, Options{
		AgentPath:   agentPath,
		ProjectRoot: projectRoot,
		WorkDir:     projectRoot,
	})
	require.NoError(t, err)

	assert.Equal(t, "anthropic", prepared.Model.ProviderID)
	assert.Equal(t, "claude-sonnet-4-20250514", prepared.Model.ModelID)
	assert.Equal(t, 10, prepared.MaxSteps)
	assert.Contains(t, prepared.Instructions, "Work inside "+projectRoot)
	assert.Contains(t, prepared.Instructions, "files under "+agentDir)
	assert.NotContains(t, prepared.Instructions, "${")
	assert.Contains(t, prepared.SystemPrompt, prepared.Instructions)
	assert.Contains(t, prepared.SystemPrompt, "Working Directory:")

	require.Len(t, prepared.SubagentRefs, 1)
	assert.Equal(t, "helper", prepared.SubagentRefs[0].Name)
	assert.Equal(t, filepath.Join(agentDir, "helper.agentuse"), prepared.SubagentRefs[0].FilePath)

	require.NotNil(t, prepared.Session)
	assert.Equal(t, "anthropic:claude-sonnet-4-20250514", prepared.Session.Model)
	assert.False(t, prepared.Session.Agent.IsSubAgent)

	loaded, err := j.GetSession(context.Background(), prepared.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, prepared.Session.ID, loaded.ID)
}

func TestPrepareMarksSubagentSessions(t *testing.T) {
	projectRoot := t.TempDir()
	agentPath := writeAgentDoc(t, projectRoot, "child.agentuse", `---
model: anthropic:claude-sonnet-4-20250514
---
do the thing
`)

	st := storage.New(t.TempDir())
	j := journal.New(st)

	parent, err := j.CreateSession(context.Background(), journal.SessionInfo{
		Agent:   journal.AgentRef{ID: "parent"},
		Model:   "anthropic:claude-sonnet-4-20250514",
		Project: journal.SessionProject{Root: projectRoot, Cwd: projectRoot},
	})
	require.NoError(t, err)

	prepared, err := Prepare(context.Background(), j, Options{
		AgentPath:       agentPath,
		ProjectRoot:     projectRoot,
		WorkDir:         projectRoot,
		ParentSessionID: parent.ID,
	})
	require.NoError(t, err)

	assert.True(t, prepared.Session.Agent.IsSubAgent)
	assert.Equal(t, parent.ID, prepared.Session.ParentSessionID)
}

func TestPrepareRejectsMissingModel(t *testing.T) {
	projectRoot := t.TempDir()
	agentPath := writeAgentDoc(t, projectRoot, "nomodel.agentuse", "---\ndescription: no model here\n---\nbody\n")

	st := storage.New(t.TempDir())
	j := journal.New(st)

	_, err := Prepare(context.Background(), j, Options{
		AgentPath:   agentPath,
		ProjectRoot: projectRoot,
		WorkDir:     projectRoot,
	})
	require.Error(t, err)
}
