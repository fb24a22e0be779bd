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

func TestScheduledRunReportsPrepareFailure(t *testing.T) {
	st := storage.New(t.TempDir())
	j := journal.New(st)

	run := ScheduledRun(j, st, t.TempDir(), t.TempDir())
	result := run(context.Background(), "/does/not/exist.agentuse")

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.SessionID)
}

func TestScheduledRunReportsCredentialFailure(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	projectRoot := t.TempDir()
	st := storage.New(t.TempDir())
	j := journal.New(st)

	path := filepath.Join(projectRoot, "main.agentuse")
	require.NoError(t, os.WriteFile(path, []byte("---\nmodel: anthropic:claude-sonnet-4-20250514\n---\nsay hi\n"), 0o644))

	run := ScheduledRun(j, st, projectRoot, projectRoot)
	result := run(context.Background(), path)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.NotEmpty(t, result.SessionID)
}
