package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelSpecTwoSegments(t *testing.T) {
	ms, err := ParseModelSpec("anthropic:claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", ms.ProviderID)
	assert.Equal(t, "claude-sonnet-4-20250514", ms.ModelID)
	assert.False(t, ms.HasEnvSelector)
	assert.Equal(t, "ANTHROPIC_API_KEY", ms.APIKeyEnv())
	assert.Equal(t, "ANTHROPIC_BASE_URL", ms.BaseURLEnv())
}

func TestParseModelSpecThreeSegments(t *testing.T) {
	ms, err := ParseModelSpec("openai:gpt-4o:WORK")
	require.NoError(t, err)
	assert.Equal(t, "openai", ms.ProviderID)
	assert.Equal(t, "gpt-4o", ms.ModelID)
	assert.True(t, ms.HasEnvSelector)
	assert.Equal(t, "OPENAI_API_KEY_WORK", ms.APIKeyEnv())
	assert.Equal(t, "OPENAI_BASE_URL_WORK", ms.BaseURLEnv())
	assert.Equal(t, "openai:gpt-4o:WORK", ms.String())
}

func TestParseModelSpecRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "anthropic", "anthropic:", ":claude"} {
		_, err := ParseModelSpec(bad)
		assert.Error(t, err, "expected error for %q", bad)
	}
}
