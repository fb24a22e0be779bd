package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteVarsReplacesKnownPlaceholders(t *testing.T) {
	in := "root=${root} agentDir=${agentDir} tmp=${tmpDir} key=${env:SECRET}"
	out := SubstituteVars(in, "/proj", "/proj/agents", "/tmp/x")
	assert.Equal(t, "root=/proj agentDir=/proj/agents tmp=/tmp/x key=${env:SECRET}", out)
}

func TestSubstituteVarsLeavesPlainTextUntouched(t *testing.T) {
	in := "no placeholders here"
	assert.Equal(t, in, SubstituteVars(in, "/a", "/b", "/c"))
}
