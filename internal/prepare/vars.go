package prepare

import "strings"

// SubstituteVars replaces "${root}", "${agentDir}", and "${tmpDir}" inside
// instructions or tool config strings, per spec §4.5. "${env:NAME}" is
// deliberately left untouched here: it is resolved by tools at call time,
// not by prepare, so a tool config value can still defer to the process
// environment without prepare baking a snapshot of it into the agent
// document.
func SubstituteVars(s, root, agentDir, tmpDir string) string {
	replacer := strings.NewReplacer(
		"${root}", root,
		"${agentDir}", agentDir,
		"${tmpDir}", tmpDir,
	)
	return replacer.Replace(s)
}
