package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentuse/agentuse/internal/config"
	"github.com/agentuse/agentuse/internal/doomloop"
	"github.com/agentuse/agentuse/internal/engine"
	"github.com/agentuse/agentuse/internal/journal"
	"github.com/agentuse/agentuse/internal/prepare"
	"github.com/agentuse/agentuse/internal/project"
	"github.com/agentuse/agentuse/internal/storage"
	"github.com/spf13/cobra"
)

var (
	runDir     string
	runTimeout int
)

var runCmd = &cobra.Command{
	Use:   "run <agent-file> [message...]",
	Short: "Run one agent document to completion",
	Long: `Run parses a single ".agentuse" document, resolves its model, tools,
and any declared sub-agents, then drives the step loop against the given
message to completion, printing the assistant's final text.

Examples:
  agentuse run ./review.agentuse "check this diff for bugs"
  agentuse run ./helper.agentuse --directory /path/to/project`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAgentDocument,
}

func init() {
	runCmd.Flags().StringVar(&runDir, "directory", "", "Project root (defaults to the current directory)")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Override the document's configured timeout, in seconds (0 = use the document's)")
}

func runAgentDocument(cmd *cobra.Command, args []string) error {
	agentPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving agent path: %w", err)
	}
	message := strings.Join(args[1:], " ")

	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}
	projectRoot := resolveProjectRoot(workDir)

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	st := storage.New(paths.StoragePath())
	j := journal.New(st)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	prepared, err := prepare.Prepare(ctx, j, prepare.Options{
		AgentPath:   agentPath,
		ProjectRoot: projectRoot,
		WorkDir:     workDir,
	})
	if err != nil {
		return fmt.Errorf("preparing %s: %w", agentPath, err)
	}

	prov, err := prepare.BuildProvider(ctx, prepared.Model)
	if err != nil {
		return fmt.Errorf("building provider for %s: %w", prepared.Model, err)
	}

	exec := &prepare.NestedExecutor{
		Journal:          j,
		Storage:          st,
		ProjectRoot:      projectRoot,
		WorkDir:          workDir,
		MaxSubagentDepth: prepared.MaxSubagentDepth,
	}

	fmt.Fprintf(os.Stderr, "session %s · agent %s · model %s\n", prepared.Session.ID, prepared.AgentID, prepared.Model)

	outcome, err := prepare.Run(ctx, j, prepared, engine.AdaptProvider(prov), prepare.RunOptions{
		UserPrompt: message,
		Storage:    st,
		Executor:   exec,
		DoomLoop:   doomloop.New(doomloop.ActionError),
	})

	fmt.Println(outcome.Text)

	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	if outcome.Usage != nil {
		fmt.Fprintf(os.Stderr, "tokens: %d in / %d out\n", outcome.Usage.Input, outcome.Usage.Output)
	}
	return nil
}

// resolveProjectRoot maps workDir to the enclosing git worktree root so
// sessions started from any subdirectory of the same checkout land under
// one project (and thus one journal.HashRoot key). Falls back to workDir
// itself when it isn't inside a git repository.
func resolveProjectRoot(workDir string) string {
	info, err := project.FromDirectory(workDir)
	if err != nil || info.ID == "global" {
		return workDir
	}
	return info.Worktree
}
