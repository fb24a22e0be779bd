package prepare

import (
	"context"

	"github.com/agentuse/agentuse/internal/doomloop"
	"github.com/agentuse/agentuse/internal/engine"
	"github.com/agentuse/agentuse/internal/journal"
	"github.com/agentuse/agentuse/internal/scheduler"
	"github.com/agentuse/agentuse/internal/storage"
)

// scheduledTaskPrompt is the task text a cron fire hands to the step loop
// when a schedule carries no explicit message of its own: the agent
// document's own instructions are the sole source of behaviour for a
// scheduled run (spec §4.7's "same entry point" as a CLI/server-invoked
// run), so this is only a non-empty placeholder satisfying providers that
// reject an empty user turn.
const scheduledTaskPrompt = "Scheduled run."

// ScheduledRun builds a scheduler.RunFunc that drives one cron fire
// through Prepare+BuildProvider+Run, reporting the outcome in the shape
// scheduler.Scheduler.fire records on the Schedule. j and st are shared
// across every fire; projectRoot/workDir anchor the session tree and
// ${root}/${tmpDir} substitution the same way a CLI invocation would.
func ScheduledRun(j *journal.Journal, st *storage.Storage, projectRoot, workDir string) scheduler.RunFunc {
	return func(ctx context.Context, agentPath string) scheduler.Result {
		prepared, err := Prepare(ctx, j, Options{
			AgentPath:   agentPath,
			ProjectRoot: projectRoot,
			WorkDir:     workDir,
		})
		if err != nil {
			return scheduler.Result{Success: false, Error: err.Error()}
		}

		prov, err := BuildProvider(ctx, prepared.Model)
		if err != nil {
			return scheduler.Result{Success: false, Error: err.Error(), SessionID: prepared.Session.ID}
		}

		exec := &NestedExecutor{
			Journal:          j,
			Storage:          st,
			ProjectRoot:      projectRoot,
			WorkDir:          workDir,
			MaxSubagentDepth: prepared.MaxSubagentDepth,
		}

		outcome, err := Run(ctx, j, prepared, engine.AdaptProvider(prov), RunOptions{
			UserPrompt: scheduledTaskPrompt,
			Storage:    st,
			Executor:   exec,
			DoomLoop:   doomloop.New(doomloop.ActionError),
		})
		if err != nil {
			return scheduler.Result{Success: false, Error: err.Error(), SessionID: prepared.Session.ID}
		}

		_ = outcome
		return scheduler.Result{Success: true, SessionID: prepared.Session.ID}
	}
}
