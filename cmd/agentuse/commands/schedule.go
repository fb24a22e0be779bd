package commands

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/agentuse/agentuse/internal/agentdoc"
	"github.com/agentuse/agentuse/internal/config"
	"github.com/agentuse/agentuse/internal/event"
	"github.com/agentuse/agentuse/internal/journal"
	"github.com/agentuse/agentuse/internal/prepare"
	"github.com/agentuse/agentuse/internal/scheduler"
	"github.com/agentuse/agentuse/internal/storage"
	"github.com/agentuse/agentuse/internal/vcs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var scheduleDir string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Dispatch every scheduled agent document under a directory",
	Long: `Schedule walks a directory for ".agentuse" documents that declare a
"schedule" field, registers each on the cron dispatcher, and blocks,
firing runs as their schedules come due until interrupted.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleDir, "directory", "", "Directory to scan for scheduled agent documents (defaults to the current directory)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(scheduleDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	st := storage.New(paths.StoragePath())
	j := journal.New(st)

	projectRoot := resolveProjectRoot(dir)

	sched := scheduler.New(nil)
	runFunc := prepare.ScheduledRun(j, st, projectRoot, dir)

	if err := syncSchedules(sched, dir, runFunc); err != nil {
		return err
	}
	if len(sched.List()) == 0 {
		fmt.Println("no agent documents under", dir, "declare a schedule")
		return nil
	}

	sched.Start()

	// Hot-reload: a git branch switch can bring a different set of
	// .agentuse documents into view (per-branch agent definitions), so
	// re-discover and resync the cron table whenever HEAD moves.
	watcher, err := vcs.NewWatcher(dir)
	if err != nil {
		log.Warn().Err(err).Msg("vcs watcher unavailable, schedule will not hot-reload on branch change")
	}
	if watcher != nil {
		unsubscribe := event.Subscribe(event.VcsBranchUpdated, func(ev event.Event) {
			if err := syncSchedules(sched, dir, runFunc); err != nil {
				log.Error().Err(err).Msg("failed to resync schedules after branch change")
			}
		})
		defer unsubscribe()
		watcher.Start()
		defer watcher.Stop()
	}

	fmt.Println("scheduler running, press Ctrl-C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("stopping scheduler...")
	sched.Stop(context.Background())
	return nil
}

// syncSchedules re-walks dir for scheduled agent documents and reconciles
// the live cron table against them: new documents are added, removed or
// no-longer-scheduled documents are dropped, and changed expressions are
// re-added. Safe to call repeatedly (e.g. from a hot-reload trigger).
func syncSchedules(sched *scheduler.Scheduler, dir string, runFunc scheduler.RunFunc) error {
	docs, err := discoverScheduledAgents(dir)
	if err != nil {
		return err
	}

	wanted := make(map[string]string, len(docs)) // agentPath -> expression
	for _, d := range docs {
		wanted[d.AgentPath] = d.Schedule
	}

	for _, existing := range sched.List() {
		expr, stillWanted := wanted[existing.AgentPath]
		if !stillWanted || expr != existing.Expression {
			sched.Remove(existing.ID)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSCHEDULE")
	for _, d := range docs {
		if _, ok := sched.Get(d.AgentPath); ok {
			fmt.Fprintf(w, "%s\t%s\n", d.AgentPath, d.Schedule)
			continue
		}
		if err := sched.Add(d.AgentPath, d.AgentPath, d.Schedule, runFunc); err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", d.AgentPath, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", d.AgentPath, d.Schedule)
	}
	return w.Flush()
}

type scheduledAgent struct {
	AgentPath string
	Schedule  string
}

// discoverScheduledAgents walks dir for *.agentuse documents whose
// "schedule" front-matter field is set, parsing each far enough to read
// Config.Schedule without building a full Prepared (that happens per
// fire, in prepare.ScheduledRun).
func discoverScheduledAgents(dir string) ([]scheduledAgent, error) {
	var out []scheduledAgent
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".agentuse") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		doc, err := agentdoc.Parse(string(content), path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			return nil
		}
		if doc.Config.Schedule == "" {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		out = append(out, scheduledAgent{AgentPath: abs, Schedule: doc.Config.Schedule})
		return nil
	})
	return out, err
}
