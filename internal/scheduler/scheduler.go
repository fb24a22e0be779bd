// Package scheduler is the cron-driven in-memory dispatcher described in
// spec §4.7: it normalises one of three schedule-expression forms, keeps a
// job table, and invokes an agent run on each tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentuse/agentuse/internal/logging"
)

// Result is the outcome of one scheduled run.
type Result struct {
	Success   bool
	Duration  time.Duration
	Error     string
	SessionID string
}

// Schedule is the persisted-shape record described in spec §3.
type Schedule struct {
	ID         string
	AgentPath  string
	Expression string // normalised
	Timezone   string
	Enabled    bool
	NextRun    *time.Time
	LastRun    *time.Time
	LastResult *Result
	CreatedAt  time.Time
	Source     string // "yaml"
}

// RunFunc executes one agent run for a scheduled fire and reports its
// result.
type RunFunc func(ctx context.Context, agentPath string) Result

// Scheduler owns the cron runtime and the schedule table.
type Scheduler struct {
	cron *cron.Cron

	mu        sync.RWMutex
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID
	running   bool
}

// New creates a Scheduler. loc is the time zone every schedule runs in;
// pass nil for the system zone. Schedule.Timezone is not consulted.
func New(loc *time.Location) *Scheduler {
	opts := []cron.Option{cron.WithSeconds()}
	if loc != nil {
		opts = append(opts, cron.WithLocation(loc))
	}
	return &Scheduler{
		cron:      cron.New(opts...),
		schedules: make(map[string]*Schedule),
		entries:   make(map[string]cron.EntryID),
	}
}

// Start begins dispatching ticks.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop stops every job and drops references, per spec §4.7's shutdown
// semantics.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		logging.Logger.Warn().Msg("scheduler: stop timed out waiting for in-flight jobs")
	}
	s.schedules = make(map[string]*Schedule)
	s.entries = make(map[string]cron.EntryID)
	s.running = false
}

// Add registers a schedule, normalising its expression and wiring run into
// the cron runtime. A parse failure is a startup error per spec §4.7.
func (s *Scheduler) Add(id, agentPath, expr string, run RunFunc) error {
	normalized, err := Normalize(expr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	sched := &Schedule{
		ID:         id,
		AgentPath:  agentPath,
		Expression: normalized,
		Enabled:    true,
		CreatedAt:  time.Now(),
		Source:     "yaml",
	}

	entryID, err := s.cron.AddFunc(normalized, func() {
		s.fire(id, agentPath, run)
	})
	if err != nil {
		return err
	}

	s.entries[id] = entryID
	s.schedules[id] = sched
	s.syncNextRun(id, entryID)
	return nil
}

func (s *Scheduler) fire(id, agentPath string, run RunFunc) {
	start := time.Now()
	result := run(context.Background(), agentPath)
	result.Duration = time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return
	}
	now := time.Now()
	sched.LastRun = &now
	sched.LastResult = &result
	if entryID, ok := s.entries[id]; ok {
		s.syncNextRunLocked(sched, entryID)
	}
	if !result.Success {
		logging.Logger.Warn().Str("schedule", id).Str("agent", agentPath).Str("error", result.Error).Msg("scheduler: run failed")
	}
}

func (s *Scheduler) syncNextRun(id string, entryID cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sched, ok := s.schedules[id]; ok {
		s.syncNextRunLocked(sched, entryID)
	}
}

func (s *Scheduler) syncNextRunLocked(sched *Schedule, entryID cron.EntryID) {
	entry := s.cron.Entry(entryID)
	if !entry.Next.IsZero() {
		next := entry.Next
		sched.NextRun = &next
	}
}

// Remove unregisters a schedule.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	delete(s.schedules, id)
}

// List returns a snapshot of every registered schedule.
func (s *Scheduler) List() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	return out
}

// Get returns a snapshot of one schedule.
func (s *Scheduler) Get(id string) (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return Schedule{}, false
	}
	return *sched, true
}
