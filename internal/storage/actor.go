package storage

import "sync"

// job is a unit of work submitted to a path's actor.
type job struct {
	run  func() error
	done chan error // nil for fire-and-forget jobs
}

// pathActor serialises all mutations against a single file path through an
// owned goroutine and an inbox channel, per spec's "per-file serialisation
// of writes": a map from path to an owned worker with an inbox of
// closures, no shared mutex across paths.
type pathActor struct {
	inbox chan job
}

func newPathActor() *pathActor {
	a := &pathActor{inbox: make(chan job, 64)}
	go a.run()
	return a
}

func (a *pathActor) run() {
	for j := range a.inbox {
		err := j.run()
		if j.done != nil {
			j.done <- err
		}
	}
}

// submit enqueues run and blocks until it has completed, returning its
// error. Enqueued work still executes even if a predecessor on the same
// actor returned an error.
func (a *pathActor) submit(run func() error) error {
	done := make(chan error, 1)
	a.inbox <- job{run: run, done: done}
	return <-done
}

// submitAsync enqueues run without waiting for it to execute. Errors are
// swallowed by the caller's fire-and-forget contract; use submit when the
// result matters.
func (a *pathActor) submitAsync(run func() error) {
	a.inbox <- job{run: run}
}

// actorRegistry hands out one pathActor per logical key, creating it
// lazily on first use.
type actorRegistry struct {
	mu     sync.Mutex
	actors map[string]*pathActor
}

func newActorRegistry() *actorRegistry {
	return &actorRegistry{actors: make(map[string]*pathActor)}
}

func (r *actorRegistry) get(key string) *pathActor {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[key]
	if !ok {
		a = newPathActor()
		r.actors[key] = a
	}
	return a
}
