/*
Package event provides a type-safe pub/sub event bus used to decouple tool
execution, permission checks, and the VCS watcher from their observers
(logging, the scheduler's hot-reload trigger) without direct dependencies.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while
maintaining direct-call semantics to preserve type information. It provides
both synchronous and asynchronous event publishing patterns.

# Event Types

  - file.edited: a write/edit tool modified a file on disk
  - permission.required: Checker.Ask is blocking on a decision
  - permission.resolved: a pending permission request was granted or denied
  - vcs.branch.updated: the watched git repository's HEAD moved to a new branch

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.FileEdited,
		Data: event.FileEditedData{File: path},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.VcsBranchUpdated,
		Data: event.VcsBranchUpdatedData{Branch: branch},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.VcsBranchUpdated, func(e event.Event) {
		data := e.Data.(event.VcsBranchUpdatedData)
		log.Info().Str("branch", data.Branch).Msg("branch changed")
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug().Str("type", string(e.Type)).Msg("event received")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the publisher's
goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

# Custom Event Bus

For testing or isolation, you can create custom bus instances:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.FileEdited, handler)
	bus.PublishSync(event.Event{Type: event.FileEdited, Data: data})

# Testing

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is thread-safe and can be used concurrently from multiple goroutines.
Both publishing and subscribing operations are protected by internal synchronization.

# Performance Considerations

  - Asynchronous publishing (Publish) creates a goroutine per subscriber per event
  - Synchronous publishing (PublishSync) calls all subscribers in the current goroutine
  - Use PublishSync for events where ordering matters (the scheduler's hot-reload resync
    must finish before the next watcher tick)
  - Use Publish for fire-and-forget notifications

# Integration with Watermill

The package uses watermill's gochannel internally, providing access to the underlying
pubsub infrastructure for advanced use cases:

	pubsub := event.PubSub()
	// Use watermill features like middleware, routing, etc.

This allows migration to a distributed message broker later without changing callers.
*/
package event
