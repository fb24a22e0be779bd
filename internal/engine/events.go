// Package engine implements the step loop described in spec §4.2: it binds
// a message list, opens a streaming LLM generation, dispatches tool calls,
// and emits a single-pass sequence of typed events for a stream processor
// to consume. Grounded on internal/session/loop.go's runLoop, generalised
// from one inline for{} with embedded disk writes into a producer that only
// emits events — persistence is the stream processor's job.
package engine

import "time"

// EventType tags one event in the canonical vocabulary.
type EventType string

const (
	EventLLMStart      EventType = "llm-start"
	EventLLMFirstToken EventType = "llm-first-token"
	EventText          EventType = "text"
	EventReasoning     EventType = "reasoning"
	EventToolCall      EventType = "tool-call"
	EventToolResult    EventType = "tool-result"
	EventFinish        EventType = "finish"
	EventError         EventType = "error"
)

// Usage mirrors the provider's reported token accounting for one finish.
type Usage struct {
	Input     int
	Output    int
	Reasoning int
	CacheRead int
	CacheWrite int
}

// Event is the tagged union the engine emits. Only the fields relevant to
// Type are meaningful; the rest are zero.
type Event struct {
	Type EventType
	Time time.Time

	// llm-start
	Model string

	// text / reasoning
	Text string

	// tool-call / tool-result
	ToolName   string
	CallID     string
	Input      map[string]any
	IsSubAgent bool
	Output     string
	RawOutput  any
	Duration   time.Duration
	Failed     bool

	// finish
	FinishReason  string
	Usage         *Usage
	StepLimitNote bool

	// error
	Err       error
	AbortError bool
}
