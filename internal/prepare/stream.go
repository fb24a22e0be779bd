package prepare

import (
	"context"
	"time"

	"github.com/agentuse/agentuse/internal/engine"
	"github.com/agentuse/agentuse/internal/id"
	"github.com/agentuse/agentuse/internal/journal"
)

// flushInterval bounds how long buffered text sits before it is written to
// the journal, per spec §5's "debounced, ~500ms" guidance.
const flushInterval = 500 * time.Millisecond

// streamProcessor drains one engine.Event channel into the journal's
// message/part tree, debouncing text writes and forcing a flush ahead of
// any event that changes session state a reader might be waiting on
// (tool-call, tool-result, finish, error). Grounded on the teacher's
// internal/session/stream.go, which performs the same disk-write-on-chunk
// job inline inside runLoop; here it is pulled out as its own consumer of
// internal/engine's event channel instead of living inside the step loop.
type streamProcessor struct {
	j         *journal.Journal
	sessionID string
	messageID string

	textPartID string
	buf        string
	lastFlush  time.Time

	toolPartIDs map[string]string // callID -> partID
}

func newStreamProcessor(j *journal.Journal, sessionID, messageID string) *streamProcessor {
	return &streamProcessor{
		j:           j,
		sessionID:   sessionID,
		messageID:   messageID,
		toolPartIDs: make(map[string]string),
	}
}

// Outcome summarises a finished run for the caller.
type Outcome struct {
	Text         string
	FinishReason string
	Usage        *engine.Usage
	Err          error
	AbortError   bool
}

// Drain consumes events until the channel closes, returning the final
// outcome. It never returns an error itself: run failures are reported in
// Outcome.Err so the caller can still inspect partial text/usage.
func (sp *streamProcessor) Drain(ctx context.Context, events <-chan engine.Event) Outcome {
	var out Outcome
	var text string

	for ev := range events {
		switch ev.Type {
		case engine.EventText:
			text += ev.Text
			sp.appendText(ctx, ev.Text, ev.Time)

		case engine.EventReasoning:
			// Reasoning is not persisted as its own part type yet; kept
			// out of the transcript text.

		case engine.EventToolCall:
			sp.flushText(ctx)
			sp.startTool(ctx, ev)

		case engine.EventToolResult:
			sp.flushText(ctx)
			sp.finishTool(ctx, ev)

		case engine.EventFinish:
			sp.flushText(ctx)
			out.FinishReason = ev.FinishReason
			out.Usage = ev.Usage

		case engine.EventError:
			sp.flushText(ctx)
			out.Err = ev.Err
			out.AbortError = ev.AbortError
		}
	}

	out.Text = text
	return out
}

func (sp *streamProcessor) appendText(ctx context.Context, chunk string, t time.Time) {
	if sp.textPartID == "" {
		sp.textPartID = id.New()
		sp.lastFlush = t
		_, _ = sp.j.AddPart(ctx, sp.sessionID, sp.messageID, &journal.Part{
			ID:        sp.textPartID,
			SessionID: sp.sessionID,
			MessageID: sp.messageID,
			Type:      "text",
			Text:      "",
			Time:      journal.PartTime{Start: t.UnixMilli()},
		})
	}
	sp.buf += chunk
	if time.Since(sp.lastFlush) >= flushInterval {
		sp.flushText(ctx)
	}
}

func (sp *streamProcessor) flushText(ctx context.Context) {
	if sp.textPartID == "" || sp.buf == "" {
		return
	}
	text := sp.buf
	sp.buf = ""
	sp.lastFlush = time.Now()
	_ = sp.j.UpdatePart(ctx, sp.sessionID, sp.messageID, sp.textPartID, journal.PartPatch{
		Text: &text,
	})
}

func (sp *streamProcessor) startTool(ctx context.Context, ev engine.Event) {
	partID := id.New()
	sp.toolPartIDs[ev.CallID] = partID
	_, _ = sp.j.AddPart(ctx, sp.sessionID, sp.messageID, &journal.Part{
		ID:        partID,
		SessionID: sp.sessionID,
		MessageID: sp.messageID,
		Type:      "tool",
		CallID:    ev.CallID,
		Tool:      ev.ToolName,
		State: &journal.ToolState{
			Status: journal.ToolRunning,
			Input:  ev.Input,
			Time:   journal.PartTime{Start: ev.Time.UnixMilli()},
		},
		Time: journal.PartTime{Start: ev.Time.UnixMilli()},
	})
}

func (sp *streamProcessor) finishTool(ctx context.Context, ev engine.Event) {
	partID, ok := sp.toolPartIDs[ev.CallID]
	if !ok {
		return
	}
	status := journal.ToolCompleted
	errMsg := ""
	if ev.Failed {
		status = journal.ToolError
		errMsg = ev.Output
	}
	end := ev.Time.UnixMilli()
	_ = sp.j.UpdatePart(ctx, sp.sessionID, sp.messageID, partID, journal.PartPatch{
		State: &journal.ToolState{
			Status:    status,
			Output:    ev.Output,
			RawOutput: ev.RawOutput,
			Error:     errMsg,
			Time:      journal.PartTime{End: &end},
		},
		Time: &journal.PartTime{End: &end},
	})
}
