// Package compaction is the context manager described in spec §4.3: it
// keeps the running message list under a per-model token budget, triggering
// threshold-based summarisation with a keep-recent tail. Grounded on
// internal/session/compact.go's compactMessages/buildSummaryPrompt, with the
// teacher's hardcoded DefaultCompactionConfig promoted to configuration, a
// bounded-retry summariser call via backoff/v4, and a deterministic fallback
// summary the teacher has no equivalent of.
package compaction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
)

// Config mirrors spec §4.3's enumerated environment variables.
type Config struct {
	// Threshold is the fraction of the model's context limit that triggers
	// compaction. COMPACTION_THRESHOLD, default 0.7.
	Threshold float64
	// KeepRecent is how many of the most recent messages survive a
	// compaction untouched. COMPACTION_KEEP_RECENT, default 3.
	KeepRecent int
	// Enabled is the global on/off switch. CONTEXT_COMPACTION, default true.
	Enabled bool
}

// DefaultConfig returns spec §4.3's defaults.
func DefaultConfig() Config {
	return Config{Threshold: 0.7, KeepRecent: 3, Enabled: true}
}

// summaryMaxTokens bounds the summariser's own output, per spec
// "maxOutputTokens≤2000".
const summaryMaxTokens = 2000

// summaryTemperature is the summariser's fixed sampling temperature,
// per spec "temperature≈0.3".
const summaryTemperature = 0.3

const (
	summaryPrefix = "[Context Summary]\n"
	summarySuffix = "\n[End Summary]"
)

// SummarySystemPrompt is the fixed system prompt handed to the summariser
// generation, demanding preservation of decisions, errors, state, and
// continuation context (spec §4.3 step 3).
const SummarySystemPrompt = "You are compacting a long-running agent conversation. " +
	"Summarise the conversation below, preserving: key decisions and their outcomes, " +
	"errors encountered and how they were resolved, the current state of any files or " +
	"tasks in progress, and anything needed to continue the work without the original " +
	"messages. Be concise; omit pleasantries and narration."

// Summarizer generates a summary of the given messages. Implementations
// typically call the same model the run is already using, with
// SummarySystemPrompt as the system message.
type Summarizer func(ctx context.Context, messages []*schema.Message) (string, error)

// Manager owns the reentrancy guard and configuration for one run's
// compaction lifecycle. Not safe to share across concurrent runs (each run
// should construct its own).
type Manager struct {
	cfg Config

	mu       sync.Mutex
	inFlight bool
}

// New creates a Manager. A zero Config disables compaction; use
// DefaultConfig for spec defaults.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// EstimateTokens sums ceil(len/4) across message content and tool-call
// arguments, per spec §4.3's token estimator.
func EstimateTokens(messages []*schema.Message) int {
	total := 0
	for _, m := range messages {
		total += ceilDiv4(len(m.Content))
		for _, tc := range m.ToolCalls {
			total += ceilDiv4(len(tc.Function.Arguments))
		}
	}
	return total
}

func ceilDiv4(n int) int {
	return (n + 3) / 4
}

// ShouldCompact reports whether a new LLM segment should be preceded by
// compaction. It returns false when compaction is disabled by config or
// limit is not positive, or while a compaction is already in flight for
// this Manager (spec §4.3's reentrancy rule).
func (m *Manager) ShouldCompact(tokensUsed, limit int) bool {
	if !m.cfg.Enabled || limit <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return false
	}
	return float64(tokensUsed) >= float64(limit)*m.cfg.Threshold
}

// Compact splits messages at [...old | last KeepRecent...], summarises old
// via summarize with bounded retries, and returns a new message list with
// old replaced by a single synthetic system summary message. On summariser
// failure after retries, a deterministic fallback summary is substituted
// instead of propagating the error, matching spec §4.3 step 5.
func (m *Manager) Compact(ctx context.Context, messages []*schema.Message, summarize Summarizer) []*schema.Message {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return messages
	}
	m.inFlight = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	keep := m.cfg.KeepRecent
	if keep < 0 {
		keep = 0
	}
	if len(messages) <= keep {
		return messages
	}

	splitAt := len(messages) - keep
	old := messages[:splitAt]
	recent := messages[splitAt:]

	summary, err := m.summarizeWithRetry(ctx, old, summarize)
	if err != nil {
		summary = fallbackSummary(old)
	}

	summaryMsg := &schema.Message{
		Role:    schema.System,
		Content: summaryPrefix + summary + summarySuffix,
	}

	out := make([]*schema.Message, 0, 1+len(recent))
	out = append(out, summaryMsg)
	out = append(out, recent...)
	return out
}

// summarizeWithRetry wraps summarize in an exponential backoff identical in
// shape to internal/session/loop.go's newRetryBackoff, bounded to a handful
// of attempts since a summariser failure degrades gracefully to a fallback.
func (m *Manager) summarizeWithRetry(ctx context.Context, old []*schema.Message, summarize Summarizer) (string, error) {
	if summarize == nil {
		return "", fmt.Errorf("compaction: no summarizer configured")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 20 * time.Second

	var summary string
	operation := func() error {
		s, err := summarize(ctx, old)
		if err != nil {
			return err
		}
		summary = s
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)); err != nil {
		return "", err
	}
	return summary, nil
}

// fallbackSummary records only the count of messages and tool calls, per
// spec §4.3 step 5's deterministic fallback.
func fallbackSummary(old []*schema.Message) string {
	toolCalls := 0
	for _, m := range old {
		toolCalls += len(m.ToolCalls)
	}
	return fmt.Sprintf(
		"Summary unavailable: %d prior messages (%d tool calls) were compacted. Details were lost; continue from the recent messages below.",
		len(old), toolCalls,
	)
}

// SummaryCompletionParams returns the fixed maxTokens/temperature a
// Summarizer implementation should pass to the provider when generating the
// summary, per spec §4.3 step 3.
func SummaryCompletionParams() (maxTokens int, temperature float64) {
	return summaryMaxTokens, summaryTemperature
}

// BuildSummaryRequest assembles the system+user message pair a Summarizer
// implementation sends to the model, transcript-style, mirroring
// internal/session/compact.go's buildSummaryPrompt.
func BuildSummaryRequest(old []*schema.Message) []*schema.Message {
	var transcript strings.Builder
	for _, msg := range old {
		switch msg.Role {
		case schema.User:
			transcript.WriteString("USER:\n")
		case schema.Tool:
			transcript.WriteString("TOOL:\n")
		default:
			transcript.WriteString("ASSISTANT:\n")
		}
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n\n")
	}

	return []*schema.Message{
		{Role: schema.System, Content: SummarySystemPrompt},
		{Role: schema.User, Content: transcript.String()},
	}
}
