// Package codes defines the runtime's error taxonomy and the structured
// JSON envelope tool failures are converted into before they are handed
// back to the model.
package codes

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Kind enumerates the error kinds the engine and its collaborators raise.
// These are not Go type names; they are the stable vocabulary persisted in
// session.error and message.assistant.error.
type Kind string

const (
	AuthenticationMissing Kind = "AUTHENTICATION_MISSING"
	ModelUnknown          Kind = "MODEL_UNKNOWN"
	ContextOverflow       Kind = "CONTEXT_OVERFLOW"
	ToolNotFound          Kind = "TOOL_NOT_FOUND"
	ToolResultFailure     Kind = "TOOL_RESULT_FAILURE"
	RateLimit             Kind = "RATE_LIMIT"
	ServerError           Kind = "SERVER_ERROR"
	NetworkError          Kind = "NETWORK_ERROR"
	Timeout               Kind = "TIMEOUT"
	UserInterrupt         Kind = "USER_INTERRUPT"
	DoomLoop              Kind = "DOOM_LOOP"
	CycleDetected         Kind = "CYCLE_DETECTED"
	DepthExceeded         Kind = "DEPTH_EXCEEDED"
	StoreLocked           Kind = "STORE_LOCKED"
	StoreCorrupt          Kind = "STORE_CORRUPT"
	ScheduleParseError    Kind = "SCHEDULE_PARSE_ERROR"
	SessionIOError        Kind = "SESSION_IO_ERROR"
)

// Fatal reports whether a Kind ends the run rather than being surfaced to
// the model as a retryable tool failure.
func (k Kind) Fatal() bool {
	switch k {
	case AuthenticationMissing, ContextOverflow, UserInterrupt, DoomLoop,
		CycleDetected, DepthExceeded, StoreLocked:
		return true
	default:
		return false
	}
}

// Error is a runtime error carrying a stable Kind alongside the usual
// message, so callers can branch on taxonomy rather than string content.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ToolResultError is the JSON shape a failed tool call is normalised into
// before it is handed back to the model, per spec §7.
type ToolResultError struct {
	Success bool          `json:"success"`
	Error   ToolErrorBody `json:"error"`
}

// ToolErrorBody carries classification derived from message matching.
type ToolErrorBody struct {
	Type        string   `json:"type"`
	Message     string   `json:"message"`
	Retryable   bool     `json:"retryable"`
	Suggestions []string `json:"suggestions,omitempty"`
}

var (
	rateLimitPattern       = regexp.MustCompile(`(?i)rate.?limit|429|too many requests`)
	timeoutPattern         = regexp.MustCompile(`(?i)timed?.?out|deadline exceeded|context deadline`)
	authPattern            = regexp.MustCompile(`(?i)unauthori[sz]ed|401|403|forbidden|invalid api key`)
	notFoundPattern        = regexp.MustCompile(`(?i)not found|404`)
	networkPattern         = regexp.MustCompile(`(?i)connection refused|no such host|network is unreachable|econnreset|eof`)
	serverErrPattern       = regexp.MustCompile(`(?i)5\d\d|internal server error|bad gateway|service unavailable`)
	contextOverflowPattern = regexp.MustCompile(`(?i)context.?length.?exceeded|maximum context length|context window|prompt is too long|too many tokens`)
)

// Classify derives a tool-error classification from a raw error message,
// matching the HTTP-code phrases and keywords spec §7 enumerates.
func Classify(message string) (kind Kind, retryable bool) {
	switch {
	case contextOverflowPattern.MatchString(message):
		return ContextOverflow, false
	case rateLimitPattern.MatchString(message):
		return RateLimit, true
	case timeoutPattern.MatchString(message):
		return Timeout, true
	case networkPattern.MatchString(message):
		return NetworkError, true
	case serverErrPattern.MatchString(message):
		return ServerError, true
	case authPattern.MatchString(message):
		return ToolResultFailure, false
	case notFoundPattern.MatchString(message):
		return ToolNotFound, false
	default:
		return ToolResultFailure, false
	}
}

// ToolFailureEnvelope builds the canonical structured tool-result error
// envelope for a failed tool call, ready to be marshalled as the tool's
// output string.
func ToolFailureEnvelope(message string) string {
	kind, retryable := Classify(message)
	envelope := ToolResultError{
		Success: false,
		Error: ToolErrorBody{
			Type:      string(kind),
			Message:   message,
			Retryable: retryable,
		},
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		// marshalling a struct of strings/bools cannot fail; this is
		// unreachable in practice but keeps the function total.
		return `{"success":false,"error":{"type":"TOOL_RESULT_FAILURE","message":"` + message + `"}}`
	}
	return string(data)
}

// UnknownToolEnvelope builds the structured error envelope returned when
// the model calls a tool name that is not registered, listing available
// tools and the closest fuzzy matches by edit distance.
func UnknownToolEnvelope(requested string, available []string) string {
	suggestions := suggest(requested, available, 3)
	msg := "unknown tool: " + requested
	if len(available) > 0 {
		msg += "; available tools: " + strings.Join(available, ", ")
	}
	envelope := ToolResultError{
		Success: false,
		Error: ToolErrorBody{
			Type:        string(ToolNotFound),
			Message:     msg,
			Retryable:   false,
			Suggestions: suggestions,
		},
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return `{"success":false,"error":{"type":"TOOL_NOT_FOUND","message":"` + msg + `"}}`
	}
	return string(data)
}

// suggest returns the n tool names in available closest to requested by
// Levenshtein edit distance, ascending.
func suggest(requested string, available []string, n int) []string {
	type scored struct {
		name string
		dist int
	}
	scoredNames := make([]scored, 0, len(available))
	for _, name := range available {
		scoredNames = append(scoredNames, scored{name, levenshtein.ComputeDistance(requested, name)})
	}
	// simple insertion sort: candidate lists are small (registry size)
	for i := 1; i < len(scoredNames); i++ {
		for j := i; j > 0 && scoredNames[j].dist < scoredNames[j-1].dist; j-- {
			scoredNames[j], scoredNames[j-1] = scoredNames[j-1], scoredNames[j]
		}
	}
	if len(scoredNames) > n {
		scoredNames = scoredNames[:n]
	}
	out := make([]string, len(scoredNames))
	for i, s := range scoredNames {
		out[i] = s.name
	}
	return out
}
