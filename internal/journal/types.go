// Package journal is the durable, ordered, resumable record of a run: the
// session/message/part tree described in spec §4.1, persisted through
// internal/storage's per-path FIFO actors.
package journal

// AgentRef identifies the agent that produced a session, for display and
// directory naming.
type AgentRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FilePath    string `json:"filePath,omitempty"`
	Description string `json:"description,omitempty"`
	IsSubAgent  bool   `json:"isSubAgent,omitempty"`
}

// SessionConfig is the subset of agent configuration recorded on a session
// for replay/inspection.
type SessionConfig struct {
	Timeout    *int     `json:"timeout,omitempty"`
	MaxSteps   *int     `json:"maxSteps,omitempty"`
	MCPServers []string `json:"mcpServers,omitempty"`
	Subagents  []string `json:"subagents,omitempty"`
}

// SessionProject records the project root and the cwd a run executed in.
type SessionProject struct {
	Root string `json:"root"`
	Cwd  string `json:"cwd"`
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
)

// SessionError is the top-level error recorded on a session, distinct from
// an individual message's assistant error.
type SessionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Time    int64  `json:"time"`
}

// SessionTime carries session-level timestamps.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Session is the top-level record of one run.
type Session struct {
	ID              string         `json:"id"`
	ParentSessionID string         `json:"parentSessionID,omitempty"`
	Agent           AgentRef       `json:"agent"`
	Model           string         `json:"model,omitempty"`
	Version         string         `json:"version"`
	Config          SessionConfig  `json:"config,omitempty"`
	Project         SessionProject `json:"project"`
	Status          SessionStatus  `json:"status"`
	Error           *SessionError  `json:"error,omitempty"`
	Time            SessionTime    `json:"time"`
}

// MessageTime carries message-level timestamps.
type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

// MessagePrompt is the user-supplied input for a message.
type MessagePrompt struct {
	Task string `json:"task"`
	User string `json:"user,omitempty"`
}

// MessageUser holds the user side of a message.
type MessageUser struct {
	Prompt MessagePrompt `json:"prompt"`
}

// MessagePath records the working directory context a message ran under.
type MessagePath struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// TokenCache records prompt-cache hit/write counts.
type TokenCache struct {
	Read  int `json:"read,omitempty"`
	Write int `json:"write,omitempty"`
}

// TokenUsage records per-message token accounting.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     TokenCache `json:"cache,omitempty"`
}

// AssistantError mirrors the teacher's MessageError shape, generalised to
// the full error-kind vocabulary.
type AssistantError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MessageAssistant holds the assistant side of a message.
type MessageAssistant struct {
	System     []string        `json:"system,omitempty"`
	ModelID    string          `json:"modelID,omitempty"`
	ProviderID string          `json:"providerID,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	Path       MessagePath     `json:"path,omitempty"`
	Cost       float64         `json:"cost,omitempty"`
	Tokens     TokenUsage      `json:"tokens,omitempty"`
	Error      *AssistantError `json:"error,omitempty"`
	Summary    bool            `json:"summary,omitempty"`
}

// Message is one user/assistant exchange within a session; tool
// iterations remain within one message via its parts.
type Message struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionID"`
	Role      string           `json:"role"` // "user" | "assistant"
	Time      MessageTime      `json:"time"`
	User      *MessageUser     `json:"user,omitempty"`
	Assistant *MessageAssistant `json:"assistant,omitempty"`
}

// MessagePatch is the restricted deep-merge patch updateMessage accepts:
// only the three known sub-trees, with tokens shallow-merged as a special
// case (spec §9 "Nested update").
type MessagePatch struct {
	Time      *MessageTimePatch      `json:"time,omitempty"`
	Assistant *MessageAssistantPatch `json:"assistant,omitempty"`
	User      *MessageUser           `json:"user,omitempty"`
}

// MessageTimePatch patches Message.Time.
type MessageTimePatch struct {
	Completed *int64 `json:"completed,omitempty"`
}

// MessageAssistantPatch patches Message.Assistant; Tokens, when present,
// is shallow-merged field by field rather than replacing the struct.
type MessageAssistantPatch struct {
	System     []string        `json:"system,omitempty"`
	ModelID    *string         `json:"modelID,omitempty"`
	ProviderID *string         `json:"providerID,omitempty"`
	Mode       *string         `json:"mode,omitempty"`
	Cost       *float64        `json:"cost,omitempty"`
	Tokens     *TokenUsage     `json:"tokens,omitempty"`
	Error      *AssistantError `json:"error,omitempty"`
	Summary    *bool           `json:"summary,omitempty"`
}

// PartTime carries a part's start/end timestamps.
type PartTime struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// ToolStateStatus is the tagged status of a tool part's state union.
type ToolStateStatus string

const (
	ToolPending   ToolStateStatus = "pending"
	ToolRunning   ToolStateStatus = "running"
	ToolCompleted ToolStateStatus = "completed"
	ToolError     ToolStateStatus = "error"
)

// ToolState is the tagged union `pending | running | completed | error`
// described in spec §3. Fields not relevant to Status are left zero.
type ToolState struct {
	Status   ToolStateStatus `json:"status"`
	Input    any             `json:"input,omitempty"`
	Output   string          `json:"output,omitempty"`
	RawOutput any            `json:"rawOutput,omitempty"`
	Error    string          `json:"error,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Time     PartTime        `json:"time,omitempty"`
}

// Part is the discriminated-union envelope persisted for every part. Only
// the fields relevant to Type are populated; fields that Part does not
// declare are dropped when a part is decoded.
type Part struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"`

	// text / reasoning
	Text      string `json:"text,omitempty"`
	Synthetic bool   `json:"synthetic,omitempty"`

	// tool
	CallID string     `json:"callID,omitempty"`
	Tool   string      `json:"tool,omitempty"`
	State  *ToolState  `json:"state,omitempty"`

	Time PartTime `json:"time,omitempty"`

	// file / agent / step-start / step-finish / snapshot / patch carry
	// free-form metadata specific to their kind.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartPatch restricts updatePart to the two mutable shapes: growing text,
// or advancing a tool state. Both may carry a Time update.
type PartPatch struct {
	Text  *string    `json:"text,omitempty"`
	State *ToolState `json:"state,omitempty"`
	Time  *PartTime  `json:"time,omitempty"`
}
