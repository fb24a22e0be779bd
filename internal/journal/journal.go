package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/agentuse/agentuse/internal/logging"

	"github.com/agentuse/agentuse/internal/agentdoc"
	"github.com/agentuse/agentuse/internal/id"
	"github.com/agentuse/agentuse/internal/storage"
)

// Journal is the durable session/message/part record described in spec
// §4.1, built on internal/storage's per-path FIFO actors.
type Journal struct {
	store *storage.Storage

	// dirs caches the on-disk directory components for a sessionID,
	// populated at creation or first lookup, so nested subagent
	// directories and message/part writes don't need to re-derive the
	// project hash and sanitised agentId every time.
	mu   sync.RWMutex
	dirs map[string][]string
}

// New creates a Journal rooted at store.
func New(store *storage.Storage) *Journal {
	return &Journal{store: store, dirs: make(map[string][]string)}
}

// HashRoot derives the project-root hash segment used to key a project's
// session tree, per spec §4.1 ("project/<hash(gitRoot)>/session/").
func HashRoot(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:16]
}

// SessionInfo is the input to CreateSession.
type SessionInfo struct {
	Agent           AgentRef
	Model           string
	Config          SessionConfig
	Project         SessionProject
	ParentSessionID string
}

func sessionDirName(sessionID string, agentID string) string {
	return sessionID + "-" + agentdoc.Sanitise(agentID)
}

// CreateSession creates a new session row. When info.ParentSessionID is
// set, the child's directory is nested under the parent's
// "subagent/<childDir>/" subtree, per spec §3 "Ownership".
func (j *Journal) CreateSession(ctx context.Context, info SessionInfo) (*Session, error) {
	now := time.Now().UnixMilli()
	sessionID := id.New()

	sess := &Session{
		ID:              sessionID,
		ParentSessionID: info.ParentSessionID,
		Agent:           info.Agent,
		Model:           info.Model,
		Version:         "1",
		Config:          info.Config,
		Project:         info.Project,
		Status:          StatusRunning,
		Time:            SessionTime{Created: now, Updated: now},
	}

	var dir []string
	if info.ParentSessionID != "" {
		parentDir, ok := j.dirOf(info.ParentSessionID)
		if !ok {
			return nil, fmt.Errorf("journal: parent session %s not found", info.ParentSessionID)
		}
		dir = append(append([]string{}, parentDir...), "subagent", sessionDirName(sessionID, info.Agent.ID))
	} else {
		dir = []string{"project", HashRoot(info.Project.Root), "session", sessionDirName(sessionID, info.Agent.ID)}
	}

	j.setDir(sessionID, dir)

	if err := j.store.Put(ctx, append(dir, "session"), sess); err != nil {
		return nil, fmt.Errorf("journal: create session: %w", err)
	}
	return sess, nil
}

// CreateMessage appends a new message to a session.
func (j *Journal) CreateMessage(ctx context.Context, sessionID string, msg *Message) (string, error) {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return "", fmt.Errorf("journal: session %s not found", sessionID)
	}
	if msg.ID == "" {
		msg.ID = id.New()
	}
	msg.SessionID = sessionID
	if msg.Time.Created == 0 {
		msg.Time.Created = time.Now().UnixMilli()
	}

	path := append(append([]string{}, dir...), msg.ID, "message")
	if err := j.store.Put(ctx, path, msg); err != nil {
		return "", j.logIOError("create message", err)
	}
	return msg.ID, nil
}

// AddPart appends a new part to a message.
func (j *Journal) AddPart(ctx context.Context, sessionID, messageID string, part *Part) (string, error) {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return "", fmt.Errorf("journal: session %s not found", sessionID)
	}
	if part.ID == "" {
		part.ID = id.New()
	}
	part.SessionID = sessionID
	part.MessageID = messageID

	path := append(append([]string{}, dir...), messageID, "part", part.ID)
	if err := j.store.Put(ctx, path, part); err != nil {
		return "", j.logIOError("add part", err)
	}
	return part.ID, nil
}

// AddPartAsync queues a part write without blocking the caller, for
// debounced streaming updates. See internal/storage.PutAsync.
func (j *Journal) AddPartAsync(sessionID, messageID string, part *Part) {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		logging.Logger.Debug().Str("session", sessionID).Msg("journal: AddPartAsync: unknown session")
		return
	}
	path := append(append([]string{}, dir...), messageID, "part", part.ID)
	j.store.PutAsync(path, part)
}

// GetSession loads a session by ID.
func (j *Journal) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	var sess Session
	if err := j.store.Get(ctx, append(dir, "session"), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetMessage loads a message by ID.
func (j *Journal) GetMessage(ctx context.Context, sessionID, messageID string) (*Message, error) {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	var msg Message
	if err := j.store.Get(ctx, append(append([]string{}, dir...), messageID, "message"), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetPart loads a part by ID.
func (j *Journal) GetPart(ctx context.Context, sessionID, messageID, partID string) (*Part, error) {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	var part Part
	if err := j.store.Get(ctx, append(append([]string{}, dir...), messageID, "part", partID), &part); err != nil {
		return nil, err
	}
	return &part, nil
}

// ListMessages returns message IDs for a session, in directory order
// (ULIDs sort chronologically).
func (j *Journal) ListMessages(ctx context.Context, sessionID string) ([]string, error) {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	entries, err := j.store.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	ids := entries[:0]
	for _, e := range entries {
		if e == "subagent" || e == "session" {
			continue
		}
		ids = append(ids, e)
	}
	return ids, nil
}

// ListParts returns part IDs for a message.
func (j *Journal) ListParts(ctx context.Context, sessionID, messageID string) ([]string, error) {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return j.store.List(ctx, append(append([]string{}, dir...), messageID, "part"))
}

// UpdateSession applies a shallow patch to a session's mutable fields and
// persists it.
func (j *Journal) UpdateSession(ctx context.Context, sessionID string, mutate func(*Session)) error {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return fmt.Errorf("journal: session %s not found", sessionID)
	}
	path := append(dir, "session")
	var sess Session
	if err := j.store.Get(ctx, path, &sess); err != nil {
		return j.logIOError("load session for update", err)
	}
	mutate(&sess)
	sess.Time.Updated = time.Now().UnixMilli()
	if err := j.store.Put(ctx, path, &sess); err != nil {
		return j.logIOError("update session", err)
	}
	return nil
}

// SetSessionCompleted transitions a session to StatusCompleted.
func (j *Journal) SetSessionCompleted(ctx context.Context, sessionID string) error {
	return j.UpdateSession(ctx, sessionID, func(s *Session) {
		s.Status = StatusCompleted
		s.Error = nil
	})
}

// SetSessionError transitions a session to StatusError with the given
// code/message; this is write-once per spec's terminal-transition
// invariant, so it is a no-op if the session is already terminal.
func (j *Journal) SetSessionError(ctx context.Context, sessionID, code, message string) error {
	return j.UpdateSession(ctx, sessionID, func(s *Session) {
		if s.Status == StatusCompleted || s.Status == StatusError {
			return
		}
		s.Status = StatusError
		s.Error = &SessionError{Code: code, Message: message, Time: time.Now().UnixMilli()}
	})
}

// UpdateMessage performs the restricted deep-merge described in spec §9:
// only time/assistant/user sub-trees, with assistant.tokens shallow-merged
// field by field.
func (j *Journal) UpdateMessage(ctx context.Context, sessionID, messageID string, patch MessagePatch) error {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return fmt.Errorf("journal: session %s not found", sessionID)
	}
	path := append(append([]string{}, dir...), messageID, "message")

	var msg Message
	if err := j.store.Get(ctx, path, &msg); err != nil {
		return j.logIOError("load message for update", err)
	}

	if patch.Time != nil && patch.Time.Completed != nil {
		msg.Time.Completed = patch.Time.Completed
	}
	if patch.User != nil {
		msg.User = patch.User
	}
	if patch.Assistant != nil {
		mergeAssistant(&msg, patch.Assistant)
	}

	if err := j.store.Put(ctx, path, &msg); err != nil {
		return j.logIOError("update message", err)
	}
	return nil
}

func mergeAssistant(msg *Message, patch *MessageAssistantPatch) {
	if msg.Assistant == nil {
		msg.Assistant = &MessageAssistant{}
	}
	a := msg.Assistant
	if patch.System != nil {
		a.System = patch.System
	}
	if patch.ModelID != nil {
		a.ModelID = *patch.ModelID
	}
	if patch.ProviderID != nil {
		a.ProviderID = *patch.ProviderID
	}
	if patch.Mode != nil {
		a.Mode = *patch.Mode
	}
	if patch.Cost != nil {
		a.Cost = *patch.Cost
	}
	if patch.Error != nil {
		a.Error = patch.Error
	}
	if patch.Summary != nil {
		a.Summary = *patch.Summary
	}
	if patch.Tokens != nil {
		// Shallow-merge the token subtree: a partial usage update (e.g.
		// only Output known so far) must not clobber fields already
		// recorded, per spec §9's special case for assistant.tokens.
		if patch.Tokens.Input != 0 {
			a.Tokens.Input = patch.Tokens.Input
		}
		if patch.Tokens.Output != 0 {
			a.Tokens.Output = patch.Tokens.Output
		}
		if patch.Tokens.Reasoning != 0 {
			a.Tokens.Reasoning = patch.Tokens.Reasoning
		}
		if patch.Tokens.Cache.Read != 0 {
			a.Tokens.Cache.Read = patch.Tokens.Cache.Read
		}
		if patch.Tokens.Cache.Write != 0 {
			a.Tokens.Cache.Write = patch.Tokens.Cache.Write
		}
	}
}

// UpdatePart applies a restricted patch (growing text or advancing a tool
// state) to an existing part.
func (j *Journal) UpdatePart(ctx context.Context, sessionID, messageID, partID string, patch PartPatch) error {
	dir, ok := j.dirOf(sessionID)
	if !ok {
		return fmt.Errorf("journal: session %s not found", sessionID)
	}
	path := append(append([]string{}, dir...), messageID, "part", partID)

	var part Part
	if err := j.store.Get(ctx, path, &part); err != nil {
		return j.logIOError("load part for update", err)
	}

	if err := applyPartPatch(&part, patch); err != nil {
		return err
	}

	if err := j.store.Put(ctx, path, &part); err != nil {
		return j.logIOError("update part", err)
	}
	return nil
}

// UpdatePartAsync is the debounced-write counterpart of UpdatePart, used
// while a text part is still streaming.
func (j *Journal) UpdatePartAsync(sessionID, messageID string, part *Part) {
	j.AddPartAsync(sessionID, messageID, part)
}

func applyPartPatch(part *Part, patch PartPatch) error {
	if patch.Text != nil {
		part.Text = *patch.Text
	}
	if patch.Time != nil {
		part.Time = *patch.Time
	}
	if patch.State != nil {
		if part.State != nil && !validToolTransition(part.State.Status, patch.State.Status) {
			return fmt.Errorf("journal: invalid tool state transition %s -> %s", part.State.Status, patch.State.Status)
		}
		part.State = patch.State
	}
	return nil
}

// validToolTransition enforces the monotonic pending->running->(completed|error)
// progression; a terminal state is write-once.
func validToolTransition(from, to ToolStateStatus) bool {
	switch from {
	case "":
		return true
	case ToolPending:
		return to == ToolRunning || to == ToolCompleted || to == ToolError
	case ToolRunning:
		return to == ToolCompleted || to == ToolError
	default:
		return false // completed/error are terminal
	}
}

func (j *Journal) dirOf(sessionID string) ([]string, bool) {
	j.mu.RLock()
	dir, ok := j.dirs[sessionID]
	j.mu.RUnlock()
	if ok {
		return dir, true
	}
	return nil, false
}

func (j *Journal) setDir(sessionID string, dir []string) {
	j.mu.Lock()
	j.dirs[sessionID] = dir
	j.mu.Unlock()
}

// IndexSession registers a known session directory so a later run can
// address it (e.g. a server process resuming a session created by a prior
// process and discovered via directory scan).
func (j *Journal) IndexSession(sessionID string, dir []string) {
	j.setDir(sessionID, dir)
}

func (j *Journal) logIOError(op string, err error) error {
	// SESSION_IO_ERROR is recoverable-silent per spec §7: log at debug
	// and let the run continue, returning the error only so the caller
	// can choose to skip this one update.
	logging.Logger.Debug().Err(err).Str("op", op).Msg("journal: I/O error")
	return err
}
