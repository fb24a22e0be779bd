// Package doomloop detects an agent stuck repeating the same tool call.
package doomloop

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/agentuse/agentuse/internal/codes"
	"github.com/agentuse/agentuse/internal/logging"
)

// Threshold is the number of consecutive byte-equal calls the detector
// tolerates: the next identical call after Threshold of them trips it.
const Threshold = 3

// historyCap bounds memory per session; only the last few fingerprints
// ever matter for comparison.
const historyCap = 10

// Action controls what Check does once the threshold is reached.
type Action string

const (
	// ActionError raises a DoomLoopError and the caller should abort the run.
	ActionError Action = "error"
	// ActionWarn logs a warning and lets the run continue: Check returns
	// triggered=false with the DoomLoop error still populated.
	ActionWarn Action = "warn"
)

// Detector tracks per-session tool-call fingerprints.
type Detector struct {
	mu      sync.Mutex
	history map[string][]string
	action  Action
}

// New creates a Detector with the given action, defaulting to ActionError
// when action is empty.
func New(action Action) *Detector {
	if action == "" {
		action = ActionError
	}
	return &Detector{history: make(map[string][]string), action: action}
}

// Check records a tool call and reports whether the caller must abort the
// run because it completes a doom loop. When the detector's action is
// ActionError, triggered is true and err is a *codes.Error with Kind
// DoomLoop; with ActionWarn, the detector logs a warning and returns
// triggered=false with err still populated, so the run continues.
func (d *Detector) Check(sessionID, toolName string, input any) (triggered bool, err error) {
	fingerprint := fingerprint(toolName, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.history[sessionID]
	if len(history) >= Threshold {
		allSame := true
		start := len(history) - Threshold
		for i := start; i < len(history); i++ {
			if history[i] != fingerprint {
				allSame = false
				break
			}
		}
		if allSame {
			d.append(sessionID, fingerprint)
			loopErr := codes.New(codes.DoomLoop, "repeated identical tool call detected: "+toolName)
			if d.action == ActionWarn {
				logging.Logger.Warn().Err(loopErr).Str("session", sessionID).Msg("doomloop: continuing after repeated tool call")
				return false, loopErr
			}
			return true, loopErr
		}
	}

	d.append(sessionID, fingerprint)
	return false, nil
}

func (d *Detector) append(sessionID, fingerprint string) {
	history := append(d.history[sessionID], fingerprint)
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	d.history[sessionID] = history
}

// Clear drops all history for a session.
func (d *Detector) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

// fingerprint canonically serialises (toolName, input): encoding/json sorts
// map keys at every nesting level, which gives us comparable canonical JSON
// without a dedicated canonicalisation library.
func fingerprint(toolName string, input any) string {
	data, _ := json.Marshal(map[string]any{"tool": toolName, "input": input})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
