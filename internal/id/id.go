// Package id generates lexicographically-sortable, monotonic identifiers
// for sessions, messages and parts.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new monotonic, time-ordered 26-character identifier.
//
// ulid.Monotonic is not safe for concurrent use on its own, so callers go
// through this single package-level generator rather than constructing
// their own reader per call site.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Time extracts the creation timestamp encoded in an identifier produced by
// New. It returns the zero Time if id is not a valid ULID.
func Time(idStr string) time.Time {
	parsed, err := ulid.ParseStrict(idStr)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(parsed.Time())
}
