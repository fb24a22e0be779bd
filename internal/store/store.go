// Package store implements the agent-owned persistent key/value journal
// described in spec §4.8: a JSON item collection guarded by a
// cross-process lock, built on internal/storage's flock-based FileLock
// so a crashed holder's lock is reclaimed by the kernel rather than by a
// hand-rolled liveness check. A sibling {pid, agent, timestamp} payload
// file is written purely for the diagnostic shown when the lock is held.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agentuse/agentuse/internal/codes"
	"github.com/agentuse/agentuse/internal/id"
	"github.com/agentuse/agentuse/internal/storage"
)

// Item is a single record in a store, per spec §3.
type Item struct {
	ID        string         `json:"id"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
	Type      string         `json:"type,omitempty"`
	Title     string         `json:"title,omitempty"`
	Status    string         `json:"status,omitempty"`
	CreatedBy string         `json:"createdBy,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	ParentID  string         `json:"parentId,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
}

// file is the on-disk shape: {version:1, items: Item[]}.
type file struct {
	Version int    `json:"version"`
	Items   []Item `json:"items"`
}

// lockPayload is the JSON content of the lock file.
type lockPayload struct {
	PID       int    `json:"pid"`
	Agent     string `json:"agent"`
	Timestamp int64  `json:"timestamp"`
}

// Store is one named item collection at
// "<projectRoot>/.agentuse/store/<storeName>/items.json", with a sibling
// lock file.
type Store struct {
	mu        sync.Mutex
	dir       string
	itemsPath string
	lockPath  string
	agent     string

	loaded   bool
	data     file
	locked   bool
	fileLock *storage.FileLock
}

// Open returns a handle to the store named name under root. Nothing is
// read from disk until the first operation.
func Open(root, name, agent string) *Store {
	dir := filepath.Join(root, ".agentuse", "store", name)
	return &Store{
		dir:       dir,
		itemsPath: filepath.Join(dir, "items.json"),
		lockPath:  filepath.Join(dir, "lock"),
		agent:     agent,
	}
}

// acquireLock implements spec §4.8's lock semantics via
// internal/storage.FileLock's non-blocking flock: a live holder's lock
// can't be stolen, and a crashed holder's lock is released by the kernel
// the moment its file descriptor closes, with no liveness polling needed
// on our side. The JSON payload alongside the lock exists only so a
// refused caller gets a useful diagnostic (which pid/agent holds it).
func (s *Store) acquireLock() error {
	if s.locked {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return codes.Wrap(codes.StoreCorrupt, "store: creating directory", err)
	}

	lock := storage.NewFileLock(s.lockPath)
	if !lock.TryLock() {
		if payload, err := readLockPayload(s.lockPath); err == nil {
			age := time.Since(time.UnixMilli(payload.Timestamp))
			return codes.New(codes.StoreLocked, fmt.Sprintf(
				"store locked by pid %d (agent %q) for %s", payload.PID, payload.Agent, age.Round(time.Second)))
		}
		return codes.New(codes.StoreLocked, "store: locked by another process")
	}

	payload := lockPayload{PID: os.Getpid(), Agent: s.agent, Timestamp: time.Now().UnixMilli()}
	data, err := json.Marshal(payload)
	if err != nil {
		lock.Unlock()
		return codes.Wrap(codes.StoreCorrupt, "store: marshalling lock payload", err)
	}
	if err := os.WriteFile(s.lockPath, data, 0600); err != nil {
		lock.Unlock()
		return codes.Wrap(codes.StoreLocked, "store: writing lock file", err)
	}
	s.fileLock = lock
	s.locked = true
	return nil
}

// ReleaseLock releases the store's cross-process lock; it is the
// prepared-execution cleanup step named in spec §4.8.
func (s *Store) ReleaseLock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return
	}
	if s.fileLock != nil {
		s.fileLock.Unlock()
		s.fileLock = nil
	}
	os.Remove(s.lockPath)
	s.locked = false
}

func readLockPayload(path string) (lockPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockPayload{}, err
	}
	var payload lockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Corrupt payload: the flock-held lock is still real, just report
		// the failure without a holder diagnostic.
		return lockPayload{}, fmt.Errorf("corrupt lock file: %w", err)
	}
	return payload, nil
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.itemsPath)
	if os.IsNotExist(err) {
		s.data = file{Version: 1}
		s.loaded = true
		return nil
	}
	if err != nil {
		return codes.Wrap(codes.StoreCorrupt, "store: reading items file", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return codes.Wrap(codes.StoreCorrupt, "store: parsing items file", err)
	}
	s.data = f
	s.loaded = true
	return nil
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return codes.Wrap(codes.StoreCorrupt, "store: marshalling items", err)
	}
	tmp := s.itemsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return codes.Wrap(codes.StoreLocked, "store: writing items file", err)
	}
	if err := os.Rename(tmp, s.itemsPath); err != nil {
		os.Remove(tmp)
		return codes.Wrap(codes.StoreLocked, "store: renaming items file", err)
	}
	return nil
}

// Create adds a new item and returns it.
func (s *Store) Create(itemType, title string, data map[string]any) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquireLock(); err != nil {
		return Item{}, err
	}
	if err := s.ensureLoaded(); err != nil {
		return Item{}, err
	}

	now := time.Now().UnixMilli()
	item := Item{
		ID:        id.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Type:      itemType,
		Title:     title,
		Data:      data,
	}
	if s.data.Version == 0 {
		s.data.Version = 1
	}
	s.data.Items = append(s.data.Items, item)
	if err := s.persist(); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Get returns an item by ID.
func (s *Store) Get(itemID string) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquireLock(); err != nil {
		return Item{}, false, err
	}
	if err := s.ensureLoaded(); err != nil {
		return Item{}, false, err
	}
	for _, it := range s.data.Items {
		if it.ID == itemID {
			return it, true, nil
		}
	}
	return Item{}, false, nil
}

// Update applies mutate to an existing item and persists the result.
func (s *Store) Update(itemID string, mutate func(*Item)) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquireLock(); err != nil {
		return Item{}, err
	}
	if err := s.ensureLoaded(); err != nil {
		return Item{}, err
	}
	for i := range s.data.Items {
		if s.data.Items[i].ID == itemID {
			mutate(&s.data.Items[i])
			s.data.Items[i].UpdatedAt = time.Now().UnixMilli()
			if err := s.persist(); err != nil {
				return Item{}, err
			}
			return s.data.Items[i], nil
		}
	}
	return Item{}, fmt.Errorf("store: item %s not found", itemID)
}

// Delete removes an item by ID.
func (s *Store) Delete(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquireLock(); err != nil {
		return err
	}
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	for i, it := range s.data.Items {
		if it.ID == itemID {
			s.data.Items = append(s.data.Items[:i], s.data.Items[i+1:]...)
			return s.persist()
		}
	}
	return nil
}

// ListQuery filters and paginates List.
type ListQuery struct {
	Type     string
	Status   string
	ParentID string
	Tag      string
	Limit    int
	Offset   int
}

// List filters in-memory, sorts by createdAt descending, then paginates,
// per spec §4.8's query surface.
func (s *Store) List(q ListQuery) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquireLock(); err != nil {
		return nil, err
	}
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	matched := make([]Item, 0, len(s.data.Items))
	for _, it := range s.data.Items {
		if q.Type != "" && it.Type != q.Type {
			continue
		}
		if q.Status != "" && it.Status != q.Status {
			continue
		}
		if q.ParentID != "" && it.ParentID != q.ParentID {
			continue
		}
		if q.Tag != "" && !hasTag(it.Tags, q.Tag) {
			continue
		}
		matched = append(matched, it)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []Item{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
