// Package workingmemory manages per-session ephemeral state: the bounded
// message window, pending structured memories, client data, and the rolling
// summary. Stores persist the state; Service layers the summarization and
// promotion triggers on top.
package workingmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mnemo-ai/mnemo"
)

// Store persists WorkingMemory blobs keyed by (namespace, session_id).
//
// Put is optimistic: writers echo the Version they read; the store rejects
// the write with a Conflict error when the stored version has moved. A zero
// Version skips the check. The returned value carries the new version.
type Store interface {
	Get(ctx context.Context, namespace, sessionID string) (*mnemo.WorkingMemory, error)
	Put(ctx context.Context, wm *mnemo.WorkingMemory) (*mnemo.WorkingMemory, error)
	Delete(ctx context.Context, namespace, sessionID string) error

	// List returns session IDs in the namespace, sorted, paged. An empty
	// namespace lists sessions across all namespaces.
	List(ctx context.Context, namespace string, limit, offset int) ([]string, int, error)
}

type memoryEntry struct {
	wm        *mnemo.WorkingMemory
	expiresAt time.Time
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

var _ Store = &MemoryStore{}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func sessionKey(namespace, sessionID string) string {
	return namespace + "\x00" + sessionID
}

func (s *MemoryStore) Get(ctx context.Context, namespace, sessionID string) (*mnemo.WorkingMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionKey(namespace, sessionID)]
	if ok && !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.entries, sessionKey(namespace, sessionID))
		ok = false
	}
	if !ok {
		return nil, mnemo.WrapError(mnemo.KindNotFound, mnemo.ErrNotFound)
	}
	return entry.wm.Copy(), nil
}

func (s *MemoryStore) Put(ctx context.Context, wm *mnemo.WorkingMemory) (*mnemo.WorkingMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(wm.Namespace, wm.SessionID)

	var storedVersion int64
	if entry, ok := s.entries[key]; ok {
		storedVersion = entry.wm.Version
	}
	if wm.Version != 0 && wm.Version != storedVersion {
		return nil, mnemo.Errorf(mnemo.KindConflict,
			"session %s version %d is stale (stored %d): %w",
			wm.SessionID, wm.Version, storedVersion, mnemo.ErrConflict)
	}

	stored := wm.Copy()
	stored.Version = storedVersion + 1
	entry := &memoryEntry{wm: stored}
	if wm.TTLSeconds > 0 {
		entry.expiresAt = s.now().Add(time.Duration(wm.TTLSeconds) * time.Second)
	}
	s.entries[key] = entry
	return stored.Copy(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, namespace, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionKey(namespace, sessionID))
	return nil
}

func (s *MemoryStore) List(ctx context.Context, namespace string, limit, offset int) ([]string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var ids []string
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, key)
			continue
		}
		ns, id, _ := strings.Cut(key, "\x00")
		if namespace != "" && ns != namespace {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := len(ids)
	if offset >= len(ids) {
		return nil, total, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, total, nil
}
