package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore keeps session state in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryStore returns a MemoryStore whose entries expire after ttl. A zero ttl never expires.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the state for the album or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, sessionID, albumID string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	m.mu.RLock()
	entry, ok := m.entries[key(sessionID, albumID)]
	m.mu.RUnlock()

	if !ok || (m.ttl > 0 && m.now().After(entry.expiresAt)) {
		return State{}, ErrNotFound
	}
	return cloneState(entry.state), nil
}

// Put replaces the state for the album.
func (m *MemoryStore) Put(ctx context.Context, sessionID, albumID string, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Drop expired entries while holding the write lock.
	now := m.now()
	if m.ttl > 0 {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}

	m.entries[key(sessionID, albumID)] = memoryEntry{
		state:     cloneState(state),
		expiresAt: now.Add(m.ttl),
	}
	return nil
}

func cloneState(s State) State {
	s.OrderedIDs = append([]string(nil), s.OrderedIDs...)
	if s.Comparisons != nil {
		s.Comparisons = append([]byte(nil), s.Comparisons...)
	}
	return s
}

func key(sessionID, albumID string) string {
	return "session:" + sessionID + ":ranking:" + albumID
}
