package session

import (
	"context"
	"sync"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph/metrics"
)

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store; ttl <= 0 keeps sessions forever
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || m.expired(entry) {
		metrics.SessionLookups.WithLabelValues(BackendMemory, "miss").Inc()
		return nil, ErrNotFound
	}

	metrics.SessionLookups.WithLabelValues(BackendMemory, "hit").Inc()
	s := entry.session
	return &s, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.UpdatedAt = m.now()
	entry := memoryEntry{session: *s}
	if m.ttl > 0 {
		entry.expiresAt = s.UpdatedAt.Add(m.ttl)
	}
	m.sessions[s.ID] = entry

	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}
