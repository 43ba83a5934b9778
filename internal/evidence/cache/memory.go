package cache

import (
	"context"
	"sync"
	"time"

	"diligence/internal/evidence/sources"
	"diligence/pkg/platform/sentinel"
)

type memoryEntry struct {
	evidence  sources.Evidence
	expiresAt time.Time
}

// MemoryStore is an in-process evidence cache with TTL expiration, used when
// Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*sources.Evidence, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(entry.expiresAt) {
		return nil, sentinel.ErrNotFound
	}
	ev := entry.evidence
	return &ev, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, evidence *sources.Evidence, ttl time.Duration) error {
	if evidence == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{evidence: *evidence, expiresAt: m.now().Add(ttl)}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now, removed := m.now(), 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
