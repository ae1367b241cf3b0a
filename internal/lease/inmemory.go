package lease

import (
	"context"
	"sync"
	"time"
)

type inMemoryEntry struct {
	owner     string
	expiresAt time.Time
}

type InMemoryManager struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]inMemoryEntry
	now     func() time.Time
}

func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{
		entries: make(map[string]inMemoryEntry),
		now:     time.Now,
	}
}

func (m *InMemoryManager) Acquire(_ context.Context, resource, owner string, ttl time.Duration) (Lease, bool, error) {
	resource, owner, ttl, err := normalize(resource, owner, ttl)
	if err != nil {
		return Lease{}, false, err
	}

	now := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.entries[resource]; ok && held.owner != owner && now.Before(held.expiresAt) {
		return Lease{}, false, nil
	}

	m.seq++
	m.entries[resource] = inMemoryEntry{owner: owner, expiresAt: now.Add(ttl)}
	return Lease{Token: m.seq, ExpiresAt: now.Add(ttl)}, true, nil
}

// Holder reports the current owner of resource, if any.
func (m *InMemoryManager) Holder(resource string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.entries[resource]
	if !ok || !m.now().UTC().Before(held.expiresAt) {
		return "", false
	}
	return held.owner, true
}
