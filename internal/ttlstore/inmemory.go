package ttlstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	raw       []byte
	expiresAt time.Time
}

type InMemoryBackend struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		items: make(map[string]memoryItem),
	}
}

func (b *InMemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, errors.New("key is required")
	}

	now := time.Now().UTC()
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
		delete(b.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), item.raw...), true, nil
}

func (b *InMemoryBackend) Set(_ context.Context, key string, raw []byte, ttl time.Duration) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key is required")
	}

	item := memoryItem{raw: append([]byte(nil), raw...)}
	if ttl > 0 {
		item.expiresAt = time.Now().UTC().Add(ttl)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = item
	return nil
}

func (b *InMemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, strings.TrimSpace(key))
	return nil
}

// Len reports how many records are held, expired or not.
func (b *InMemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
