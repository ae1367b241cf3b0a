// Package sessioncache is the process-lifetime tier in front of the persistent store.
// Nothing is ever evicted; a restart starts it empty.
package sessioncache

import (
	"sync"

	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

type Cache struct {
	mu     sync.RWMutex
	totals map[taxon.ID]int64
}

func New() *Cache {
	return &Cache{totals: make(map[taxon.ID]int64)}
}

func (c *Cache) Get(id taxon.ID) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total, ok := c.totals[id]
	return total, ok
}

func (c *Cache) Set(id taxon.ID, total int64) {
	c.mu.Lock()
	c.totals[id] = total
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.totals)
}
