package remote

import (
	"context"
	"sync"

	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

// StaticClient answers from a fixed table. It backs offline runs of the CLI.
type StaticClient struct {
	mu     sync.RWMutex
	totals map[taxon.ID]int64
}

func NewStaticClient(totals map[taxon.ID]int64) *StaticClient {
	copied := make(map[taxon.ID]int64, len(totals))
	for id, total := range totals {
		copied[id] = total
	}
	return &StaticClient{totals: copied}
}

func (c *StaticClient) Put(id taxon.ID, total int64) {
	c.mu.Lock()
	c.totals[id] = total
	c.mu.Unlock()
}

func (c *StaticClient) FetchTotals(_ context.Context, ids []taxon.ID) (map[taxon.ID]int64, error) {
	if len(ids) > taxon.MaxBatch {
		return nil, ErrBatchTooLarge
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[taxon.ID]int64, len(ids))
	for _, id := range ids {
		if total, ok := c.totals[id]; ok {
			out[id] = total
		}
	}
	return out, nil
}
