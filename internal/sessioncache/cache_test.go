package sessioncache

import (
	"sync"
	"testing"

	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

func TestCacheGetSet(t *testing.T) {
	t.Parallel()

	c := New()
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected empty cache")
	}
	c.Set(1, 10)
	c.Set(1, 11)
	total, ok := c.Get(1)
	if !ok || total != 11 {
		t.Fatalf("expected 11, got %d ok=%v", total, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one entry, got %d", c.Len())
	}
}

func TestCacheConcurrentWriters(t *testing.T) {
	t.Parallel()

	c := New()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id taxon.ID) {
			defer wg.Done()
			c.Set(id, int64(id)*10)
			_, _ = c.Get(id)
		}(taxon.ID(i))
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", c.Len())
	}
}
