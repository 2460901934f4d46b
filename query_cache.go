package embedfall

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// queryCache is the bounded LRU mapping raw input text to its computed
// vector. Stored vectors are private copies and are never mutated after
// insertion; Get hands out fresh copies so callers cannot corrupt them.
type queryCache struct {
	entries *lru.Cache[string, []float32]
}

func newQueryCache(capacity int) (*queryCache, error) {
	entries, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: cache: %v", ErrConfig, err)
	}
	return &queryCache{entries: entries}, nil
}

// Get returns a copy of the cached vector and promotes the entry to
// most-recently-used.
func (c *queryCache) Get(text string) ([]float32, bool) {
	vec, ok := c.entries.Get(text)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Put inserts a copy of the vector, evicting the least-recently-used entry
// when over capacity.
func (c *queryCache) Put(text string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.entries.Add(text, stored)
}

func (c *queryCache) Clear() { c.entries.Purge() }

func (c *queryCache) Len() int { return c.entries.Len() }
