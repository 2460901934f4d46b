package embedfall

import (
	"errors"
	"testing"
)

func TestQueryCacheRejectsZeroCapacity(t *testing.T) {
	if _, err := newQueryCache(0); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestQueryCacheGetReturnsCopies(t *testing.T) {
	cache, err := newQueryCache(4)
	if err != nil {
		t.Fatal(err)
	}

	original := []float32{1, 2, 3}
	cache.Put("key", original)

	got, ok := cache.Get("key")
	if !ok {
		t.Fatal("expected hit")
	}
	got[0] = 42

	again, _ := cache.Get("key")
	if again[0] != 1 {
		t.Fatalf("cached vector mutated through a returned copy: %v", again[0])
	}

	// The caller's slice is not aliased either.
	original[1] = 99
	again, _ = cache.Get("key")
	if again[1] != 2 {
		t.Fatalf("cached vector aliases the caller's slice: %v", again[1])
	}
}

func TestQueryCacheEvictionOrder(t *testing.T) {
	cache, err := newQueryCache(2)
	if err != nil {
		t.Fatal(err)
	}

	cache.Put("a", []float32{1})
	cache.Put("b", []float32{2})

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}
	cache.Put("c", []float32{3})

	if _, ok := cache.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("a should have survived")
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
}

func TestQueryCacheClear(t *testing.T) {
	cache, err := newQueryCache(2)
	if err != nil {
		t.Fatal(err)
	}
	cache.Put("a", []float32{1})
	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", cache.Len())
	}
}
