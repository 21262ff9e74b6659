package cache

import (
	"testing"
	"time"
)

func TestCacheExpiresEntries(t *testing.T) {
	current := time.Unix(1000, 0)
	clock := func() time.Time { return current }

	c := New[string](time.Minute, 4, clock)
	c.Put("stats", "v1")

	if got, ok := c.Get("stats"); !ok || got != "v1" {
		t.Fatalf("expected cached value, got %q ok=%v", got, ok)
	}

	current = current.Add(61 * time.Second)
	if _, ok := c.Get("stats"); ok {
		t.Fatal("expected entry to be expired")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be removed, len=%d", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	current := time.Unix(1000, 0)
	c := New[int](time.Hour, 2, func() time.Time { return current })

	c.Put("a", 1)
	c.Put("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}

	// b is now least recently used and should be evicted.
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected c to be present")
	}
}

func TestCachePutRefreshesExisting(t *testing.T) {
	current := time.Unix(1000, 0)
	c := New[int](time.Minute, 2, func() time.Time { return current })

	c.Put("a", 1)
	current = current.Add(50 * time.Second)
	c.Put("a", 2)
	current = current.Add(30 * time.Second)

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected refreshed entry to still be valid")
	}
	if got != 2 {
		t.Fatalf("expected updated value 2, got %d", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := New[int](time.Minute, 2, nil)
	c.Put("a", 1)
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected invalidated entry to be gone")
	}
}
