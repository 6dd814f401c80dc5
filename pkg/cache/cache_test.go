package cache

import (
	"testing"
	"time"
)

func TestKey_DistinctParts(t *testing.T) {
	a := Key("dashboard", "current")
	b := Key("dashboard", "week")
	c := Key("dashboard", "current")

	if a == b {
		t.Error("different parts must hash to different keys")
	}
	if a != c {
		t.Error("same parts must hash to the same key")
	}
	// The separator keeps adjacent parts from bleeding into each other.
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("part boundaries must affect the key")
	}
}

func TestCache_SetGet(t *testing.T) {
	c := New()
	key := Key("dashboard", "current")

	if _, ok := c.Get(key); ok {
		t.Error("empty cache should miss")
	}

	c.Set(key, "payload", time.Minute)
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if got != "payload" {
		t.Errorf("Get = %v, want payload", got)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New()
	key := Key("dashboard", "current")

	c.Set(key, "payload", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Error("expired entry must miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 (lazy eviction on read)", c.Len())
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New()
	key := Key("dashboard", "current")

	c.Set(key, "payload", time.Minute)
	c.Invalidate(key)

	if _, ok := c.Get(key); ok {
		t.Error("invalidated entry must miss")
	}
}

func TestCache_Cleanup(t *testing.T) {
	c := New()
	c.Set(Key("a"), 1, 10*time.Millisecond)
	c.Set(Key("b"), 2, 10*time.Millisecond)
	c.Set(Key("c"), 3, time.Minute)

	time.Sleep(20 * time.Millisecond)

	if removed := c.Cleanup(); removed != 2 {
		t.Errorf("Cleanup removed %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if _, ok := c.Get(Key("c")); !ok {
		t.Error("unexpired entry must survive cleanup")
	}
}

func TestCache_Overwrite(t *testing.T) {
	c := New()
	key := Key("dashboard", "current")

	c.Set(key, "old", time.Minute)
	c.Set(key, "new", time.Minute)

	got, _ := c.Get(key)
	if got != "new" {
		t.Errorf("Get = %v, want new", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}
