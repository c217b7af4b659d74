package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	a := Key("gpt-4o", "sys", "user")
	b := Key("gpt-4o", "sys", "user")
	c := Key("gpt-4o", "sysuser", "")

	if a != b {
		t.Errorf("expected stable key, got %s and %s", a, b)
	}
	if a == c {
		t.Error("expected different keys for differently split parts")
	}
	if !strings.HasPrefix(a, keyPrefix) {
		t.Errorf("expected %s prefix, got %s", keyPrefix, a)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	value := []byte("v")
	_ = c.Set("k", value, 0)
	value[0] = 'x'
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("expected stored copy v, got %q %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}

	_ = c.Set("k", []byte("gone"), -time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected negative ttl to drop the entry")
	}
}

func TestDiskCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "llm")
	c := NewDiskCache(dir, time.Hour)
	key := Key("x")

	if err := c.Set(key, []byte("payload"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != "payload" {
		t.Fatalf("expected payload, got %q %v", got, ok)
	}
	if _, err := os.Stat(filepath.Join(dir, key[len(key)-2:])); err != nil {
		t.Errorf("expected shard directory: %v", err)
	}

	if err := c.Set(key, []byte("stale"), -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}

	if err := c.Delete(key); err != nil {
		t.Errorf("delete of missing entry should not fail: %v", err)
	}
}

func TestDiskCache_Prune(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	_ = c.Set(Key("fresh"), []byte("a"), 0)
	_ = c.Set(Key("old-1"), []byte("b"), -time.Minute)
	_ = c.Set(Key("old-2"), []byte("c"), -time.Minute)

	n, err := c.Prune()
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned entries, got %d", n)
	}
	if _, ok := c.Get(Key("fresh")); !ok {
		t.Error("expected fresh entry to survive")
	}

	if n, err := NewDiskCache(filepath.Join(dir, "absent"), time.Hour).Prune(); err != nil || n != 0 {
		t.Errorf("expected empty prune of missing dir, got %d %v", n, err)
	}
}

func TestLayeredCache(t *testing.T) {
	dir := t.TempDir()
	key := Key("promote")
	if err := NewDiskCache(dir, time.Hour).Set(key, []byte("from-disk"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	c := NewLayeredCache(time.Minute, dir, time.Hour)
	for i := 0; i < 2; i++ {
		got, ok := c.Get(key)
		if !ok || string(got) != "from-disk" {
			t.Fatalf("expected hit, got %q %v", got, ok)
		}
	}
	_, _ = c.Get(Key("absent"))

	want := Stats{MemoryHits: 1, DiskHits: 1, Misses: 1}
	if got := c.Stats(); got != want {
		t.Errorf("expected stats %+v, got %+v", want, got)
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("expected miss after delete")
	}
}
