package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the in-process layer
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a memory layer whose expired items are swept every
// sweep interval
func NewMemoryCache(ttl, sweep time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(ttl, sweep)}
}

// Get returns a copy-free view of the cached bytes
func (m *MemoryCache) Get(key string) ([]byte, bool) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set stores a private copy of value
func (m *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	} else if ttl < 0 {
		m.items.Delete(key)
		return nil
	}
	m.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Delete drops key
func (m *MemoryCache) Delete(key string) error {
	m.items.Delete(key)
	return nil
}

// Clear drops every item
func (m *MemoryCache) Clear() error {
	m.items.Flush()
	return nil
}

// Len reports the number of items, including expired ones not yet swept
func (m *MemoryCache) Len() int {
	return m.items.ItemCount()
}
