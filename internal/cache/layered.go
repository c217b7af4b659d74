package cache

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats counts lookups by the layer that answered them
type Stats struct {
	MemoryHits int64 `json:"memory_hits"`
	DiskHits   int64 `json:"disk_hits"`
	Misses     int64 `json:"misses"`
}

// LayeredCache reads memory first, then disk, and writes through to both
type LayeredCache struct {
	mem  *MemoryCache
	disk *DiskCache

	memHits  atomic.Int64
	diskHits atomic.Int64
	misses   atomic.Int64
}

// NewLayeredCache creates a memory layer over a disk layer at diskDir
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		mem:  NewMemoryCache(memoryTTL, 10*time.Minute),
		disk: NewDiskCache(diskDir, diskTTL),
	}
}

// Get looks in memory, then on disk. Disk hits are promoted to memory with
// the memory default TTL.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if v, ok := c.mem.Get(key); ok {
		c.memHits.Add(1)
		return v, true
	}
	if v, ok := c.disk.Get(key); ok {
		c.diskHits.Add(1)
		_ = c.mem.Set(key, v, 0)
		return v, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set writes both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	_ = c.mem.Set(key, value, ttl)
	if err := c.disk.Set(key, value, ttl); err != nil {
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from both layers
func (c *LayeredCache) Delete(key string) error {
	_ = c.mem.Delete(key)
	return c.disk.Delete(key)
}

// Clear empties both layers
func (c *LayeredCache) Clear() error {
	_ = c.mem.Clear()
	return c.disk.Clear()
}

// Prune drops expired disk entries
func (c *LayeredCache) Prune() (int, error) {
	return c.disk.Prune()
}

// Stats returns the lookup counters since creation
func (c *LayeredCache) Stats() Stats {
	return Stats{
		MemoryHits: c.memHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Misses:     c.misses.Load(),
	}
}
