package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/aem/internal/store"
)

// DiskCache keeps one JSON file per key, sharded by the last two characters
// of the key hash so no directory grows unbounded
type DiskCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

type diskEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewDiskCache creates a disk layer rooted at dir
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{dir: dir, ttl: ttl, now: time.Now}
}

func (d *DiskCache) file(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	shard := "00"
	if len(name) >= 2 {
		shard = name[len(name)-2:]
	}
	return filepath.Join(d.dir, shard, name+".json")
}

// Get returns the stored value unless it is missing, expired or belongs to a
// different key. Expired files are removed.
func (d *DiskCache) Get(key string) ([]byte, bool) {
	path := d.file(key)
	var e diskEntry
	found, err := store.ReadJSON(path, &e)
	if err != nil || !found || e.Key != key {
		return nil, false
	}
	if !d.now().Before(e.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false
	}
	return e.Value, true
}

// Set writes the entry atomically so a concurrent reader in another process
// never sees a torn file
func (d *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = d.ttl
	}
	return store.WriteJSON(d.file(key), diskEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: d.now().Add(ttl),
	})
}

// Delete removes key. A missing entry is not an error.
func (d *DiskCache) Delete(key string) error {
	if err := os.Remove(d.file(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes the whole cache directory
func (d *DiskCache) Clear() error {
	return os.RemoveAll(d.dir)
}

// Prune removes expired and unreadable entries and reports how many went
func (d *DiskCache) Prune() (int, error) {
	removed := 0
	err := filepath.WalkDir(d.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		var e diskEntry
		found, rerr := store.ReadJSON(path, &e)
		if found && rerr == nil && d.now().Before(e.ExpiresAt) {
			return nil
		}
		if os.Remove(path) == nil {
			removed++
		}
		return nil
	})
	return removed, err
}
