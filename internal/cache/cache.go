// Package cache stores LLM responses between runs. Keys are content hashes so
// an identical prompt to the same model is answered once per TTL.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache is a byte cache with per-entry TTL. A zero ttl means the cache's own
// default; a negative ttl stores an entry that is already expired.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

const keyPrefix = "aem:v1:"

// Key hashes its parts into a cache key. Parts are NUL separated so
// ("ab","c") and ("a","bc") never collide.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return keyPrefix + hex.EncodeToString(sum[:])
}
