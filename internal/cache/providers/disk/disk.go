// Package disk provides the content-addressed, on-disk cache strategy,
// registered under "disk". New relative to the teacher (which has no disk
// cache backend); grounded on spec.md's Cache Storage interface
// (read/write/delete/list_keys), applied to a file per entry plus a
// checksum in each entry's header for the integrity check §4.3 requires on
// read. Entries leave only through expiry, Delete or Clear: the provider
// keeps no recency order, ignores Config.MaxSize and never evicts.
package disk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/taskflow-engine/orchestrator/internal/cache"
)

func init() {
	cache.Register("disk", func(cfg cache.Config) (cache.Cache, error) {
		return New(cfg)
	})
}

// Cache stores one file per key. Each file is a binary header (storedAt
// UnixNano and TTL nanoseconds as little-endian int64s, then the raw
// 32-byte sha256 of the value) followed directly by the value bytes.
type Cache struct {
	mu         sync.Mutex
	root       string
	defaultTTL time.Duration
	now        func() time.Time

	hits, misses, evictions, invalidations int64
}

// New creates a disk-backed Cache rooted at cfg.Root, creating the
// directory if necessary.
func New(cfg cache.Config) (*Cache, error) {
	root := cfg.Root
	if root == "" {
		root = filepath.Join(os.TempDir(), "orchestrator-cache")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Cache{root: root, defaultTTL: cfg.TTL, now: time.Now}, nil
}

func (c *Cache) pathFor(key string) string {
	// Key is already a hash in practice (derived by the dispatcher's key
	// derivation step), but hash again defensively so arbitrary strings
	// never escape the root as path components.
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.root, hex.EncodeToString(sum[:]))
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		c.misses++
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	storedAt, ttl, checksum, value, err := decode(raw)
	if err != nil {
		c.misses++
		return nil, false, nil
	}
	if sha256.Sum256(value) != checksum {
		// Integrity check failed; treat as a miss rather than surfacing
		// corrupt bytes.
		c.misses++
		return nil, false, nil
	}
	if ttl > 0 && c.now().After(storedAt.Add(ttl)) {
		_ = os.Remove(c.pathFor(key))
		c.misses++
		return nil, false, nil
	}

	c.hits++
	return value, true, nil
}

func (c *Cache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	raw := encode(c.now(), ttl, value)
	return os.WriteFile(c.pathFor(key), raw, 0o644)
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(c.pathFor(key))
	if err == nil {
		c.invalidations++
	} else if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Keys lists the entry file names under the root. Each name is the hex
// sha256 of a stored key, not the key itself.
func (c *Cache) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(c.root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) Stats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, _ := os.ReadDir(c.root)
	return cache.Stats{
		Strategy:      "disk",
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Invalidations: c.invalidations,
		Size:          len(entries),
	}
}

const headerLen = 8 + 8 + sha256.Size // storedAt unixnano + ttl nanos + checksum

func encode(storedAt time.Time, ttl time.Duration, value []byte) []byte {
	checksum := sha256.Sum256(value)
	buf := make([]byte, headerLen+len(value))
	putInt64(buf[0:8], storedAt.UnixNano())
	putInt64(buf[8:16], int64(ttl))
	copy(buf[16:16+sha256.Size], checksum[:])
	copy(buf[headerLen:], value)
	return buf
}

func decode(raw []byte) (storedAt time.Time, ttl time.Duration, checksum [sha256.Size]byte, value []byte, err error) {
	if len(raw) < headerLen {
		return time.Time{}, 0, checksum, nil, errors.New("disk cache: truncated entry")
	}
	storedAt = time.Unix(0, getInt64(raw[0:8]))
	ttl = time.Duration(getInt64(raw[8:16]))
	copy(checksum[:], raw[16:16+sha256.Size])
	value = raw[headerLen:]
	return storedAt, ttl, checksum, value, nil
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func getInt64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}
