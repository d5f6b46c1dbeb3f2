package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cache is a local directory holding one file per snapshot identifier with
// the raw bytes as fetched from the pipeline repository. Entries never
// expire: snapshots are immutable once published, so staleness is controlled
// by the caller's force-refresh flag, not a TTL.
type Cache struct {
	dir string
}

// NewCache ensures the cache directory exists.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Get returns the cached bytes for an identifier, or found=false when the
// identifier has not been cached.
func (c *Cache) Get(id string) (data []byte, found bool, err error) {
	data, err = os.ReadFile(c.path(id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry for %s: %w", id, err)
	}
	return data, true, nil
}

// Put stores the bytes for an identifier, replacing any previous entry.
func (c *Cache) Put(id string, data []byte) error {
	if err := os.WriteFile(c.path(id), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry for %s: %w", id, err)
	}
	return nil
}

func (c *Cache) path(id string) string {
	sanitized := strings.NewReplacer("/", "_", ":", "_").Replace(id)
	return filepath.Join(c.dir, sanitized)
}
