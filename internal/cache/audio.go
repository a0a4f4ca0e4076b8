package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AudioCache keys synthesized audio by engine, text and options and copies
// entries in and out of artifact files.
type AudioCache struct {
	disk *DiskCache
}

// NewAudioCache opens the audio cache under dir with a capacity in bytes.
func NewAudioCache(dir string, capacity int64) (*AudioCache, error) {
	disk, err := NewDiskCache(dir, capacity, DefaultCompressionLevel)
	if err != nil {
		return nil, err
	}
	return &AudioCache{disk: disk}, nil
}

// Key derives the cache key for one synthesis request. optionsKey must be
// a stable rendering of the resolved options, such as an engine's CacheKey.
func Key(engine, text, optionsKey string) string {
	h := sha256.New()
	for _, part := range []string{engine, text, optionsKey} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup writes the cached audio for key to dst. It reports false on a miss.
func (c *AudioCache) Lookup(key, dst string) (bool, error) {
	data, ok := c.disk.Get(key)
	if !ok {
		return false, nil
	}
	if err := writeFile(dst, data); err != nil {
		return false, fmt.Errorf("failed to materialize cached audio: %w", err)
	}
	return true, nil
}

// Store copies the audio file at src into the cache.
func (c *AudioCache) Store(key, src string) error {
	data, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("failed to read audio for cache: %w", err)
	}
	return c.disk.Put(key, data)
}

// Stats returns cache statistics.
func (c *AudioCache) Stats() Stats {
	return c.disk.Stats()
}

// Close saves the cache index.
func (c *AudioCache) Close() error {
	return c.disk.Close()
}
