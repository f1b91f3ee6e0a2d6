// Package contentcache archives the raw file contents of an ingested
// repository, keyed by snapshot handle. Summaries alone cannot ground an
// answer, so every ingest writes its contents here and every question
// reads the selected files back, which keeps questions working after a
// snapshot is loaded in a fresh process.
package contentcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"repoqa/internal/source"
)

// ErrNotFound is returned when a handle has no archive or a path is not
// in the archive's index.
var ErrNotFound = errors.New("content not cached")

const (
	indexFile      = "index.json"
	defaultMemSize = 128
)

type indexEntry struct {
	File string `json:"file"`
	Size int64  `json:"size"`
}

type archiveIndex struct {
	Handle  string                `json:"handle"`
	Entries map[string]indexEntry `json:"entries"`
}

// Cache is a disk archive with a small in-memory LRU in front of it.
// One directory per snapshot handle, blob files named by content path
// hash, and an index.json written last so a half-written archive is
// simply invisible.
type Cache struct {
	root string

	mu  sync.Mutex
	mem *lru.Cache[string, string]
}

func New(root string) (*Cache, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("content cache root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	mem, err := lru.New[string, string](defaultMemSize)
	if err != nil {
		return nil, err
	}
	return &Cache{root: root, mem: mem}, nil
}

// WriteAll archives the contents for handle. Blobs are written first and
// the index last, so readers never observe a partial archive.
func (c *Cache) WriteAll(_ context.Context, handle string, files []source.SourceFile) error {
	if handle == "" {
		return fmt.Errorf("handle is required")
	}
	dir := c.archiveDir(handle)
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	idx := archiveIndex{Handle: handle, Entries: make(map[string]indexEntry, len(files))}
	for _, f := range files {
		name := hashedName(f.Path)
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("cache %s: %w", f.Path, err)
		}
		idx.Entries[f.Path] = indexEntry{File: name, Size: int64(len(f.Content))}
	}

	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, indexFile))
}

// Read returns the cached content for one path of a snapshot.
func (c *Cache) Read(_ context.Context, handle, path string) (string, error) {
	key := memKey(handle, path)
	c.mu.Lock()
	if content, ok := c.mem.Get(key); ok {
		c.mu.Unlock()
		return content, nil
	}
	c.mu.Unlock()

	idx, err := c.loadIndex(handle)
	if err != nil {
		return "", err
	}
	ent, ok := idx.Entries[path]
	if !ok {
		return "", fmt.Errorf("%s in %s: %w", path, handle, ErrNotFound)
	}
	raw, err := os.ReadFile(filepath.Join(c.archiveDir(handle), "data", ent.File))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s in %s: %w", path, handle, ErrNotFound)
		}
		return "", err
	}

	content := string(raw)
	c.mu.Lock()
	c.mem.Add(key, content)
	c.mu.Unlock()
	return content, nil
}

// Has reports whether handle has a committed archive.
func (c *Cache) Has(handle string) bool {
	_, err := os.Stat(filepath.Join(c.archiveDir(handle), indexFile))
	return err == nil
}

// Paths lists the archived paths for handle.
func (c *Cache) Paths(handle string) ([]string, error) {
	idx, err := c.loadIndex(handle)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(idx.Entries))
	for p := range idx.Entries {
		paths = append(paths, p)
	}
	return paths, nil
}

// Remove deletes the archive for handle, including memory entries.
func (c *Cache) Remove(handle string) error {
	c.mu.Lock()
	prefix := memKey(handle, "")
	for _, key := range c.mem.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.mem.Remove(key)
		}
	}
	c.mu.Unlock()
	return os.RemoveAll(c.archiveDir(handle))
}

func (c *Cache) loadIndex(handle string) (*archiveIndex, error) {
	raw, err := os.ReadFile(filepath.Join(c.archiveDir(handle), indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archive %s: %w", handle, ErrNotFound)
		}
		return nil, err
	}
	var idx archiveIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("archive %s index: %w", handle, err)
	}
	if idx.Entries == nil {
		idx.Entries = map[string]indexEntry{}
	}
	return &idx, nil
}

func (c *Cache) archiveDir(handle string) string {
	return filepath.Join(c.root, dirName(handle))
}

// dirName keeps handles readable on disk while neutralizing separators.
func dirName(handle string) string {
	var b strings.Builder
	for _, r := range handle {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func memKey(handle, path string) string {
	return handle + "\x00" + path
}

func hashedName(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:]) + ".txt"
}
