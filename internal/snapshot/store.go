package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned by Load when a handle does not resolve.
var ErrNotFound = errors.New("snapshot not found")

// CorruptError is returned by Load when the persisted bytes cannot be
// parsed into a valid snapshot.
type CorruptError struct {
	Handle string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("snapshot %s corrupt: %v", e.Handle, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// HandleInfo is a listing entry for one stored snapshot.
type HandleInfo struct {
	Handle     string    `json:"handle"`
	RepoRef    string    `json:"repo_url"`
	TotalFiles int       `json:"total_files"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Store persists snapshots. Save is atomic: either the full snapshot is
// durably written or the store is left in its prior state.
type Store interface {
	Save(ctx context.Context, s *Snapshot) (handle string, err error)
	Load(ctx context.Context, handle string) (*Snapshot, error)
	List(ctx context.Context) ([]HandleInfo, error)
	Close() error
}

// Latest returns the handle of the most recently created snapshot in st,
// or ErrNotFound when the store is empty. List implementations return
// newest-first.
func Latest(ctx context.Context, st Store) (string, error) {
	infos, err := st.List(ctx)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", ErrNotFound
	}
	return infos[0].Handle, nil
}

// cachedStore fronts a Store with an LRU of recently loaded snapshots.
// Snapshots are immutable once saved, so cached entries never go stale.
type cachedStore struct {
	inner Store
	lru   *lru.Cache[string, *Snapshot]
}

// NewCached wraps inner with an in-memory LRU keyed by handle.
func NewCached(inner Store, size int) Store {
	if size <= 0 {
		size = 16
	}
	c, err := lru.New[string, *Snapshot](size)
	if err != nil {
		return inner
	}
	return &cachedStore{inner: inner, lru: c}
}

func (c *cachedStore) Save(ctx context.Context, s *Snapshot) (string, error) {
	handle, err := c.inner.Save(ctx, s)
	if err != nil {
		return "", err
	}
	c.lru.Add(handle, s)
	return handle, nil
}

func (c *cachedStore) Load(ctx context.Context, handle string) (*Snapshot, error) {
	if s, ok := c.lru.Get(handle); ok {
		return s, nil
	}
	s, err := c.inner.Load(ctx, handle)
	if err != nil {
		return nil, err
	}
	c.lru.Add(handle, s)
	return s, nil
}

func (c *cachedStore) List(ctx context.Context) ([]HandleInfo, error) {
	return c.inner.List(ctx)
}

func (c *cachedStore) Close() error { return c.inner.Close() }
