package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const filePrefix = "repo_summary_"

// FileStore keeps each snapshot as one JSON document under a directory.
// The handle is the file name. This is the default backend.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "./repo_analysis"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) Close() error { return nil }

// Save writes the snapshot to a temp file and renames it into place, so a
// concurrent or crashed Save never leaves a half-written document behind.
func (fs *FileStore) Save(ctx context.Context, s *Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.Validate(); err != nil {
		return "", fmt.Errorf("refusing to save invalid snapshot: %w", err)
	}

	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}

	handle := filePrefix + s.Metadata.CreatedAt.UTC().Format("20060102_150405") + ".json"
	final := filepath.Join(fs.dir, handle)

	tmp, err := os.CreateTemp(fs.dir, handle+".tmp*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return handle, nil
}

// Load reads a snapshot by handle. A handle that is itself a readable path
// is used directly, so documents saved elsewhere can be loaded too.
func (fs *FileStore) Load(ctx context.Context, handle string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := handle
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(fs.dir, handle)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &CorruptError{Handle: handle, Err: err}
	}
	if err := s.Validate(); err != nil {
		return nil, &CorruptError{Handle: handle, Err: err}
	}
	return &s, nil
}

// List returns stored snapshots newest-first. Unparseable documents are
// skipped rather than failing the whole listing.
func (fs *FileStore) List(ctx context.Context) ([]HandleInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}

	infos := make([]HandleInfo, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		meta, err := readMetadata(filepath.Join(fs.dir, name))
		if err != nil {
			continue
		}
		infos = append(infos, HandleInfo{
			Handle:     name,
			RepoRef:    meta.RepoRef,
			TotalFiles: meta.TotalFiles,
			CreatedAt:  meta.CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

func readMetadata(path string) (RepoMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RepoMetadata{}, err
	}
	var doc struct {
		Metadata RepoMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RepoMetadata{}, err
	}
	if doc.Metadata.CreatedAt.IsZero() {
		return RepoMetadata{}, fmt.Errorf("no metadata in %s", filepath.Base(path))
	}
	return doc.Metadata, nil
}
