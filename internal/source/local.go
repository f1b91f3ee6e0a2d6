package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalSource reads a repository from a directory on disk. Walks never
// leave the root: symlinked files resolving outside it are skipped.
type LocalSource struct {
	Filter *Filter
}

func NewLocalSource() *LocalSource {
	return &LocalSource{Filter: DefaultFilter()}
}

func (l *LocalSource) Fetch(ctx context.Context, ref string) (*RepoContents, error) {
	root, err := filepath.Abs(ref)
	if err != nil {
		return nil, err
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", ref)
	}

	filter := l.Filter
	if filter == nil {
		filter = DefaultFilter()
	}

	var files []SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if filter.MaxFiles > 0 && len(files) >= filter.MaxFiles {
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		fi, statErr := os.Stat(path)
		if statErr != nil {
			return nil
		}
		if !filter.Include(rel, fi.Size()) {
			return nil
		}
		if !resolvesUnder(root, path) {
			return nil
		}

		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		files = append(files, SourceFile{
			Path:     rel,
			Content:  strings.ToValidUTF8(string(raw), ""),
			Size:     fi.Size(),
			FileType: FileTypeOf(rel),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RepoContents{
		RepoRef: ref,
		Name:    filepath.Base(root),
		Files:   files,
	}, nil
}

// resolvesUnder reports whether path, after resolving symlinks, still lives
// under root.
func resolvesUnder(root, path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
