package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return &Snapshot{
		Metadata: RepoMetadata{
			RepoRef:           "https://github.com/acme/widgets",
			TotalFiles:        2,
			FileTypeCounts:    map[string]int{".go": 1, ".md": 1},
			TotalSizeBytes:    1234,
			ProcessingSeconds: 4.2,
			CreatedAt:         created,
		},
		Summaries: []FileSummary{
			{
				Path:             "main.go",
				FileType:         ".go",
				Language:         "Go",
				Size:             1000,
				Summary:          "Entry point wiring the HTTP server.",
				KeyConcepts:      []string{"http", "dependency injection"},
				Dependencies:     []string{"net/http"},
				FunctionsClasses: []string{"main"},
				Purpose:          "Boots the service.",
				CreatedAt:        created,
			},
			{
				Path:      "README.md",
				FileType:  ".md",
				Language:  "Markdown",
				Size:      234,
				Summary:   "Project overview.",
				Purpose:   "Documentation.",
				CreatedAt: created,
			},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	want := sampleSnapshot(t)
	ctx := context.Background()

	handle, err := st.Save(ctx, want)
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	got, err := st.Load(ctx, handle)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFileStoreLoadMissing(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Load(context.Background(), "repo_summary_nope.json")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreLoadCorruptJSON(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	require.NoError(t, err)

	handle := "repo_summary_bad.json"
	require.NoError(t, os.WriteFile(filepath.Join(dir, handle), []byte("{not json"), 0o644))

	_, err = st.Load(context.Background(), handle)
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
	require.Equal(t, handle, corrupt.Handle)
}

func TestFileStoreLoadDuplicatePaths(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	require.NoError(t, err)

	doc := `{
  "metadata": {"repo_url": "r", "total_files": 2, "timestamp": "2026-03-14T09:26:53Z"},
  "summaries": [
    {"path": "a.go", "timestamp": "2026-03-14T09:26:53Z"},
    {"path": "a.go", "timestamp": "2026-03-14T09:26:53Z"}
  ]
}`
	handle := "repo_summary_dup.json"
	require.NoError(t, os.WriteFile(filepath.Join(dir, handle), []byte(doc), 0o644))

	_, err = st.Load(context.Background(), handle)
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
	require.Contains(t, corrupt.Error(), "duplicate path")
}

func TestFileStoreRejectsInvalidSnapshotOnSave(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	bad := sampleSnapshot(t)
	bad.Metadata.TotalFiles = 99

	_, err = st.Save(context.Background(), bad)
	require.Error(t, err)

	infos, err := st.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, infos, "failed save must leave the store unchanged")
}

func TestFileStoreListNewestFirst(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	older := sampleSnapshot(t)
	older.Metadata.CreatedAt = older.Metadata.CreatedAt.Add(-time.Hour)
	for i := range older.Summaries {
		older.Summaries[i].CreatedAt = older.Metadata.CreatedAt
	}
	newer := sampleSnapshot(t)

	_, err = st.Save(ctx, older)
	require.NoError(t, err)
	newerHandle, err := st.Save(ctx, newer)
	require.NoError(t, err)

	infos, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, newerHandle, infos[0].Handle)

	latest, err := Latest(ctx, st)
	require.NoError(t, err)
	require.Equal(t, newerHandle, latest)
}

func TestLatestEmptyStore(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = Latest(context.Background(), st)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStoreServesFromLRU(t *testing.T) {
	inner := &countingStore{Store: mustFileStore(t)}
	st := NewCached(inner, 4)
	ctx := context.Background()

	handle, err := st.Save(ctx, sampleSnapshot(t))
	require.NoError(t, err)

	_, err = st.Load(ctx, handle)
	require.NoError(t, err)
	_, err = st.Load(ctx, handle)
	require.NoError(t, err)
	require.Zero(t, inner.loads, "loads after save should be cache hits")
}

func mustFileStore(t *testing.T) *FileStore {
	t.Helper()
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return st
}

type countingStore struct {
	Store
	loads int
}

func (c *countingStore) Load(ctx context.Context, handle string) (*Snapshot, error) {
	c.loads++
	return c.Store.Load(ctx, handle)
}

func TestValidate(t *testing.T) {
	s := sampleSnapshot(t)
	require.NoError(t, s.Validate())

	s.Summaries[1].Path = "main.go"
	require.Error(t, s.Validate())

	s = sampleSnapshot(t)
	s.Summaries[0].Path = ""
	require.Error(t, s.Validate())

	var nilSnap *Snapshot
	require.Error(t, nilSnap.Validate())
}

func TestCorruptErrorUnwraps(t *testing.T) {
	base := errors.New("base")
	err := &CorruptError{Handle: "h", Err: base}
	require.ErrorIs(t, err, base)
}
