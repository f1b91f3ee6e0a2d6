package contentcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoqa/internal/source"
)

func testFiles() []source.SourceFile {
	return []source.SourceFile{
		{Path: "main.py", Content: "print('hi')", Size: 11, FileType: "py"},
		{Path: "pkg/util/helpers.py", Content: "def helper():\n    return 42\n", Size: 28, FileType: "py"},
		{Path: "docs/README.md", Content: "# Überblick\n", Size: 13, FileType: "md"},
	}
}

func TestWriteAllAndRead(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.WriteAll(ctx, "snap-1", testFiles()))

	for _, f := range testFiles() {
		got, err := c.Read(ctx, "snap-1", f.Path)
		require.NoError(t, err)
		assert.Equal(t, f.Content, got)
	}
}

func TestReadMissingHandle(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = c.Read(context.Background(), "nope", "main.py")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadMissingPath(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.WriteAll(ctx, "snap-1", testFiles()))

	_, err = c.Read(ctx, "snap-1", "not/there.py")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHasAndPaths(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, c.Has("snap-1"))
	require.NoError(t, c.WriteAll(ctx, "snap-1", testFiles()))
	assert.True(t, c.Has("snap-1"))

	paths, err := c.Paths("snap-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.py", "pkg/util/helpers.py", "docs/README.md"}, paths)
}

func TestRemovePurgesDiskAndMemory(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.WriteAll(ctx, "snap-1", testFiles()))
	// warm the memory front
	_, err = c.Read(ctx, "snap-1", "main.py")
	require.NoError(t, err)

	require.NoError(t, c.Remove("snap-1"))
	assert.False(t, c.Has("snap-1"))
	_, err = c.Read(ctx, "snap-1", "main.py")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFrontSurvivesBlobLoss(t *testing.T) {
	root := t.TempDir()
	c, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.WriteAll(ctx, "snap-1", testFiles()))
	first, err := c.Read(ctx, "snap-1", "main.py")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "snap-1", "data")))

	second, err := c.Read(ctx, "snap-1", "main.py")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestArchivesAreIsolatedPerHandle(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.WriteAll(ctx, "snap-1", []source.SourceFile{{Path: "a.py", Content: "one"}}))
	require.NoError(t, c.WriteAll(ctx, "snap-2", []source.SourceFile{{Path: "a.py", Content: "two"}}))

	got1, err := c.Read(ctx, "snap-1", "a.py")
	require.NoError(t, err)
	got2, err := c.Read(ctx, "snap-2", "a.py")
	require.NoError(t, err)
	assert.Equal(t, "one", got1)
	assert.Equal(t, "two", got2)
}
