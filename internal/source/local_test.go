package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestLocalFetch(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":            "package main\n",
		"docs/guide.md":      "# Guide\n",
		"node_modules/x.js":  "ignored",
		".git/config":        "ignored",
		"assets/logo.png":    "ignored",
		"__pycache__/m.pyc":  "ignored",
		"internal/server.go": "package internal\n",
	})

	got, err := NewLocalSource().Fetch(context.Background(), root)
	require.NoError(t, err)

	paths := make([]string, 0, len(got.Files))
	for _, f := range got.Files {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"main.go", "docs/guide.md", "internal/server.go"}, paths)
}

func TestLocalFetchMissingDir(t *testing.T) {
	_, err := NewLocalSource().Fetch(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalFetchMaxFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
		"c.go": "package c\n",
	})

	src := &LocalSource{Filter: &Filter{MaxFileSize: 500_000, MaxFiles: 2}}
	got, err := src.Fetch(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, got.Files, 2)
}

func TestLocalFetchSkipsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.go"), []byte("package secret\n"), 0o644))

	root := t.TempDir()
	writeTree(t, root, map[string]string{"ok.go": "package ok\n"})
	if err := os.Symlink(filepath.Join(outside, "secret.go"), filepath.Join(root, "leak.go")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := NewLocalSource().Fetch(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	require.Equal(t, "ok.go", got.Files[0].Path)
}

func TestFilterHelpers(t *testing.T) {
	files := []SourceFile{
		{Path: "src/app.py"},
		{Path: "src/test_app.py"},
		{Path: "config.yaml"},
		{Path: "docs/readme.md"},
	}

	assert.Len(t, ExcludeTests(files), 3)
	assert.Len(t, ExcludeConfig(files), 3)
	assert.Len(t, OnlySourceCode(files), 2)
	assert.Len(t, ByDirectory(files, "src"), 2)
}

func TestLanguageAndFileType(t *testing.T) {
	assert.Equal(t, "Python", Language("a/b/c.py"))
	assert.Equal(t, "Go", Language("main.go"))
	assert.Equal(t, "Unknown", Language("data.bin"))
	assert.Equal(t, ".py", FileTypeOf("a/b/c.py"))
	assert.Equal(t, "no_extension", FileTypeOf("Makefile"))
}
