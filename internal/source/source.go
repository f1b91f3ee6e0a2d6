// Package source fetches repository contents for ingest: a flat list of
// text files from GitHub or a local directory, pre-filtered to what the
// pipeline can summarize.
package source

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the repository reference does not resolve
// (unknown repo, bad branch, missing directory).
var ErrNotFound = errors.New("repository not found")

// SourceFile is one fetched file. Read-only for the duration of ingest.
type SourceFile struct {
	Path     string
	Content  string
	Size     int64
	FileType string
}

// RepoContents is everything Fetch yields for one repository reference.
type RepoContents struct {
	RepoRef string
	Name    string
	Files   []SourceFile
	// Truncated is set when the hosting API could not return the full
	// tree; the summary set may be missing files.
	Truncated bool
}

// Source yields repository contents for a reference. Implementations map
// their transport faults onto ErrNotFound for unresolvable references and
// return transient faults as plain errors after exhausting their own
// retry budget.
type Source interface {
	Fetch(ctx context.Context, ref string) (*RepoContents, error)
}
