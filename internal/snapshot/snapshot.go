// Package snapshot defines the persisted output of an ingest run, one
// immutable set of per-file summaries plus repository metadata, and the
// stores that keep it durable.
package snapshot

import (
	"fmt"
	"time"
)

// FileSummary is the structured result of summarizing one source file.
// Immutable once created; unique by Path within one snapshot. JSON field
// names follow the historic snake_case export format.
type FileSummary struct {
	Path             string    `json:"path"`
	FileType         string    `json:"file_type"`
	Language         string    `json:"language"`
	Size             int64     `json:"size"`
	Summary          string    `json:"summary"`
	KeyConcepts      []string  `json:"key_concepts"`
	Dependencies     []string  `json:"dependencies"`
	FunctionsClasses []string  `json:"functions_classes"`
	Purpose          string    `json:"purpose"`
	Truncated        bool      `json:"truncated,omitempty"`
	CreatedAt        time.Time `json:"timestamp"`
}

// RepoMetadata describes one ingest run. Created once, never mutated.
type RepoMetadata struct {
	RepoRef           string         `json:"repo_url"`
	TotalFiles        int            `json:"total_files"`
	FileTypeCounts    map[string]int `json:"file_types"`
	TotalSizeBytes    int64          `json:"total_size"`
	ProcessingSeconds float64        `json:"processing_time"`
	CreatedAt         time.Time      `json:"timestamp"`
}

// NewMetadata derives run metadata from the summaries that actually
// succeeded, so the counts always match the snapshot body.
func NewMetadata(repoRef string, summaries []FileSummary, elapsed time.Duration) RepoMetadata {
	counts := make(map[string]int, 8)
	var total int64
	for _, s := range summaries {
		counts[s.FileType]++
		total += s.Size
	}
	return RepoMetadata{
		RepoRef:           repoRef,
		TotalFiles:        len(summaries),
		FileTypeCounts:    counts,
		TotalSizeBytes:    total,
		ProcessingSeconds: elapsed.Seconds(),
		CreatedAt:         time.Now().UTC(),
	}
}

// Snapshot is the persisted unit: metadata plus the ordered summaries.
type Snapshot struct {
	Metadata  RepoMetadata  `json:"metadata"`
	Summaries []FileSummary `json:"summaries"`
}

// Validate checks the structural invariants a loadable snapshot must hold:
// every summary has a non-empty unique path, and the metadata file count
// matches the summary count.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	seen := make(map[string]struct{}, len(s.Summaries))
	for i, sum := range s.Summaries {
		if sum.Path == "" {
			return fmt.Errorf("summary %d: empty path", i)
		}
		if _, dup := seen[sum.Path]; dup {
			return fmt.Errorf("duplicate path %q", sum.Path)
		}
		seen[sum.Path] = struct{}{}
	}
	if s.Metadata.TotalFiles != len(s.Summaries) {
		return fmt.Errorf("metadata reports %d files, snapshot holds %d",
			s.Metadata.TotalFiles, len(s.Summaries))
	}
	return nil
}

// Find returns the summary for path, if present.
func (s *Snapshot) Find(path string) (FileSummary, bool) {
	for _, sum := range s.Summaries {
		if sum.Path == path {
			return sum, true
		}
	}
	return FileSummary{}, false
}

// QuestionResult records one answered question. Appendable across a session
// without mutating prior entries.
type QuestionResult struct {
	Question      string    `json:"question"`
	SelectedPaths []string  `json:"selected_files"`
	Answer        string    `json:"answer"`
	CreatedAt     time.Time `json:"timestamp"`
}
