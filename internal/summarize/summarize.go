// Package summarize drives bounded-parallel model summarization of source
// files. One batch call fans out over a counting permit, retries transient
// faults per file, and reassembles results in input order with an explicit
// failure manifest; no file is ever dropped silently.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"repoqa/internal/llm"
	"repoqa/internal/snapshot"
	"repoqa/internal/source"
)

const summaryPrompt = `You are a code analyst. Analyze ONE source file and produce a structured summary.

Return STRICT JSON ONLY:
{
  "summary": "concise 2-3 sentence summary of what this file does",
  "key_concepts": ["algorithms, design patterns, data structures, APIs, frameworks"],
  "dependencies": ["imports, external libraries, related files mentioned"],
  "functions_classes": ["main function/class names, up to 10 most important"],
  "purpose": "the specific problem this file solves in the project"
}

Constraints:
- Base everything only on the provided content.
- Keep lists short and concrete.
- No markdown fences, no commentary.`

// DefaultMaxContentBytes is how much of a file is submitted for
// summarization; content beyond it is cut, not summarized in chunks.
const DefaultMaxContentBytes = 100_000

const truncationMarker = "\n... (truncated)"

// Failure records one file that produced no summary.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Summarizer fans summarization calls out over a bounded permit. Wrap the
// client with llm.Retry so transient faults are retried inside the permit
// already held for the file.
type Summarizer struct {
	LLM llm.Client
	// Workers bounds in-flight model calls; the gate is a counting permit,
	// not a queue: waiters acquire free slots in no particular order.
	Workers int
	// MaxContentBytes truncates file content before submission.
	MaxContentBytes int
	Log             *slog.Logger
}

func New(cli llm.Client) *Summarizer {
	return &Summarizer{
		LLM:             cli,
		Workers:         10,
		MaxContentBytes: DefaultMaxContentBytes,
		Log:             slog.Default(),
	}
}

type summaryResponse struct {
	Summary          string   `json:"summary"`
	KeyConcepts      []string `json:"key_concepts"`
	Dependencies     []string `json:"dependencies"`
	FunctionsClasses []string `json:"functions_classes"`
	Purpose          string   `json:"purpose"`
}

// SummarizeAll summarizes every file and returns the successes in input
// order plus a failure record for everything else. It returns only after
// each submitted file has exactly one outcome. A canceled context stops new
// submissions; files never started are reported as failures.
func (s *Summarizer) SummarizeAll(ctx context.Context, files []source.SourceFile) ([]snapshot.FileSummary, []Failure, error) {
	if s.LLM == nil {
		return nil, nil, fmt.Errorf("summarize: llm client is nil")
	}
	workers := s.Workers
	if workers <= 0 {
		workers = 10
	}

	results := make([]*snapshot.FileSummary, len(files))
	progress := ProgressFrom(ctx)

	var (
		mu       sync.Mutex
		failures = make(map[int]Failure)
		wg       sync.WaitGroup
	)
	permits := make(chan struct{}, workers)

submit:
	for i := range files {
		select {
		case permits <- struct{}{}:
		case <-ctx.Done():
			// Stop issuing new work; everything not yet started is a
			// recorded failure, in-flight calls drain below.
			mu.Lock()
			for j := i; j < len(files); j++ {
				failures[j] = Failure{Path: files[j].Path, Reason: ctx.Err().Error()}
			}
			mu.Unlock()
			break submit
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-permits }()

			sum, err := s.summarizeOne(ctx, files[idx])
			progress(files[idx].Path, err)
			if err != nil {
				s.log().Warn("summarization failed", "path", files[idx].Path, "err", err)
				mu.Lock()
				failures[idx] = Failure{Path: files[idx].Path, Reason: err.Error()}
				mu.Unlock()
				return
			}
			results[idx] = &sum
		}(i)
	}
	wg.Wait()

	summaries := make([]snapshot.FileSummary, 0, len(files))
	failed := make([]Failure, 0, len(failures))
	for i := range files {
		if results[i] != nil {
			summaries = append(summaries, *results[i])
			continue
		}
		if f, ok := failures[i]; ok {
			failed = append(failed, f)
			continue
		}
		// A started file must end up in exactly one of the two sets.
		failed = append(failed, Failure{Path: files[i].Path, Reason: "no outcome recorded"})
	}
	return summaries, failed, nil
}

// summarizeOne submits a single file. Transient faults surface as errors
// for the client's retry middleware; a malformed model response is
// permanent and not retried.
func (s *Summarizer) summarizeOne(ctx context.Context, f source.SourceFile) (snapshot.FileSummary, error) {
	maxBytes := s.MaxContentBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxContentBytes
	}
	content := f.Content
	truncated := false
	if len(content) > maxBytes {
		content = content[:maxBytes] + truncationMarker
		truncated = true
	}

	input := map[string]any{
		"path":     f.Path,
		"language": source.Language(f.Path),
		"size":     f.Size,
		"content":  content,
	}
	raw, err := s.LLM.GenerateJSON(ctx, summaryPrompt, input)
	if err != nil {
		return snapshot.FileSummary{}, err
	}

	var resp summaryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return snapshot.FileSummary{}, llm.Permanent(fmt.Errorf("summary JSON invalid: %w\nraw: %s", err, raw))
	}

	return snapshot.FileSummary{
		Path:             f.Path,
		FileType:         source.FileTypeOf(f.Path),
		Language:         source.Language(f.Path),
		Size:             f.Size,
		Summary:          resp.Summary,
		KeyConcepts:      resp.KeyConcepts,
		Dependencies:     resp.Dependencies,
		FunctionsClasses: resp.FunctionsClasses,
		Purpose:          resp.Purpose,
		Truncated:        truncated,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (s *Summarizer) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
