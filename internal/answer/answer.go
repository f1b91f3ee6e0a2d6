// Package answer turns a question and a ranked set of selected files into
// a grounded answer. The model only ever sees the contents handed to it
// here; nothing else from the repository reaches the prompt.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"repoqa/internal/llm"
)

const answerPrompt = `You are a helpful assistant analyzing a repository. Answer the user's question based ONLY on the provided file contents.

CRITICAL INSTRUCTIONS:
1. Base your answer ONLY on the provided file contents
2. If the information is not in the files, say "I don't have enough information in the provided files to answer this"
3. Quote specific file names when referencing information
4. If you're uncertain, express that uncertainty
5. Do not make assumptions or add information not present in the files`

// InsufficientContext is returned verbatim when nothing was selected.
const InsufficientContext = "I don't have enough information in the provided files to answer this."

const (
	// DefaultMaxFileBytes caps how much of a single file reaches the prompt.
	DefaultMaxFileBytes = 5_000
	// DefaultMaxTotalBytes caps the combined content of all selected files.
	DefaultMaxTotalBytes = 20_000

	truncationMarker = "\n... (truncated)"
)

// SelectedFile is one grounding file, ranked best-first by the caller.
// Summary and Purpose are optional and shown to the model as hints.
type SelectedFile struct {
	Path    string
	Content string
	Summary string
	Purpose string
}

// Answer carries the generated text plus the paths that actually made it
// into the grounding context, in rank order.
type Answer struct {
	Text      string
	UsedPaths []string
}

type Answerer struct {
	LLM llm.Client
	// MaxFileBytes and MaxTotalBytes bound the grounding context. When the
	// combined content would exceed MaxTotalBytes, the lowest-ranked files
	// are truncated first; every selected file keeps at least its header.
	MaxFileBytes  int
	MaxTotalBytes int
	Log           *slog.Logger
}

func New(cli llm.Client) *Answerer {
	return &Answerer{
		LLM:           cli,
		MaxFileBytes:  DefaultMaxFileBytes,
		MaxTotalBytes: DefaultMaxTotalBytes,
		Log:           slog.Default(),
	}
}

// Answer generates a grounded answer. An empty selection short-circuits to
// InsufficientContext without touching the model.
func (a *Answerer) Answer(ctx context.Context, question string, selected []SelectedFile) (Answer, error) {
	if len(selected) == 0 {
		return Answer{Text: InsufficientContext}, nil
	}
	if a.LLM == nil {
		return Answer{}, errors.New("answer: nil llm client")
	}

	contents, truncated := a.fitBudget(selected)

	var b strings.Builder
	used := make([]string, 0, len(selected))
	for i, f := range selected {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== File: %s ===\n", f.Path)
		fmt.Fprintf(&b, "Summary: %s\n", orNA(f.Summary))
		fmt.Fprintf(&b, "Purpose: %s\n", orNA(f.Purpose))
		b.WriteString("\nContent:\n")
		b.WriteString(contents[i])
		if truncated[i] {
			b.WriteString(truncationMarker)
		}
		used = append(used, f.Path)
	}

	prompt := fmt.Sprintf("%s\n\nUser Question: %s\n\nRepository File Contents:\n%s\n\nProvide a detailed, accurate answer based on the file contents above. Reference specific files, keep code snippets short, and explain how the files work together when relevant.",
		answerPrompt, question, b.String())

	text, err := a.LLM.GenerateText(ctx, prompt, nil)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	return Answer{Text: strings.TrimSpace(text), UsedPaths: used}, nil
}

// fitBudget applies the per-file cap, then trims from the lowest-ranked
// file upward until the combined content fits the total budget. A file
// trimmed to nothing still appears in the context with a marker, so a
// selected file is never dropped silently.
func (a *Answerer) fitBudget(selected []SelectedFile) ([]string, []bool) {
	maxFile := a.MaxFileBytes
	if maxFile <= 0 {
		maxFile = DefaultMaxFileBytes
	}
	maxTotal := a.MaxTotalBytes
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotalBytes
	}

	contents := make([]string, len(selected))
	truncated := make([]bool, len(selected))
	total := 0
	for i, f := range selected {
		c := f.Content
		if len(c) > maxFile {
			c = c[:maxFile]
			truncated[i] = true
		}
		contents[i] = c
		total += len(c)
	}

	for i := len(selected) - 1; i >= 0 && total > maxTotal; i-- {
		cut := total - maxTotal
		if cut > len(contents[i]) {
			cut = len(contents[i])
		}
		if cut == 0 {
			continue
		}
		contents[i] = contents[i][:len(contents[i])-cut]
		truncated[i] = true
		total -= cut
	}
	return contents, truncated
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
