// Package relevance picks the files most likely to answer a question,
// scoring every stored summary in one batched model call with a
// deterministic keyword fallback when scoring is unavailable.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"repoqa/internal/llm"
	"repoqa/internal/snapshot"
)

const selectPrompt = `You are a file selector for repository question answering. Given a question and an indexed list of file summaries, choose the files most likely to help answer it.

Return STRICT JSON ONLY:
{"selected_files": [0, 3, 7]}

Constraints:
- Indices are 0-based positions into the provided files list.
- Order best-first; return at most top_k indices.
- Prefer implementation files for how-questions, configuration for setup questions, documentation for usage questions, tests for example questions.`

// Selector ranks summaries against a question. The model sees summary
// metadata only, never file contents.
type Selector struct {
	LLM llm.Client
	Log *slog.Logger
}

func New(cli llm.Client) *Selector {
	return &Selector{LLM: cli, Log: slog.Default()}
}

type indexEntry struct {
	Index            int      `json:"index"`
	Path             string   `json:"path"`
	Language         string   `json:"language"`
	Summary          string   `json:"summary"`
	Purpose          string   `json:"purpose"`
	KeyConcepts      []string `json:"key_concepts,omitempty"`
	FunctionsClasses []string `json:"functions_classes,omitempty"`
}

type selectResponse struct {
	SelectedFiles []int `json:"selected_files"`
}

// Select returns min(topK, len(summaries)) paths ranked best-first, all
// drawn from summaries with no duplicates. Scoring faults never empty the
// result: after the client's retry budget is spent, a keyword heuristic
// ranks the summaries instead.
func (s *Selector) Select(ctx context.Context, question string, summaries []snapshot.FileSummary, topK int) ([]string, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	want := topK
	if want > len(summaries) {
		want = len(summaries)
	}

	ranked, err := s.score(ctx, question, summaries, want)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log().Warn("relevance scoring unavailable, using keyword fallback", "err", err)
		ranked = keywordRank(question, summaries)
	}

	return pad(ranked, summaries, want), nil
}

func (s *Selector) score(ctx context.Context, question string, summaries []snapshot.FileSummary, want int) ([]string, error) {
	index := make([]indexEntry, len(summaries))
	for i, sum := range summaries {
		index[i] = indexEntry{
			Index:            i,
			Path:             sum.Path,
			Language:         sum.Language,
			Summary:          sum.Summary,
			Purpose:          sum.Purpose,
			KeyConcepts:      head(sum.KeyConcepts, 5),
			FunctionsClasses: head(sum.FunctionsClasses, 5),
		}
	}

	input := map[string]any{
		"question": question,
		"top_k":    want,
		"files":    index,
	}
	raw, err := s.LLM.GenerateJSON(ctx, selectPrompt, input)
	if err != nil {
		return nil, err
	}

	var resp selectResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("selection JSON invalid: %w\nraw: %s", err, raw)
	}

	seen := make(map[int]struct{}, len(resp.SelectedFiles))
	paths := make([]string, 0, len(resp.SelectedFiles))
	for _, idx := range resp.SelectedFiles {
		if idx < 0 || idx >= len(summaries) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		paths = append(paths, summaries[idx].Path)
	}
	return paths, nil
}

// keywordRank orders every summary by how many question words appear in
// its path, summary, purpose or key concepts. The sort is stable, so equal
// scores keep original summary order.
func keywordRank(question string, summaries []snapshot.FileSummary) []string {
	keywords := strings.Fields(strings.ToLower(question))

	type scored struct {
		path  string
		score int
	}
	list := make([]scored, len(summaries))
	for i, sum := range summaries {
		text := strings.ToLower(sum.Path + " " + sum.Summary + " " + sum.Purpose + " " + strings.Join(sum.KeyConcepts, " "))
		n := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				n++
			}
		}
		list[i] = scored{path: sum.Path, score: n}
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })

	out := make([]string, len(list))
	for i, sc := range list {
		out[i] = sc.path
	}
	return out
}

// pad tops ranked up to want entries with the earliest unselected
// summaries, then trims. The result is always exactly want paths.
func pad(ranked []string, summaries []snapshot.FileSummary, want int) []string {
	selected := make(map[string]struct{}, len(ranked))
	out := make([]string, 0, want)
	for _, p := range ranked {
		if _, dup := selected[p]; dup {
			continue
		}
		selected[p] = struct{}{}
		out = append(out, p)
		if len(out) == want {
			return out
		}
	}
	for _, sum := range summaries {
		if _, dup := selected[sum.Path]; dup {
			continue
		}
		selected[sum.Path] = struct{}{}
		out = append(out, sum.Path)
		if len(out) == want {
			break
		}
	}
	return out
}

func head(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}

func (s *Selector) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
