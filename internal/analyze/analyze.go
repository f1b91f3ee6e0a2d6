// Package analyze computes statistics over a summary snapshot and renders
// them as plain text, markdown and CSV.
package analyze

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"repoqa/internal/snapshot"
)

// Count is a named tally. Lists of counts are ordered highest first with
// name as the tie break, so reports are deterministic.
type Count struct {
	Name string
	N    int
}

type Analyzer struct {
	snap *snapshot.Snapshot
}

func New(snap *snapshot.Snapshot) *Analyzer {
	return &Analyzer{snap: snap}
}

func (a *Analyzer) LanguageDistribution() []Count {
	tally := map[string]int{}
	for _, s := range a.snap.Summaries {
		if s.Language != "" {
			tally[s.Language]++
		}
	}
	return sortedCounts(tally, 0)
}

func (a *Analyzer) TopDependencies(n int) []Count {
	tally := map[string]int{}
	for _, s := range a.snap.Summaries {
		for _, d := range s.Dependencies {
			tally[d]++
		}
	}
	return sortedCounts(tally, n)
}

func (a *Analyzer) TopConcepts(n int) []Count {
	tally := map[string]int{}
	for _, s := range a.snap.Summaries {
		for _, c := range s.KeyConcepts {
			tally[c]++
		}
	}
	return sortedCounts(tally, n)
}

// Search returns summaries whose path, summary or purpose contains the
// keyword, case-insensitive, in snapshot order.
func (a *Analyzer) Search(keyword string) []snapshot.FileSummary {
	kw := strings.ToLower(keyword)
	var out []snapshot.FileSummary
	for _, s := range a.snap.Summaries {
		text := strings.ToLower(s.Path + " " + s.Summary + " " + s.Purpose)
		if strings.Contains(text, kw) {
			out = append(out, s)
		}
	}
	return out
}

// FilesByLanguage returns summaries whose detected language matches,
// case-insensitive, in snapshot order.
func (a *Analyzer) FilesByLanguage(language string) []snapshot.FileSummary {
	lang := strings.ToLower(language)
	var out []snapshot.FileSummary
	for _, s := range a.snap.Summaries {
		if strings.ToLower(s.Language) == lang {
			out = append(out, s)
		}
	}
	return out
}

func (a *Analyzer) LargestFiles(n int) []snapshot.FileSummary {
	files := append([]snapshot.FileSummary(nil), a.snap.Summaries...)
	sort.SliceStable(files, func(i, j int) bool { return files[i].Size > files[j].Size })
	if n > 0 && len(files) > n {
		files = files[:n]
	}
	return files
}

func (a *Analyzer) FilesBySize(min, max int64) []snapshot.FileSummary {
	var out []snapshot.FileSummary
	for _, s := range a.snap.Summaries {
		if s.Size >= min && (max <= 0 || s.Size <= max) {
			out = append(out, s)
		}
	}
	return out
}

const bar = "================================================================================"

// Report renders the full text report.
func (a *Analyzer) Report() string {
	md := a.snap.Metadata
	var b strings.Builder

	fmt.Fprintf(&b, "%s\nRepository Analysis Report\n%s\n", bar, bar)
	fmt.Fprintf(&b, "\nRepository: %s\n", md.RepoRef)
	fmt.Fprintf(&b, "Analysis Date: %s\n", md.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Total Files: %d\n", md.TotalFiles)
	fmt.Fprintf(&b, "Total Size: %.2f KB\n", float64(md.TotalSizeBytes)/1024)
	fmt.Fprintf(&b, "Processing Time: %.2fs\n", md.ProcessingSeconds)

	fmt.Fprintf(&b, "\n%s\nLanguage Distribution\n%s\n", bar, bar)
	total := len(a.snap.Summaries)
	for _, c := range a.LanguageDistribution() {
		pct := 0.0
		if total > 0 {
			pct = float64(c.N) / float64(total) * 100
		}
		fmt.Fprintf(&b, "%-20s: %4d files (%5.1f%%)\n", c.Name, c.N, pct)
	}

	fmt.Fprintf(&b, "\n%s\nTop 10 Dependencies\n%s\n", bar, bar)
	for _, c := range a.TopDependencies(10) {
		fmt.Fprintf(&b, "%-30s: %3d occurrences\n", c.Name, c.N)
	}

	fmt.Fprintf(&b, "\n%s\nTop 20 Key Concepts\n%s\n", bar, bar)
	for _, c := range a.TopConcepts(20) {
		fmt.Fprintf(&b, "%-30s: %3d files\n", c.Name, c.N)
	}

	fmt.Fprintf(&b, "\n%s\n10 Largest Files\n%s\n", bar, bar)
	for _, f := range a.LargestFiles(10) {
		fmt.Fprintf(&b, "%-50s: %8.2f KB\n", f.Path, float64(f.Size)/1024)
	}

	fmt.Fprintf(&b, "\n%s\nFile Type Distribution\n%s\n", bar, bar)
	for _, c := range sortedCounts(md.FileTypeCounts, 0) {
		fmt.Fprintf(&b, "%-20s: %4d files\n", c.Name, c.N)
	}

	return b.String()
}

// markdownFileCap bounds the per-file section of the markdown export so
// huge repositories stay readable.
const markdownFileCap = 50

// Markdown renders the snapshot as a markdown document.
func (a *Analyzer) Markdown() string {
	md := a.snap.Metadata
	var b strings.Builder

	fmt.Fprintf(&b, "# Repository Analysis: %s\n\n", md.RepoRef)
	fmt.Fprintf(&b, "**Analysis Date**: %s\n\n", md.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "**Total Files**: %d\n", md.TotalFiles)

	b.WriteString("\n## Language Distribution\n\n")
	for _, c := range a.LanguageDistribution() {
		fmt.Fprintf(&b, "- **%s**: %d files\n", c.Name, c.N)
	}

	b.WriteString("\n## Top Dependencies\n\n")
	for _, c := range a.TopDependencies(15) {
		fmt.Fprintf(&b, "- `%s`: %d occurrences\n", c.Name, c.N)
	}

	b.WriteString("\n## File Summaries\n")
	files := a.snap.Summaries
	if len(files) > markdownFileCap {
		files = files[:markdownFileCap]
	}
	for _, s := range files {
		fmt.Fprintf(&b, "\n### %s\n\n", s.Path)
		fmt.Fprintf(&b, "**Language**: %s\n\n", s.Language)
		fmt.Fprintf(&b, "**Purpose**: %s\n\n", s.Purpose)
		fmt.Fprintf(&b, "**Summary**: %s\n", s.Summary)
		if len(s.KeyConcepts) > 0 {
			concepts := s.KeyConcepts
			if len(concepts) > 5 {
				concepts = concepts[:5]
			}
			fmt.Fprintf(&b, "\n**Key Concepts**: %s\n", strings.Join(concepts, ", "))
		}
	}
	if len(a.snap.Summaries) > markdownFileCap {
		fmt.Fprintf(&b, "\n_%d more files omitted._\n", len(a.snap.Summaries)-markdownFileCap)
	}

	return b.String()
}

// WriteCSV writes one row per summary with the snapshot's wire names as
// the header.
func WriteCSV(w io.Writer, snap *snapshot.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"path", "language", "size", "summary", "purpose", "key_concepts"}); err != nil {
		return err
	}
	for _, s := range snap.Summaries {
		concepts := s.KeyConcepts
		if len(concepts) > 3 {
			concepts = concepts[:3]
		}
		row := []string{
			s.Path,
			s.Language,
			strconv.FormatInt(s.Size, 10),
			s.Summary,
			s.Purpose,
			strings.Join(concepts, ", "),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func sortedCounts(tally map[string]int, n int) []Count {
	out := make([]Count, 0, len(tally))
	for name, c := range tally {
		out = append(out, Count{Name: name, N: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
