package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ResultsLog is an append-only JSONL log of QuestionResults. Appending never
// rewrites prior entries; each line is one marshaled result.
type ResultsLog struct {
	path string
}

func NewResultsLog(dir string) (*ResultsLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &ResultsLog{path: filepath.Join(dir, "qa_results.jsonl")}, nil
}

func (l *ResultsLog) Path() string { return l.path }

func (l *ResultsLog) Append(r QuestionResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(raw, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadAll returns every logged result in append order. A missing log file
// is an empty history, not an error.
func (l *ResultsLog) ReadAll() ([]QuestionResult, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []QuestionResult
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r QuestionResult
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("results log line %d: %w", len(out)+1, err)
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
