// Package workflow composes the two pipeline operations: ingest turns a
// repository reference into a persisted snapshot plus content archive, and
// ask answers one question against the loaded snapshot. A small state
// machine serializes the phases so a single pipeline never runs two
// operations at once.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"repoqa/internal/answer"
	"repoqa/internal/contentcache"
	"repoqa/internal/history"
	"repoqa/internal/snapshot"
	"repoqa/internal/source"
	"repoqa/internal/summarize"
)

// DefaultTopK is how many files a question grounds on when the caller
// does not say otherwise.
const DefaultTopK = 10

type State int

const (
	StateIdle State = iota
	StateIngesting
	StateReady
	StateQuerying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIngesting:
		return "ingesting"
	case StateReady:
		return "ready"
	case StateQuerying:
		return "querying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrBusy means another ingest or question is in progress.
	ErrBusy = errors.New("pipeline is busy")
	// ErrNotReady means no snapshot has been ingested or loaded yet.
	ErrNotReady = errors.New("no snapshot loaded")
)

// Summarizer, Selector and Answerer are the model-backed stages. The
// concrete implementations live in their own packages; the pipeline only
// needs these calls.
type Summarizer interface {
	SummarizeAll(ctx context.Context, files []source.SourceFile) ([]snapshot.FileSummary, []summarize.Failure, error)
}

type Selector interface {
	Select(ctx context.Context, question string, summaries []snapshot.FileSummary, topK int) ([]string, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, selected []answer.SelectedFile) (answer.Answer, error)
}

// ContentArchive persists raw file contents per snapshot so questions can
// be grounded after a restart.
type ContentArchive interface {
	WriteAll(ctx context.Context, handle string, files []source.SourceFile) error
	Read(ctx context.Context, handle, path string) (string, error)
	Has(handle string) bool
}

var _ ContentArchive = (*contentcache.Cache)(nil)

// Config carries the pipeline dependencies. Source, Summarizer, Selector,
// Answerer, Store and Contents are required; Results and History are
// optional sinks.
type Config struct {
	Source     source.Source
	Summarizer Summarizer
	Selector   Selector
	Answerer   Answerer
	Store      snapshot.Store
	Contents   ContentArchive
	Results    *snapshot.ResultsLog
	History    *history.Store
	Log        *slog.Logger
}

type Pipeline struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	state   State
	handle  string
	snap    *snapshot.Snapshot
	session *history.Session
}

func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("workflow: source is required")
	case cfg.Summarizer == nil:
		return nil, errors.New("workflow: summarizer is required")
	case cfg.Selector == nil:
		return nil, errors.New("workflow: selector is required")
	case cfg.Answerer == nil:
		return nil, errors.New("workflow: answerer is required")
	case cfg.Store == nil:
		return nil, errors.New("workflow: store is required")
	case cfg.Contents == nil:
		return nil, errors.New("workflow: content archive is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{cfg: cfg, log: log, state: StateIdle}, nil
}

// State returns the current phase.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns the loaded snapshot and its handle, if any. The
// snapshot is shared; callers must not mutate it.
func (p *Pipeline) Current() (string, *snapshot.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle, p.snap, p.snap != nil
}

// IngestResult reports one completed ingest. Failures lists every file
// that produced no summary, alongside the reason.
type IngestResult struct {
	Handle   string
	Snapshot *snapshot.Snapshot
	Failures []summarize.Failure
	Elapsed  time.Duration
}

// Ingest fetches repoRef, summarizes its files, archives their contents
// and persists the snapshot. On any error, including cancellation, no
// partial snapshot survives and the pipeline returns to its prior state.
func (p *Pipeline) Ingest(ctx context.Context, repoRef string) (*IngestResult, error) {
	prior, err := p.begin(StateIngesting, StateIdle, StateReady)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	contents, err := p.cfg.Source.Fetch(ctx, repoRef)
	if err != nil {
		p.setState(prior)
		return nil, fmt.Errorf("fetch %s: %w", repoRef, err)
	}
	p.log.Info("repository fetched", "repo", contents.RepoRef, "files", len(contents.Files))

	summaries, failures, err := p.cfg.Summarizer.SummarizeAll(ctx, contents.Files)
	if err != nil {
		p.setState(prior)
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Cancelled mid-batch: partials are discarded, nothing persisted.
		p.log.Warn("ingest canceled, discarding partial results",
			"summaries", len(summaries), "failures", len(failures))
		p.setState(prior)
		return nil, ctxErr
	}

	snap := &snapshot.Snapshot{
		Metadata:  snapshot.NewMetadata(contents.RepoRef, summaries, time.Since(start)),
		Summaries: summaries,
	}
	handle, err := p.cfg.Store.Save(ctx, snap)
	if err != nil {
		p.setState(prior)
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if err := p.cfg.Contents.WriteAll(ctx, handle, contents.Files); err != nil {
		// The snapshot is already durable. Without the archive, answers
		// ground on summaries only, so keep going.
		p.log.Warn("content archive write failed, answers will ground on summaries only",
			"handle", handle, "err", err)
	}

	p.finishLoad(handle, snap)
	p.startSession(ctx, handle, snap.Metadata.RepoRef)

	p.log.Info("ingest complete", "handle", handle,
		"summaries", len(summaries), "failures", len(failures),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &IngestResult{
		Handle:   handle,
		Snapshot: snap,
		Failures: failures,
		Elapsed:  time.Since(start),
	}, nil
}

// Load makes an existing snapshot the current one without re-ingesting.
// It blocks other operations for its duration.
func (p *Pipeline) Load(ctx context.Context, handle string) (*snapshot.Snapshot, error) {
	p.mu.Lock()
	if p.state == StateIngesting || p.state == StateQuerying {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	snap, err := p.cfg.Store.Load(ctx, handle)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.handle = handle
	p.snap = snap
	p.state = StateReady
	p.session = nil
	p.mu.Unlock()

	if !p.cfg.Contents.Has(handle) {
		p.log.Warn("no content archive for snapshot, answers will ground on summaries only",
			"handle", handle)
	}
	p.startSession(ctx, handle, snap.Metadata.RepoRef)
	return snap, nil
}

// LoadLatest loads the most recent snapshot in the store.
func (p *Pipeline) LoadLatest(ctx context.Context) (*snapshot.Snapshot, error) {
	handle, err := snapshot.Latest(ctx, p.cfg.Store)
	if err != nil {
		return nil, err
	}
	return p.Load(ctx, handle)
}

// Ask answers one question against the current snapshot. topK <= 0 means
// DefaultTopK. The snapshot is never mutated; the result is appended to
// the results log and session history when those are configured.
func (p *Pipeline) Ask(ctx context.Context, question string, topK int) (*snapshot.QuestionResult, error) {
	if _, err := p.begin(StateQuerying, StateReady); err != nil {
		return nil, err
	}
	defer p.setState(StateReady)

	p.mu.Lock()
	handle, snap := p.handle, p.snap
	p.mu.Unlock()

	if topK <= 0 {
		topK = DefaultTopK
	}

	paths, err := p.cfg.Selector.Select(ctx, question, snap.Summaries, topK)
	if err != nil {
		return nil, fmt.Errorf("select files: %w", err)
	}
	p.log.Info("files selected", "question", question, "count", len(paths))

	selected := make([]answer.SelectedFile, 0, len(paths))
	missing := 0
	for _, path := range paths {
		sf := answer.SelectedFile{Path: path}
		if sum, ok := snap.Find(path); ok {
			sf.Summary = sum.Summary
			sf.Purpose = sum.Purpose
		}
		content, err := p.cfg.Contents.Read(ctx, handle, path)
		if err != nil {
			missing++
		} else {
			sf.Content = content
		}
		selected = append(selected, sf)
	}
	if missing > 0 {
		p.log.Warn("selected files missing from content archive, grounding on summaries",
			"missing", missing, "selected", len(paths))
	}

	ans, err := p.cfg.Answerer.Answer(ctx, question, selected)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	result := &snapshot.QuestionResult{
		Question:      question,
		SelectedPaths: ans.UsedPaths,
		Answer:        ans.Text,
		CreatedAt:     time.Now().UTC(),
	}
	if p.cfg.Results != nil {
		if err := p.cfg.Results.Append(*result); err != nil {
			p.log.Warn("results log append failed", "err", err)
		}
	}
	p.recordQuestion(ctx, result)
	return result, nil
}

func (p *Pipeline) begin(to State, allowed ...State) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range allowed {
		if p.state == s {
			prior := p.state
			p.state = to
			return prior, nil
		}
	}
	if p.state == StateIdle {
		return 0, ErrNotReady
	}
	return 0, ErrBusy
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) finishLoad(handle string, snap *snapshot.Snapshot) {
	p.mu.Lock()
	p.handle = handle
	p.snap = snap
	p.state = StateReady
	p.session = nil
	p.mu.Unlock()
}

func (p *Pipeline) startSession(ctx context.Context, handle, repoRef string) {
	if p.cfg.History == nil {
		return
	}
	sess, err := p.cfg.History.StartSession(ctx, handle, repoRef)
	if err != nil {
		p.log.Warn("history session not started", "err", err)
		return
	}
	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()
}

func (p *Pipeline) recordQuestion(ctx context.Context, r *snapshot.QuestionResult) {
	if p.cfg.History == nil {
		return
	}
	p.mu.Lock()
	sess := p.session
	p.mu.Unlock()
	if sess == nil {
		return
	}
	if _, err := p.cfg.History.AddQuestion(ctx, sess.ID, r.Question, r.Answer, r.SelectedPaths); err != nil {
		p.log.Warn("history append failed", "err", err)
	}
}
