package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"repoqa/internal/answer"
	"repoqa/internal/config"
	"repoqa/internal/contentcache"
	"repoqa/internal/history"
	"repoqa/internal/llm"
	"repoqa/internal/relevance"
	"repoqa/internal/snapshot"
	"repoqa/internal/source"
	"repoqa/internal/summarize"
	"repoqa/internal/workflow"
)

var (
	flagVerbose   bool
	flagOutputDir string
	flagModel     string
	flagStore     string
)

var rootCmd = &cobra.Command{
	Use:   "repoqa",
	Short: "Ask questions about a code repository, grounded in per-file summaries",
	Long: `repoqa ingests a repository (a GitHub URL, owner/repo shorthand, or a
local directory), summarizes every text file with Gemini, and persists the
result as a snapshot. Questions are then answered from the files most
relevant to each question, with the answer grounded in their contents.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&flagOutputDir, "output-dir", "", "directory for snapshots, contents and results (default ./repo_analysis)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Gemini model (default "+config.DefaultModel+")")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "snapshot backend: file, postgres or s3")
}

// loadConfig resolves environment settings and layers the persistent flags
// on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagOutputDir != "" {
		// The default history path tracks the output dir unless set
		// explicitly.
		if cfg.HistoryPath == filepath.Join(cfg.OutputDir, "history.db") {
			cfg.HistoryPath = filepath.Join(flagOutputDir, "history.db")
		}
		cfg.OutputDir = flagOutputDir
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagStore != "" {
		switch flagStore {
		case "file", "postgres", "s3":
			cfg.Store.Backend = flagStore
		default:
			return nil, fmt.Errorf("unknown --store %q (want file, postgres or s3)", flagStore)
		}
	}
	return cfg, nil
}

// openStore builds the snapshot store for the configured backend. Remote
// backends are fronted by an in-process LRU so repeated loads of the same
// snapshot skip the round trip.
func openStore(cfg *config.Config) (snapshot.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Store.PGDSN == "" {
			return nil, errors.New("REPOQA_PG_DSN is required for the postgres backend")
		}
		st, err := snapshot.NewPGStore(cfg.Store.PGDSN)
		if err != nil {
			return nil, err
		}
		return snapshot.NewCached(st, 8), nil
	case "s3":
		if cfg.Store.S3.Endpoint == "" {
			return nil, errors.New("REPOQA_S3_ENDPOINT is required for the s3 backend")
		}
		st, err := snapshot.NewS3Store(snapshot.S3Config{
			Endpoint:  cfg.Store.S3.Endpoint,
			Region:    cfg.Store.S3.Region,
			AccessKey: cfg.Store.S3.AccessKey,
			SecretKey: cfg.Store.S3.SecretKey,
			Bucket:    cfg.Store.S3.Bucket,
			UseSSL:    cfg.Store.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return snapshot.NewCached(st, 8), nil
	default:
		return snapshot.NewFileStore(filepath.Join(cfg.OutputDir, "snapshots"))
	}
}

// buildClient stacks the middleware the pipeline expects around the raw
// Gemini client: logging outermost, then retry, then the rate limiter so
// every retry attempt pays for its own token.
func buildClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	if err := cfg.RequireModel(); err != nil {
		return nil, err
	}
	base, err := llm.NewGemini(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	return llm.Wrap(base,
		llm.WithLogging(slog.Default()),
		llm.Retry(cfg.Retries, time.Second),
		llm.RateLimit(float64(cfg.RPS), 1),
	), nil
}

// autoSource routes local directory paths to the filesystem source and
// everything else to the GitHub API source.
type autoSource struct {
	local  *source.LocalSource
	github *source.GitHubSource
}

func (s autoSource) Fetch(ctx context.Context, ref string) (*source.RepoContents, error) {
	if info, err := os.Stat(ref); err == nil && info.IsDir() {
		return s.local.Fetch(ctx, ref)
	}
	return s.github.Fetch(ctx, ref)
}

func newSource(cfg *config.Config) source.Source {
	filter := source.DefaultFilter()
	filter.MaxFileSize = cfg.MaxFileBytes
	filter.MaxFiles = cfg.MaxFiles
	filter.IncludeExts = flagIngestExts

	local := source.NewLocalSource()
	local.Filter = filter

	github := source.NewGitHubSource(cfg.GitHubToken)
	github.Filter = filter
	github.Workers = cfg.Workers
	github.Log = slog.With("component", "github")

	return listFilters{inner: autoSource{local: local, github: github}}
}

// app bundles everything a model-backed command needs.
type app struct {
	cfg    *config.Config
	client llm.Client
	store  snapshot.Store
	hist   *history.Store
	pipe   *workflow.Pipeline
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client, err := buildClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	contents, err := contentcache.New(filepath.Join(cfg.OutputDir, "contents"))
	if err != nil {
		return nil, err
	}
	results, err := snapshot.NewResultsLog(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(cfg.HistoryPath)
	if err != nil {
		// Questions still work without the history store.
		slog.Warn("question history disabled", "path", cfg.HistoryPath, "err", err)
		hist = nil
	}

	summarizer := summarize.New(client)
	summarizer.Workers = cfg.Workers
	summarizer.Log = slog.With("component", "summarize")

	selector := relevance.New(client)
	selector.Log = slog.With("component", "relevance")

	answerer := answer.New(client)
	answerer.Log = slog.With("component", "answer")

	pipe, err := workflow.New(workflow.Config{
		Source:     newSource(cfg),
		Summarizer: summarizer,
		Selector:   selector,
		Answerer:   answerer,
		Store:      store,
		Contents:   contents,
		Results:    results,
		History:    hist,
		Log:        slog.With("component", "workflow"),
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, client: client, store: store, hist: hist, pipe: pipe}, nil
}

func (a *app) Close() {
	if a.hist != nil {
		_ = a.hist.Close()
	}
	_ = a.store.Close()
	_ = a.client.Close()
}

// loadForQuery points the pipeline at a snapshot: the named handle, or the
// most recent one when handle is empty.
func loadForQuery(ctx context.Context, a *app, handle string) error {
	if handle != "" {
		_, err := a.pipe.Load(ctx, handle)
		return err
	}
	_, err := a.pipe.LoadLatest(ctx)
	if errors.Is(err, snapshot.ErrNotFound) {
		return fmt.Errorf("no snapshot available: run 'repoqa ingest <repo>' first (%w)", err)
	}
	return err
}

// resolveSnapshot loads a snapshot directly from the store for read-only
// commands that never touch the model.
func resolveSnapshot(ctx context.Context, st snapshot.Store, handle string) (*snapshot.Snapshot, string, error) {
	if handle == "" {
		latest, err := snapshot.Latest(ctx, st)
		if err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				return nil, "", fmt.Errorf("no snapshot available: run 'repoqa ingest <repo>' first (%w)", err)
			}
			return nil, "", err
		}
		handle = latest
	}
	snap, err := st.Load(ctx, handle)
	if err != nil {
		return nil, "", err
	}
	return snap, handle, nil
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// renderMarkdown pretty-prints model output for the terminal; on any
// renderer trouble the raw text is shown instead.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
