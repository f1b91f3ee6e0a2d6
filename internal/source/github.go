package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const githubAPI = "https://api.github.com"

// GitHubSource fetches a repository's text files through the GitHub REST
// API: default branch lookup, recursive tree listing, then bounded-parallel
// blob downloads.
type GitHubSource struct {
	Token   string
	BaseURL string
	Client  *http.Client
	Log     *slog.Logger
	Filter  *Filter
	// Workers bounds concurrent blob downloads.
	Workers int
}

func NewGitHubSource(token string) *GitHubSource {
	return &GitHubSource{
		Token:   token,
		BaseURL: githubAPI,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Log:     slog.Default(),
		Filter:  DefaultFilter(),
		Workers: 10,
	}
}

// ParseRepoRef extracts owner, repo and an optional branch from a GitHub
// URL or an "owner/repo" shorthand.
func ParseRepoRef(ref string) (owner, repo, branch string, err error) {
	s := strings.TrimSpace(ref)
	s = strings.TrimSuffix(s, "/")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	s = strings.TrimSuffix(s, ".git")

	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("not a repository reference: %q", ref)
	}
	owner, repo = parts[0], parts[1]
	if len(parts) > 3 && parts[2] == "tree" {
		branch = strings.Join(parts[3:], "/")
	}
	return owner, repo, branch, nil
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

func (g *GitHubSource) Fetch(ctx context.Context, ref string) (*RepoContents, error) {
	owner, repo, branch, err := ParseRepoRef(ref)
	if err != nil {
		return nil, err
	}

	if branch == "" {
		branch, err = g.defaultBranch(ctx, owner, repo)
		if err != nil {
			return nil, err
		}
	}

	var tree struct {
		Tree      []treeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.base(), owner, repo, branch)
	if err := g.getJSON(ctx, url, &tree); err != nil {
		return nil, fmt.Errorf("fetch tree for %s/%s@%s: %w", owner, repo, branch, err)
	}
	if tree.Truncated {
		g.log().Warn("repository tree truncated by API", "owner", owner, "repo", repo)
	}

	filter := g.Filter
	if filter == nil {
		filter = DefaultFilter()
	}
	entries := make([]treeEntry, 0, len(tree.Tree))
	for _, e := range tree.Tree {
		if e.Type != "blob" || !filter.Include(e.Path, e.Size) {
			continue
		}
		entries = append(entries, e)
		if filter.MaxFiles > 0 && len(entries) >= filter.MaxFiles {
			break
		}
	}

	files, err := g.download(ctx, owner, repo, branch, entries)
	if err != nil {
		return nil, err
	}

	return &RepoContents{
		RepoRef:   ref,
		Name:      owner + "/" + repo,
		Files:     files,
		Truncated: tree.Truncated,
	}, nil
}

func (g *GitHubSource) defaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var info struct {
		DefaultBranch string `json:"default_branch"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s", g.base(), owner, repo)
	if err := g.getJSON(ctx, url, &info); err != nil {
		return "", fmt.Errorf("lookup %s/%s: %w", owner, repo, err)
	}
	if info.DefaultBranch == "" {
		return "main", nil
	}
	return info.DefaultBranch, nil
}

// download fetches blob contents with a bounded number of in-flight
// requests, keeping results in tree order. A file whose download fails is
// skipped with a warning; ingest treats the tree listing as advisory.
func (g *GitHubSource) download(ctx context.Context, owner, repo, branch string, entries []treeEntry) ([]SourceFile, error) {
	workers := g.Workers
	if workers <= 0 {
		workers = 10
	}

	results := make([]*SourceFile, len(entries))
	permits := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, entry := range entries {
		select {
		case permits <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(idx int, e treeEntry) {
			defer wg.Done()
			defer func() { <-permits }()

			content, err := g.blob(ctx, owner, repo, branch, e.Path)
			if err != nil {
				g.log().Warn("skipping file", "path", e.Path, "err", err)
				return
			}
			results[idx] = &SourceFile{
				Path:     e.Path,
				Content:  content,
				Size:     e.Size,
				FileType: FileTypeOf(e.Path),
			}
		}(i, entry)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := make([]SourceFile, 0, len(entries))
	for _, r := range results {
		if r != nil {
			files = append(files, *r)
		}
	}
	return files, nil
}

func (g *GitHubSource) blob(ctx context.Context, owner, repo, branch, path string) (string, error) {
	var body struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", g.base(), owner, repo, path, branch)
	if err := g.getJSON(ctx, url, &body); err != nil {
		return "", err
	}
	if body.Encoding != "base64" {
		return body.Content, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return strings.ToValidUTF8(string(raw), ""), nil
}

// getJSON performs one API GET with retries. Rate limiting (403/429) and
// server faults are retried with exponential backoff; 404 maps to
// ErrNotFound and fails fast.
func (g *GitHubSource) getJSON(ctx context.Context, url string, out any) error {
	const attempts = 3

	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second * time.Duration(1<<(i-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if g.Token != "" {
			req.Header.Set("Authorization", "Bearer "+g.Token)
		}

		resp, err := g.httpClient().Do(req)
		if err != nil {
			last = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode %s: %w", url, err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			last = fmt.Errorf("rate limited (%d)", resp.StatusCode)
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			last = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue
		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("github api %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
	}
	return last
}

func (g *GitHubSource) base() string {
	if g.BaseURL != "" {
		return strings.TrimSuffix(g.BaseURL, "/")
	}
	return githubAPI
}

func (g *GitHubSource) httpClient() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *GitHubSource) log() *slog.Logger {
	if g.Log != nil {
		return g.Log
	}
	return slog.Default()
}
