package relevance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoqa/internal/snapshot"
)

type fakeClient struct {
	json      string
	err       error
	calls     int
	lastInput map[string]any
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	f.calls++
	if m, ok := input.(map[string]any); ok {
		f.lastInput = m
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.json), nil
}

func (f *fakeClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	return "", errors.New("text generation not expected here")
}

func (f *fakeClient) Close() error { return nil }

func sums(paths ...string) []snapshot.FileSummary {
	out := make([]snapshot.FileSummary, len(paths))
	for i, p := range paths {
		out[i] = snapshot.FileSummary{Path: p, Summary: "about " + p}
	}
	return out
}

func TestSelectUsesModelRanking(t *testing.T) {
	cli := &fakeClient{json: `{"selected_files": [2, 0]}`}
	sel := New(cli)

	got, err := sel.Select(context.Background(), "what does c do?", sums("a.py", "b.py", "c.py", "d.py"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.py", "a.py"}, got)
	assert.Equal(t, 1, cli.calls)
}

func TestSelectBoundsDedupesAndDropsBadIndices(t *testing.T) {
	cli := &fakeClient{json: `{"selected_files": [1, 1, 9, -1, 0, 2, 3]}`}
	sel := New(cli)

	summaries := sums("a.py", "b.py", "c.py", "d.py")
	got, err := sel.Select(context.Background(), "anything", summaries, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py", "a.py", "c.py"}, got)
}

func TestSelectPadsShortModelResult(t *testing.T) {
	cli := &fakeClient{json: `{"selected_files": [2]}`}
	sel := New(cli)

	got, err := sel.Select(context.Background(), "anything", sums("a.py", "b.py", "c.py", "d.py"), 3)
	require.NoError(t, err)
	// model pick first, then earliest unselected summaries
	assert.Equal(t, []string{"c.py", "a.py", "b.py"}, got)
}

func TestSelectPadsEmptyModelResult(t *testing.T) {
	cli := &fakeClient{json: `{"selected_files": []}`}
	sel := New(cli)

	got, err := sel.Select(context.Background(), "anything", sums("a.py", "b.py", "c.py"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, got)
}

func TestSelectCapsAtInputSize(t *testing.T) {
	cli := &fakeClient{json: `{"selected_files": [0, 1, 2]}`}
	sel := New(cli)

	got, err := sel.Select(context.Background(), "anything", sums("a.py", "b.py", "c.py"), 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	require.NotNil(t, cli.lastInput)
	assert.Equal(t, 3, cli.lastInput["top_k"])
}

func TestSelectFallbackRanksKeywordMatches(t *testing.T) {
	cli := &fakeClient{err: errors.New("model unavailable")}
	sel := New(cli)

	summaries := []snapshot.FileSummary{
		{Path: "README.md", Summary: "Project overview", Purpose: "docs"},
		{Path: "auth/login.py", Summary: "Handles user authentication and session tokens", Purpose: "authentication entry point"},
		{Path: "db/models.py", Summary: "Database tables", Purpose: "storage"},
	}

	got, err := sel.Select(context.Background(), "how does authentication work", summaries, 3)
	require.NoError(t, err)
	// the matching file first, ties keep original order
	assert.Equal(t, []string{"auth/login.py", "README.md", "db/models.py"}, got)
}

func TestSelectFallbackOnInvalidJSON(t *testing.T) {
	cli := &fakeClient{json: `{"selected_files": "nope"}`}
	sel := New(cli)

	summaries := sums("a.py", "b.py", "c.py", "d.py")
	got, err := sel.Select(context.Background(), "anything", summaries, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	seen := map[string]bool{}
	valid := map[string]bool{"a.py": true, "b.py": true, "c.py": true, "d.py": true}
	for _, p := range got {
		assert.True(t, valid[p], "path %q not drawn from input", p)
		assert.False(t, seen[p], "path %q selected twice", p)
		seen[p] = true
	}
}

func TestSelectEmptySummaries(t *testing.T) {
	cli := &fakeClient{json: `{"selected_files": [0]}`}
	sel := New(cli)

	got, err := sel.Select(context.Background(), "anything", nil, 3)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, cli.calls)
}

func TestSelectRejectsBadTopK(t *testing.T) {
	sel := New(&fakeClient{json: `{"selected_files": [0]}`})

	_, err := sel.Select(context.Background(), "anything", sums("a.py"), 0)
	require.Error(t, err)
}

func TestSelectPropagatesCancellation(t *testing.T) {
	cli := &fakeClient{json: `{"selected_files": [0]}`}
	sel := New(cli)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sel.Select(ctx, "anything", sums("a.py", "b.py"), 1)
	require.ErrorIs(t, err, context.Canceled)
}
