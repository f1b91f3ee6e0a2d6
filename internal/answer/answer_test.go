package answer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	calls  int
	prompt string
	text   string
	err    error
}

func (r *recordingClient) Name() string { return "recording" }

func (r *recordingClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	return nil, errors.New("json generation not expected here")
}

func (r *recordingClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	r.calls++
	r.prompt = prompt
	if r.err != nil {
		return "", r.err
	}
	return r.text, nil
}

func (r *recordingClient) Close() error { return nil }

func TestAnswerEmptySelectionSkipsModel(t *testing.T) {
	cli := &recordingClient{text: "should never be seen"}
	a := New(cli)

	got, err := a.Answer(context.Background(), "how does auth work?", nil)
	require.NoError(t, err)
	assert.Equal(t, InsufficientContext, got.Text)
	assert.Empty(t, got.UsedPaths)
	assert.Zero(t, cli.calls)
}

func TestAnswerEmptySelectionNeedsNoClient(t *testing.T) {
	got, err := New(nil).Answer(context.Background(), "anything", []SelectedFile{})
	require.NoError(t, err)
	assert.Equal(t, InsufficientContext, got.Text)
}

func TestAnswerBuildsGroundedPrompt(t *testing.T) {
	cli := &recordingClient{text: "  grounded answer \n"}
	a := New(cli)

	selected := []SelectedFile{
		{Path: "auth/login.py", Content: "def login(): pass", Summary: "login flow", Purpose: "authentication"},
		{Path: "README.md", Content: "# project"},
	}
	got, err := a.Answer(context.Background(), "how does login work?", selected)
	require.NoError(t, err)

	assert.Equal(t, "grounded answer", got.Text)
	assert.Equal(t, []string{"auth/login.py", "README.md"}, got.UsedPaths)
	assert.Equal(t, 1, cli.calls)

	assert.Contains(t, cli.prompt, "User Question: how does login work?")
	assert.Contains(t, cli.prompt, "=== File: auth/login.py ===")
	assert.Contains(t, cli.prompt, "=== File: README.md ===")
	assert.Contains(t, cli.prompt, "Summary: login flow")
	assert.Contains(t, cli.prompt, "Purpose: N/A")
	assert.Contains(t, cli.prompt, "def login(): pass")
	assert.Less(t, strings.Index(cli.prompt, "User Question:"), strings.Index(cli.prompt, "=== File:"))
}

func TestAnswerCapsPerFile(t *testing.T) {
	cli := &recordingClient{text: "ok"}
	a := New(cli)
	a.MaxFileBytes = 10
	a.MaxTotalBytes = 1_000

	selected := []SelectedFile{{Path: "big.py", Content: strings.Repeat("x", 30)}}
	_, err := a.Answer(context.Background(), "anything", selected)
	require.NoError(t, err)

	assert.Contains(t, cli.prompt, strings.Repeat("x", 10)+"\n... (truncated)")
	assert.NotContains(t, cli.prompt, strings.Repeat("x", 11))
}

func TestAnswerTrimsLowestRankedFirst(t *testing.T) {
	cli := &recordingClient{text: "ok"}
	a := New(cli)
	a.MaxFileBytes = 100
	a.MaxTotalBytes = 150

	selected := []SelectedFile{
		{Path: "a.py", Content: strings.Repeat("a", 100)},
		{Path: "b.py", Content: strings.Repeat("b", 100)},
		{Path: "c.py", Content: strings.Repeat("c", 100)},
	}
	got, err := a.Answer(context.Background(), "anything", selected)
	require.NoError(t, err)

	// top ranked file untouched
	assert.Contains(t, cli.prompt, strings.Repeat("a", 100))
	// middle file trimmed to fit
	assert.Contains(t, cli.prompt, strings.Repeat("b", 50)+"\n... (truncated)")
	assert.NotContains(t, cli.prompt, strings.Repeat("b", 51))
	// lowest ranked file emptied but still present
	assert.Contains(t, cli.prompt, "=== File: c.py ===")
	assert.NotContains(t, cli.prompt, strings.Repeat("c", 3))
	assert.Equal(t, 2, strings.Count(cli.prompt, "... (truncated)"))

	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, got.UsedPaths)
}

func TestAnswerPropagatesModelError(t *testing.T) {
	boom := errors.New("model down")
	cli := &recordingClient{err: boom}
	a := New(cli)

	_, err := a.Answer(context.Background(), "anything", []SelectedFile{{Path: "a.py", Content: "x"}})
	require.ErrorIs(t, err, boom)
}
