package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "qa", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStartSessionRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	sess, err := s.StartSession(ctx, "repo_summary_20260314_100000.json", "owner/repo")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := s.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sess.ID, got[0].ID)
	assert.Equal(t, "repo_summary_20260314_100000.json", got[0].Handle)
	assert.Equal(t, "owner/repo", got[0].RepoRef)
	assert.WithinDuration(t, time.Now().UTC(), got[0].StartedAt, time.Minute)
}

func TestSessionsListsAll(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	a, err := s.StartSession(ctx, "h1", "r1")
	require.NoError(t, err)
	b, err := s.StartSession(ctx, "h2", "r2")
	require.NoError(t, err)

	got, err := s.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestQuestionsInAskOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	sess, err := s.StartSession(ctx, "h1", "r1")
	require.NoError(t, err)

	_, err = s.AddQuestion(ctx, sess.ID, "first?", "answer one", []string{"a.py", "b.py"})
	require.NoError(t, err)
	_, err = s.AddQuestion(ctx, sess.ID, "second?", "answer two", nil)
	require.NoError(t, err)

	got, err := s.Questions(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "first?", got[0].Question)
	assert.Equal(t, "answer one", got[0].Answer)
	assert.Equal(t, []string{"a.py", "b.py"}, got[0].SelectedPaths)

	assert.Equal(t, "second?", got[1].Question)
	assert.Empty(t, got[1].SelectedPaths)

	n, err := s.CountQuestions(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecentNewestFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	s1, err := s.StartSession(ctx, "h1", "r1")
	require.NoError(t, err)
	s2, err := s.StartSession(ctx, "h2", "r2")
	require.NoError(t, err)

	_, err = s.AddQuestion(ctx, s1.ID, "q1?", "a1", nil)
	require.NoError(t, err)
	_, err = s.AddQuestion(ctx, s2.ID, "q2?", "a2", nil)
	require.NoError(t, err)
	_, err = s.AddQuestion(ctx, s1.ID, "q3?", "a3", nil)
	require.NoError(t, err)

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q3?", got[0].Question)
	assert.Equal(t, "q2?", got[1].Question)
}

func TestOpenCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "deep", "nested", "history.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
