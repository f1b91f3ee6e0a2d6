// Package history records question sessions in a local SQLite database so
// past answers can be browsed across runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Session struct {
	ID        string
	Handle    string
	RepoRef   string
	StartedAt time.Time
}

type Question struct {
	ID            int64
	SessionID     string
	Question      string
	Answer        string
	SelectedPaths []string
	CreatedAt     time.Time
}

type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		handle     TEXT NOT NULL,
		repo_ref   TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id     TEXT NOT NULL REFERENCES sessions(id),
		question       TEXT NOT NULL,
		answer         TEXT NOT NULL,
		selected_paths TEXT NOT NULL DEFAULT '[]',
		created_at     DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_questions_session ON questions(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StartSession opens a new session tied to a snapshot handle.
func (s *Store) StartSession(ctx context.Context, handle, repoRef string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		Handle:    handle,
		RepoRef:   repoRef,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, handle, repo_ref, started_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.Handle, sess.RepoRef, sess.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// AddQuestion appends one answered question to a session.
func (s *Store) AddQuestion(ctx context.Context, sessionID, question, answer string, selectedPaths []string) (*Question, error) {
	if selectedPaths == nil {
		selectedPaths = []string{}
	}
	paths, err := json.Marshal(selectedPaths)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO questions (session_id, question, answer, selected_paths, created_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, question, answer, string(paths), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Question{
		ID: id, SessionID: sessionID, Question: question,
		Answer: answer, SelectedPaths: selectedPaths, CreatedAt: now,
	}, nil
}

// Sessions lists sessions newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, handle, repo_ref, started_at FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Handle, &sess.RepoRef, &sess.StartedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Questions lists a session's questions in ask order.
func (s *Store) Questions(ctx context.Context, sessionID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, question, answer, selected_paths, created_at FROM questions WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQuestions(rows)
}

// Recent lists the latest questions across all sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Question, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, question, answer, selected_paths, created_at FROM questions ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQuestions(rows)
}

func (s *Store) CountQuestions(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM questions WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}

func scanQuestions(rows *sql.Rows) ([]Question, error) {
	var questions []Question
	for rows.Next() {
		var q Question
		var paths string
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Question, &q.Answer, &paths, &q.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(paths), &q.SelectedPaths); err != nil {
			return nil, fmt.Errorf("question %d selected_paths: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
