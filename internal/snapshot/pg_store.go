package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore keeps snapshots in Postgres, one JSONB document per row.
// Handles are uuids.
type PGStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPGStore(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PGStore{db: db}, nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS snapshots (
  handle TEXT PRIMARY KEY,
  repo_ref TEXT NOT NULL DEFAULT '',
  total_files INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  doc JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots (created_at DESC);
`)
	})
	return s.schemaErr
}

func (s *PGStore) Save(ctx context.Context, snap *Snapshot) (string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return "", err
	}
	if err := snap.Validate(); err != nil {
		return "", fmt.Errorf("refusing to save invalid snapshot: %w", err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}

	handle := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO snapshots (handle, repo_ref, total_files, created_at, doc)
VALUES ($1, $2, $3, $4, $5)`,
		handle, snap.Metadata.RepoRef, snap.Metadata.TotalFiles, snap.Metadata.CreatedAt, raw)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return handle, nil
}

func (s *PGStore) Load(ctx context.Context, handle string) (*Snapshot, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM snapshots WHERE handle = $1`, strings.TrimSpace(handle),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, &CorruptError{Handle: handle, Err: err}
	}
	if err := snap.Validate(); err != nil {
		return nil, &CorruptError{Handle: handle, Err: err}
	}
	return &snap, nil
}

func (s *PGStore) List(ctx context.Context) ([]HandleInfo, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT handle, repo_ref, total_files, created_at
FROM snapshots ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []HandleInfo
	for rows.Next() {
		var info HandleInfo
		if err := rows.Scan(&info.Handle, &info.RepoRef, &info.TotalFiles, &info.CreatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
