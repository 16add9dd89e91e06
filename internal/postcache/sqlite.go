// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package postcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/slopped-in/pkg/types"
)

// SQLiteStore persists posts in a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the post cache at path, creating parent
// directories and the schema as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating post cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS posts (
		link TEXT PRIMARY KEY,
		style_level INTEGER NOT NULL,
		model TEXT,
		post TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, link string) (types.PostEntry, bool, error) {
	var (
		e       types.PostEntry
		model   sql.NullString
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT link, style_level, model, post, updated_at FROM posts WHERE link = ?`,
		strings.TrimSpace(link),
	).Scan(&e.Link, &e.StyleLevel, &model, &e.Post, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PostEntry{}, false, nil
	}
	if err != nil {
		return types.PostEntry{}, false, fmt.Errorf("reading cached post: %w", err)
	}

	e.Model = model.String
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return types.PostEntry{}, false, fmt.Errorf("parsing updated_at %q: %w", updated, err)
	}
	return e, true, nil
}

// Put upserts entry. A zero UpdatedAt is stamped with the current time.
func (s *SQLiteStore) Put(ctx context.Context, entry types.PostEntry) error {
	entry.Link = strings.TrimSpace(entry.Link)
	if entry.Link == "" {
		return ErrEmptyLink
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (link, style_level, model, post, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(link) DO UPDATE SET
			style_level = excluded.style_level,
			model = excluded.model,
			post = excluded.post,
			updated_at = excluded.updated_at`,
		entry.Link, entry.StyleLevel, entry.Model, entry.Post,
		entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing cached post: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("clearing post cache: %w", err)
	}
	return nil
}

// Open returns the Store selected by cfg.
func Open(cfg types.PostCacheConfig) (Store, error) {
	switch cfg.Backend {
	case types.PostCacheMemory:
		return NewMemoryStore(), nil
	case "", types.PostCacheSQLite:
		if cfg.Path == "" {
			return nil, errors.New("post cache path is empty")
		}
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown post cache backend %q", cfg.Backend)
	}
}
