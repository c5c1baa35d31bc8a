package checkpoint

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
)

const schema = `
CREATE TABLE IF NOT EXISTS poll_cursors (
    cursor_key TEXT PRIMARY KEY,
    update_id  INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`

// SQLite stores cursors in a single-table SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating when needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("checkpoint path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	// One writer; the poll loop is the only caller.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, key string) (int, bool, error) {
	var updateID int
	err := s.db.QueryRowContext(ctx, `SELECT update_id FROM poll_cursors WHERE cursor_key = ?`, key).Scan(&updateID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load cursor %q: %w", key, err)
	}

	return updateID, true, nil
}

func (s *SQLite) Save(ctx context.Context, key string, updateID int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO poll_cursors (cursor_key, update_id, updated_at) VALUES (?, ?, ?)
ON CONFLICT(cursor_key) DO UPDATE SET
    update_id  = max(poll_cursors.update_id, excluded.update_id),
    updated_at = excluded.updated_at`, key, updateID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save cursor %q: %w", key, err)
	}

	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
