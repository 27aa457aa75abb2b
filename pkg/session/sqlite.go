package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists session contexts in a single-file SQLite database,
// one JSON document per session. This is all the durability the executor
// needs to resume a session on a later turn.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		context    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the session's stored context, or an empty context for a
// session with no prior turns.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (map[string]any, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT context FROM sessions WHERE id = ?`, sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", sessionID, err)
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(doc), &values); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", sessionID, err)
	}
	return values, nil
}

// Save upserts the session's context.
func (s *SQLiteStore) Save(ctx context.Context, sessionID string, values map[string]any) error {
	doc, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", sessionID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions(id, context, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET context = excluded.context, updated_at = excluded.updated_at`,
		sessionID, string(doc), now)
	if err != nil {
		return fmt.Errorf("save session %q: %w", sessionID, err)
	}
	return nil
}
