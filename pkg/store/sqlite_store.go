package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"plantroom/pkg/domain"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	revision   TEXT NOT NULL,
	document   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteStore keeps rooms in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// GetRoom loads a room row.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (Snapshot, bool, error) {
	var rev, doc string
	err := s.db.QueryRowContext(ctx, `SELECT revision, document FROM rooms WHERE id = ?`, id).Scan(&rev, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get room: %w", err)
	}
	var room domain.Room
	if err := json.Unmarshal([]byte(doc), &room); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode room %s: %w", id, err)
	}
	return Snapshot{Room: room, Revision: rev}, true, nil
}

// PutRoom inserts or conditionally updates a room row.
func (s *SQLiteStore) PutRoom(ctx context.Context, room domain.Room, expectedRevision string) (string, error) {
	doc, err := json.Marshal(room)
	if err != nil {
		return "", fmt.Errorf("encode room: %w", err)
	}
	rev := newRevision()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var res sql.Result
	if expectedRevision == "" {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO rooms (id, revision, document, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			room.ID, rev, string(doc), now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE rooms SET revision = ?, document = ?, updated_at = ? WHERE id = ? AND revision = ?`,
			rev, string(doc), now, room.ID, expectedRevision)
	}
	if err != nil {
		return "", fmt.Errorf("put room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("put room: %w", err)
	}
	if n == 0 {
		return "", ErrRevisionConflict
	}
	return rev, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
