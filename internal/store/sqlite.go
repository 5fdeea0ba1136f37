// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jeranaias/chatrelay/internal/model"
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	session_key TEXT NOT NULL,
	role        TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	content     TEXT NOT NULL,
	timestamp   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_key, seq);

CREATE TABLE IF NOT EXISTS summaries (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key   TEXT NOT NULL,
	text          TEXT NOT NULL,
	message_count INTEGER NOT NULL,
	range_start   INTEGER NOT NULL,
	range_end     INTEGER NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_session ON summaries(session_key, range_end);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore persists conversations in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. WAL mode keeps concurrent readers off the writer's back.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writes internally; one connection avoids
	// SQLITE_BUSY under concurrent compactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendMessage implements Store.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg model.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_key, role, seq, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.SessionKey), string(msg.Role), msg.Seq, msg.Content, msg.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: append message: %v", ErrWriteFailed, err)
	}
	return nil
}

// ListRecent implements Store.
func (s *SQLiteStore) ListRecent(ctx context.Context, key model.SessionKey, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, seq, content, timestamp FROM messages
		 WHERE session_key = ? ORDER BY seq DESC LIMIT ?`,
		string(key), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var ts int64
		if err := rows.Scan(&m.ID, &role, &m.Seq, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SessionKey = key
		m.Role = model.Role(role)
		m.Timestamp = time.Unix(0, ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}

	// Query returned newest first; callers want chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CompactRange implements Store. The summary insert and the range delete
// run in one transaction: either both persist or neither does.
func (s *SQLiteStore) CompactRange(ctx context.Context, key model.SessionKey, summary model.Summary, startSeq, endSeq int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin compaction: %v", ErrWriteFailed, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO summaries (session_key, text, message_count, range_start, range_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(key), summary.Text, summary.MessageCount, summary.RangeStart, summary.RangeEnd,
		summary.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: insert summary: %v", ErrWriteFailed, err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_key = ? AND seq BETWEEN ? AND ?`,
		string(key), startSeq, endSeq)
	if err != nil {
		return fmt.Errorf("%w: delete compacted range: %v", ErrWriteFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit compaction: %v", ErrWriteFailed, err)
	}
	return nil
}

// ListSummaries implements Store.
func (s *SQLiteStore) ListSummaries(ctx context.Context, key model.SessionKey) ([]model.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, message_count, range_start, range_end, created_at FROM summaries
		 WHERE session_key = ? ORDER BY range_end ASC`,
		string(key))
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []model.Summary
	for rows.Next() {
		var sm model.Summary
		var ts int64
		if err := rows.Scan(&sm.Text, &sm.MessageCount, &sm.RangeStart, &sm.RangeEnd, &ts); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sm.SessionKey = key
		sm.CreatedAt = time.Unix(0, ts)
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return out, nil
}

// DeleteSession implements Store.
func (s *SQLiteStore) DeleteSession(ctx context.Context, key model.SessionKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin delete: %v", ErrWriteFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_key = ?`, string(key)); err != nil {
		return fmt.Errorf("%w: delete messages: %v", ErrWriteFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE session_key = ?`, string(key)); err != nil {
		return fmt.Errorf("%w: delete summaries: %v", ErrWriteFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", ErrWriteFailed, err)
	}
	return nil
}
