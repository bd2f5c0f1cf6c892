// Package store persists chat messages in a local SQLite database. It is
// the only durable state in the process; presence and call signaling are
// in-memory only.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Message is the canonical persisted record. The server-assigned id and
// timestamp are what clients render, not their optimistic local copies.
type Message struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Timestamp   time.Time `json:"timestamp"`
}

type Store struct {
	db    *sql.DB
	limit int
}

// Open opens or creates the database at path and prepares the schema.
// historyLimit caps how many rows Recent returns.
func Open(path string, historyLimit int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			text         TEXT NOT NULL,
			sender_id    TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			ts           INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_sender    ON messages(sender_id, ts);
		CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, ts);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Store{db: db, limit: historyLimit}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) PingContext(ctx context.Context) error { return s.db.PingContext(ctx) }

// Save persists one message and returns the canonical record with its
// server-assigned id. Timestamps are stored at millisecond precision.
func (s *Store) Save(ctx context.Context, text, senderID, recipientID string, ts time.Time) (Message, error) {
	m := Message{
		ID:          uuid.NewString(),
		Text:        text,
		SenderID:    senderID,
		RecipientID: recipientID,
		Timestamp:   ts.Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, text, sender_id, recipient_id, ts) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Text, m.SenderID, m.RecipientID, m.Timestamp.UnixMilli(),
	)
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	return m, nil
}

// Recent returns up to the configured limit of messages where identity is
// sender or recipient, newest first.
func (s *Store) Recent(ctx context.Context, identity string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, sender_id, recipient_id, ts
		   FROM messages
		  WHERE sender_id = ? OR recipient_id = ?
		  ORDER BY ts DESC, rowid DESC
		  LIMIT ?`,
		identity, identity, s.limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ms int64
		if err := rows.Scan(&m.ID, &m.Text, &m.SenderID, &m.RecipientID, &ms); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
