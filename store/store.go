// Package store is the durable conversation log. Every acknowledged append
// survives a process restart against the same database path.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chatd/models"
)

type Store struct {
	conn *sql.DB

	// Per-conversation locks serialize sequence assignment and append so
	// two concurrent SENDs between the same pair never interleave. Unrelated
	// pairs do not contend.
	mu    sync.Mutex
	pairs map[pairKey]*sync.Mutex
}

// pairKey identifies a conversation by its unordered username pair,
// normalized so A < B.
type pairKey struct {
	A, B string
}

func newPairKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{A: a, B: b}
}

func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Store{
		conn:  conn,
		pairs: make(map[pairKey]*sync.Mutex),
	}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_a TEXT NOT NULL,
			user_b TEXT NOT NULL,
			seq INTEGER NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(user_a, user_b, seq)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

func (s *Store) pairLock(key pairKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.pairs[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairs[key] = lock
	}
	return lock
}

// Append stores one message and returns it with its assigned sequence and
// timestamp. The message is durable once Append returns without error.
func (s *Store) Append(sender, recipient, text string) (models.Message, error) {
	key := newPairKey(sender, recipient)
	lock := s.pairLock(key)
	lock.Lock()
	defer lock.Unlock()

	var seq int64
	err := s.conn.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE user_a = ? AND user_b = ?",
		key.A, key.B,
	).Scan(&seq)
	if err != nil {
		return models.Message{}, fmt.Errorf("next seq: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.conn.Exec(
		"INSERT INTO messages (user_a, user_b, seq, sender, recipient, body, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		key.A, key.B, seq, sender, recipient, text, now.Format(time.RFC3339),
	)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Message{}, err
	}

	return models.Message{
		ID:        id,
		Seq:       seq,
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		Timestamp: now,
	}, nil
}

// Conversation returns all messages between a and b in append order. A pair
// with no stored messages yields an empty slice, not an error.
func (s *Store) Conversation(a, b string) ([]models.Message, error) {
	key := newPairKey(a, b)

	rows, err := s.conn.Query(
		"SELECT id, seq, sender, recipient, body, created_at FROM messages WHERE user_a = ? AND user_b = ? ORDER BY seq ASC",
		key.A, key.B,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Seq, &m.Sender, &m.Recipient, &m.Text, &createdAt); err != nil {
			return nil, err
		}

		m.Timestamp, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}

		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// DeleteConversation removes every message between a and b, for both
// parties. A subsequent Conversation call returns an empty slice.
func (s *Store) DeleteConversation(a, b string) error {
	key := newPairKey(a, b)
	lock := s.pairLock(key)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.conn.Exec(
		"DELETE FROM messages WHERE user_a = ? AND user_b = ?",
		key.A, key.B,
	)
	return err
}
