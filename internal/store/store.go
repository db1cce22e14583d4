// Package store provides the durable, append-only message log for user
// pairs, backed by PostgreSQL. Messages are created on send and mutated only
// to flip is_read when the receiver opens the room; nothing here deletes
// them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrStoreUnavailable is returned when the backing database cannot serve a
// request. Callers fail the send attempt rather than publishing a message
// that was never persisted.
var ErrStoreUnavailable = errors.New("store: unavailable")

// ChatMessage is one row of the durable message log.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// Store manages chat messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append durably inserts a new message from sender to receiver and returns
// the stored row. The message starts unread.
func (s *Store) Append(ctx context.Context, sender, receiver, body string) (*ChatMessage, error) {
	const query = `
		INSERT INTO chat_messages (id, sender_id, receiver_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	msg := &ChatMessage{
		ID:         uuid.New().String(),
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       body,
		IsRead:     false,
	}

	err := s.db.QueryRowContext(ctx, query, msg.ID, sender, receiver, body).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: append: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

// History returns every message between the two users, both directions
// merged, ascending by created_at. There is no pagination: history grows
// without bound, which is a known scale concern for long-lived pairs.
func (s *Store) History(ctx context.Context, userA, userB string) ([]ChatMessage, error) {
	const query = `
		SELECT id, sender_id, receiver_id, body, created_at, is_read
		FROM chat_messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, fmt.Errorf("%w: history scan: %v", ErrStoreUnavailable, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: history rows: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// MarkRead flips is_read on every unread message sent from sender to
// receiver and returns the number of rows affected. Messages in the other
// direction are untouched.
func (s *Store) MarkRead(ctx context.Context, receiver, sender string) (int64, error) {
	const query = `
		UPDATE chat_messages
		SET is_read = TRUE
		WHERE receiver_id = $1 AND sender_id = $2 AND is_read = FALSE`

	res, err := s.db.ExecContext(ctx, query, receiver, sender)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: mark read rows: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// LastMessage returns the most recent message between the two users in
// either direction, or nil if they have never exchanged one. Used by the
// directory service for roster previews.
func (s *Store) LastMessage(ctx context.Context, userA, userB string) (*ChatMessage, error) {
	const query = `
		SELECT id, sender_id, receiver_id, body, created_at, is_read
		FROM chat_messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var m ChatMessage
	err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.CreatedAt, &m.IsRead)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: last message: %v", ErrStoreUnavailable, err)
	}
	return &m, nil
}

// UnreadCount returns the number of unread messages sent from sender to
// receiver.
func (s *Store) UnreadCount(ctx context.Context, receiver, sender string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM chat_messages
		WHERE receiver_id = $1 AND sender_id = $2 AND is_read = FALSE`

	var count int
	if err := s.db.QueryRowContext(ctx, query, receiver, sender).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: unread count: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}
