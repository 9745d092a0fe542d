package store

import (
	"context"
	"database/sql"
	"errors"
)

// InsertMessage stores a message unless a duplicate exists.
//
// A duplicate is any message in the same conversation with identical
// (sender, body) whose created_at is within the dedup window of
// p.CreatedAt. On a hit the existing message id is returned with
// existed=true and nothing is written.
func (s *Store) InsertMessage(ctx context.Context, p InsertMessageParams) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrClosed
	}

	created := millis(p.CreatedAt)
	windowMS := s.dedupWindow.Milliseconds()

	var existing int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM messages
		 WHERE conversation_id = ? AND sender = ? AND body = ?
		   AND created_at BETWEEN ? AND ?
		 LIMIT 1`,
		p.ConversationID, p.Sender, p.Body, created-windowMS, created+windowMS).Scan(&existing)
	switch {
	case err == nil:
		return existing, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender, body, created_at, conversation_name_snapshot)
		 VALUES(?,?,?,?,?)
		 RETURNING id`,
		p.ConversationID, p.Sender, p.Body, created, p.ConversationName).Scan(&id)
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// RecentMessages returns the most recent n messages of a conversation in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID int64, n int) ([]*Message, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, body, created_at, conversation_name_snapshot
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Body, &created, &m.ConversationName); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMillis(created)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query runs newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages reports how many messages a conversation holds.
func (s *Store) CountMessages(ctx context.Context, conversationID int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	return n, err
}
