package store

import (
	"context"
	"time"
)

// InsertSummary persists a summary row. Summaries are append-only.
func (s *Store) InsertSummary(ctx context.Context, sum Summary) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	created := sum.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO summaries (conversation_id, title, body, detail_body, from_time, to_time, created_at)
		 VALUES(?,?,?,?,?,?,?)
		 RETURNING id`,
		sum.ConversationID, sum.Title, sum.Body, sum.DetailBody,
		millis(sum.FromTime), millis(sum.ToTime), millis(created)).Scan(&id)
	return id, err
}

// ListSummaries returns a conversation's summaries, newest first.
func (s *Store) ListSummaries(ctx context.Context, conversationID int64) ([]*Summary, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, title, body, detail_body, from_time, to_time, created_at
		 FROM summaries
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var v Summary
		var from, to, created int64
		if err := rows.Scan(&v.ID, &v.ConversationID, &v.Title, &v.Body, &v.DetailBody, &from, &to, &created); err != nil {
			return nil, err
		}
		v.FromTime = fromMillis(from)
		v.ToTime = fromMillis(to)
		v.CreatedAt = fromMillis(created)
		out = append(out, &v)
	}
	return out, rows.Err()
}
