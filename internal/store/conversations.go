package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const conversationCols = `id, name, source_id, alias, last_message, last_sender, last_time,
	unread_count, pinned, blocked, muted, summary_enabled, category, created_at, updated_at,
	reply_token, auto_summary_enabled, auto_summary_count`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	var lastTime, createdAt, updatedAt int64
	err := row.Scan(
		&c.ID, &c.Name, &c.SourceID, &c.Alias, &c.LastMessage, &c.LastSender, &lastTime,
		&c.UnreadCount, &c.Pinned, &c.Blocked, &c.Muted, &c.SummaryEnabled, &c.Category,
		&createdAt, &updatedAt, &c.ReplyToken, &c.AutoSummaryEnabled, &c.AutoSummaryCount,
	)
	if err != nil {
		return nil, err
	}
	c.LastTime = fromMillis(lastTime)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// UpsertConversation applies an inbound message to the conversation
// identified by (p.Name, p.SourceID).
//
// Existing conversation: blocked → (RejectedConversation, 0, nil) with no
// mutation. Otherwise unread is incremented by exactly 1, last-message
// fields overwritten and the reply token refreshed if a non-empty one is
// supplied — all in one statement, so there is no partial state to leak.
//
// New conversation: created with unread 1; summarization defaults follow
// the chat shape (direct → off, group → on).
//
// The returned unread count is the value this call produced, which is
// what edge-triggered consumers must see.
func (s *Store) UpsertConversation(ctx context.Context, p UpsertParams) (int64, int64, error) {
	if s == nil || s.db == nil {
		return 0, 0, ErrClosed
	}

	var (
		id      int64
		blocked bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, blocked FROM conversations WHERE name = ? AND source_id = ?`,
		p.Name, p.SourceID).Scan(&id, &blocked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.createConversation(ctx, p)
	case err != nil:
		return 0, 0, err
	}

	if blocked {
		return RejectedConversation, 0, nil
	}

	now := time.Now().UnixMilli()
	var unread int64
	err = s.db.QueryRowContext(ctx,
		`UPDATE conversations
		 SET unread_count = unread_count + 1,
		     last_message = ?, last_sender = ?, last_time = ?,
		     reply_token = CASE WHEN ? <> '' THEN ? ELSE reply_token END,
		     updated_at = ?
		 WHERE id = ?
		 RETURNING unread_count`,
		p.LastMessage, p.LastSender, millis(p.LastTime),
		p.ReplyToken, p.ReplyToken, now, id).Scan(&unread)
	if err != nil {
		return 0, 0, err
	}
	return id, unread, nil
}

func (s *Store) createConversation(ctx context.Context, p UpsertParams) (int64, int64, error) {
	now := time.Now().UnixMilli()
	group := boolInt(!p.IsDirect)
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversations
		 (name, source_id, last_message, last_sender, last_time, unread_count,
		  summary_enabled, auto_summary_enabled, auto_summary_count,
		  reply_token, created_at, updated_at)
		 VALUES(?,?,?,?,?,1,?,?,?,?,?,?)
		 RETURNING id`,
		p.Name, p.SourceID, p.LastMessage, p.LastSender, millis(p.LastTime),
		group, group, s.autoSummarySeed, p.ReplyToken, now, now).Scan(&id)
	if err != nil {
		return 0, 0, err
	}
	return id, 1, nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *Store) GetConversationByKey(ctx context.Context, name, sourceID string) (*Conversation, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE name = ? AND source_id = ?`,
		name, sourceID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListConversations returns all conversations, pinned first, then by most
// recent activity.
func (s *Store) ListConversations(ctx context.Context) ([]*Conversation, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationCols+` FROM conversations ORDER BY pinned DESC, last_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MutedKeys returns the natural keys of all muted conversations, used to
// seed the pipeline's synchronous suppression cache.
func (s *Store) MutedKeys(ctx context.Context) ([]Key, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, source_id FROM conversations WHERE muted = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Name, &k.SourceID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ResetUnread sets the unread count to exactly 0. This is the only path
// that decreases it.
func (s *Store) ResetUnread(ctx context.Context, id int64) error {
	return s.setField(ctx, id, `unread_count = 0`)
}

func (s *Store) SetMuted(ctx context.Context, id int64, muted bool) error {
	return s.setBoolField(ctx, id, "muted", muted)
}

func (s *Store) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	return s.setBoolField(ctx, id, "blocked", blocked)
}

func (s *Store) SetPinned(ctx context.Context, id int64, pinned bool) error {
	return s.setBoolField(ctx, id, "pinned", pinned)
}

func (s *Store) SetAlias(ctx context.Context, id int64, alias string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET alias = ?, updated_at = ? WHERE id = ?`, alias, now, id)
	return err
}

func (s *Store) SetSummaryEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.setBoolField(ctx, id, "summary_enabled", enabled)
}

// SetAutoSummary updates the auto-summary toggle and threshold together.
func (s *Store) SetAutoSummary(ctx context.Context, id int64, enabled bool, count int64) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if count <= 0 {
		count = s.autoSummarySeed
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET auto_summary_enabled = ?, auto_summary_count = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), count, now, id)
	return err
}

// DeleteConversation removes a conversation and, via FK cascade, its
// messages and summaries.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

func (s *Store) setBoolField(ctx context.Context, id int64, col string, v bool) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET `+col+` = ?, updated_at = ? WHERE id = ?`,
		boolInt(v), now, id)
	return err
}

func (s *Store) setField(ctx context.Context, id int64, assignment string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET `+assignment+`, updated_at = ? WHERE id = ?`, now, id)
	return err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
