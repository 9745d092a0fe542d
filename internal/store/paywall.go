package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// MarkPaywallFired records (or refreshes) the last time the upgrade prompt
// fired for a conversation. The gate writes this before dispatching so a
// slow or retried dispatch cannot double-fire.
func (s *Store) MarkPaywallFired(ctx context.Context, conversationID int64, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paywall_marks(conversation_id, fired_at) VALUES(?,?)
		 ON CONFLICT(conversation_id) DO UPDATE SET fired_at = excluded.fired_at`,
		conversationID, millis(at))
	return err
}

// LastPaywallFired returns when the prompt last fired for a conversation.
func (s *Store) LastPaywallFired(ctx context.Context, conversationID int64) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrClosed
	}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT fired_at FROM paywall_marks WHERE conversation_id = ?`, conversationID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromMillis(ms), true, nil
}

// PrunePaywallMarks deletes marks older than the cutoff. Run from the
// maintenance sweep; expired marks are dead weight once the cooldown passed.
func (s *Store) PrunePaywallMarks(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM paywall_marks WHERE fired_at < ?`, millis(olderThan))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
