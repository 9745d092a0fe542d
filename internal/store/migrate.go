package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "notisum/pkg/logx"
)

// schemaVersion is this binary's expected schema. The store may be opened
// by another component expecting a different version; see migrate.
const schemaVersion = 4

const baseSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	source_id TEXT NOT NULL,
	alias TEXT NOT NULL DEFAULT '',
	last_message TEXT NOT NULL DEFAULT '',
	last_sender TEXT NOT NULL DEFAULT '',
	last_time INTEGER NOT NULL DEFAULT 0,
	unread_count INTEGER NOT NULL DEFAULT 0,
	pinned INTEGER NOT NULL DEFAULT 0,
	blocked INTEGER NOT NULL DEFAULT 0,
	muted INTEGER NOT NULL DEFAULT 0,
	summary_enabled INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT 'default',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(name, source_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	conversation_name_snapshot TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

CREATE TABLE IF NOT EXISTS summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	title TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	detail_body TEXT NOT NULL DEFAULT '',
	from_time INTEGER NOT NULL,
	to_time INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_conversation ON summaries(conversation_id);
`

// columnAdd is one additive migration step. Steps must stay idempotent:
// they are guarded by a live-schema presence check, and a lost race with
// another opener (duplicate column error) is swallowed.
type columnAdd struct {
	version int
	table   string
	column  string
	ddl     string
}

var columnAdds = []columnAdd{
	{2, "conversations", "reply_token", `ALTER TABLE conversations ADD COLUMN reply_token TEXT NOT NULL DEFAULT ''`},
	{3, "conversations", "auto_summary_enabled", `ALTER TABLE conversations ADD COLUMN auto_summary_enabled INTEGER NOT NULL DEFAULT 0`},
	{3, "conversations", "auto_summary_count", `ALTER TABLE conversations ADD COLUMN auto_summary_count INTEGER NOT NULL DEFAULT 30`},
}

const paywallSchema = `
CREATE TABLE IF NOT EXISTS paywall_marks (
	conversation_id INTEGER PRIMARY KEY REFERENCES conversations(id) ON DELETE CASCADE,
	fired_at INTEGER NOT NULL
);
`

func (s *Store) migrate(ctx context.Context, expected int) error {
	if _, err := s.db.ExecContext(ctx, baseSchema); err != nil {
		return fmt.Errorf("base schema: %w", err)
	}

	onDisk, err := s.diskVersion(ctx)
	if err != nil {
		return err
	}
	if onDisk > expected {
		// Another owner already upgraded past us. Never destroy or rewrite;
		// the columns we know about are a subset of what exists.
		s.log.Warn("schema on disk is newer than expected; leaving as-is",
			logx.Int("disk", onDisk), logx.Int("expected", expected))
		return nil
	}

	for _, step := range columnAdds {
		if step.version > expected {
			continue
		}
		ok, err := s.columnExists(ctx, step.table, step.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := s.db.ExecContext(ctx, step.ddl); err != nil {
			if isDuplicateColumn(err) {
				// Two schema owners raced to add the same column.
				s.log.Debug("column already added concurrently",
					logx.String("table", step.table), logx.String("column", step.column))
				continue
			}
			return fmt.Errorf("add %s.%s: %w", step.table, step.column, err)
		}
	}

	if expected >= 4 {
		if _, err := s.db.ExecContext(ctx, paywallSchema); err != nil {
			return fmt.Errorf("paywall schema: %w", err)
		}
	}

	if expected > onDisk {
		now := time.Now().UnixMilli()
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO schema_meta(id, version, updated_at) VALUES(1, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET version = MAX(version, excluded.version), updated_at = excluded.updated_at`,
			expected, now)
		if err != nil {
			return fmt.Errorf("record version: %w", err)
		}
	}
	return nil
}

func (s *Store) diskVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE id = 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// columnExists inspects the live schema. Trusting the recorded version is
// not enough: two independent openers may disagree on version ordering.
func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}
