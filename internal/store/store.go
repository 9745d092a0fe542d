package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "notisum/pkg/logx"
)

// Store is the single long-lived handle to the local database.
// It is safe for concurrent use; writes serialize on one connection.
type Store struct {
	db  *sql.DB
	log logx.Logger

	dedupWindow     time.Duration
	autoSummarySeed int64
}

// Open opens (creating if needed) the database at cfg.Path and applies
// migrations. The caller owns the returned handle for the process lifetime.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers. A single
	// connection also serializes upsert/insert pairs, which is what keeps
	// the unread increment race-free.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	window := cfg.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	seed := cfg.DefaultAutoSummaryCount
	if seed <= 0 {
		seed = 30
	}

	s := &Store{db: db, log: log, dedupWindow: window, autoSummarySeed: seed}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := s.migrate(context.Background(), schemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DedupWindow reports the configured message dedup window.
func (s *Store) DedupWindow() time.Duration { return s.dedupWindow }

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
