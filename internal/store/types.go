package store

import (
	"errors"
	"time"
)

// RejectedConversation is the sentinel id returned by UpsertConversation
// when the target conversation is blocked. No mutation has happened and
// the caller must not insert a message.
const RejectedConversation int64 = -1

// DefaultDedupWindow is how far apart two identical (sender, body) pairs
// in the same conversation may be and still count as the same message.
const DefaultDedupWindow = time.Second

var ErrClosed = errors.New("store closed")

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // sqlite busy_timeout; 0 means default
	DedupWindow time.Duration // 0 means DefaultDedupWindow

	// DefaultAutoSummaryCount seeds auto_summary_count for new conversations.
	DefaultAutoSummaryCount int64
}

// Conversation is a persisted chat thread, unique on (Name, SourceID).
type Conversation struct {
	ID          int64
	Name        string
	SourceID    string
	Alias       string
	LastMessage string
	LastSender  string
	LastTime    time.Time
	UnreadCount int64
	Pinned      bool
	Blocked     bool
	Muted       bool

	// SummaryEnabled gates all summarization; AutoSummaryEnabled gates the
	// unread-threshold trigger specifically.
	SummaryEnabled     bool
	AutoSummaryEnabled bool
	AutoSummaryCount   int64

	Category   string
	ReplyToken string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key identifies a conversation by its natural key.
type Key struct {
	Name     string
	SourceID string
}

// Message belongs to exactly one conversation (cascade-deleted with it).
// CreatedAt is source-supplied, not wall-clock-at-insert.
type Message struct {
	ID               int64
	ConversationID   int64
	Sender           string
	Body             string
	CreatedAt        time.Time
	ConversationName string
}

// Summary covers the closed time range [FromTime, ToTime] drawn from the
// oldest/newest message it summarizes. Summaries are never updated in place.
type Summary struct {
	ID             int64
	ConversationID int64
	Title          string
	Body           string
	DetailBody     string
	FromTime       time.Time
	ToTime         time.Time
	CreatedAt      time.Time
}

// UpsertParams carries the last-message fields written by UpsertConversation.
type UpsertParams struct {
	Name        string
	SourceID    string
	LastMessage string
	LastSender  string
	LastTime    time.Time
	ReplyToken  string
	IsDirect    bool
}

// InsertMessageParams is the payload for InsertMessage.
type InsertMessageParams struct {
	ConversationID   int64
	Sender           string
	Body             string
	CreatedAt        time.Time
	ConversationName string
}
