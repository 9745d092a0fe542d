package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "notisum/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "notisum.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func upsert(t *testing.T, s *Store, name, source, msg, sender string, at time.Time) (int64, int64) {
	t.Helper()
	id, unread, err := s.UpsertConversation(context.Background(), UpsertParams{
		Name: name, SourceID: source, LastMessage: msg, LastSender: sender, LastTime: at,
	})
	if err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}
	return id, unread
}

func TestUpsertCreatesThenIncrements(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, unread := upsert(t, s, "Team Chat", "appX", "hello", "Ana", now)
	if id <= 0 {
		t.Fatalf("id = %d, want > 0", id)
	}
	if unread != 1 {
		t.Fatalf("unread = %d, want 1", unread)
	}

	id2, unread2 := upsert(t, s, "Team Chat", "appX", "hi again", "Bo", now.Add(time.Minute))
	if id2 != id {
		t.Fatalf("expected same conversation, got %d and %d", id, id2)
	}
	if unread2 != 2 {
		t.Fatalf("unread = %d, want 2", unread2)
	}

	c, err := s.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if c.LastMessage != "hi again" || c.LastSender != "Bo" {
		t.Fatalf("last-message fields not overwritten: %+v", c)
	}
}

func TestMonotonicUnreadAndReset(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var id int64
	for i := 0; i < 7; i++ {
		id, _ = upsert(t, s, "grp", "appX", "m", "a", now.Add(time.Duration(i)*time.Second))
	}
	c, _ := s.GetConversation(ctx, id)
	if c.UnreadCount != 7 {
		t.Fatalf("unread = %d, want 7", c.UnreadCount)
	}

	if err := s.ResetUnread(ctx, id); err != nil {
		t.Fatalf("ResetUnread: %v", err)
	}
	c, _ = s.GetConversation(ctx, id)
	if c.UnreadCount != 0 {
		t.Fatalf("unread after reset = %d, want 0", c.UnreadCount)
	}
}

func TestBlockedConversationRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, _ := upsert(t, s, "spam", "appX", "buy now", "bot", now)
	if err := s.SetBlocked(ctx, id, true); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}

	got, _, err := s.UpsertConversation(ctx, UpsertParams{
		Name: "spam", SourceID: "appX", LastMessage: "again", LastSender: "bot", LastTime: now.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}
	if got != RejectedConversation {
		t.Fatalf("id = %d, want rejection sentinel %d", got, RejectedConversation)
	}

	// No mutation: unread and last-message fields unchanged.
	c, _ := s.GetConversation(ctx, id)
	if c.UnreadCount != 1 || c.LastMessage != "buy now" {
		t.Fatalf("blocked conversation was mutated: %+v", c)
	}
}

func TestReplyTokenNeverOverwrittenWithEmpty(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, _, err := s.UpsertConversation(ctx, UpsertParams{
		Name: "c", SourceID: "appX", LastTime: now, ReplyToken: "tok-1",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_, _, err = s.UpsertConversation(ctx, UpsertParams{
		Name: "c", SourceID: "appX", LastTime: now.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	c, _ := s.GetConversationByKey(ctx, "c", "appX")
	if c.ReplyToken != "tok-1" {
		t.Fatalf("ReplyToken = %q, want tok-1", c.ReplyToken)
	}

	_, _, err = s.UpsertConversation(ctx, UpsertParams{
		Name: "c", SourceID: "appX", LastTime: now.Add(2 * time.Second), ReplyToken: "tok-2",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	c, _ = s.GetConversationByKey(ctx, "c", "appX")
	if c.ReplyToken != "tok-2" {
		t.Fatalf("ReplyToken = %q, want tok-2", c.ReplyToken)
	}
}

func TestSummaryDefaultsFollowChatShape(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, _, _ = s.UpsertConversation(ctx, UpsertParams{Name: "dm", SourceID: "appX", LastTime: now, IsDirect: true})
	_, _, _ = s.UpsertConversation(ctx, UpsertParams{Name: "room", SourceID: "appX", LastTime: now, IsDirect: false})

	dm, _ := s.GetConversationByKey(ctx, "dm", "appX")
	if dm.SummaryEnabled || dm.AutoSummaryEnabled {
		t.Fatalf("direct chat should default summaries off: %+v", dm)
	}
	room, _ := s.GetConversationByKey(ctx, "room", "appX")
	if !room.SummaryEnabled || !room.AutoSummaryEnabled {
		t.Fatalf("group chat should default summaries on: %+v", room)
	}
	if room.AutoSummaryCount != 30 {
		t.Fatalf("AutoSummaryCount = %d, want default 30", room.AutoSummaryCount)
	}
}

func TestMessageDedupWindow(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	id, _ := upsert(t, s, "c", "appX", "x", "a", base)
	p := InsertMessageParams{ConversationID: id, Sender: "Ana", Body: "hello", CreatedAt: base, ConversationName: "c"}

	first, existed, err := s.InsertMessage(ctx, p)
	if err != nil || existed {
		t.Fatalf("first insert: id=%d existed=%v err=%v", first, existed, err)
	}

	// Identical payload, same timestamp and +900ms: both dedup hits.
	if got, existed, _ := s.InsertMessage(ctx, p); !existed || got != first {
		t.Fatalf("same-timestamp insert: id=%d existed=%v, want dedup hit on %d", got, existed, first)
	}
	p2 := p
	p2.CreatedAt = base.Add(900 * time.Millisecond)
	if got, existed, _ := s.InsertMessage(ctx, p2); !existed || got != first {
		t.Fatalf("+900ms insert: id=%d existed=%v, want dedup hit on %d", got, existed, first)
	}

	// +1500ms is outside the window: a new row.
	p3 := p
	p3.CreatedAt = base.Add(1500 * time.Millisecond)
	got, existed, err := s.InsertMessage(ctx, p3)
	if err != nil || existed || got == first {
		t.Fatalf("+1500ms insert: id=%d existed=%v err=%v, want new row", got, existed, err)
	}

	n, _ := s.CountMessages(ctx, id)
	if n != 2 {
		t.Fatalf("message count = %d, want 2", n)
	}
}

func TestRecentMessagesChronological(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	id, _ := upsert(t, s, "c", "appX", "x", "a", base)
	for i := 0; i < 8; i++ {
		_, _, err := s.InsertMessage(ctx, InsertMessageParams{
			ConversationID: id, Sender: "a", Body: string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute), ConversationName: "c",
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	got, err := s.RecentMessages(ctx, id, 5)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	// The five newest, oldest first.
	if got[0].Body != "d" || got[4].Body != "h" {
		t.Fatalf("unexpected order: %q .. %q", got[0].Body, got[4].Body)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Fatalf("not chronological at %d", i)
		}
	}
}

func TestCascadeDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, _ := upsert(t, s, "c", "appX", "x", "a", now)
	_, _, _ = s.InsertMessage(ctx, InsertMessageParams{ConversationID: id, Sender: "a", Body: "b", CreatedAt: now, ConversationName: "c"})
	_, err := s.InsertSummary(ctx, Summary{ConversationID: id, Body: "sum", FromTime: now, ToTime: now})
	if err != nil {
		t.Fatalf("InsertSummary: %v", err)
	}

	if err := s.DeleteConversation(ctx, id); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if n, _ := s.CountMessages(ctx, id); n != 0 {
		t.Fatalf("messages survived cascade: %d", n)
	}
	sums, _ := s.ListSummaries(ctx, id)
	if len(sums) != 0 {
		t.Fatalf("summaries survived cascade: %d", len(sums))
	}
}

func TestPaywallMarks(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	id, _ := upsert(t, s, "c", "appX", "x", "a", now)

	if _, ok, _ := s.LastPaywallFired(ctx, id); ok {
		t.Fatal("expected no mark initially")
	}
	if err := s.MarkPaywallFired(ctx, id, now); err != nil {
		t.Fatalf("MarkPaywallFired: %v", err)
	}
	at, ok, err := s.LastPaywallFired(ctx, id)
	if err != nil || !ok || !at.Equal(now) {
		t.Fatalf("LastPaywallFired = (%v, %v, %v), want (%v, true, nil)", at, ok, err, now)
	}

	n, err := s.PrunePaywallMarks(ctx, now.Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("PrunePaywallMarks = (%d, %v), want (1, nil)", n, err)
	}
}

func TestMigrationIdempotentAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notisum.db")

	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	id, _ := upsert(t, s, "keep", "appX", "m", "a", time.Now())
	_ = s.Close()

	// Re-opening applies the same migrations again; nothing may fail or be lost.
	s2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	c, err := s2.GetConversation(context.Background(), id)
	if err != nil || c == nil {
		t.Fatalf("data lost across reopen: %v %v", c, err)
	}
}

func TestDowngradeIsNoOp(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := upsert(t, s, "keep", "appX", "m", "a", time.Now())

	// An older component opening the same database must not destroy data
	// or fail; it just leaves the newer schema alone.
	if err := s.migrate(ctx, 2); err != nil {
		t.Fatalf("downgrade migrate: %v", err)
	}
	if v, _ := s.diskVersion(ctx); v != schemaVersion {
		t.Fatalf("disk version = %d, want %d (unchanged)", v, schemaVersion)
	}
	c, err := s.GetConversation(ctx, id)
	if err != nil || c == nil {
		t.Fatalf("data lost on downgrade: %v %v", c, err)
	}
}

func TestColumnExistsInspectsLiveSchema(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.columnExists(ctx, "conversations", "reply_token")
	if err != nil || !ok {
		t.Fatalf("columnExists(reply_token) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.columnExists(ctx, "conversations", "no_such_column")
	if err != nil || ok {
		t.Fatalf("columnExists(no_such_column) = (%v, %v), want (false, nil)", ok, err)
	}
}
