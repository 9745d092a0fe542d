package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"notisum/internal/eventbus"
	"notisum/internal/ingest"
)

func writeConfig(t *testing.T, dir string, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := `logging:
  level: error
  console: false
storage:
  path: ` + filepath.Join(dir, "app.db") + `
api:
  base_url: http://127.0.0.1:1
  token: test-token
` + extra
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(writeConfig(t, t.TempDir(), ""))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	})
	return a
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestAppIngestToCommandFlow(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	err := a.Pipeline().Submit(ingest.RawEvent{
		Source:    "telegram",
		Title:     "Ops Crew: Lee",
		Body:      "deploy done",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return a.Pipeline().Stats().Persisted == 1 })

	convs, err := a.Conversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 || convs[0].Name != "Ops Crew" || convs[0].UnreadCount != 1 {
		t.Fatalf("unexpected conversations: %+v", convs)
	}
	id := convs[0].ID

	// Muting applies to the live pipeline immediately.
	if err := a.SetMuted(ctx, id, true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	err = a.Pipeline().Submit(ingest.RawEvent{
		Source:    "telegram",
		Title:     "Ops Crew: Lee",
		Body:      "second",
		Timestamp: time.Now().Add(5 * time.Second),
	})
	if err != nil {
		t.Fatalf("submit muted: %v", err)
	}
	waitFor(t, func() bool { return a.Pipeline().Stats().Suppressed == 1 })

	if err := a.MarkRead(ctx, id); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	convs, err = a.Conversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if convs[0].UnreadCount != 0 {
		t.Fatalf("unread after mark read: %d", convs[0].UnreadCount)
	}
}

func TestAppCommandEmitsUpdate(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	err := a.Pipeline().Submit(ingest.RawEvent{
		Source:    "whatsapp",
		Title:     "Pat",
		Body:      "hi",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return a.Pipeline().Stats().Persisted == 1 })

	convs, err := a.Conversations(ctx)
	if err != nil || len(convs) != 1 {
		t.Fatalf("list: %v (%d)", err, len(convs))
	}

	events, cancel := a.Bus().Subscribe(8)
	defer cancel()
	if err := a.SetPinned(ctx, convs[0].ID, true); err != nil {
		t.Fatalf("pin: %v", err)
	}
	select {
	case e := <-events:
		if e.Type != eventbus.TypeConversationUpdated {
			t.Fatalf("event type = %s", e.Type)
		}
		upd := e.Data.(eventbus.ConversationUpdated)
		if upd.ConversationID != convs[0].ID {
			t.Fatalf("wrong conversation in update: %+v", upd)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no conversation.updated after command")
	}
}

// Five messages into a group chat with a threshold of five should end
// with a stored summary covering all five and the unread counter reset.
func TestAppAutoSummaryEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/usage":
			w.Write([]byte(`{"planType":"pro"}`))
		case "/summary":
			w.Write([]byte(`{"summaryMessage":"deploy went fine"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := `logging:
  level: error
  console: false
storage:
  path: ` + filepath.Join(dir, "app.db") + `
api:
  base_url: ` + srv.URL + `
  token: test-token
summary:
  default_threshold: 5
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	})

	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	bodies := []string{"first", "second", "third", "fourth", "fifth"}
	for i, b := range bodies {
		err := a.Pipeline().Submit(ingest.RawEvent{
			Source:    "telegram",
			Title:     "Team Chat: Kim",
			Body:      b,
			Timestamp: base.Add(time.Duration(i) * 2 * time.Second),
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	waitFor(t, func() bool { return a.Pipeline().Stats().Persisted == 5 })

	convs, err := a.Conversations(ctx)
	if err != nil || len(convs) != 1 {
		t.Fatalf("list: %v (%d)", err, len(convs))
	}
	id := convs[0].ID

	waitFor(t, func() bool {
		sums, err := a.Summaries(ctx, id)
		return err == nil && len(sums) == 1
	})
	sums, err := a.Summaries(ctx, id)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if sums[0].Body != "deploy went fine" {
		t.Fatalf("summary body = %q", sums[0].Body)
	}
	if !sums[0].FromTime.Equal(base.Truncate(time.Millisecond)) {
		t.Fatalf("summary from = %v, want %v", sums[0].FromTime, base)
	}
	waitFor(t, func() bool {
		convs, err := a.Conversations(ctx)
		return err == nil && len(convs) == 1 && convs[0].UnreadCount == 0
	})
}
